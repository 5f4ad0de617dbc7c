// Package config loads, normalizes, and validates latdyn configuration data.
//
// It supplies repository defaults (the reference temperature grids, imaginary
// mode tolerance and fit method used by the lattice-dynamics tasks), expands
// user paths, reads TOML files, and resolves worker-specific values written as
// >>key<< from the [env] table or LATDYN_<KEY> environment variables.
//
// Always obtain settings through this package so tasks receive sanitized
// paths, canonical log formats, and clear validation errors.
package config
