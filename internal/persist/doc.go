// Package persist pushes lattice-dynamics results into the document store.
//
// ForceConstantsToDb stores a fitting run: the collected samples, fit
// diagnostics, thermal properties and content-addressed blobs for the phonon
// DOS, both band structures and the force constants. The renormalized
// variant stores one document per run with a sub-record per temperature.
// Both allocate the run's fc_fitting_id from an atomic counter and return it
// as a spec update. ShengBTEToDb stores a thermal conductivity result tagged
// with the fitting run it came from.
package persist
