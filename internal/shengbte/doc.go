// Package shengbte runs the ShengBTE Boltzmann transport solver.
//
// It builds the CONTROL namelist from the fitting run's structure, runs the
// solver in the working directory with its streams captured to shengbte.out
// and shengbte_err.txt, and parses the resulting BTE.KappaTensorVsT_* table
// into per-temperature conductivity tensors. Any non-zero solver exit is
// fatal.
package shengbte
