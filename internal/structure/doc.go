// Package structure models periodic crystal structures: a lattice, per-site
// species and fractional coordinates.
//
// It builds supercells from integer transformation matrices, measures atomic
// displacements between a perturbed and an ideal supercell under the minimum
// image convention, and reads VASP POSCAR/CONTCAR files. Linear algebra is
// done with gonum.
package structure
