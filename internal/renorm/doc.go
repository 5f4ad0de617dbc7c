// Package renorm renormalizes fitted force constants at finite temperature.
//
// Each requested temperature is renormalized independently on a bounded
// worker pool. Records that can be coupled to thermal expansion (no imaginary
// modes, a bulk modulus, coupling enabled) are sorted by temperature, turned
// into an expansion-fraction curve, and renormalized a second time on the
// expanded geometry. Everything else is written as-is. A null result from the
// oracle drops that temperature; any oracle error aborts the run.
package renorm
