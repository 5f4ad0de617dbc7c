// Package fitting fits force constants to the collected displacement/force
// samples and derives the harmonic and anharmonic thermal properties.
//
// The numerical work is delegated to the oracle helper. Fitter owns the
// orchestration: loading the collect-stage artifacts, aligning samples to the
// ideal supercell, deciding what to persist, and skipping the ShengBTE and
// phonopy exports when the fitted spectrum has imaginary modes.
package fitting
