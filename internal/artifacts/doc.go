// Package artifacts owns the working-directory hand-off between pipeline
// tasks: the fixed file names, JSON dump/load, the parameters.txt codec, the
// record types every stage reads and writes, and the exclusive directory lock
// that keeps two pipeline instances out of one directory.
package artifacts
