// Package preflight provides readiness checks for the working directory,
// the document store location and the external programs latdyn depends on.
//
// "latdyn check" renders the results; each pipeline task also runs
// CheckDirectoryAccess on its working directory before taking the lock so a
// read-only or missing directory fails fast instead of after an oracle call.
package preflight
