// Package main hosts the latdyn CLI entrypoint and command graph.
//
// Each pipeline task (collect, fit, renormalize, fc-to-db, shengbte,
// shengbte-to-db) is one subcommand that runs against a single working
// directory, the way the workflow engine invokes it. The root command owns
// configuration resolution, logger construction, correlation IDs and the
// directory lock so subcommands only assemble options and call into internal
// packages.
package main
