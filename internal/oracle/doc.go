// Package oracle talks to the external physics helper that performs force
// constant fitting, phonon property evaluation and renormalization.
//
// The helper is one executable invoked as `<command> <operation>` with a JSON
// request on stdin and a JSON response on stdout. Force constant and cluster
// space objects never cross the pipe: requests name file paths and the helper
// reads or writes them. Schemas returns JSON Schemas for every message so the
// helper can be implemented in any language.
package oracle
