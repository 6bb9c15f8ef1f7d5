// Package providers turns a resolved resource tree into convergence units.
//
// Each resource kind contributes a unit whose steps check the host through
// the collaborators in Env and apply only what differs. The server unit also
// serves the restart and rebuild_realm notifications its children queue.
package providers
