// Package installscript renders the update.sh installer embedded in every
// update package. Generation is a pure function of the install plan; the
// script only ever runs later, on the target host.
package installscript
