// Package logging provides a small, nil-safe leveled logger used by every
// subsystem in the core (bundle mount, POSIX I/O shim, Mach-O loader). It
// exists so that those subsystems can log diagnostic and warning information
// without taking a hard dependency on a particular logging backend.
package logging

import (
	"log"
	"os"
)

func init() {
	// Set the global standard-library logger to use standard output, since
	// Logger routes through it by default.
	log.SetOutput(os.Stdout)
}
