package main

import (
	"errors"
	"os"

	"github.com/nharju/sensorpush-logger/cmd"
	"github.com/nharju/sensorpush-logger/internal/lockfile"
)

func main() {
	err := cmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, lockfile.ErrHeld):
		// Duplicate instance gets its own exit code so supervisors can
		// tell it apart from a runtime failure.
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
