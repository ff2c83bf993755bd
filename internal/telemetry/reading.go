package telemetry

import (
	"math"
	"time"

	"codeberg.org/mutker/telemetryd/internal/errors"
)

const energyTolerance = 1e-9

// Validate checks the invariants every stored reading must satisfy.
func (r Reading) Validate() error {
	errFactory := errors.New()
	invalid := func(reason string) error {
		return errFactory.WithData(ErrInvalidReading, reason)
	}

	switch {
	case r.DeviceID == "":
		return invalid("device_id is empty")
	case r.Power < 0:
		return invalid("power is negative")
	case r.Current < 0:
		return invalid("current is negative")
	case r.Voltage <= 0:
		return invalid("voltage is not positive")
	case math.Abs(r.Energy-r.Power/1000) > energyTolerance:
		return invalid("energy does not equal power/1000")
	}

	if _, err := time.Parse(TimestampLayout, r.Timestamp); err != nil {
		return invalid("timestamp is not in " + TimestampLayout + " layout")
	}

	return nil
}
