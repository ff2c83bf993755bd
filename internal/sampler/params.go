package sampler

import (
	"strconv"
	"time"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
)

// params reads typed values out of a device's connection map.
type params struct {
	d device.Device
}

func (p params) invalid(key, reason string) error {
	return errors.New().WithData(ErrInvalidConnection, struct {
		Device string
		Key    string
		Reason string
	}{Device: p.d.ID, Key: key, Reason: reason})
}

func (p params) str(key string) (string, error) {
	v := p.d.Connection[key]
	if v == "" {
		return "", p.invalid(key, "missing")
	}

	return v, nil
}

func (p params) uint16(key string, def uint16, required bool) (uint16, error) {
	v, ok := p.d.Connection[key]
	if !ok || v == "" {
		if required {
			return 0, p.invalid(key, "missing")
		}
		return def, nil
	}

	n, err := strconv.ParseUint(v, 0, 16)
	if err != nil {
		return 0, p.invalid(key, err.Error())
	}

	return uint16(n), nil
}

func (p params) float(key string, def float64) (float64, error) {
	v, ok := p.d.Connection[key]
	if !ok || v == "" {
		return def, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, p.invalid(key, err.Error())
	}

	return f, nil
}

func (p params) int(key string, def int) (int, error) {
	v, ok := p.d.Connection[key]
	if !ok || v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, p.invalid(key, err.Error())
	}

	return n, nil
}

func (p params) duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p.d.Connection[key]
	if !ok || v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, p.invalid(key, err.Error())
	}

	return d, nil
}

func (p params) bool(key string) (bool, error) {
	v, ok := p.d.Connection[key]
	if !ok || v == "" {
		return false, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, p.invalid(key, err.Error())
	}

	return b, nil
}
