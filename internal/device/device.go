// Package device holds the static set of devices sampled by the service.
package device

import (
	"codeberg.org/mutker/telemetryd/internal/errors"
)

// Well-known device types.
const (
	TypeTuya      = "tuya"
	TypeSynthetic = "synthetic"
	TypeModbus    = "modbus"
	TypeNVML      = "nvml"
)

// Device is immutable once loaded. Connection holds adapter specific
// parameters and is only read by real-protocol samplers.
type Device struct {
	ID         string            `json:"id" yaml:"id" toml:"id"`
	Name       string            `json:"name" yaml:"name" toml:"name"`
	Type       string            `json:"type" yaml:"type" toml:"type"`
	Connection map[string]string `json:"connection,omitempty" yaml:"connection,omitempty" toml:"connection,omitempty"`
}

// Registry is a read-only DeviceID -> Device mapping. Safe for concurrent use.
type Registry struct {
	devices []Device
	index   map[string]int
}

// NewRegistry validates devices and keeps them in the given order.
func NewRegistry(devices []Device) (*Registry, error) {
	errFactory := errors.New()

	r := &Registry{
		devices: make([]Device, 0, len(devices)),
		index:   make(map[string]int, len(devices)),
	}

	for i, d := range devices {
		if d.ID == "" {
			return nil, errFactory.WithData(ErrInvalidDefinition, struct {
				Position int
				Reason   string
			}{Position: i, Reason: "empty id"})
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, errFactory.WithData(ErrInvalidDefinition, struct {
				ID     string
				Reason string
			}{ID: d.ID, Reason: "duplicate id"})
		}

		r.index[d.ID] = len(r.devices)
		r.devices = append(r.devices, d.clone())
	}

	return r, nil
}

// Get returns the device with the given id.
func (r *Registry) Get(id string) (Device, error) {
	i, ok := r.index[id]
	if !ok {
		return Device{}, errors.New().WithData(ErrNotFound, id)
	}

	return r.devices[i].clone(), nil
}

// List returns all devices in load order.
func (r *Registry) List() []Device {
	out := make([]Device, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.clone()
	}

	return out
}

func (r *Registry) Len() int {
	return len(r.devices)
}

func (d Device) clone() Device {
	if d.Connection == nil {
		return d
	}

	conn := make(map[string]string, len(d.Connection))
	for k, v := range d.Connection {
		conn[k] = v
	}
	d.Connection = conn

	return d
}

// Defaults is the device set used when no definition file exists.
func Defaults() []Device {
	return []Device{
		{
			ID:   "device1",
			Name: "Smart Plug 1",
			Type: TypeTuya,
			Connection: map[string]string{
				"device_id": "your_device_id_1",
				"ip":        "192.168.1.100",
				"local_key": "your_local_key_1",
				"version":   "3.3",
			},
		},
		{
			ID:   "device2",
			Name: "Smart Plug 2",
			Type: TypeTuya,
			Connection: map[string]string{
				"device_id": "your_device_id_2",
				"ip":        "192.168.1.101",
				"local_key": "your_local_key_2",
				"version":   "3.3",
			},
		},
	}
}
