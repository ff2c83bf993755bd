package device

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a device definition file.
type File struct {
	Devices []Device `json:"devices" yaml:"devices" toml:"devices"`
}

type codec struct {
	decode func([]byte, *File) error
	encode func(File) ([]byte, error)
}

var codecs = map[string]codec{
	".json": {
		decode: func(b []byte, f *File) error { return json.Unmarshal(b, f) },
		encode: func(f File) ([]byte, error) { return json.MarshalIndent(f, "", "    ") },
	},
	".yaml": {
		decode: func(b []byte, f *File) error { return yaml.Unmarshal(b, f) },
		encode: func(f File) ([]byte, error) { return yaml.Marshal(f) },
	},
	".toml": {
		decode: func(b []byte, f *File) error { return toml.Unmarshal(b, f) },
		encode: func(f File) ([]byte, error) {
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(f); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	},
}

func init() {
	codecs[".yml"] = codecs[".yaml"]
}

func codecFor(path string) (codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c, ok := codecs[ext]
	if !ok {
		return codec{}, errors.New().WithData(ErrInvalidDefinition, "unsupported file extension "+ext)
	}

	return c, nil
}

// Load reads the definition file at path. When the file does not exist
// the default devices are used and written to path; a failed write is
// logged and otherwise ignored. An existing file must define at least
// one device.
func Load(path string, log logger.Logger) (*Registry, error) {
	errFactory := errors.New()

	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("Device file not found, using defaults")

		defaults := Defaults()
		if err := write(path, c, File{Devices: defaults}); err != nil {
			log.WarnWithCode(err).Str("path", path).Msg("Failed to save default devices")
		}

		return NewRegistry(defaults)
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidDefinition, err)
	}

	var f File
	if err := c.decode(data, &f); err != nil {
		return nil, errFactory.Wrap(ErrInvalidDefinition, err)
	}
	if len(f.Devices) == 0 {
		return nil, errFactory.WithData(ErrInvalidDefinition, struct {
			Path   string
			Reason string
		}{Path: path, Reason: "no devices defined"})
	}

	reg, err := NewRegistry(f.Devices)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Int("devices", reg.Len()).Msg("Devices loaded")

	return reg, nil
}

func write(path string, c codec, f File) error {
	errFactory := errors.New()

	data, err := c.encode(f)
	if err != nil {
		return errFactory.Wrap(ErrWriteDefaults, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errFactory.Wrap(ErrWriteDefaults, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errFactory.Wrap(ErrWriteDefaults, err)
	}

	return nil
}
