package registry

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dtroode/puricare-client/internal/model"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Devices []model.DeviceRecord `yaml:"devices"`
}

// DefaultSeed returns the built-in fallback devices.
func DefaultSeed() []model.DeviceRecord {
	devices, err := parseSeed(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("registry: invalid built-in seed: %v", err))
	}
	return devices
}

// LoadSeed reads fallback devices from a YAML file. An empty path returns
// the built-in seed.
func LoadSeed(path string) ([]model.DeviceRecord, error) {
	if path == "" {
		return DefaultSeed(), nil
	}

	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	devices, err := parseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return devices, nil
}

func parseSeed(data []byte) ([]model.DeviceRecord, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for i, d := range f.Devices {
		if d.ID == "" {
			return nil, fmt.Errorf("device %d has no id", i)
		}
		if d.RoomType != "" && !d.RoomType.Valid() {
			return nil, fmt.Errorf("device %q: %w: %q", d.ID, model.ErrInvalidRoomType, d.RoomType)
		}
	}
	if err := CheckUnique(f.Devices); err != nil {
		return nil, err
	}
	return f.Devices, nil
}
