package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Provider is one configured transit data provider. The schedule URL
// serves a GTFS zip archive; the realtime URLs serve GTFS-Realtime
// protobuf payloads.
type Provider struct {
	Code                string            `yaml:"code" validate:"required"`
	Name                string            `yaml:"name"`
	ScheduleURL         string            `yaml:"schedule_url" validate:"omitempty,url"`
	TripUpdatesURL      string            `yaml:"trip_updates_url" validate:"omitempty,url"`
	VehiclePositionsURL string            `yaml:"vehicle_positions_url" validate:"omitempty,url"`
	Headers             map[string]string `yaml:"headers"`
	Active              bool              `yaml:"active"`
}

type providersFile struct {
	Providers []Provider `yaml:"providers" validate:"required,min=1,dive"`
}

// LoadProviders reads and validates the providers YAML file.
func LoadProviders(path string) ([]Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return ParseProviders(data)
}

func ParseProviders(data []byte) ([]Provider, error) {
	var pf providersFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("unmarshaling providers yaml: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&pf); err != nil {
		return nil, fmt.Errorf("validating providers: %w", err)
	}

	seen := map[string]bool{}
	for _, p := range pf.Providers {
		if seen[p.Code] {
			return nil, fmt.Errorf("duplicate provider code '%s'", p.Code)
		}
		seen[p.Code] = true
	}

	return pf.Providers, nil
}

// Active filters a provider list down to the active entries.
func Active(providers []Provider) []Provider {
	active := []Provider{}
	for _, p := range providers {
		if p.Active {
			active = append(active, p)
		}
	}
	return active
}
