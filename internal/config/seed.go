package config

import (
	"fmt"
	"os"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Endpoints []models.EndpointSpec `yaml:"endpoints"`
}

// LoadSeedFile reads endpoints to register at start-up. Credentials may be
// written as ${VAR} and are expanded from the environment.
func LoadSeedFile(path string) ([]models.EndpointSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]models.EndpointSpec, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i := range seed.Endpoints {
		seed.Endpoints[i].Credential = os.ExpandEnv(seed.Endpoints[i].Credential)
	}
	return seed.Endpoints, nil
}
