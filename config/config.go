package config

import (
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/oscline/oscline/pkg/transport"
)

type Config struct {
	Loglevel string `yaml:"loglevel"`

	// Transport is the free-form transport spec; decode it with
	// TransportOptions / DecodeSpec depending on the consumer.
	Transport Transport `yaml:"transport"`
}

type Transport struct {
	Spec map[string]interface{} `yaml:"spec"`
}

// TransportOptions decodes the transport spec into a layered options value.
func (t *Transport) TransportOptions() (*transport.Options, error) {
	var o transport.Options
	if err := mapstructure.Decode(t.Spec, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DecodeSpec decodes the transport spec into an arbitrary target, for
// consumers with their own option shapes (the bridge).
func (t *Transport) DecodeSpec(target interface{}) error {
	return mapstructure.Decode(t.Spec, target)
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
