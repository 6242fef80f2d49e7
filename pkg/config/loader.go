package config

import (
	"bytes"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// EnvPrefix prefixes environment overrides: sweep.space.adds is read from
// SWEEPLINE_SWEEP_SPACE_ADDS
const EnvPrefix = "SWEEPLINE"

// Load reads the configuration at path over the defaults. ${VAR} and
// ${VAR:-default} references in the file are expanded before parsing, and
// SWEEPLINE_* environment variables override file values. An empty path
// loads defaults and environment only.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// NewViper prepares a viper instance holding the defaults, the file at path
// (if any) and the environment. Commands bind their flags to it before
// calling Decode.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seeding every default key lets AutomaticEnv override keys the file
	// does not mention.
	defaults, err := yaml.Marshal(NewConfig())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to render defaults")
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to load defaults")
	}

	if path == "" {
		return v, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("file", path)
	}
	content := substituteEnvVars(string(data))
	if err := v.MergeConfig(strings.NewReader(content)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
			WithDetail("file", path)
	}
	return v, nil
}

// Decode unmarshals v into a Config
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	return cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		rangeHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var rangeType = reflect.TypeOf(sweep.Range{})

// rangeHook accepts "1..4", "1,3,5", a single integer or a list for any
// sweep.Range field
func rangeHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != rangeType {
		return data, nil
	}
	return sweep.RangeFrom(data)
}

// Save writes cfg to path as YAML
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal YAML")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write config file").
			WithDetail("file", path)
	}
	return nil
}

// substituteEnvVars replaces ${VAR} with the variable's value and
// ${VAR:-default} with the default when VAR is unset or empty
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		name, def, _ := strings.Cut(content[start+2:end], ":-")
		value := os.Getenv(name)
		if value == "" {
			value = def
		}
		b.WriteString(content[:start])
		b.WriteString(value)
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}

func compressionAlgorithm(name string) (compression.Algorithm, error) {
	a, err := compression.ParseAlgorithm(name)
	if err != nil {
		return compression.None, errors.Wrap(err, errors.ErrorTypeConfig, "unknown archive compression").
			WithDetail("archive", name)
	}
	return a, nil
}
