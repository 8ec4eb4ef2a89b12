package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by the loader
const EnvPrefix = "S3_SNAPSHOT_"

var errReadBytesNotSupported = errors.New("config: ReadBytes not supported by map provider")

// Loader merges configuration sources. Later loads override earlier ones.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

// NewLoader creates a loader reading S3_SNAPSHOT_ environment variables
func NewLoader() *Loader {
	return &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
	}
}

// Load reads the optional YAML file, the environment and the flag overrides,
// in that order, on top of the defaults
func (l *Loader) Load(path string, flags map[string]any) (*Config, error) {
	if path != "" {
		if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(flags) > 0 {
		if err := l.k.Load(mapProvider(flags), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := l.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKey maps S3_SNAPSHOT_RATE_LIMIT to rate_limit and S3_SNAPSHOT_LOG_LEVEL to log.level
func (l *Loader) envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	if rest, ok := strings.CutPrefix(key, "log_"); ok {
		return "log." + rest
	}
	return key
}

// mapProvider feeds flag values into koanf. Keys may be dotted, as in log.level.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
