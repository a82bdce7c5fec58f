package sources

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DecodeConfig decodes a raw source config block into a typed struct using its yaml tags.
func DecodeConfig(config map[string]interface{}, out interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Seconds is a duration configured either as a Go duration string ("30s")
// or as a plain number of seconds.
type Seconds time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if n, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*s = Seconds(time.Duration(n * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*s = Seconds(d)
	return nil
}

// Duration returns the value as a time.Duration
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

// ResolveAPIKey returns the configured key, falling back to the environment variable.
func ResolveAPIKey(configured, envVar string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: set api_key or %s", ErrAPIKeyRequired, envVar)
}
