package kvbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names exactly one backend variant.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendRedis Backend = "redis"
)

// Config is a tagged union: Type selects the variant and only that variant's
// parameters are read.
//
//	type: local
//	queue_size: 32
//
//	type: redis
//	prefix: "app:prod:"
//	connection_string: "redis://localhost:6379/0?pool_size=20"
type Config struct {
	Type  Backend
	Local LocalConfig
	Redis RedisConfig
}

// LocalConfig parameterizes the in-process backend.
type LocalConfig struct {
	// QueueSize is the per-topic slot count of local channels; 0 => 16.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// RedisConfig parameterizes the redis backend.
type RedisConfig struct {
	// Prefix is prepended verbatim to every cache name and topic.
	Prefix string `yaml:"prefix" json:"prefix"`
	// ConnectionString is a redis:// or rediss:// URL. go-redis pool options
	// (pool_size, pool_timeout, ...) may be given as query arguments.
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
}

var ErrInvalidConfig = errors.New("kvbus: invalid configuration")

// Local returns a local backend configuration.
func Local(queueSize int) Config {
	return Config{Type: BackendLocal, Local: LocalConfig{QueueSize: queueSize}}
}

// Redis returns a redis backend configuration.
func Redis(prefix, connectionString string) Config {
	return Config{Type: BackendRedis, Redis: RedisConfig{Prefix: prefix, ConnectionString: connectionString}}
}

// ParseConfig decodes a YAML (or JSON) configuration document.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return c, c.Validate()
}

// Validate checks the selected variant's parameters. A missing redis
// connection string is accepted here because Options.RedisClient may supply
// the client; NewEngine rejects the combination of neither.
func (c Config) Validate() error {
	switch c.Type {
	case BackendLocal:
		if c.Local.QueueSize < 0 {
			return fmt.Errorf("%w: queue_size must not be negative, got %d", ErrInvalidConfig, c.Local.QueueSize)
		}
		return nil
	case BackendRedis:
		return nil
	case "":
		return fmt.Errorf("%w: backend type is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown backend type %q (supported: %s, %s)",
			ErrInvalidConfig, c.Type, BackendLocal, BackendRedis)
	}
}

var variantFields = map[Backend][]string{
	BackendLocal: {"type", "queue_size"},
	BackendRedis: {"type", "prefix", "connection_string"},
}

func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: configuration must be a mapping", n.Line)
	}
	var head struct {
		Type Backend `yaml:"type"`
	}
	if err := n.Decode(&head); err != nil {
		return err
	}
	allowed, ok := variantFields[head.Type]
	if !ok {
		if head.Type == "" {
			return fmt.Errorf("line %d: missing backend type", n.Line)
		}
		return fmt.Errorf("line %d: unknown backend type %q", n.Line, head.Type)
	}
	if err := checkFields(n, allowed); err != nil {
		return err
	}

	out := Config{Type: head.Type}
	switch head.Type {
	case BackendLocal:
		if err := n.Decode(&out.Local); err != nil {
			return err
		}
	case BackendRedis:
		if err := n.Decode(&out.Redis); err != nil {
			return err
		}
	}
	*c = out
	return nil
}

func (c Config) MarshalYAML() (any, error) {
	switch c.Type {
	case BackendLocal:
		return struct {
			Type        Backend `yaml:"type" json:"type"`
			LocalConfig `yaml:",inline"`
		}{c.Type, c.Local}, nil
	case BackendRedis:
		return struct {
			Type        Backend `yaml:"type" json:"type"`
			RedisConfig `yaml:",inline"`
		}{c.Type, c.Redis}, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend type %q", ErrInvalidConfig, c.Type)
	}
}

// MarshalJSON emits the same flat shape as MarshalYAML.
func (c Config) MarshalJSON() ([]byte, error) {
	v, err := c.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// UnmarshalJSON applies the YAML rules; a JSON document is valid YAML.
func (c *Config) UnmarshalJSON(data []byte) error {
	return yaml.Unmarshal(data, c)
}

// checkFields rejects keys that do not belong to the selected variant.
func checkFields(n *yaml.Node, allowed []string) error {
	var unknown []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i].Value
		found := false
		for _, a := range allowed {
			if a == k {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("line %d: unknown field(s) %s", n.Line, strings.Join(unknown, ", "))
}
