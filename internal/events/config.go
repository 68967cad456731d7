package events

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/faciam-dev/gpdb/pkg/util"
)

// LoadConfig reads the sink configuration from a YAML file and applies the
// environment overrides. An empty path starts from the zero Config.
//
//	PDB_WEBHOOK_URL, PDB_WEBHOOK_SECRET  enable and sign the webhook sink
//	PDB_EVENTS_REDIS                     redis URL for pub/sub delivery
//	PDB_EVENTS_KAFKA                     comma separated broker list
//	PDB_EVENTS_ONLY                      comma separated event name prefixes
func LoadConfig(path string) (Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("events config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	return c, c.validate()
}

func applyEnv(c *Config) {
	if u := os.Getenv("PDB_WEBHOOK_URL"); u != "" {
		c.Sinks.Webhook.Enabled = true
		c.Sinks.Webhook.Endpoint = u
	}
	c.Sinks.Webhook.Secret = util.GetEnv("PDB_WEBHOOK_SECRET", c.Sinks.Webhook.Secret)
	if u := os.Getenv("PDB_EVENTS_REDIS"); u != "" {
		c.Sinks.Redis.Enabled = true
		c.Sinks.Redis.DSN = u
	}
	if b := util.GetEnvList("PDB_EVENTS_KAFKA", nil); len(b) > 0 {
		c.Sinks.Kafka.Enabled = true
		c.Sinks.Kafka.Brokers = b
	}
	c.Only = util.GetEnvList("PDB_EVENTS_ONLY", c.Only)
}

func (c Config) validate() error {
	if c.Sinks.Webhook.Enabled && !strings.HasPrefix(c.Sinks.Webhook.Endpoint, "http") {
		return fmt.Errorf("events: webhook endpoint %q is not an http url", c.Sinks.Webhook.Endpoint)
	}
	if c.Sinks.Kafka.Enabled && len(c.Sinks.Kafka.Brokers) == 0 {
		return fmt.Errorf("events: kafka sink enabled without brokers")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("events: negative retry.max_attempts")
	}
	return nil
}
