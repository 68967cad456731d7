package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
	"gopkg.in/yaml.v3"

	"github.com/faciam-dev/gpdb/pkg/listquery"
	"github.com/faciam-dev/gpdb/pkg/util"
)

// Config holds global configuration values. The YAML file is read first and
// the environment overrides it.
type Config struct {
	TablePrefix    string   `yaml:"table_prefix" env:"TABLE_PREFIX,default=pdb_"`
	Driver         string   `yaml:"driver" env:"PDB_DRIVER"`
	DSN            string   `yaml:"dsn" env:"PDB_DSN"`
	Addr           string   `yaml:"addr" env:"PDB_ADDR,default=:8080"`
	Session        string   `yaml:"session" env:"PDB_SESSION,default=memory"`
	RedisURL       string   `yaml:"redis_url" env:"PDB_REDIS_URL"`
	SettingsFile   string   `yaml:"settings_file" env:"PDB_SETTINGS_FILE"`
	EventsConfig   string   `yaml:"events_config" env:"PDB_EVENTS_CONFIG"`
	PluginDir      string   `yaml:"plugin_dir" env:"PDB_PLUGIN_DIR"`
	I18nFile       string   `yaml:"i18n_file" env:"PDB_I18N_FILE"`
	JWTSecret      string   `yaml:"-" env:"JWT_SECRET"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`

	// Lists are the named list configurations served by the API.
	Lists map[string]listquery.Config `yaml:"lists"`
}

// Load reads path, when set, and applies environment overrides.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.TablePrefix = util.GetEnv("TABLE_PREFIX", def(c.TablePrefix, "pdb_"))
	c.Driver = util.GetEnv("PDB_DRIVER", c.Driver)
	c.DSN = util.GetEnv("PDB_DSN", c.DSN)
	c.Addr = util.GetEnv("PDB_ADDR", def(c.Addr, ":8080"))
	c.Session = util.GetEnv("PDB_SESSION", def(c.Session, "memory"))
	c.RedisURL = util.GetEnv("PDB_REDIS_URL", c.RedisURL)
	c.SettingsFile = util.GetEnv("PDB_SETTINGS_FILE", c.SettingsFile)
	c.EventsConfig = util.GetEnv("PDB_EVENTS_CONFIG", c.EventsConfig)
	c.PluginDir = util.GetEnv("PDB_PLUGIN_DIR", c.PluginDir)
	c.I18nFile = util.GetEnv("PDB_I18N_FILE", c.I18nFile)
	c.JWTSecret = util.GetEnv("JWT_SECRET", c.JWTSecret)
	c.AllowedOrigins = util.GetEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if c.Driver == "" && c.DSN != "" {
		d, err := util.DetectDriver(c.DSN)
		if err != nil {
			return nil, fmt.Errorf("detect driver: %w", err)
		}
		c.Driver = d
	}
	for name, l := range c.Lists {
		if l.Name == "" {
			l.Name = name
			c.Lists[name] = l
		}
	}
	return c, nil
}

func def(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

// T prefixes the given table name with the configured prefix.
func (c *Config) T(name string) string {
	return c.TablePrefix + name
}

// List returns the named list configuration. Unknown names get an empty
// configuration carrying the name.
func (c *Config) List(name string) listquery.Config {
	if l, ok := c.Lists[name]; ok {
		return l
	}
	return listquery.Config{Name: name}
}

// CheckPrefix verifies that tables with the configured prefix exist in the
// connected database. It returns an error if none are found.
func CheckPrefix(ctx context.Context, db *sql.DB, dialect ormdriver.Dialect, prefix string) error {
	q := query.New(db, "information_schema.tables", dialect).
		SelectRaw("COUNT(*) AS cnt").
		WhereRaw("table_name LIKE :p", map[string]any{"p": prefix + "%"}).
		WithContext(ctx)

	var res struct{ Cnt int }
	if err := q.First(&res); err != nil {
		return err
	}
	if res.Cnt == 0 {
		return fmt.Errorf("no tables with prefix %q found; create the %sfields and %sparticipants tables or set TABLE_PREFIX", prefix, prefix, prefix)
	}
	return nil
}
