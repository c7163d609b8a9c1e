package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PIPELINE_DATA_PATH.
const EnvPrefix = "PIPELINE"

// Config holds the configuration for the pipeline CLI and API server.
type Config struct {
	Data struct {
		Path            string   `mapstructure:"path"`
		Type            string   `mapstructure:"type"`
		TimeColumns     []string `mapstructure:"time_columns"`
		RequiredColumns []string `mapstructure:"required_columns"` // checked on load
		NumericColumns  []string `mapstructure:"numeric_columns"`  // checked on load
	} `mapstructure:"data"`
	Store struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"store"`
	Server struct {
		Addr            string `mapstructure:"addr"`
		ShutdownTimeout string `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Output struct {
		Dir         string `mapstructure:"dir"`
		PreviewRows int    `mapstructure:"preview_rows"`
	} `mapstructure:"output"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.path", "data/hybrid_manufacturing_categorical.csv")
	v.SetDefault("data.type", "csv")
	v.SetDefault("data.time_columns", []string{"Scheduled_Start", "Scheduled_End", "Actual_Start", "Actual_End"})
	v.SetDefault("data.required_columns", []string{"Job_ID", "Machine_ID", "Job_Status"})
	v.SetDefault("data.numeric_columns", []string{"Processing_Time", "Energy_Consumption", "Machine_Availability"})
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "pipeline.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.preview_rows", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig loads the configuration from defaults, an optional YAML file and
// the environment. An empty path looks for config.yaml in . and ./config and
// carries on with defaults when there is none; an explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the commands cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Data.Path) == "" {
		return errors.New("data.path is required")
	}
	if c.Output.PreviewRows < 0 {
		return fmt.Errorf("output.preview_rows must be >= 0, got %d", c.Output.PreviewRows)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
