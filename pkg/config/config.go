package config

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "QUERYOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultBenchmarksDir is the default directory holding benchmark descriptors.
	DefaultBenchmarksDir = "./benchmarks"

	// DefaultSQLDir is the default directory holding query files.
	DefaultSQLDir = "./sql"

	// DefaultResultsDir is the default directory for result files.
	DefaultResultsDir = "./results"

	// DefaultReportingTimeout bounds the final wait for reporting listeners.
	DefaultReportingTimeout = 10 * time.Minute

	// DefaultMetricsResolution is the default sampling resolution of the
	// external metrics store.
	DefaultMetricsResolution = 10 * time.Second

	// DefaultPrometheusListen is the default listen address for /metrics.
	DefaultPrometheusListen = ":9090"

	// DefaultAPIListen is the default listen address for the results API.
	DefaultAPIListen = ":8080"

	// DefaultRequestsPerMinute is the default per-IP API rate limit.
	DefaultRequestsPerMinute = 600
)

// Config is the root configuration for queryoor.
type Config struct {
	Global      GlobalConfig                `yaml:"global" mapstructure:"global"`
	Benchmark   BenchmarkConfig             `yaml:"benchmark" mapstructure:"benchmark"`
	DataSources map[string]DataSourceConfig `yaml:"datasources" mapstructure:"datasources"`
	Macros      MacrosConfig                `yaml:"macros,omitempty" mapstructure:"macros"`
	Metrics     MetricsConfig               `yaml:"metrics,omitempty" mapstructure:"metrics"`
	Results     ResultsConfig               `yaml:"results,omitempty" mapstructure:"results"`
	API         APIConfig                   `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level" mapstructure:"log_level"`
	Environment string `yaml:"environment,omitempty" mapstructure:"environment"`
}

// BenchmarkConfig controls which benchmarks are loaded and how the suite
// is bounded.
type BenchmarkConfig struct {
	BenchmarksDir         string            `yaml:"benchmarks_dir" mapstructure:"benchmarks_dir"`
	SQLDir                string            `yaml:"sql_dir" mapstructure:"sql_dir"`
	ActiveBenchmarks      []string          `yaml:"active_benchmarks,omitempty" mapstructure:"active_benchmarks"`
	ActiveVariables       map[string]string `yaml:"active_variables,omitempty" mapstructure:"active_variables"`
	ExecutionSequenceIDs  []string          `yaml:"execution_sequence_ids,omitempty" mapstructure:"execution_sequence_ids"`
	TimeLimit             time.Duration     `yaml:"time_limit,omitempty" mapstructure:"time_limit"`
	FrequencyCheckEnabled bool              `yaml:"frequency_check_enabled" mapstructure:"frequency_check_enabled"`
	ReportingTimeout      time.Duration     `yaml:"reporting_timeout,omitempty" mapstructure:"reporting_timeout"`
}

// DataSourceConfig describes one engine the benchmarks run against.
type DataSourceConfig struct {
	DatabaseConfig `yaml:",inline" mapstructure:",squash"`
	MaxOpenConns   int `yaml:"max_open_conns,omitempty" mapstructure:"max_open_conns"`
}

// MacrosConfig contains suite-level macro lists and macro definitions.
type MacrosConfig struct {
	BeforeAll   []string               `yaml:"before_all,omitempty" mapstructure:"before_all"`
	AfterAll    []string               `yaml:"after_all,omitempty" mapstructure:"after_all"`
	HealthCheck []string               `yaml:"health_check,omitempty" mapstructure:"health_check"`
	Definitions map[string]MacroConfig `yaml:"definitions,omitempty" mapstructure:"definitions"`
}

// MacroConfig defines a single macro. Exactly one of Command or SQL is set.
type MacroConfig struct {
	Command    string `yaml:"command,omitempty" mapstructure:"command"`
	SQL        string `yaml:"sql,omitempty" mapstructure:"sql"`
	DataSource string `yaml:"datasource,omitempty" mapstructure:"datasource"`
}

// MetricsConfig contains metrics collection settings.
type MetricsConfig struct {
	CollectionEnabled bool             `yaml:"collection_enabled" mapstructure:"collection_enabled"`
	Resolution        time.Duration    `yaml:"resolution,omitempty" mapstructure:"resolution"`
	HostStats         bool             `yaml:"host_stats" mapstructure:"host_stats"`
	Prometheus        PrometheusConfig `yaml:"prometheus,omitempty" mapstructure:"prometheus"`
}

// PrometheusConfig configures the Prometheus metrics endpoint.
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen,omitempty" mapstructure:"listen"`
}

// ResultsConfig contains result persistence settings.
type ResultsConfig struct {
	Dir      string         `yaml:"dir" mapstructure:"dir"`
	Database DatabaseConfig `yaml:"database,omitempty" mapstructure:"database"`
	Upload   UploadConfig   `yaml:"upload,omitempty" mapstructure:"upload"`
}

// UploadConfig contains remote upload settings for result files.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3 settings for uploading result files.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// Load reads one or more configuration files, merging later files over
// earlier ones, and applies environment overrides and defaults.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one config file is required")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindEnvs(v, reflect.TypeOf(Config{}), "")

	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		if i == 0 {
			err = v.ReadConfig(bytes.NewReader(data))
		} else {
			err = v.MergeConfig(bytes.NewReader(data))
		}

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// bindEnvs registers every leaf key of t with viper so that environment
// overrides apply even when the key is absent from the config files.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := range t.NumField() {
		field := t.Field(i)

		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" && opts != "squash" {
			continue
		}

		key := name
		if prefix != "" && name != "" {
			key = prefix + "." + name
		} else if name == "" {
			key = prefix
		}

		ft := field.Type
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Duration(0)) {
			bindEnvs(v, ft, key)

			continue
		}

		// Maps are keyed by user data and cannot be bound ahead of time.
		if ft.Kind() == reflect.Map {
			continue
		}

		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Benchmark.BenchmarksDir == "" {
		c.Benchmark.BenchmarksDir = DefaultBenchmarksDir
	}

	if c.Benchmark.SQLDir == "" {
		c.Benchmark.SQLDir = DefaultSQLDir
	}

	if c.Benchmark.ReportingTimeout == 0 {
		c.Benchmark.ReportingTimeout = DefaultReportingTimeout
	}

	if c.Metrics.Resolution == 0 {
		c.Metrics.Resolution = DefaultMetricsResolution
	}

	if c.Metrics.Prometheus.Listen == "" {
		c.Metrics.Prometheus.Listen = DefaultPrometheusListen
	}

	if c.Results.Dir == "" {
		c.Results.Dir = DefaultResultsDir
	}

	if c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}

	if c.API.RateLimit.RequestsPerMinute == 0 {
		c.API.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}

	if c.DataSources == nil {
		c.DataSources = make(map[string]DataSourceConfig, 1)
	}

	if c.Macros.Definitions == nil {
		c.Macros.Definitions = make(map[string]MacroConfig, 4)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.DataSources) == 0 {
		return fmt.Errorf("at least one datasource must be configured")
	}

	for name, ds := range c.DataSources {
		if err := ds.Validate(); err != nil {
			return fmt.Errorf("datasource %q: %w", name, err)
		}

		if ds.MaxOpenConns < 0 {
			return fmt.Errorf("datasource %q: max_open_conns must not be negative", name)
		}
	}

	if c.Benchmark.TimeLimit < 0 {
		return fmt.Errorf("benchmark.time_limit must not be negative")
	}

	if c.Metrics.CollectionEnabled && c.Metrics.Resolution <= 0 {
		return fmt.Errorf("metrics.resolution must be positive when collection is enabled")
	}

	for name, macro := range c.Macros.Definitions {
		if (macro.Command == "") == (macro.SQL == "") {
			return fmt.Errorf("macro %q: exactly one of command or sql must be set", name)
		}

		if macro.DataSource != "" {
			if _, ok := c.DataSource(macro.DataSource); !ok {
				return fmt.Errorf("macro %q: unknown datasource %q", name, macro.DataSource)
			}
		}
	}

	for _, list := range [][]string{
		c.Macros.BeforeAll, c.Macros.AfterAll, c.Macros.HealthCheck,
	} {
		for _, name := range list {
			if _, ok := c.Macros.Definitions[name]; !ok {
				return fmt.Errorf("macro %q is referenced but not defined", name)
			}
		}
	}

	if c.Results.Database.Driver != "" {
		if err := c.Results.Database.Validate(); err != nil {
			return fmt.Errorf("results.database: %w", err)
		}
	}

	if c.Benchmark.FrequencyCheckEnabled && c.Results.Database.Driver == "" {
		return fmt.Errorf("benchmark.frequency_check_enabled requires results.database")
	}

	if c.Results.Upload.S3.Enabled && c.Results.Upload.S3.Bucket == "" {
		return fmt.Errorf("results.upload.s3.bucket is required when upload is enabled")
	}

	return nil
}

// DataSource looks up a datasource by name, ignoring case.
func (c *Config) DataSource(name string) (DataSourceConfig, bool) {
	if ds, ok := c.DataSources[name]; ok {
		return ds, true
	}

	for key, ds := range c.DataSources {
		if strings.EqualFold(key, name) {
			return ds, true
		}
	}

	return DataSourceConfig{}, false
}
