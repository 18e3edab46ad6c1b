package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/stanstork/reconciler/internal/discovery"
	"github.com/stanstork/reconciler/internal/matcher"
	"github.com/stanstork/reconciler/internal/orchestrator"
	"github.com/stanstork/reconciler/internal/reconlogic"
	"github.com/stanstork/reconciler/internal/temporal"
)

// EnvPrefix prefixes environment overrides, e.g. RECON_DATABASE_URL or
// RECON_ORCHESTRATOR_POOL_SIZE.
const EnvPrefix = "RECON"

type LocksConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
}

type JobsConfig struct {
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig configures the progress sink. An empty address disables it.
type RedisConfig struct {
	Address         string `mapstructure:"address"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	ProgressChannel string `mapstructure:"progress_channel"`
}

type Config struct {
	DatabaseURL  string                     `mapstructure:"database_url"`
	ServerPort   string                     `mapstructure:"server_port"`
	LogLevel     string                     `mapstructure:"log_level"`
	Orchestrator orchestrator.Config        `mapstructure:"orchestrator"`
	Locks        LocksConfig                `mapstructure:"locks"`
	Jobs         JobsConfig                 `mapstructure:"jobs"`
	Discovery    discovery.Config           `mapstructure:"discovery"`
	Detection    reconlogic.DetectionConfig `mapstructure:"detection"`
	Matcher      matcher.Config             `mapstructure:"matcher"`
	Redis        RedisConfig                `mapstructure:"redis"`
	Temporal     temporal.Config            `mapstructure:"temporal"`
}

// Load reads config.yaml from the current directory or ./config, with .env
// and RECON_* environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := newViper()
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	return decode(v)
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	orch := orchestrator.DefaultConfig()
	disc := discovery.DefaultConfig()

	v.SetDefault("database_url", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("orchestrator.pool_size", orch.PoolSize)
	v.SetDefault("orchestrator.queue_size", orch.QueueSize)
	v.SetDefault("orchestrator.min_key_confidence", orch.MinKeyConfidence)
	v.SetDefault("orchestrator.pair_similar_columns", orch.PairSimilarColumns)
	v.SetDefault("orchestrator.dispatch", orch.Dispatch)
	v.SetDefault("orchestrator.lock_ttl", orch.LockTTL)

	v.SetDefault("locks.sweep_interval", 5*time.Minute)
	v.SetDefault("locks.default_ttl", 30*time.Minute)

	v.SetDefault("jobs.retention", 7*24*time.Hour)
	v.SetDefault("jobs.cleanup_interval", time.Hour)

	v.SetDefault("discovery.sample_size", disc.SampleSize)
	v.SetDefault("discovery.name_weight", disc.NameWeight)
	v.SetDefault("discovery.value_weight", disc.ValueWeight)
	v.SetDefault("discovery.uniqueness_weight", disc.UniquenessWeight)
	v.SetDefault("discovery.max_candidates", disc.MaxCandidates)

	v.SetDefault("matcher.mode", "local")
	v.SetDefault("matcher.engine_container", "recon-engine")
	v.SetDefault("matcher.engine_bin", "recon-engine")
	v.SetDefault("matcher.timeout", 10*time.Minute)
	v.SetDefault("matcher.max_failures", 5)
	v.SetDefault("matcher.open_timeout", time.Minute)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.progress_channel", "reconciliation:progress")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", temporal.TaskQueueName)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	// Detection patterns are lists and have no flat defaults.
	def := reconlogic.DefaultDetectionConfig()
	if len(cfg.Detection.Markers) == 0 {
		cfg.Detection.Markers = def.Markers
	}
	if len(cfg.Detection.ExclusionFingerprint) == 0 {
		cfg.Detection.ExclusionFingerprint = def.ExclusionFingerprint
		cfg.Detection.ExclusionMinMatches = def.ExclusionMinMatches
	}
	if cfg.Detection.ExclusionMinMatches <= 0 {
		cfg.Detection.ExclusionMinMatches = def.ExclusionMinMatches
	}
	if cfg.Detection.SampleRows <= 0 {
		cfg.Detection.SampleRows = def.SampleRows
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Orchestrator.Dispatch {
	case "local", "temporal":
	default:
		return errors.Errorf("orchestrator.dispatch must be local or temporal, got %q", c.Orchestrator.Dispatch)
	}
	switch c.Matcher.Mode {
	case "local", "container":
	default:
		return errors.Errorf("matcher.mode must be local or container, got %q", c.Matcher.Mode)
	}
	if c.Orchestrator.MinKeyConfidence < 0 || c.Orchestrator.MinKeyConfidence > 1 {
		return errors.Errorf("orchestrator.min_key_confidence must be within [0,1], got %v", c.Orchestrator.MinKeyConfidence)
	}
	return nil
}
