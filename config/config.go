package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/daccred/library-ledger/models"
)

var config *viper.Viper

// Settings is the typed view of the merged configuration.
type Settings struct {
	Server  ServerSettings  `mapstructure:"server"`
	Ledger  LedgerSettings  `mapstructure:"ledger"`
	Archive ArchiveSettings `mapstructure:"archive"`
	HTTP    HTTPSettings    `mapstructure:"http"`
	Log     LogSettings     `mapstructure:"log"`
}

type ServerSettings struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LedgerSettings struct {
	Difficulty         int           `mapstructure:"difficulty"`
	MiningRewardLabel  string        `mapstructure:"mining_reward_label"`
	RewardAddress      string        `mapstructure:"reward_address"`
	SigningSecret      string        `mapstructure:"signing_secret"`
	MiningInterval     time.Duration `mapstructure:"mining_interval"`
	ValidationInterval time.Duration `mapstructure:"validation_interval"`
	Threshold          int           `mapstructure:"threshold"`
	ThresholdKinds     []string      `mapstructure:"threshold_kinds"`
}

type ArchiveSettings struct {
	Enabled     bool          `mapstructure:"enabled"`
	DatabaseURL string        `mapstructure:"database_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type HTTPSettings struct {
	VerifyCacheTTL    time.Duration `mapstructure:"verify_cache_ttl"`
	MineRatePerMinute int           `mapstructure:"mine_rate_per_minute"`
	MineBurst         int           `mapstructure:"mine_burst"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Init is an exported method that takes the environment starts the viper
// (external lib) and returns the configuration struct.
func Init(env string) {
	var err error
	config, err = Load("config/", env)
	if err != nil {
		log.Fatal(err)
	}
}

// Load reads default.yaml from dir, merges the file for env on top and
// applies environment overrides. A .env file in the working directory is
// loaded first when present.
func Load(dir, env string) (*viper.Viper, error) {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error on loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("default")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error on parsing default configuration file: %w", err)
	}

	// Map environment names to config files
	configName := env
	switch env {
	case "dev":
		configName = "development"
	case "prod":
		configName = "production"
	// Keep other environments as-is (e.g., "test")
	}

	envConfig := viper.New()
	envConfig.SetConfigType("yaml")
	envConfig.AddConfigPath(dir)
	envConfig.SetConfigName(configName)
	if err := envConfig.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error on parsing %s configuration file: %w", configName, err)
	}
	if err := v.MergeConfigMap(envConfig.AllSettings()); err != nil {
		return nil, fmt.Errorf("error on merging %s configuration: %w", configName, err)
	}

	// LEDGER_SIGNING_SECRET overrides ledger.signing_secret and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("archive.database_url", "ARCHIVE_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("error on binding database url: %w", err)
	}
	return v, nil
}

func GetConfig() *viper.Viper {
	return config
}

// Decode unmarshals v into Settings.
func Decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error on decoding configuration: %w", err)
	}
	if s.Ledger.SigningSecret == "" {
		return Settings{}, fmt.Errorf("ledger.signing_secret must be set")
	}
	if s.Ledger.Difficulty < 0 || s.Ledger.Difficulty > models.MaxDifficulty {
		return Settings{}, fmt.Errorf("ledger.difficulty must be between 0 and %d, got %d", models.MaxDifficulty, s.Ledger.Difficulty)
	}
	if s.Archive.Enabled && s.Archive.DatabaseURL == "" {
		return Settings{}, fmt.Errorf("archive.database_url must be set when the archive is enabled")
	}
	return s, nil
}
