package config

import (
	"log"
	"strings"
	"time"

	"bj-service/internal/service/game"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminSeedConfig `mapstructure:"admin"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Blackjack BlackjackConfig `mapstructure:"blackjack"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, mysql, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"poolSize"` // 0 = go-redis default
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type AdminSeedConfig struct {
	DefaultUsername string `mapstructure:"defaultUsername"`
	DefaultPassword string `mapstructure:"defaultPassword"`
}

type AuthConfig struct {
	MaxLoginFailures     int   `mapstructure:"maxLoginFailures"`
	FailureWindowSeconds int   `mapstructure:"failureWindowSeconds"`
	StartingBalance      int64 `mapstructure:"startingBalance"`
}

type BlackjackConfig struct {
	Decks         int   `mapstructure:"decks"`
	Reserve       int   `mapstructure:"reserve"`
	BetSmall      int64 `mapstructure:"betSmall"`
	BetMedium     int64 `mapstructure:"betMedium"`
	BetLarge      int64 `mapstructure:"betLarge"`
	RevealDelayMs int   `mapstructure:"revealDelayMs"`
	SettlePauseMs int   `mapstructure:"settlePauseMs"`
	SeatsPerTable int   `mapstructure:"seatsPerTable"`
}

// Rules converts the section to engine rules. Zero values fall back to the
// engine defaults.
func (c BlackjackConfig) Rules() game.Rules {
	return game.Rules{
		Shoe: game.ShoeConfig{
			Decks:   c.Decks,
			Reserve: c.Reserve,
		},
		BetSmall:  c.BetSmall,
		BetMedium: c.BetMedium,
		BetLarge:  c.BetLarge,
	}.WithDefaults()
}

func (c BlackjackConfig) Runtime() game.RuntimeConfig {
	cfg := game.DefaultRuntimeConfig()
	if c.RevealDelayMs > 0 {
		cfg.RevealDelay = time.Duration(c.RevealDelayMs) * time.Millisecond
	}
	if c.SettlePauseMs > 0 {
		cfg.SettlePause = time.Duration(c.SettlePauseMs) * time.Millisecond
	}
	return cfg
}

var GlobalConfig *Config

func LoadConfig(path string) {
	// .env is optional; real environment variables still win.
	_ = godotenv.Load()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("BJ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("jwt.expire", 72)
	viper.SetDefault("auth.maxLoginFailures", 5)
	viper.SetDefault("auth.failureWindowSeconds", 900)
	viper.SetDefault("auth.startingBalance", 1000)
	viper.SetDefault("blackjack.decks", 4)
	viper.SetDefault("blackjack.reserve", 26)
	viper.SetDefault("blackjack.revealDelayMs", 1250)
	viper.SetDefault("blackjack.settlePauseMs", 3000)
	viper.SetDefault("blackjack.seatsPerTable", 7)
}
