package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string
	}
	Database struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	JWT struct {
		Secret string
	}
	Game struct {
		StartingBalance   int64
		BlackjackDeadline time.Duration
		DurakDeadline     time.Duration
		SettleGrace       time.Duration
		QueueTTL          int // seconds, guards against abandoned queue entries
	}
	Persistence struct {
		Driver           string // "file" or "postgres"
		Path             string
		SnapshotInterval time.Duration
	}
}

var C Config

func Load() {
	viper.SetConfigFile("config/config.yaml")

	viper.SetDefault("game.startingbalance", 1000)
	viper.SetDefault("game.blackjackdeadline", 30*time.Second)
	viper.SetDefault("game.durakdeadline", 60*time.Second)
	viper.SetDefault("game.settlegrace", 30*time.Second)
	viper.SetDefault("game.queuettl", 300)
	viper.SetDefault("persistence.driver", "file")
	viper.SetDefault("persistence.path", "data/ledger.json")
	viper.SetDefault("persistence.snapshotinterval", 15*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	if err := viper.Unmarshal(&C); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}
}
