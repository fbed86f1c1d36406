// Package config loads runtime settings from matchbox.yaml and the
// environment, with working defaults for a local single-node run.
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr string
	Production bool

	Instruments []string
	AutoCreate  bool

	EntryWALDir    string
	WALSegmentSize int64
	WALSyncEvery   bool
	OutboxDir      string

	SnapshotDir      string
	SnapshotInterval time.Duration
	EpochInterval    time.Duration

	KafkaEnabled     bool
	KafkaBrokers     []string
	TradesTopic      string
	MarketDataTopic  string
	MarketDataPeriod time.Duration
	MarketDataDepth  int
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("matchbox")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/matchbox")
	v.SetEnvPrefix("MATCHBOX")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("production", false)
	v.SetDefault("instruments", []string{"XBT-USD"})
	v.SetDefault("auto_create", false)
	v.SetDefault("entry_wal_dir", "./data/wal_entry")
	v.SetDefault("wal_segment_size", 64<<20)
	v.SetDefault("wal_sync_every", false)
	v.SetDefault("outbox_dir", "./data/outbox")
	v.SetDefault("snapshot_dir", "./data/snapshots")
	v.SetDefault("snapshot_interval", "1m")
	v.SetDefault("epoch_interval", "2s")
	v.SetDefault("kafka_enabled", false)
	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("trades_topic", "matchbox.trades")
	v.SetDefault("market_data_topic", "matchbox.marketdata")
	v.SetDefault("market_data_period", "1s")
	v.SetDefault("market_data_depth", 10)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; defaults plus env are enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return &Config{
		ListenAddr:       v.GetString("listen_addr"),
		Production:       v.GetBool("production"),
		Instruments:      v.GetStringSlice("instruments"),
		AutoCreate:       v.GetBool("auto_create"),
		EntryWALDir:      v.GetString("entry_wal_dir"),
		WALSegmentSize:   v.GetInt64("wal_segment_size"),
		WALSyncEvery:     v.GetBool("wal_sync_every"),
		OutboxDir:        v.GetString("outbox_dir"),
		SnapshotDir:      v.GetString("snapshot_dir"),
		SnapshotInterval: v.GetDuration("snapshot_interval"),
		EpochInterval:    v.GetDuration("epoch_interval"),
		KafkaEnabled:     v.GetBool("kafka_enabled"),
		KafkaBrokers:     v.GetStringSlice("kafka_brokers"),
		TradesTopic:      v.GetString("trades_topic"),
		MarketDataTopic:  v.GetString("market_data_topic"),
		MarketDataPeriod: v.GetDuration("market_data_period"),
		MarketDataDepth:  v.GetInt("market_data_depth"),
	}, nil
}
