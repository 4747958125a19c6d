package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ma2ta/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("instance-id", "ma2ta-1", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "public", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 0, "")
	pflag.String("redis-key-prefix", "ma2ta:", "")
	pflag.String("redis-consumer-group", "ma2ta-notify", "")
	pflag.String("redis-stream-key-for-bid-feed", "ma2ta-bid-feed", "")

	// auth config
	pflag.String("auth-private-key-seed", "", "base64-encoded ed25519 seed")
	pflag.String("auth-issuer", "ma2ta", "")
	pflag.String("auth-audience", "ma2ta-web", "")
	pflag.Duration("auth-expire-duration", 3*time.Hour, "")

	// bidding policy
	pflag.Int64("bid-increment-percent", 5, "")
	pflag.Duration("bid-snipe-window", 15*time.Minute, "")
	pflag.Duration("bid-snipe-extension", 15*time.Minute, "")
	pflag.Bool("bid-allow-self-outbid", false, "")
	pflag.Duration("bid-lock-timeout", 5*time.Second, "")

	// lifecycle sweep
	pflag.Duration("sweep-interval", 30*time.Second, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("MA2TA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	var privateKey ed25519.PrivateKey
	if seed, err := base64.StdEncoding.DecodeString(viper.GetString("auth-private-key-seed")); err == nil && len(seed) == ed25519.SeedSize {
		privateKey = ed25519.NewKeyFromSeed(seed)
	}

	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			ID: viper.GetString("instance-id"),
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:          viper.GetString("redis-addr"),
				Password:      viper.GetString("redis-password"),
				DB:            viper.GetInt("redis-db"),
				KeyPrefix:     viper.GetString("redis-key-prefix"),
				ConsumerGroup: viper.GetString("redis-consumer-group"),
				StreamKeys: api.RedisStreamKeys{
					BidFeed: viper.GetString("redis-stream-key-for-bid-feed"),
				},
			},
			Auth: api.AuthConfig{
				PrivateKey:     privateKey,
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
			},
			Bidding: api.BiddingConfig{
				IncrementPercent: viper.GetInt64("bid-increment-percent"),
				SnipeWindow:      viper.GetDuration("bid-snipe-window"),
				SnipeExtension:   viper.GetDuration("bid-snipe-extension"),
				AllowSelfOutbid:  viper.GetBool("bid-allow-self-outbid"),
				LockTimeout:      viper.GetDuration("bid-lock-timeout"),
			},
			Sweep: api.SweepConfig{
				Interval: viper.GetDuration("sweep-interval"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Redis.Addr != "" &&
		args.ServerConfig.Auth.PrivateKey != nil &&
		args.ServerConfig.Bidding.IncrementPercent > 0 &&
		args.ServerConfig.Bidding.LockTimeout > 0 &&
		args.ServerConfig.Sweep.Interval > 0
}
