package api

import (
	"crypto/ed25519"
	"time"

	"ma2ta/auction"
)

type ServerConfig struct {
	// ID names this instance inside the feed consumer group.
	ID string

	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Bidding BiddingConfig
	Sweep   SweepConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key this service touches.
	KeyPrefix     string
	ConsumerGroup string
	StreamKeys    RedisStreamKeys
}

type RedisStreamKeys struct {
	// BidFeed carries every accepted bid; the SSE broadcast and the
	// notification dispatcher both read it.
	BidFeed string
}

type AuthConfig struct {
	PrivateKey     ed25519.PrivateKey
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
}

type BiddingConfig struct {
	IncrementPercent int64
	SnipeWindow      time.Duration
	SnipeExtension   time.Duration
	AllowSelfOutbid  bool

	// LockTimeout bounds the wait for the per-item bid lock; a request
	// that cannot get the lock in time fails as transient instead of
	// queueing behind a hot lot indefinitely.
	LockTimeout time.Duration
}

// Policy converts the wire config into the auction package's policy.
func (c BiddingConfig) Policy() auction.BidPolicy {
	return auction.BidPolicy{
		IncrementPercent: c.IncrementPercent,
		SnipeWindow:      c.SnipeWindow,
		SnipeExtension:   c.SnipeExtension,
		AllowSelfOutbid:  c.AllowSelfOutbid,
	}
}

type SweepConfig struct {
	Interval time.Duration
}
