package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig exposes the connection knobs of redis.UniversalOptions through
// the broker's own configuration tree. One entry in Addrs selects a single
// node; several entries plus MasterName select failover mode.
type RedisConfig struct {
	Addrs      []string
	DB         int
	Password   string
	MasterName string

	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize     int
	MinIdleConns int
	MaxConnAge   time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

// AsUniversalOptions converts the config into client options. MaxConnAge and
// IdleTimeout keep their v6-era names so existing deployment configs carry
// over; they map onto the v9 ConnMax fields.
func (c RedisConfig) AsUniversalOptions() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:      c.Addrs,
		DB:         c.DB,
		Password:   c.Password,
		MasterName: c.MasterName,

		MaxRetries:      c.MaxRetries,
		MinRetryBackoff: c.MinRetryBackoff,
		MaxRetryBackoff: c.MaxRetryBackoff,

		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,

		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		ConnMaxLifetime: c.MaxConnAge,
		PoolTimeout:     c.PoolTimeout,
		ConnMaxIdleTime: c.IdleTimeout,
	}
}
