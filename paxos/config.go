package paxos

import (
	"log"
	"time"
)

type Config struct {
	// CallTimeout bounds every single Prepare or Accept call of a proposer.
	// Zero means no bound other than the caller's context.
	CallTimeout time.Duration
	Logger      *log.Logger
}

func DefaultConfig() Config {
	return Config{
		CallTimeout: 1 * time.Second,
		Logger:      log.Default(),
	}
}

func (c Config) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}
