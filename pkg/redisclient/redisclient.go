// Package redisclient connects to Redis with retries.
package redisclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")
	ErrParseURL           = errors.New("failed to parse redis connection string")
	ErrNotReady           = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed  = errors.New("redis healthcheck failed")
)

// Options configures Connect.
type Options struct {
	URL            string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Connect parses URL and pings until the server answers or the attempts run out.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, ErrEmptyConnectionURL
	}
	connOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, errors.Join(ErrParseURL, err)
	}

	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		client := redis.NewClient(connOpts)
		err := client.Ping(ctx).Err()
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("redis connection established")
			return client, nil
		}
		_ = client.Close()

		log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("redis connection failed")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(opts.RetryInterval):
		}
	}

	return nil, ErrNotReady
}

// Healthcheck returns a check that pings the server.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
