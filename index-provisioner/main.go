package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/goutils/logger"
	"storage-dashboard/goutils/settings"
	"storage-dashboard/index-provisioner/provisioner"
)

func main() {
	logger.InitLogger()

	settingsObj := settings.ParseSettings()

	if settingsObj.Postgres.URL == "" {
		log.Fatal("postgres url is not set, use postgres.url in settings or DB_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	config, err := pgxpool.ParseConfig(settingsObj.Postgres.URL)
	if err != nil {
		log.WithError(err).Fatal("invalid postgres url")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		log.WithError(err).Fatal("failed to create postgres pool")
	}

	defer pool.Close()

	err = backoff.Retry(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(settingsObj.RetryCount)), ctx))
	if err != nil {
		log.WithError(err).Fatal("postgres is not reachable")
	}

	err = provisioner.Provision(ctx, pool)
	if err != nil {
		log.WithError(err).Fatal("failed to provision metadata indexes")
	}
}
