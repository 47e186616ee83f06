package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/caching"
	"storage-dashboard/dashboard-reconciler/api"
	"storage-dashboard/dashboard-reconciler/service"
	"storage-dashboard/goutils/health"
	"storage-dashboard/goutils/httpclient"
	"storage-dashboard/goutils/logger"
	"storage-dashboard/goutils/redisutils"
	"storage-dashboard/goutils/reporting"
	"storage-dashboard/goutils/settings"
	"storage-dashboard/goutils/taskmgr"
	rabbitmq "storage-dashboard/goutils/taskmgr/rabbitmq"
)

func main() {
	logger.InitLogger()

	settingsObj := settings.ParseSettings()

	redisClient := redisutils.InitRedisClient(
		settingsObj.Redis.Host,
		settingsObj.Redis.Port,
		settingsObj.Redis.Db,
		settingsObj.Redis.PoolSize,
		settingsObj.Redis.Password,
	)

	caching.NewRedisCache(redisClient, settingsObj.InstanceId)
	caching.InitDiskCache()

	reporter := reporting.InitIssueReporter(settingsObj)

	metaserverClient := service.NewMetaserverClient(
		httpclient.GetPollHTTPClient(settingsObj),
		settingsObj.Metaserver.SnapshotURL,
		settingsObj.Metaserver.AuditBaseURL,
	)

	publisher := initPublisher(settingsObj)

	reconciler := service.InitReconciler(metaserverClient, metaserverClient, reporter, publisher)

	// health check is non-blocking health check http listener
	health.HealthCheck(settingsObj.Healthcheck)

	ctx, cancel := context.WithCancel(context.Background())

	err := reconciler.Start(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to start reconciler")
	}

	server := api.NewServer(reconciler, settingsObj)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("dashboard api stopped")
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signals
	log.WithField("signal", sig.String()).Info("shutting down")

	cancel()
	reconciler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("error while shutting down dashboard api")
	}

	if publisher != nil {
		if err := publisher.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("error while closing rabbitmq connection")
		}
	}

	if err := redisClient.Close(); err != nil {
		log.WithError(err).Error("error while closing redis client")
	}
}

// initPublisher returns nil when audit events are disabled or rabbitmq cannot be reached,
// the dashboard keeps working without them.
func initPublisher(settingsObj *settings.SettingsObj) taskmgr.TaskMgr {
	if !settingsObj.Reconciler.PublishAuditEvent || settingsObj.Rabbitmq == nil {
		return nil
	}

	var mgr *rabbitmq.RabbitmqTaskMgr

	err := backoff.Retry(func() error {
		var err error

		mgr, err = rabbitmq.NewRabbitmqTaskMgr(settingsObj)

		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(settingsObj.RetryCount)))
	if err != nil {
		log.WithError(err).Error("failed to connect to rabbitmq, audit events will not be published")

		return nil
	}

	return mgr
}
