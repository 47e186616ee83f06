package main

import (
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/goutils/health"
	"storage-dashboard/goutils/logger"
	"storage-dashboard/goutils/settings"
	pruning "storage-dashboard/pruning/service"
)

func main() {
	logger.InitLogger()

	settingsObj := settings.ParseSettings()

	cronRunner := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	cronId, err := cronRunner.AddFunc(settingsObj.Pruning.CronFrequency, func() {
		_, err := pruning.Prune(settingsObj, time.Now())
		if err != nil {
			log.WithError(err).Error("snapshot archive pruning failed")
		}
	})
	if err != nil {
		log.WithError(err).Fatal("failed to add pruning cron job")
	}

	log.WithField("cronId", cronId).WithField("service", pruning.ServiceName).Info("added pruning cron job")

	health.HealthCheck(settingsObj.Healthcheck)

	cronRunner.Start()

	// block forever
	select {}
}
