package settings

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/swagftw/gi"
)

type (
	RateLimiter struct {
		Burst          int `json:"burst"`
		RequestsPerSec int `json:"req_per_sec"`
	}

	Metaserver struct {
		SnapshotURL  string `json:"snapshot_url" validate:"required"`
		AuditBaseURL string `json:"audit_base_url" validate:"required"`
	}

	Reconciler struct {
		// PollInterval is a robfig/cron schedule, e.g. "@every 5s"
		PollInterval      string       `json:"poll_interval"`
		AuditConcurrency  int          `json:"audit_concurrency"`
		AuditRateLimiter  *RateLimiter `json:"audit_rate_limit,omitempty"`
		AuditOverlayTTL   int          `json:"audit_overlay_ttl_secs"`
		PollRetryMax      int          `json:"poll_retry_max"`
		ChartDays         int          `json:"chart_days"`
		PersistUIState    bool         `json:"persist_ui_state"`
		ArchiveSnapshots  bool         `json:"archive_snapshots"`
		PublishAuditEvent bool         `json:"publish_audit_events"`
	}

	Rabbitmq struct {
		User     string `json:"user"`
		Password string `json:"password"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Setup    struct {
			Core struct {
				Exchange string `json:"exchange"`
			} `json:"core"`
			AuditEvents struct {
				RoutingKey string `json:"routing_key"`
			} `json:"audit_events"`
		} `json:"setup"`
	}

	Redis struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Db       int    `json:"db"`
		Password string `json:"password"`
		PoolSize int    `json:"pool_size"`
	}

	Postgres struct {
		URL string `json:"url"`
	}

	API struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}

	Pruning struct {
		LocalDiskMaxAge int    `json:"local_disk_max_age_in_days"`
		CronFrequency   string `json:"cron_frequency"`
	}

	HTTPClient struct {
		MaxIdleConns        int `json:"max_idle_conns"`
		MaxConnsPerHost     int `json:"max_conns_per_host"`
		MaxIdleConnsPerHost int `json:"max_idle_conns_per_host"`
		IdleConnTimeout     int `json:"idle_conn_timeout"`
		ConnectionTimeout   int `json:"connection_timeout"`
	}

	Reporting struct {
		SlackWebhookURL string `json:"slack_webhook_url"`
		IssueEndpoint   string `json:"issue_endpoint"`
	}

	Healthcheck struct {
		Port     int    `json:"port"`
		Endpoint string `json:"endpoint"`
	}
)

type SettingsObj struct {
	InstanceId     string       `json:"instance_id" validate:"required"`
	LocalCachePath string       `json:"local_cache_path" validate:"required"`
	Concurrency    int          `json:"concurrency"`
	RetryCount     int          `json:"retry_count"`
	Metaserver     *Metaserver  `json:"metaserver" validate:"required"`
	Reconciler     *Reconciler  `json:"reconciler"`
	HttpClient     *HTTPClient  `json:"http_client" validate:"required"`
	Rabbitmq       *Rabbitmq    `json:"rabbitmq"`
	Redis          *Redis       `json:"redis" validate:"required"`
	Postgres       *Postgres    `json:"postgres"`
	API            *API         `json:"api"`
	Pruning        *Pruning     `json:"pruning"`
	Reporting      *Reporting   `json:"reporting"`
	Healthcheck    *Healthcheck `json:"healthcheck"`
}

// ParseSettings parses the settings.json file and returns a SettingsObj
func ParseSettings() *SettingsObj {
	log.Debug("parsing settings")

	// .env is optional, plain environment variables still work without it
	_ = godotenv.Load()

	dir := strings.TrimSuffix(os.Getenv("CONFIG_PATH"), "/")
	settingsFilePath := dir + "/settings.json"

	log.Info("reading settings:", settingsFilePath)

	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		log.Error("cannot read the file:", err)
		panic(err)
	}

	settingsObj, err := ParseSettingsBytes(data)
	if err != nil {
		log.WithError(err).Fatal("invalid settings object")
	}

	log.Infof("final Settings Object being used %+v", settingsObj)

	err = gi.Inject(settingsObj)
	if err != nil {
		log.Fatal("cannot inject the settings object", err)
	}

	return settingsObj
}

// ParseSettingsBytes decodes, validates and defaults a settings document.
func ParseSettingsBytes(data []byte) (*SettingsObj, error) {
	settingsObj := new(SettingsObj)

	err := json.Unmarshal(data, settingsObj)
	if err != nil {
		log.Error("cannot unmarshal the settings json ", err)

		return nil, err
	}

	err = validator.New().Struct(settingsObj)
	if err != nil {
		return nil, err
	}

	SetDefaults(settingsObj)

	return settingsObj, nil
}

// SetDefaults sets the default values for the settings object
// add default values in this function if required
func SetDefaults(settingsObj *SettingsObj) {
	settingsObj.LocalCachePath = strings.TrimSuffix(settingsObj.LocalCachePath, "/")
	settingsObj.Metaserver.AuditBaseURL = strings.TrimSuffix(settingsObj.Metaserver.AuditBaseURL, "/")

	if settingsObj.Concurrency <= 0 {
		settingsObj.Concurrency = 10
	}

	if settingsObj.RetryCount <= 0 {
		settingsObj.RetryCount = 5
	}

	if settingsObj.Reconciler == nil {
		settingsObj.Reconciler = new(Reconciler)
	}

	if settingsObj.Reconciler.PollInterval == "" {
		settingsObj.Reconciler.PollInterval = "@every 5s"
	}

	if settingsObj.Reconciler.AuditConcurrency <= 0 {
		settingsObj.Reconciler.AuditConcurrency = 4
	}

	if settingsObj.Reconciler.AuditRateLimiter == nil {
		settingsObj.Reconciler.AuditRateLimiter = &RateLimiter{Burst: 5, RequestsPerSec: 10}
	}

	if settingsObj.Reconciler.AuditOverlayTTL <= 0 {
		settingsObj.Reconciler.AuditOverlayTTL = 300
	}

	if settingsObj.Reconciler.ChartDays <= 0 {
		settingsObj.Reconciler.ChartDays = 7
	}

	if settingsObj.Reporting == nil {
		settingsObj.Reporting = new(Reporting)
	}

	if settingsObj.Reporting.SlackWebhookURL == "" {
		log.Warning("slack webhook url is not set, corrupt files will not be reported to slack")
	}

	if settingsObj.API == nil {
		settingsObj.API = &API{Port: 8080}
	}

	if settingsObj.Pruning == nil {
		settingsObj.Pruning = &Pruning{LocalDiskMaxAge: 7, CronFrequency: "@daily"}
	}

	if settingsObj.Postgres == nil {
		settingsObj.Postgres = new(Postgres)
	}

	// for local testing
	if val, err := strconv.ParseBool(os.Getenv("LOCAL_TESTING")); err == nil && val {
		settingsObj.Redis.Host = "localhost"

		if settingsObj.Rabbitmq != nil {
			settingsObj.Rabbitmq.Host = "localhost"
		}
	}

	if dbURL := os.Getenv("DB_URL"); dbURL != "" {
		settingsObj.Postgres.URL = dbURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		settingsObj.Redis.Password = redisPassword
	}

	if slackURL := os.Getenv("SLACK_WEBHOOK_URL"); slackURL != "" {
		settingsObj.Reporting.SlackWebhookURL = slackURL
	}

	if settingsObj.Healthcheck == nil {
		settingsObj.Healthcheck = new(Healthcheck)
	}

	if settingsObj.Healthcheck.Endpoint == "" {
		settingsObj.Healthcheck.Endpoint = "/health"
	}

	if settingsObj.Healthcheck.Port == 0 {
		settingsObj.Healthcheck.Port = 9000
	}
}
