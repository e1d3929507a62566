package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds application configuration
type Config struct {
	// Database settings
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// API settings
	APIPort    string
	CronSecret string

	// Z-API settings
	ZAPIBaseURL       string
	ZAPIInstanceID    string
	ZAPIToken         string
	ZAPIClientToken   string
	ZAPIRatePerSecond float64
	ZAPITimeout       time.Duration

	// Job settings
	ScheduleBatchLimit int
	CampaignBatchLimit int
	CronEnabled        bool
	CronSpec           string
	RegistryTTL        time.Duration
	Timezone           string

	// AMQP settings
	AMQPURL        string
	EventsExchange string
	JobsQueue      string

	LogMode string

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
	// INIFile is the path of the applied config.ini, empty when none was read.
	INIFile string
}

// Load reads .env, then environment variables, then config.ini overrides.
func Load() (*Config, error) {
	envLoaded := godotenv.Load() == nil

	cfg := &Config{
		DatabaseURL: String("DATABASE_URL", ""),
		DBHost:      String("DB_HOST", "localhost"),
		DBPort:      String("DB_PORT", "5432"),
		DBUser:      String("DB_USER", "postgres"),
		DBPassword:  String("DB_PASSWORD", ""),
		DBName:      String("DB_NAME", "kifersaude"),
		DBSSLMode:   String("DB_SSLMODE", "disable"),

		APIPort:    String("API_PORT", "8080"),
		CronSecret: String("CRON_SECRET", ""),

		ZAPIBaseURL:       String("ZAPI_BASE_URL", "https://api.z-api.io"),
		ZAPIInstanceID:    String("ZAPI_INSTANCE_ID", ""),
		ZAPIToken:         String("ZAPI_TOKEN", ""),
		ZAPIClientToken:   String("ZAPI_CLIENT_TOKEN", ""),
		ZAPIRatePerSecond: Float("ZAPI_RATE_PER_SECOND", 5),
		ZAPITimeout:       Seconds("ZAPI_TIMEOUT_SECONDS", 30*time.Second),

		ScheduleBatchLimit: Int("SCHEDULE_BATCH_LIMIT", 50),
		CampaignBatchLimit: Int("CAMPAIGN_BATCH_LIMIT", 25),
		CronEnabled:        Bool("CRON_ENABLED", false),
		CronSpec:           String("CRON_SPEC", "0 * * * * *"),
		RegistryTTL:        Seconds("OUTGOING_REGISTRY_TTL_SECONDS", 5*time.Minute),
		Timezone:           String("APP_TIMEZONE", "America/Sao_Paulo"),

		AMQPURL:        String("AMQP_URL", ""),
		EventsExchange: String("AMQP_EVENTS_EXCHANGE", "whatsapp.events"),
		JobsQueue:      String("AMQP_JOBS_QUEUE", "whatsapp.jobs"),

		LogMode: String("LOG_MODE", "dev"),

		EnvFileLoaded: envLoaded,
	}

	path := String("CONFIG_INI", "config.ini")
	if err := loadFromINI(cfg, path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	cfg.INIFile = path
	return cfg, nil
}

func loadFromINI(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	file, err := ini.Load(path)
	if err != nil {
		return err
	}

	db := file.Section("database")
	override(&cfg.DatabaseURL, db.Key("url").String())
	override(&cfg.DBHost, db.Key("host").String())
	override(&cfg.DBPort, db.Key("port").String())
	override(&cfg.DBUser, db.Key("user").String())
	override(&cfg.DBPassword, db.Key("password").String())
	override(&cfg.DBName, db.Key("name").String())
	override(&cfg.DBSSLMode, db.Key("sslmode").String())

	api := file.Section("api")
	override(&cfg.APIPort, api.Key("port").String())
	override(&cfg.CronSecret, api.Key("cron_secret").String())

	zapi := file.Section("zapi")
	override(&cfg.ZAPIBaseURL, zapi.Key("base_url").String())
	override(&cfg.ZAPIInstanceID, zapi.Key("instance_id").String())
	override(&cfg.ZAPIToken, zapi.Key("token").String())
	override(&cfg.ZAPIClientToken, zapi.Key("client_token").String())
	if v, err := zapi.Key("rate_per_second").Float64(); err == nil && v > 0 {
		cfg.ZAPIRatePerSecond = v
	}
	if v, err := zapi.Key("timeout_seconds").Int(); err == nil && v > 0 {
		cfg.ZAPITimeout = time.Duration(v) * time.Second
	}

	jobs := file.Section("jobs")
	if v, err := jobs.Key("schedule_batch_limit").Int(); err == nil && v > 0 {
		cfg.ScheduleBatchLimit = v
	}
	if v, err := jobs.Key("campaign_batch_limit").Int(); err == nil && v > 0 {
		cfg.CampaignBatchLimit = v
	}
	if jobs.HasKey("cron_enabled") {
		if v, err := jobs.Key("cron_enabled").Bool(); err == nil {
			cfg.CronEnabled = v
		}
	}
	override(&cfg.CronSpec, jobs.Key("cron_spec").String())
	if v, err := jobs.Key("registry_ttl_seconds").Int(); err == nil && v > 0 {
		cfg.RegistryTTL = time.Duration(v) * time.Second
	}
	override(&cfg.Timezone, jobs.Key("timezone").String())

	amqp := file.Section("amqp")
	override(&cfg.AMQPURL, amqp.Key("url").String())
	override(&cfg.EventsExchange, amqp.Key("events_exchange").String())
	override(&cfg.JobsQueue, amqp.Key("jobs_queue").String())

	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// DSN returns DATABASE_URL when set, otherwise a postgres URL built from DB_*.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// Location resolves the configured time zone, falling back to UTC-3.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("BRT", -3*60*60)
}

// ListenAddr normalises API_PORT into a listen address.
func (c *Config) ListenAddr() string {
	if len(c.APIPort) > 0 && c.APIPort[0] == ':' {
		return c.APIPort
	}
	return ":" + c.APIPort
}
