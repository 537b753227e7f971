package buildCFG

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"regdesk/internal/mailer"
	"regdesk/internal/upi"
)

const (
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

type ServerConfig struct {
	Port            string
	Mode            string
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	QueryTimeout   time.Duration
	MigrationsDir  string
	RollbackOnExit bool
}

type RabbitConfig struct {
	Enabled  bool
	Url      string
	Exchange string
	Queue    string
}

type StorageConfig struct {
	Driver string
	Dir    string
	// Spreadsheet is the mirror file kept in sync by the file backend.
	Spreadsheet string
}

type CredentialConfig struct {
	Size int
	Dir  string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	sc := ServerConfig{
		Port:            cfg.GetString("server.port"),
		Mode:            cfg.GetString("server.mode"),
		ShutdownTimeout: cfg.GetDuration("server.shutdown_timeout"),
	}
	if sc.Port == "" {
		sc.Port = "8080"
		log.Warn().Msg("server.port not set, using 8080")
	}
	if sc.Mode == "" {
		sc.Mode = "release"
	}
	if sc.ShutdownTimeout <= 0 {
		sc.ShutdownTimeout = 10 * time.Second
	}
	return sc
}

func BuildStorageConfig(cfg *config.Config, log *zerolog.Logger) (StorageConfig, error) {
	sc := StorageConfig{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.GetString("storage.driver"))),
		Dir:         cfg.GetString("storage.file.dir"),
		Spreadsheet: cfg.GetString("storage.file.spreadsheet"),
	}
	if sc.Driver == "" {
		sc.Driver = DriverPostgres
	}
	switch sc.Driver {
	case DriverPostgres:
	case DriverFile:
		if sc.Dir == "" {
			sc.Dir = "data"
		}
	default:
		return sc, fmt.Errorf("unknown storage.driver %q", sc.Driver)
	}
	log.Info().Str("driver", sc.Driver).Msg("storage configured")
	return sc, nil
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("postgres.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, errors.New("postgres.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("postgres.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("postgres.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("postgres.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("postgres.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}

	log.Info().
		Int("max_open_conns", opts.MaxOpenConns).
		Int("slaves", len(slaveDSNs)).
		Msg("database config loaded")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildPostgresConfig(cfg *config.Config, log *zerolog.Logger) PostgresConfig {
	pc := PostgresConfig{
		QueryTimeout:   cfg.GetDuration("postgres.query_timeout"),
		MigrationsDir:  cfg.GetString("postgres.migrations_dir"),
		RollbackOnExit: cfg.GetBool("postgres.rollback_on_exit"),
	}
	if pc.QueryTimeout <= 0 {
		pc.QueryTimeout = 5 * time.Second
	}
	if pc.MigrationsDir == "" {
		pc.MigrationsDir = "migrations/postgres"
	}
	if pc.RollbackOnExit {
		log.Warn().Msg("migrations will be rolled back on shutdown")
	}
	return pc
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:  cfg.GetBool("rabbit.enabled"),
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if !rc.Enabled {
		log.Info().Msg("RabbitMQ disabled, notifications are sent directly")
		return rc, nil
	}
	if rc.Url == "" {
		return rc, errors.New("rabbit.url is required when rabbit.enabled is true")
	}
	if rc.Exchange == "" {
		rc.Exchange = "registrations"
	}
	if rc.Queue == "" {
		rc.Queue = "registration_notifications"
	}
	return rc, nil
}

func BuildMailConfig(cfg *config.Config, log *zerolog.Logger) mailer.Config {
	mc := mailer.Config{
		Host:      cfg.GetString("mail.host"),
		Port:      cfg.GetInt("mail.port"),
		Username:  cfg.GetString("mail.username"),
		Password:  cfg.GetString("mail.password"),
		From:      cfg.GetString("mail.from"),
		Organizer: cfg.GetString("mail.organizer"),
		EventName: cfg.GetString("mail.event_name"),
		TLS:       cfg.GetString("mail.tls"),
		Timeout:   cfg.GetDuration("mail.timeout"),
	}
	if mc.From == "" {
		mc.From = mc.Username
	}
	if mc.Host == "" {
		log.Warn().Msg("mail.host not set, notification e-mails will fail")
	}
	return mc
}

func BuildNotifyTimeout(cfg *config.Config) time.Duration {
	return cfg.GetDuration("notify.timeout")
}

func BuildCredentialConfig(cfg *config.Config, log *zerolog.Logger) CredentialConfig {
	cc := CredentialConfig{
		Size: cfg.GetInt("credentials.size"),
		Dir:  cfg.GetString("credentials.dir"),
	}
	if cc.Dir == "" {
		log.Info().Msg("credentials.dir not set, credential images are not archived")
	}
	return cc
}

func BuildUPIConfig(cfg *config.Config, log *zerolog.Logger) upi.Config {
	uc := upi.Config{
		VPA:  cfg.GetString("upi.vpa"),
		Name: cfg.GetString("upi.name"),
		Note: cfg.GetString("upi.note"),
	}
	if uc.VPA == "" {
		log.Warn().Msg("upi.vpa not set, payment QR is disabled")
	}
	return uc
}
