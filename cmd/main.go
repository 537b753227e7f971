package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"regdesk/cmd/buildCFG"
	"regdesk/internal/api/api"
	rabbitReader "regdesk/internal/consumerWorker"
	"regdesk/internal/credential"
	"regdesk/internal/export"
	"regdesk/internal/mailer"
	"regdesk/internal/model"
	"regdesk/internal/notify"
	"regdesk/internal/rabbit"
	"regdesk/internal/repo"
	"regdesk/internal/service"
	"regdesk/internal/upi"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "REGDESK"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	storageCfg, err := buildCFG.BuildStorageConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build storage config")
	}

	var (
		repository repo.Repository
		cleanup    func()
	)
	switch storageCfg.Driver {
	case buildCFG.DriverFile:
		repository = openFileStore(storageCfg, &log)
		cleanup = func() {}
	default:
		repository, cleanup = openPostgres(cfg, &log)
	}

	credCfg := buildCFG.BuildCredentialConfig(cfg, &log)
	creds, err := credential.NewGenerator(credCfg.Size, credCfg.Dir, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential generator")
	}

	mail := mailer.New(buildCFG.BuildMailConfig(cfg, &log), &log)

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var (
		notifier service.Notifier = notify.NewDirect(mail)
		reader   *rabbitReader.Reader
	)
	if rabbitCfg.Enabled {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()

		notifier = notify.NewQueue(rmq)
		reader = rabbitReader.NewReader(rmq, mail, &log, buildCFG.BuildNotifyTimeout(cfg))
		reader.Start(workerCtx)
	}

	serviceInstance := service.NewService(repository, creds, notifier, &log, service.Options{
		NotifyTimeout: buildCFG.BuildNotifyTimeout(cfg),
	})
	app := api.NewRouters(&api.Routers{
		Service: serviceInstance,
		UPI:     upi.New(buildCFG.BuildUPIConfig(cfg, &log)),
		Log:     &log,
		Mode:    serverCfg.Mode,
	})

	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: app,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	serviceInstance.Wait()
	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}

	cleanup()
	log.Info().Msg("Shutdown complete")
}

func openFileStore(sc buildCFG.StorageConfig, log *zerolog.Logger) repo.Repository {
	var mirror repo.MirrorFunc
	if sc.Spreadsheet != "" {
		path := sc.Spreadsheet
		if !filepath.IsAbs(path) {
			path = filepath.Join(sc.Dir, path)
		}
		mirror = func(regs []model.Registration) error {
			return export.WriteSpreadsheetFile(path, regs)
		}
	}
	store, err := repo.NewFileRepository(sc.Dir, log, mirror)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize file store")
	}
	log.Info().Str("dir", sc.Dir).Msg("File store ready")
	return store
}

func openPostgres(cfg *config.Config, log *zerolog.Logger) (repo.Repository, func()) {
	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	pgCfg := buildCFG.BuildPostgresConfig(cfg, log)

	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}

	repository, err := repo.NewRepository(db, log, pgCfg.QueryTimeout)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	migrationPath := pgCfg.MigrationsDir
	if !filepath.IsAbs(migrationPath) {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatal().Err(err).Msg("cannot get working directory")
		}
		migrationPath = filepath.Join(cwd, migrationPath)
	}
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	cleanup := func() {
		if pgCfg.RollbackOnExit {
			log.Info().Msg("Rolling back migrations...")
			if err := repository.MigrateDown(migrationPath); err != nil {
				log.Error().Msgf("failed to rollback migrations: %v", err)
			}
		}
		if err := db.Master.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	return repository, cleanup
}
