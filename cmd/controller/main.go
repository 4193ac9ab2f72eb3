// Package main is the entry point for the subscriber firewall-policy
// controller: it wires the RADIUS accounting observer, the admission/
// signal router, the policy reconciler and FortiGate gateway, the profile
// admin API, the UTM log ingester, and the daily report scheduler into one
// process sharing a Postgres pool, a Redis idempotency cache, and an
// analytical-store client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solidex/shpak/internal/adminapi"
	"github.com/solidex/shpak/internal/admission"
	"github.com/solidex/shpak/internal/analytical"
	"github.com/solidex/shpak/internal/config"
	"github.com/solidex/shpak/internal/database"
	"github.com/solidex/shpak/internal/fortigate"
	"github.com/solidex/shpak/internal/handler"
	"github.com/solidex/shpak/internal/ldap"
	"github.com/solidex/shpak/internal/mailer"
	"github.com/solidex/shpak/internal/portmatrix"
	"github.com/solidex/shpak/internal/radius"
	"github.com/solidex/shpak/internal/reconciler"
	"github.com/solidex/shpak/internal/repository"
	"github.com/solidex/shpak/internal/reportweb"
	"github.com/solidex/shpak/internal/router"
	"github.com/solidex/shpak/internal/scheduler"
	"github.com/solidex/shpak/internal/server"
	"github.com/solidex/shpak/internal/utm"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger := setupLogger(cfg)
	logger.Info().Str("env", cfg.Server.Env).Msg("starting firewall-policy controller")

	postgres, err := database.NewPostgres(cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer postgres.Close()

	redisClient, err := database.NewRedis(cfg.Redis, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to connect to redis, admission dedup disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	migrationRunner := database.NewMigrationRunner(postgres, logger)
	if err := migrationRunner.RunFromStrings(context.Background(), schemaMigrations()); err != nil {
		logger.Fatal().Err(err).Msg("failed to run database migrations")
	}

	analyticalClient, err := analytical.New(cfg.Analytical, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to analytical store")
	}
	defer analyticalClient.Close()

	matrix, err := portmatrix.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load port matrix catalogue")
	}

	profileRepo := repository.NewProfileRepository(postgres.DB)
	sessionRepo := repository.NewSessionRepository(postgres.DB)
	policyLogRepo := repository.NewPolicyLogRepository(postgres.DB)

	gateway := fortigate.New(cfg.FortiGate.APIToken, cfg.FortiGate.Timeout, logger)
	rec := reconciler.New(gateway, profileRepo, policyLogRepo, matrix, cfg.FortiGate.NASToFGs, fortigate.DefaultDenyTemplate, logger)
	reconcilerHandler := reconciler.NewHandler(rec, logger)

	admissionRouter := admission.New(sessionRepo, profileRepo, rec, redisClient, logger)

	radiusObserver, err := radius.New(cfg.Radius.ListenAddr, cfg.Radius.SharedSecret, cfg.FortiGate.NASToFGs, cfg.Radius.ForwardPort, admissionRouter.HandleAttributes, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bind radius accounting listener")
	}

	utmIngester, err := utm.New(cfg.Syslog.ListenAddr, analyticalClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bind utm syslog listener")
	}

	adminHandler := adminapi.New(profileRepo, sessionRepo, rec, cfg.Admission.KeepaliveURL, cfg.Admission.MaxAttempts, cfg.Admission.RetryDelay, logger)
	queryHandler := adminapi.NewQueryHandler(profileRepo)
	policyLogHandler := adminapi.NewPolicyLogHandler(policyLogRepo)

	ldapClient := ldap.New(cfg.LDAP)
	mailerClient := mailer.New(cfg.SMTP)
	reportSched := scheduler.New(cfg.Report, ldapClient, analyticalClient, mailerClient, logger)
	reportHandler := reportweb.New(cfg.Report, analyticalClient, logger)

	healthHandler := handler.NewHealthHandler(postgres, analyticalClient)

	admissionHTTP := router.NewAdmission(router.AdmissionDeps{
		Logger:            logger,
		Timeout:           cfg.Server.WriteTimeout,
		Health:            healthHandler,
		AdmissionRouter:   admissionRouter,
		ReconcilerHandler: reconcilerHandler,
	})
	adminHTTP := router.NewAdmin(router.AdminDeps{
		Logger:     logger,
		Timeout:    cfg.Server.WriteTimeout,
		Health:     healthHandler,
		Profiles:   adminHandler,
		Query:      queryHandler,
		PolicyLogs: policyLogHandler,
	})
	reportHTTP := router.NewReport(router.ReportDeps{
		Logger:  logger,
		Timeout: cfg.Server.WriteTimeout,
		Health:  healthHandler,
		Report:  reportHandler,
	})

	admissionSrv := server.New("admission", ":"+cfg.Server.AdmissionPort, admissionHTTP, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout, logger)
	adminSrv := server.New("admin", ":"+cfg.Server.AdminPort, adminHTTP, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout, logger)
	reportSrv := server.New("report", ":"+cfg.Server.ReportPort, reportHTTP, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())

	admissionErrs := admissionSrv.Start()
	adminErrs := adminSrv.Start()
	reportErrs := reportSrv.Start()

	go func() {
		if err := radiusObserver.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("radius observer stopped")
		}
	}()
	go func() {
		if err := utmIngester.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("utm ingester stopped")
		}
	}()
	schedDone := make(chan struct{})
	go func() {
		reportSched.Run(ctx)
		close(schedDone)
	}()

	logger.Info().
		Str("admission_addr", admissionSrv.Addr()).
		Str("admin_addr", adminSrv.Addr()).
		Str("report_addr", reportSrv.Addr()).
		Str("radius_addr", cfg.Radius.ListenAddr).
		Str("syslog_addr", cfg.Syslog.ListenAddr).
		Msg("controller ready")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-admissionErrs:
		if err != nil {
			logger.Error().Err(err).Msg("admission server failed")
		}
	case err := <-adminErrs:
		if err != nil {
			logger.Error().Err(err).Msg("admin server failed")
		}
	case err := <-reportErrs:
		if err != nil {
			logger.Error().Err(err).Msg("report server failed")
		}
	}

	cancel()
	radiusObserver.Close()
	utmIngester.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	for _, s := range []*server.Server{admissionSrv, adminSrv, reportSrv} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error during server shutdown")
		}
	}

	<-schedDone
	logger.Info().Msg("controller shutdown complete")
}

// schemaMigrations returns the controller's relational schema, keyed by a
// monotonic version name so MigrationRunner can track what has already
// been applied. Column names match exactly what the repository layer
// selects and scans.
func schemaMigrations() map[string]string {
	return map[string]string{
		"0001_fw_profiles": `
			CREATE TABLE IF NOT EXISTS fw_profiles (
				id               BIGSERIAL PRIMARY KEY,
				login            VARCHAR(255) NOT NULL UNIQUE,
				name             VARCHAR(255) NOT NULL,
				tcp_rules        TEXT NOT NULL DEFAULT '',
				udp_rules        TEXT NOT NULL DEFAULT '',
				firewall_profile VARCHAR(255) NOT NULL DEFAULT '',
				ip_pool          VARCHAR(255) NOT NULL DEFAULT '',
				ip_v6_pool       VARCHAR(255) NOT NULL DEFAULT '',
				region_id        VARCHAR(64)  NOT NULL DEFAULT '',
				policy_id        BIGINT,
				hash             VARCHAR(64)  NOT NULL DEFAULT '',
				created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_fw_profiles_hash ON fw_profiles (hash);
		`,
		"0002_radius_sessions": `
			CREATE TABLE IF NOT EXISTS radius_sessions (
				user_name             VARCHAR(255) PRIMARY KEY,
				"timestamp"           TIMESTAMPTZ  NOT NULL,
				acct_status_type      VARCHAR(32)  NOT NULL,
				framed_ip_address     VARCHAR(64)  NOT NULL DEFAULT '',
				delegated_ipv6_prefix VARCHAR(64)  NOT NULL DEFAULT '',
				nas_ip_address        VARCHAR(64)  NOT NULL DEFAULT ''
			);
		`,
		"0003_policy_logs": `
			CREATE TABLE IF NOT EXISTS policy_logs (
				id          VARCHAR(36) PRIMARY KEY,
				"user"      VARCHAR(255) NOT NULL,
				"timestamp" TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				policy_id   BIGINT,
				result      VARCHAR(32)  NOT NULL,
				http_status INTEGER      NOT NULL DEFAULT 0,
				fg_address  VARCHAR(255) NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_policy_logs_user ON policy_logs ("user");
		`,
	}
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Logging.Format == "console" || cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger
}
