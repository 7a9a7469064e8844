// Command auditpipe runs one export pass: it pulls audit events from the
// identity provider and the application history API, deduplicates them
// against the local store, and forwards new events to a syslog collector.
// Exit code 0 means a clean run; 1 means at least one error occurred.
package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/seclogix/auditpipe/internal/config"
	"github.com/seclogix/auditpipe/internal/logging"
	"github.com/seclogix/auditpipe/internal/normalize"
	"github.com/seclogix/auditpipe/internal/pipeline"
	"github.com/seclogix/auditpipe/internal/source/apphistory"
	"github.com/seclogix/auditpipe/internal/source/keycloak"
	"github.com/seclogix/auditpipe/internal/store"
	"github.com/seclogix/auditpipe/internal/syslogout"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.Init(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	log := logger.With(zap.String("run_id", uuid.NewString()))
	log.Info("starting audit export",
		zap.String("syslog", cfg.Syslog.Host),
		zap.Int("port", cfg.Syslog.Port),
		zap.Int("window_hours", cfg.WindowHours),
		zap.Bool("short_logs", cfg.ShortLogs))

	st, err := store.Open(store.Config{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		DSN:    cfg.Store.DSN,
	})
	if err != nil {
		log.Error("opening dedup store failed", zap.Error(err))
		return 1
	}
	defer st.Close()

	ctx := context.Background()
	maintenanceErrors := 0

	// Retention pruning runs as a maintenance step before the forwarding
	// pass, never interleaved with its dedup checks.
	if cfg.Store.RetentionDays > 0 {
		maxAge := time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
		deleted, err := st.Prune(ctx, maxAge)
		if err != nil {
			log.Error("pruning expired records failed", zap.Error(err))
			maintenanceErrors++
		} else {
			log.Info("pruned expired records",
				zap.Int64("deleted", deleted),
				zap.Int("retention_days", cfg.Store.RetentionDays))
		}
	}

	if stats, err := st.Stats(ctx); err != nil {
		log.Warn("reading store stats failed", zap.Error(err))
	} else {
		log.Info("dedup store stats",
			zap.Int64("total", stats.Total),
			zap.Any("by_source", stats.BySource))
	}

	norm := normalize.New(
		cfg.Tables.IdentityUser,
		cfg.Tables.IdentityAdmin,
		cfg.Tables.Application,
		cfg.ShortLogs,
	)
	sender := syslogout.NewSender(cfg.Syslog.Host, cfg.Syslog.Port, cfg.Syslog.Hostname)
	identity := keycloak.New(keycloak.Config{
		BaseURL:  cfg.Keycloak.URL,
		Realm:    cfg.Keycloak.Realm,
		ClientID: cfg.Keycloak.ClientID,
		Username: cfg.Keycloak.Username,
		Password: cfg.Keycloak.Password,
	})
	app := apphistory.New(apphistory.Config{
		BaseURL: cfg.App.URL,
		Token:   cfg.App.Token,
	})

	window := time.Duration(cfg.WindowHours) * time.Hour
	p := pipeline.New(st, norm, sender, identity, app, window, log)
	stats := p.Run(ctx)

	log.Info("export finished",
		zap.Int("identity_user_new", stats.IdentityUser),
		zap.Int("identity_admin_new", stats.IdentityAdmin),
		zap.Int("application_new", stats.App),
		zap.Int("sent", stats.Sent),
		zap.Int("duplicates", stats.Duplicates()),
		zap.Int("errors", stats.Errors),
		zap.Duration("elapsed", stats.Elapsed))

	if stats.Failed() || maintenanceErrors > 0 {
		return 1
	}
	return 0
}
