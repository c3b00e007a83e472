// Package serve wires every component into a running process using
// phased dependency construction, signal-driven graceful shutdown, and
// an error channel for listener failures.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redditpulse/scraper/internal/admission"
	"github.com/redditpulse/scraper/internal/analytics"
	"github.com/redditpulse/scraper/internal/api"
	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/config"
	"github.com/redditpulse/scraper/internal/enrich"
	"github.com/redditpulse/scraper/internal/eventbus"
	"github.com/redditpulse/scraper/internal/forum"
	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/retention"
	"github.com/redditpulse/scraper/internal/scheduler"
	"github.com/redditpulse/scraper/internal/session"
	"github.com/redditpulse/scraper/internal/store"
)

// ExitCode is the process exit status returned to the shell.
type ExitCode int

const (
	ExitClean       ExitCode = 0
	ExitFatalInit   ExitCode = 1
	ExitStoreDown   ExitCode = 2
	ExitPanic       ExitCode = 3
	shutdownTimeout          = 30 * time.Second
)

// Run builds the full dependency graph from cfgPath and serves until an
// interrupt or fatal error, returning the process exit code.
func Run(cfgPath string) ExitCode {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return ExitFatalInit
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return ExitFatalInit
	}

	st, err := store.Open(store.Config{
		Path:           cfg.Store.Path,
		MaxConnections: cfg.Store.MaxConnections,
		BusyTimeout:    cfg.Store.BusyTimeout,
	}, log)
	if err != nil {
		log.Error("store: failed to open", "error", err)
		return ExitStoreDown
	}
	defer st.Close()

	adm, err := buildAdmission(cfg.Admission, "forum")
	if err != nil {
		log.Error("admission: failed to initialize", "error", err)
		return ExitFatalInit
	}

	breakerCfg := circuit.DefaultConfig()
	forumBreaker := circuit.New(breakerCfg)
	forumClient, err := forum.New(cfg.Forum, adm, forumBreaker)
	if err != nil {
		log.Error("forum: failed to initialize", "error", err)
		return ExitFatalInit
	}

	enrichAdm, err := buildAdmission(cfg.Admission, "enrich")
	if err != nil {
		log.Error("admission: failed to initialize enricher pacing", "error", err)
		return ExitFatalInit
	}
	enrichBreaker := circuit.New(circuit.DefaultConfig())
	enricher := enrich.New(enrichAdm, enrichBreaker, log)

	bus := eventbus.New()
	sched := scheduler.New(forumClient, enricher, st, forumBreaker, analytics.HeuristicScorer{}, breakerCfg.CoolDown, log)
	eng := session.New(sched, st, bus, forumBreaker, breakerCfg.CoolDown, log)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := eng.LoadActive(bootCtx); err != nil {
		log.Error("session: failed to load active sessions", "error", err)
	}
	bootCancel()

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	eng.StartWatchdog(watchdogCtx)

	var retentionJob *retention.Job
	if cfg.Retention.Enabled {
		retentionJob = retention.New(st, cfg.Store.RetentionDays, cfg.Store.MetricRetentionDays, log)
		if err := retentionJob.Start(cfg.Retention.Schedule); err != nil {
			log.Error("retention: failed to start", "error", err)
		}
	}

	server := api.New(eng, st, bus, cfg, log)
	httpServer := &http.Server{Addr: cfg.Server.Address, Handler: server.Handler()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("api: listening", "address", cfg.Server.Address)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("api: listener failed", "error", err)
		return ExitFatalInit
	case sig := <-sigChan:
		log.Info("shutdown: signal received", "signal", sig.String())
	}

	if retentionJob != nil {
		retentionJob.Stop()
	}
	stopWatchdog()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("api: failed to shut down cleanly", "error", err)
	}

	log.Info("shutdown: complete")
	return ExitClean
}

func buildAdmission(cfg *config.AdmissionConfig, domainKey string) (admission.Controller, error) {
	if cfg.Mode == "shared" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return admission.NewShared(client, domainKey, cfg.InitialRate, cfg.MinRate, cfg.MaxRate)
	}
	return admission.NewLocal(cfg.InitialRate, cfg.MinRate, cfg.MaxRate), nil
}
