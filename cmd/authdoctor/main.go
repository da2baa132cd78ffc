package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Bldg-7/authdoctor/internal/config"
	"github.com/Bldg-7/authdoctor/internal/diagnose"
	"github.com/Bldg-7/authdoctor/internal/notify"
	"github.com/Bldg-7/authdoctor/internal/oauth"
	"github.com/Bldg-7/authdoctor/internal/server"
	"github.com/Bldg-7/authdoctor/internal/shared"
	"github.com/Bldg-7/authdoctor/internal/storage"
)

const lastResultKey = "last_diagnostic_result"

func main() {
	configPath := flag.String("config", "./authdoctor.config.json", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("config loaded", zap.String("config_path", *configPath))

	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.NewMigrationRunner(db).Migrate(); err != nil {
		logger.Error("failed to run migrations", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("database migrations complete")

	diagnose.InitMetrics()

	validator := oauth.NewHTTPTokenValidator(cfg.Endpoints.TokenInfoURL, cfg.Auth.RequiredScopes, nil)
	issuer := oauth.NewHTTPTokenIssuer(cfg.Endpoints.TokenRefreshURL, nil)
	env := oauth.NewStaticEnvironment(cfg.Endpoints.IdentityAPIURL, cfg.Endpoints.TokenInfoURL != "", cfg.Auth.AppVersion, nil)
	network := oauth.NewHTTPReachabilityProbe(cfg.Endpoints.ReachabilityURL, nil)

	probe := diagnose.NewProbe(validator, network, env, cfg.MinAppVersion(), logger)
	engine := diagnose.NewEngine(probe, diagnose.NewPlanner(), logger)
	refresher := oauth.NewRefresher(issuer, validator, cfg.Auth.RequiredScopes, cfg.Auth.OptionalScopes, logger)

	cache, err := diagnose.NewCache(time.Duration(cfg.Diagnostics.CacheTTLSeconds) * time.Second)
	if err != nil {
		logger.Error("failed to build diagnostic cache", zap.Error(err))
		os.Exit(1)
	}

	history := storage.NewHistoryStore(db, logger)
	kv := storage.NewKVStore(db)
	hub := server.NewHub(logger)

	var notifier *notify.DiscordNotifier
	if token := cfg.Channels.Discord.BotToken; token != "" {
		notifier, err = notify.NewDiscordNotifier(token, cfg.Channels.Discord.ChannelID, logger)
		if err != nil {
			logger.Warn("discord notifier disabled", zap.Error(err))
			notifier = nil
		} else {
			logger.Info("discord notifier enabled", zap.String("channel_id", cfg.Channels.Discord.ChannelID))
		}
	}

	// The monitored subject is this process's own auth state, refreshed
	// via the configured endpoints before monitoring starts.
	state := bootstrapAuthState(refresher, logger)

	onChange := func(isHealthy bool, issues []shared.Issue) {
		hub.Broadcast(server.HealthEvent{
			IsHealthy: isHealthy,
			Issues:    issues,
			At:        time.Now().UTC(),
		})
		notifier.NotifyTransition(isHealthy, issues)
	}

	monitor := diagnose.NewMonitor(
		engine,
		state,
		&shared.PermissionSet{HasDrive: true, HasSheets: true, HasCalendar: true},
		onChange,
		time.Duration(cfg.Diagnostics.MonitorIntervalSeconds)*time.Second,
		logger,
	)
	cancelMonitor := monitor.Start(context.Background())

	api := server.NewAPI(engine, cache, refresher, monitor, history, hub, cfg.Server.AuthToken, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.Handler(),
	}

	go func() {
		logger.Info("http api listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	cancelMonitor()
	persistLastResult(monitor, kv, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
}

// bootstrapAuthState attempts one non-interactive refresh so monitoring
// starts from a live token when the endpoints allow it.
func bootstrapAuthState(refresher *oauth.Refresher, logger *zap.Logger) *shared.AuthState {
	result := refresher.AttemptRefresh(context.Background(), shared.DefaultTokenRefreshConfig())
	if !result.Success {
		logger.Warn("initial token refresh failed", zap.String("error", result.Error))
		return &shared.AuthState{IsAuthenticated: false}
	}

	return &shared.AuthState{
		IsAuthenticated: true,
		User:            &shared.AuthUser{AccessToken: result.NewToken},
	}
}

// persistLastResult snapshots the final monitor result so the next start
// can inspect the state the process shut down in.
func persistLastResult(monitor *diagnose.Monitor, kv *storage.KVStore, logger *zap.Logger) {
	latest := monitor.Latest()
	if latest == nil {
		return
	}
	data, err := json.Marshal(latest)
	if err != nil {
		logger.Warn("failed to serialize last result", zap.Error(err))
		return
	}
	if err := kv.Set(lastResultKey, string(data)); err != nil {
		logger.Warn("failed to persist last result", zap.Error(err))
	}
}
