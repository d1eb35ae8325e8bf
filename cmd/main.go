package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/cel-labs/cel-translate/internal/aiclient"
	"github.com/cel-labs/cel-translate/internal/config"
	"github.com/cel-labs/cel-translate/internal/httpapi"
	"github.com/cel-labs/cel-translate/internal/jobs"
	"github.com/cel-labs/cel-translate/internal/observability"
	"github.com/cel-labs/cel-translate/internal/persistence"
	"github.com/cel-labs/cel-translate/pkg/log"
)

// translatorHandle lets the settings API swap the upstream client at runtime
// without rebuilding the processor or the queue.
type translatorHandle struct {
	mu     sync.RWMutex
	client *aiclient.Client
}

func (h *translatorHandle) get() *aiclient.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

func (h *translatorHandle) swap(client *aiclient.Client) {
	h.mu.Lock()
	h.client = client
	h.mu.Unlock()
}

func (h *translatorHandle) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return h.get().Translate(ctx, text, sourceLang, targetLang)
}

func (h *translatorHandle) TestConnection(ctx context.Context) error {
	return h.get().TestConnection(ctx)
}

func clientConfig(cfg *config.Config) aiclient.Config {
	return aiclient.Config{
		APIKey:            cfg.AI.APIKey,
		APIURL:            cfg.AI.APIURL,
		Model:             cfg.AI.Model,
		Timeout:           cfg.AI.Timeout.Duration,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
		SiteURL:           cfg.AI.SiteURL,
		AppName:           cfg.AI.AppName,
	}
}

func main() {
	_ = godotenv.Load()

	// Persisted runtime settings override the environment at boot.
	settingsPath := config.RuntimeSettingsFilePath()
	var opts []config.Option
	if settings, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(settings))
	} else if !os.IsNotExist(err) {
		log.Warn("Ignoring unreadable settings file %s: %v", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	metrics, promHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		log.Fatal("Failed to initialize metrics: %v", err)
	}

	client, err := aiclient.NewClient(clientConfig(cfg))
	if err != nil {
		log.Fatal("Failed to build translation client: %v", err)
	}
	translator := &translatorHandle{client: client}

	processor := jobs.NewProcessor(translator, store.Jobs(), store.Documents(), jobs.ProcessorConfig{
		DefaultSourceLanguage: cfg.Translate.SourceLanguage,
		PublishStatus:         cfg.Translate.PublishStatus,
	})

	var queue *jobs.Queue
	queue = jobs.NewQueue(
		jobs.Config{
			MaxCharsPerRequest: cfg.Queue.MaxCharsPerRequest,
			MaxConcurrentJobs:  cfg.Queue.MaxConcurrentJobs,
			RetryCap:           cfg.Queue.RetryCap,
			StuckThreshold:     cfg.Queue.StuckThreshold.Duration,
			Retention:          cfg.Queue.Retention.Duration,
			RescheduleDelay:    cfg.Queue.RescheduleDelay.Duration,
		},
		store.Jobs(),
		store.Documents(),
		processor,
		jobs.WithMetrics(metrics),
		jobs.WithReschedule(func(delay time.Duration) {
			time.AfterFunc(delay, func() {
				if err := queue.Tick(context.Background()); err != nil {
					log.Error("Rescheduled tick failed: %v", err)
				}
			})
		}),
	)

	// Cron-driven ticks; the expression can be replaced through the
	// settings API without a restart.
	scheduler := cron.New()
	var scheduleMu sync.Mutex
	var entryID cron.EntryID
	currentExpr := ""
	setSchedule := func(expr string) error {
		scheduleMu.Lock()
		defer scheduleMu.Unlock()
		id, err := scheduler.AddFunc(expr, func() {
			if err := queue.Tick(context.Background()); err != nil {
				log.Error("Scheduled tick failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
		if entryID != 0 {
			scheduler.Remove(entryID)
		}
		entryID = id
		currentExpr = expr
		return nil
	}
	if err := setSchedule(cfg.Translate.CronExpr); err != nil {
		log.Fatal("Failed to schedule ticks: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		log.Fatal("Failed to initialize settings store: %v", err)
	}

	applySettings := func(next config.RuntimeSettings) error {
		nextCfg := clientConfig(cfg)
		nextCfg.APIKey = next.AIAPIKey
		nextCfg.APIURL = next.AIAPIURL
		nextCfg.Model = next.AIModel
		nextClient, err := aiclient.NewClient(nextCfg)
		if err != nil {
			return err
		}
		if err := setSchedule(next.CronExpr); err != nil {
			return err
		}
		translator.swap(nextClient)
		log.Info("Applied runtime settings (model: %s, cron: %s)", next.AIModel, next.CronExpr)
		return nil
	}

	server := httpapi.NewServer(
		queue,
		store.Documents(),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(applySettings),
		httpapi.WithConnectionTester(translator),
		httpapi.WithCronExpr(func() string {
			scheduleMu.Lock()
			defer scheduleMu.Unlock()
			return currentExpr
		}),
		httpapi.WithMetrics(metrics, promHandler),
	)

	go func() {
		log.Info("Listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown error: %v", err)
	}
}
