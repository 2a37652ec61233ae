// Command transcribed runs the audio transcription service: HTTP intake and
// polling, delayed dispatch, the external provider worker and monthly quota
// metering. State lives in Redis when configured and in process memory
// otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/skillsenselab/transcribed/config"
	"github.com/skillsenselab/transcribed/intake"
	"github.com/skillsenselab/transcribed/job"
	"github.com/skillsenselab/transcribed/logger"
	"github.com/skillsenselab/transcribed/quota"
	"github.com/skillsenselab/transcribed/ratelimit"
	"github.com/skillsenselab/transcribed/scheduler"
	"github.com/skillsenselab/transcribed/server"
	"github.com/skillsenselab/transcribed/status"
	localstorage "github.com/skillsenselab/transcribed/storage/local"
	"github.com/skillsenselab/transcribed/transcription"
	"github.com/skillsenselab/transcribed/transcription/whisper"
	"github.com/skillsenselab/transcribed/util"
	"github.com/skillsenselab/transcribed/version"
	"github.com/skillsenselab/transcribed/worker"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "transcribed: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(&cfg.Logging, cfg.Service.Name)
	log.Info("Configuration loaded", logger.Fields(
		"version", version.Get().Version,
		"environment", cfg.Service.Environment,
		"redis", cfg.Redis.Enabled,
		"provider_url", util.MaskSecret(cfg.Provider.URL, 24),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// State backends. A single Redis client backs every store when enabled.
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer redisClient.Close()
	}

	var store job.Store
	var limiter ratelimit.Limiter
	var counter quota.Counter
	if redisClient != nil {
		store = job.NewRedisStore(redisClient)
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.Intake.RateLimit, cfg.Intake.RateWindow)
		counter = quota.NewRedisCounter(redisClient)
	} else {
		store = job.NewMemoryStore()
		limiter = ratelimit.NewMemoryLimiter(cfg.Intake.RateLimit, cfg.Intake.RateWindow)
		counter = quota.NewMemoryCounter()
	}

	blobs, err := localstorage.NewStorage(cfg.Storage.BasePath)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var alerter quota.Alerter = quota.NewLogAlerter(log)
	if cfg.Quota.SMTP.Host != "" {
		alerter = quota.NewSMTPAlerter(cfg.Quota.SMTP, cfg.Quota.Operators, cfg.Quota.FallbackContact)
	}
	ledger := quota.NewLedger(counter, alerter, cfg.Quota.MonthlyMinutes, cfg.Quota.AlertPercent, log)

	var provider *whisper.Provider
	if cfg.Provider.URL != "" {
		provider = whisper.NewProvider(whisper.Config{
			URL:     cfg.Provider.URL,
			APIKey:  cfg.Provider.APIKey,
			Timeout: cfg.Provider.Timeout,
		})
	}

	processor := worker.NewProcessor(worker.Config{
		ExternalSendEnabled:   cfg.Provider.ExternalSendEnabled,
		AllowUnknownDuration:  cfg.Worker.AllowUnknownDuration,
		PlaceholderOnDisabled: cfg.Worker.PlaceholderOnDisabled,
		AutoDeleteAudio:       cfg.Worker.AutoDeleteAudio,
		CallTimeout:           cfg.Provider.Timeout,
	}, store, ledger, providerOrNil(provider), blobs, log)

	var sched scheduler.Scheduler
	if redisClient != nil {
		rs := scheduler.NewRedisScheduler(redisClient, processor.Process, log)
		rs.Start(ctx)
		defer rs.Stop()
		sched = rs
	} else {
		ts := scheduler.NewTimerScheduler(processor.Process, log)
		defer ts.Stop()
		sched = ts
	}
	processor.SetScheduler(sched)

	intakeSvc := intake.NewService(intake.Config{
		MaxUploadBytes:  util.ParseSize(cfg.Intake.MaxUploadSize, 10*1024*1024),
		MinFreeBytes:    uint64(cfg.Storage.MinFreeMB) * 1024 * 1024,
		MaxTrackedJobs:  cfg.Intake.MaxTrackedJobs,
		DefaultLanguage: cfg.Provider.DefaultLanguage,
		DispatchDelay:   cfg.Worker.DispatchDelay,
	}, store, limiter, sched, blobs, log)

	statusSvc := status.NewService(store, log)

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware(cfg.Intake.MaxUploadSize, log)

	handlers := &server.Handlers{
		ServiceName: cfg.Service.Name,
		AdminToken:  cfg.Server.AdminToken,
		Intake:      intakeSvc,
		Status:      statusSvc,
		Processor:   processor,
		Store:       store,
		Blobs:       blobs,
		Ledger:      ledger,
		Provider:    providerOrNil(provider),
		Log:         log.WithComponent("admin"),
	}
	handlers.Register(srv.GinEngine())

	if err := srv.Start(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("Shutdown signal received", logger.Fields("signal", sig.String()))

	return srv.Stop(context.Background())
}

// providerOrNil avoids storing a typed nil pointer in the Provider interface,
// which would defeat the worker's nil check.
func providerOrNil(p *whisper.Provider) transcription.Provider {
	if p == nil {
		return nil
	}
	return p
}
