package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/api"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/audit"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/config"
	mydb "github.com/MentalSpaceTherapy/mentalspace-ehr/internal/db"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/events"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/logging"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/population"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/seed"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/telemetry"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/tracing"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/webhook"
)

const changeBuffer = 256

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		boot.Fatal().Err(err).Msg("logging")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, "segments", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	telemetry.Init()

	st, err := store.NewStore(ctx, cfg.StoreType, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	pop, closePop, err := population.NewSource(ctx, cfg.PopulationSource, cfg.DatabaseDSN, cfg.ClientsFile, cfg.ClientsQuery)
	if err != nil {
		return err
	}
	defer closePop()

	eval := engine.NewEvaluator(rules.ClientFields(), cfg.EvalWorkers)
	reg := segment.NewRegistry(st, pop, eval, segment.WithLogger(log))

	defs, err := seed.Load(cfg.SystemSegmentsFile)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, reg, defs, log); err != nil {
		return err
	}
	n, err := reg.RecountAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("initial recount incomplete")
	}
	log.Info().Int("segments", n).Str("store", cfg.StoreType).Str("population", cfg.PopulationSource).Msg("registry ready")

	auditWriter, closeAudit, err := newAuditWriter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	sinks := []events.Sink{audit.NewRecorder(auditWriter)}

	if len(cfg.WebhookURLs) > 0 {
		endpoints := make([]webhook.Endpoint, 0, len(cfg.WebhookURLs))
		for _, u := range cfg.WebhookURLs {
			endpoints = append(endpoints, webhook.Endpoint{URL: u, Events: cfg.WebhookEvents})
		}
		d := webhook.NewDispatcher(endpoints, webhook.Options{
			Secret:     cfg.WebhookSecret,
			MaxRetries: uint(cfg.WebhookMaxRetries),
			Logger:     log,
		})
		d.Start()
		defer d.Close()
		sinks = append(sinks, events.NewWebhookSink(d))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		sinks = append(sinks, kp)
	}
	changes, unsubscribe := reg.Subscribe(changeBuffer)
	defer unsubscribe()
	fwd := events.NewForwarder(log, 0, sinks...)
	go fwd.Run(ctx, changes)
	log.Info().Int("sinks", fwd.Sinks()).Msg("change forwarding enabled")

	srvAPI := api.NewServer(reg, api.Options{
		AdminAPIKey:    cfg.AdminAPIKey,
		RateLimitPerIP: cfg.RateLimitPerIP,
		Logger:         log,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srvAPI.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // the change stream is long-lived
		IdleTimeout:       60 * time.Second,
		// Streams end when the signal context is canceled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctxShut)
	return srv.Shutdown(ctxShut)
}

// newAuditWriter keeps the audit trail next to the segments when they live in
// Postgres, and in the log otherwise.
func newAuditWriter(ctx context.Context, cfg *config.Config, log zerolog.Logger) (audit.Writer, func(), error) {
	if cfg.StoreType != "postgres" {
		return audit.NewLogWriter(log), func() {}, nil
	}
	pool, err := mydb.NewPool(ctx, cfg.DatabaseDSN, mydb.DefaultPoolOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create audit pool: %w", err)
	}
	return audit.NewPostgresWriter(pool), pool.Close, nil
}
