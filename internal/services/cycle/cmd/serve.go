package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/smartplant/plantcare/internal/services/cycle"
	"github.com/smartplant/plantcare/pkg/rabbitmq"
)

// grpcService is the name cycle health is reported under.
const grpcService = "plantcare.Cycle"

var (
	runAtStart bool
	staleAfter time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cycles on a schedule and on MQTT triggers",
	RunE:  serve,
}

func init() {
	serveCmd.Flags().BoolVar(&runAtStart, "run-at-start", true, "run one cycle immediately after start-up")
	serveCmd.Flags().DurationVar(&staleAfter, "stale-after", 2*time.Hour, "report degraded when no cycle finished for this long")
}

func connectMQTT(ctx context.Context, cfg cycle.MQTTConfig, device string, log *zap.Logger) mqtt.Client {
	if cfg.Host == "" {
		log.Info("no MQTT broker configured; triggers and audit publishing disabled")
		return nil
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "plantcare-" + device
	}
	client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		ClientID: clientID,
	}, log)
	if err != nil {
		log.Warn("mqtt unavailable, continuing without it", zap.Error(err))
		return nil
	}
	return client
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("plantcare daemon starting", cfg.BannerFields()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mq := connectMQTT(ctx, cfg.MQTT, cfg.Device, log)
	if mq != nil {
		defer rabbitmq.CloseRabbitMQConn(mq, log)
	}

	a, err := build(cfg, log, mq)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	runner := cycle.NewRunner(a.orchestrator, a.metrics, log)

	// gRPC health
	hs := health.NewServer()
	hs.SetServingStatus(grpcService, healthpb.HealthCheckResponse_NOT_SERVING)
	runner.OnResult(func(res cycle.Result) {
		st := healthpb.HealthCheckResponse_SERVING
		if res.Status != cycle.StatusCompleted {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(grpcService, st)
	})
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
	}
	go func() {
		log.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server error", zap.Error(err))
		}
	}()

	// HTTP: metrics and health
	probes := map[string]cycle.Probe{
		"advisor": func() bool { return a.advisor.State() != gobreaker.StateOpen },
	}
	if mq != nil {
		probes["mqtt"] = mq.IsConnectionOpen
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", cycle.NewHealthHandler(runner, staleAfter, probes))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()

	// Triggers
	if mq != nil && cfg.MQTT.TriggerTopic != "" {
		consumer := rabbitmq.NewConsumer(mq, cfg.MQTT.TriggerTopic, runner.TriggerHandler(ctx), log)
		go func() {
			if err := consumer.ConsumeMessage(ctx); err != nil {
				log.Error("trigger consumer stopped", zap.Error(err))
			}
		}()
	}

	// Schedule
	if cfg.Schedule != "" {
		c, err := runner.Schedule(ctx, cfg.Schedule)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	if runAtStart {
		runner.Go(ctx, "startup")
	}

	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	gs.GracefulStop()
	runner.Wait()
	return nil
}
