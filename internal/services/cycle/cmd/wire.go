package main

import (
	"context"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/smartplant/plantcare/internal/services/actuator"
	"github.com/smartplant/plantcare/internal/services/advisor"
	"github.com/smartplant/plantcare/internal/services/audit"
	"github.com/smartplant/plantcare/internal/services/camera"
	"github.com/smartplant/plantcare/internal/services/camera/opencv"
	"github.com/smartplant/plantcare/internal/services/cycle"
	"github.com/smartplant/plantcare/internal/services/decision"
	"github.com/smartplant/plantcare/internal/services/imagestore"
	"github.com/smartplant/plantcare/internal/services/sensors"
	"github.com/smartplant/plantcare/pkg/gpio"
	"github.com/smartplant/plantcare/pkg/rabbitmq"
)

// app holds everything one process owns. close releases it in reverse order.
type app struct {
	cfg          cycle.Config
	log          *zap.Logger
	registry     *prometheus.Registry
	metrics      *cycle.Metrics
	io           gpio.DigitalIO
	sequencer    *actuator.Sequencer
	advisor      *advisor.Advisor
	orchestrator *cycle.Orchestrator
	influx       influxdb2.Client
	mqtt         mqtt.Client
	auditPub     *rabbitmq.Publisher
}

func openGPIO(cfg cycle.Config) (gpio.DigitalIO, error) {
	if cfg.DryRun {
		return gpio.NewFake(), nil
	}
	return gpio.OpenRaspi()
}

func openImageStore(cfg cycle.ImageStoreConfig) (imagestore.Store, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "local":
		return imagestore.NewLocal(cfg.Dir, cfg.BaseURL)
	case "s3":
		return imagestore.NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown image store %q", cfg.Kind)
	}
}

// build opens the hardware and wires the cycle. mq may be nil when no broker is configured.
func build(cfg cycle.Config, log *zap.Logger, mq mqtt.Client) (*app, error) {
	a := &app{cfg: cfg, log: log, mqtt: mq}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = cycle.NewMetrics(a.registry)

	io, err := openGPIO(cfg)
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	a.io = io

	relays, err := actuator.Open(io, actuator.Pins{Fan: cfg.Pins.Fan, Pump: cfg.Pins.Pump}, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open relays: %w", err)
	}
	a.sequencer = actuator.NewSequencer(relays)

	climate, err := sensors.OpenIIO(cfg.Climate.IIORoot, cfg.Climate.Device, cfg.Pins.DHT)
	if err != nil {
		log.Warn("climate sensor not found yet, each cycle will look again", zap.Error(err))
	}
	agg, err := sensors.New(io, climate,
		sensors.Pins{Light: cfg.Pins.LDR, Soil: cfg.Pins.Soil},
		sensors.RetryPolicy{Attempts: cfg.Climate.Attempts, Delay: cfg.Climate.Delay},
		log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open sensors: %w", err)
	}

	cam := camera.New(opencv.Driver{}, cfg.Camera, log)

	gemini, err := advisor.NewGeminiClient(context.Background(), cfg.Advisor.URL, cfg.Advisor.Model, cfg.Advisor.APIKey, cfg.Advisor.Timeout)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open advisor: %w", err)
	}
	breaker := advisor.DefaultBreakerConfig()
	breaker.Failures = cfg.Advisor.BreakerFailures
	breaker.Open = cfg.Advisor.BreakerOpen
	a.advisor = advisor.New(gemini, cfg.Advisor.Timeout, breaker, log)
	if cfg.Advisor.APIKey == "" {
		log.Warn("no advisor API key; every cycle will use the neutral recommendation")
	}

	images, err := openImageStore(cfg.Images)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open image store: %w", err)
	}

	a.orchestrator = cycle.NewOrchestrator(cycle.Deps{
		Camera:    cam,
		Sensors:   agg,
		Advisor:   a.advisor,
		Engine:    decision.New(cfg.PumpDuration),
		Actuators: a.sequencer,
		Images:    images,
		Sink:      a.sinks(),
		Metrics:   a.metrics,
	}, cycle.Defaults{
		Temperature: cfg.Climate.DefaultTemperature,
		Humidity:    cfg.Climate.DefaultHumidity,
	}, log)
	return a, nil
}

func (a *app) sinks() audit.Sink {
	sinks := []audit.Named{{Name: "log", Sink: audit.NewLog(a.log)}}
	if a.cfg.Audit.CSVPath != "" {
		sinks = append(sinks, audit.Named{Name: "csv", Sink: audit.NewCSV(a.cfg.Audit.CSVPath)})
	}
	if ic := a.cfg.Audit.Influx; ic.URL != "" {
		a.influx = influxdb2.NewClient(ic.URL, ic.Token)
		sinks = append(sinks, audit.Named{Name: "influx", Sink: audit.NewInflux(a.influx, ic.Org, ic.Bucket, a.cfg.Device)})
	}
	if a.mqtt != nil && a.cfg.MQTT.AuditTopic != "" {
		a.auditPub = rabbitmq.NewPublisher(a.mqtt, a.cfg.MQTT.AuditTopic)
		sinks = append(sinks, audit.Named{Name: "mqtt", Sink: audit.NewMQTT(a.auditPub)})
	}
	return audit.NewMulti(sinks...)
}

// close leaves both relays OFF before releasing the board.
func (a *app) close() error {
	var errs []error
	if a.sequencer != nil {
		if err := a.sequencer.Off(); err != nil {
			a.log.Error("relays not confirmed OFF on exit", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.auditPub != nil {
		a.auditPub.Close()
	}
	if a.influx != nil {
		a.influx.Close()
	}
	if a.io != nil {
		if err := a.io.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gpio: %w", err))
		}
	}
	return errors.Join(errs...)
}
