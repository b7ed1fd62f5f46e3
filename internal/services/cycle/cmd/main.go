package main

import (
	"fmt"
	"os"

	"github.com/smartplant/plantcare/internal/services/cycle"
	"github.com/smartplant/plantcare/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath   string
	dhtPin       int
	ldrPin       int
	soilPins     []int
	fanPin       int
	pumpPin      int
	pumpDuration string
	dryRun       bool
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:           "plantcare",
	Short:         "Plant care controller: camera, sensors, advisor and relays",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "plantcare.yaml", "YAML configuration file")
	pf.IntVar(&dhtPin, "dht-pin", 0, "BCM pin of the DHT11 data line")
	pf.IntVar(&ldrPin, "ldr-pin", 0, "BCM pin of the light sensor")
	pf.IntSliceVar(&soilPins, "soil-pins", nil, "BCM pins of the soil moisture probes")
	pf.IntVar(&fanPin, "fan-pin", 0, "BCM pin of the fan relay")
	pf.IntVar(&pumpPin, "pump-pin", 0, "BCM pin of the pump relay")
	pf.StringVar(&pumpDuration, "pump-duration", "", "pump pulse length, e.g. 5s")
	pf.BoolVar(&dryRun, "dry-run", false, "drive an in-memory GPIO instead of the board")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig layers defaults, the YAML file, the environment and finally explicit flags.
func loadConfig(cmd *cobra.Command) (cycle.Config, error) {
	cfg := cycle.DefaultConfig()
	optional := !cmd.Flags().Changed("config")
	if err := cycle.LoadConfigFile(&cfg, configPath, optional); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("dht-pin") {
		cfg.Pins.DHT = dhtPin
	}
	if flags.Changed("ldr-pin") {
		cfg.Pins.LDR = ldrPin
	}
	if flags.Changed("soil-pins") {
		cfg.Pins.Soil = soilPins
	}
	if flags.Changed("fan-pin") {
		cfg.Pins.Fan = fanPin
	}
	if flags.Changed("pump-pin") {
		cfg.Pins.Pump = pumpPin
	}
	if flags.Changed("pump-duration") {
		d, err := cycle.ParseDuration(pumpDuration)
		if err != nil {
			return cfg, fmt.Errorf("--pump-duration: %w", err)
		}
		cfg.PumpDuration = d
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func newLogger(cfg cycle.Config) (*zap.Logger, error) {
	log, err := logger.New(logger.Config{
		Environment: cfg.Log.Environment,
		LogLevel:    cfg.Log.Level,
		ServiceName: "plantcare",
	})
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("device", cfg.Device)), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
