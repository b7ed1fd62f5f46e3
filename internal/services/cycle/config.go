package cycle

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smartplant/plantcare/internal/services/camera"
	"github.com/smartplant/plantcare/internal/services/imagestore"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type PinsConfig struct {
	DHT  int   `yaml:"dht"`
	LDR  int   `yaml:"ldr"`
	Soil []int `yaml:"soil"`
	Fan  int   `yaml:"fan"`
	Pump int   `yaml:"pump"`
}

type ClimateConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	// IIORoot is where the dht11 kernel driver exposes the sensor.
	IIORoot string `yaml:"iio_root"`
	Device  string `yaml:"device"`
	// Fallback values used when the sensor gives up.
	DefaultTemperature float64 `yaml:"default_temperature"`
	DefaultHumidity    float64 `yaml:"default_humidity"`
}

type AdvisorConfig struct {
	URL             string        `yaml:"url"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
}

type ImageStoreConfig struct {
	// Kind is one of none, local, s3.
	Kind    string              `yaml:"kind"`
	Dir     string              `yaml:"dir"`
	BaseURL string              `yaml:"base_url"`
	S3      imagestore.S3Config `yaml:"s3"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type MQTTConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	TriggerTopic string `yaml:"trigger_topic"`
	AuditTopic   string `yaml:"audit_topic"`
}

type AuditConfig struct {
	CSVPath string       `yaml:"csv_path"`
	Influx  InfluxConfig `yaml:"influx"`
}

type LogConfig struct {
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
}

// Config is the device configuration. Precedence: defaults, YAML file, environment, flags.
type Config struct {
	Device       string           `yaml:"device"`
	Pins         PinsConfig       `yaml:"pins"`
	PumpDuration time.Duration    `yaml:"pump_duration"`
	Climate      ClimateConfig    `yaml:"climate"`
	Camera       camera.Config    `yaml:"camera"`
	Advisor      AdvisorConfig    `yaml:"advisor"`
	Images       ImageStoreConfig `yaml:"images"`
	Audit        AuditConfig      `yaml:"audit"`
	MQTT         MQTTConfig       `yaml:"mqtt"`
	Log          LogConfig        `yaml:"log"`

	// Schedule is a cron spec for the daemon; empty disables scheduled cycles.
	Schedule string `yaml:"schedule"`
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	// DryRun drives an in-memory GPIO instead of the board.
	DryRun bool `yaml:"dry_run"`
}

func DefaultConfig() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "plantcare"
	}
	return Config{
		Device: host,
		Pins: PinsConfig{
			DHT:  4,
			LDR:  20,
			Soil: []int{5, 6, 13, 19, 26, 21},
			Fan:  27,
			Pump: 17,
		},
		PumpDuration: 5 * time.Second,
		Climate: ClimateConfig{
			Attempts:           5,
			Delay:              2 * time.Second,
			Device:             "dht11",
			DefaultTemperature: 25.0,
			DefaultHumidity:    50.0,
		},
		Camera: camera.DefaultConfig(),
		Advisor: AdvisorConfig{
			Timeout:         30 * time.Second,
			BreakerFailures: 3,
			BreakerOpen:     5 * time.Minute,
		},
		Images: ImageStoreConfig{Kind: "local", Dir: "images"},
		MQTT: MQTTConfig{
			Port:         1883,
			User:         "guest",
			Password:     "guest",
			TriggerTopic: "plantcare/" + host + "/trigger",
			AuditTopic:   "plantcare/" + host + "/audit",
		},
		Log:      LogConfig{Environment: "production", Level: "info"},
		Schedule: "@every 30m",
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
	}
}

// LoadConfigFile overlays the YAML file at path on cfg. A missing path is not an error when optional.
func LoadConfigFile(cfg *Config, path string, optional bool) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// ParseDuration accepts Go durations and bare seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envInts parses a comma separated pin list.
func envInts(key string, def []int) []int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []int
	for _, p := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return def
		}
		out = append(out, i)
	}
	return out
}

// ApplyEnv overlays PLANTCARE_* environment variables on cfg.
func (c *Config) ApplyEnv() {
	c.Device = env("PLANTCARE_DEVICE", c.Device)

	c.Pins.DHT = envInt("PLANTCARE_DHT_PIN", c.Pins.DHT)
	c.Pins.LDR = envInt("PLANTCARE_LDR_PIN", c.Pins.LDR)
	c.Pins.Soil = envInts("PLANTCARE_SOIL_PINS", c.Pins.Soil)
	c.Pins.Fan = envInt("PLANTCARE_FAN_PIN", c.Pins.Fan)
	c.Pins.Pump = envInt("PLANTCARE_PUMP_PIN", c.Pins.Pump)
	c.PumpDuration = envDuration("PLANTCARE_PUMP_DURATION", c.PumpDuration)

	c.Climate.Attempts = envInt("PLANTCARE_CLIMATE_ATTEMPTS", c.Climate.Attempts)
	c.Climate.Delay = envDuration("PLANTCARE_CLIMATE_DELAY", c.Climate.Delay)
	c.Climate.IIORoot = env("PLANTCARE_IIO_ROOT", c.Climate.IIORoot)
	c.Climate.DefaultTemperature = envFloat("PLANTCARE_DEFAULT_TEMPERATURE", c.Climate.DefaultTemperature)
	c.Climate.DefaultHumidity = envFloat("PLANTCARE_DEFAULT_HUMIDITY", c.Climate.DefaultHumidity)

	c.Camera.ImagePath = env("PLANTCARE_IMAGE_PATH", c.Camera.ImagePath)
	c.Camera.MaxWait = envDuration("PLANTCARE_CAMERA_MAX_WAIT", c.Camera.MaxWait)

	c.Advisor.URL = env("GEMINI_URL", c.Advisor.URL)
	c.Advisor.Model = env("GEMINI_MODEL", c.Advisor.Model)
	c.Advisor.APIKey = env("GEMINI_API_KEY", c.Advisor.APIKey)
	c.Advisor.Timeout = envDuration("GEMINI_TIMEOUT", c.Advisor.Timeout)

	c.Images.Kind = env("IMAGE_STORE", c.Images.Kind)
	c.Images.Dir = env("IMAGE_DIR", c.Images.Dir)
	c.Images.BaseURL = env("IMAGE_BASE_URL", c.Images.BaseURL)
	c.Images.S3.Bucket = env("S3_BUCKET", c.Images.S3.Bucket)
	c.Images.S3.Prefix = env("S3_PREFIX", c.Images.S3.Prefix)
	c.Images.S3.Region = env("S3_REGION", c.Images.S3.Region)
	c.Images.S3.Endpoint = env("S3_ENDPOINT", c.Images.S3.Endpoint)
	c.Images.S3.AccessKey = env("S3_ACCESS_KEY_ID", c.Images.S3.AccessKey)
	c.Images.S3.SecretKey = env("S3_SECRET_ACCESS_KEY", c.Images.S3.SecretKey)
	c.Images.S3.PublicURL = env("S3_PUBLIC_URL", c.Images.S3.PublicURL)

	c.Audit.CSVPath = env("AUDIT_CSV_PATH", c.Audit.CSVPath)
	c.Audit.Influx.URL = env("INFLUX_URL", c.Audit.Influx.URL)
	c.Audit.Influx.Token = env("INFLUX_TOKEN", c.Audit.Influx.Token)
	c.Audit.Influx.Org = env("INFLUX_ORG", c.Audit.Influx.Org)
	c.Audit.Influx.Bucket = env("INFLUX_BUCKET", c.Audit.Influx.Bucket)

	c.MQTT.Host = env("RABBITMQ_HOST", c.MQTT.Host)
	c.MQTT.Port = envInt("RABBITMQ_PORT", c.MQTT.Port)
	c.MQTT.User = env("RABBITMQ_USER", c.MQTT.User)
	c.MQTT.Password = env("RABBITMQ_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = env("RABBITMQ_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.TriggerTopic = env("TRIGGER_TOPIC", c.MQTT.TriggerTopic)
	c.MQTT.AuditTopic = env("AUDIT_TOPIC", c.MQTT.AuditTopic)

	c.Log.Environment = env("ENVIRONMENT", c.Log.Environment)
	c.Log.Level = env("LOG_LEVEL", c.Log.Level)

	c.Schedule = env("PLANTCARE_SCHEDULE", c.Schedule)
	c.HTTPAddr = env("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = env("GRPC_ADDR", c.GRPCAddr)
	c.DryRun = envBool("PLANTCARE_DRY_RUN", c.DryRun)
}

// Validate checks the configuration before any hardware is touched.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if len(c.Pins.Soil) == 0 {
		bad("pins.soil: at least one soil pin is required")
	}
	seen := map[int]string{}
	check := func(name string, pin int) {
		if pin <= 0 {
			bad("pins.%s: must be a positive BCM number, got %d", name, pin)
			return
		}
		if other, ok := seen[pin]; ok {
			bad("pins.%s: pin %d already assigned to %s", name, pin, other)
			return
		}
		seen[pin] = name
	}
	check("dht", c.Pins.DHT)
	check("ldr", c.Pins.LDR)
	for i, p := range c.Pins.Soil {
		check(fmt.Sprintf("soil[%d]", i), p)
	}
	check("fan", c.Pins.Fan)
	check("pump", c.Pins.Pump)

	if c.PumpDuration <= 0 {
		bad("pump_duration: must be positive, got %s", c.PumpDuration)
	}
	if c.Climate.Attempts <= 0 {
		bad("climate.attempts: must be positive")
	}
	if c.Climate.Delay < 0 {
		bad("climate.delay: must not be negative")
	}
	if c.Camera.MaxDeviceIndex < 0 {
		bad("camera.max_device_index: must not be negative")
	}
	if c.Camera.MaxWait <= 0 {
		bad("camera.max_wait: must be positive")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		bad("camera: resolution must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.ImagePath == "" {
		bad("camera.image_path: must not be empty")
	}
	if c.Advisor.Timeout <= 0 {
		bad("advisor.timeout: must be positive")
	}
	switch c.Images.Kind {
	case "", "none":
	case "local":
		if c.Images.Dir == "" {
			bad("images.dir: required for the local store")
		}
	case "s3":
		if c.Images.S3.Bucket == "" {
			bad("images.s3.bucket: required for the s3 store")
		}
	default:
		bad("images.kind: unknown store %q", c.Images.Kind)
	}
	return errors.Join(errs...)
}

// BannerFields lists the settings logged at startup.
func (c *Config) BannerFields() []zap.Field {
	return []zap.Field{
		zap.String("device", c.Device),
		zap.Int("dht_pin", c.Pins.DHT),
		zap.Int("ldr_pin", c.Pins.LDR),
		zap.Ints("soil_pins", c.Pins.Soil),
		zap.Int("fan_pin", c.Pins.Fan),
		zap.Int("pump_pin", c.Pins.Pump),
		zap.Duration("pump_duration", c.PumpDuration),
		zap.Bool("dry_run", c.DryRun),
	}
}
