// Package camera acquires one live frame per cycle from the first usable capture device.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smartplant/plantcare/internal/model/entities"
	"github.com/smartplant/plantcare/pkg/retry"
	"go.uber.org/zap"
)

var (
	ErrNoDeviceFound  = errors.New("camera: no usable capture device")
	ErrCaptureTimeout = errors.New("camera: no live frame before deadline")
)

var (
	errEmptyFrame = errors.New("camera: empty frame")
	errBlackFrame = errors.New("camera: black frame")
)

// Frame is one decoded capture. It must be closed by the reader.
type Frame interface {
	// Luma returns the 8-bit grayscale pixels of the frame.
	Luma() []byte
	// JPEG encodes the frame as it was captured.
	JPEG() ([]byte, error)
	Close() error
}

// Device is an opened capture device.
type Device interface {
	SetFormat(fourcc string, width, height int) error
	Read() (Frame, error)
	Close() error
}

// Driver enumerates and opens capture devices by index.
type Driver interface {
	// Candidates lists the indices of attached devices. An empty list selects the fallback range.
	Candidates() []int
	Open(index int) (Device, error)
}

type Config struct {
	MaxDeviceIndex int           `yaml:"max_device_index"`
	MaxWait        time.Duration `yaml:"max_wait"`
	WarmUp         time.Duration `yaml:"warm_up"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	FourCC         string        `yaml:"fourcc"`
	MeanThreshold  float64       `yaml:"mean_threshold"`
	StdThreshold   float64       `yaml:"std_threshold"`
	ImagePath      string        `yaml:"image_path"`
}

func DefaultConfig() Config {
	return Config{
		MaxDeviceIndex: 5,
		MaxWait:        10 * time.Second,
		WarmUp:         2 * time.Second,
		PollInterval:   50 * time.Millisecond,
		Width:          640,
		Height:         480,
		FourCC:         "MJPG",
		MeanThreshold:  10,
		StdThreshold:   5,
		ImagePath:      "plant.jpg",
	}
}

// Camera owns the driver and remembers the last working device index.
type Camera struct {
	driver Driver
	cfg    Config
	log    *zap.Logger

	lastIndex int
}

func New(driver Driver, cfg Config, log *zap.Logger) *Camera {
	if log == nil {
		log = zap.NewNop()
	}
	return &Camera{driver: driver, cfg: cfg, log: log.Named("camera"), lastIndex: -1}
}

// Acquire finds a device, warms it up and polls for the first live frame.
// The frame is written to the configured image path. The device is closed on every path.
func (c *Camera) Acquire(ctx context.Context) (entities.CaptureResult, error) {
	idx, err := c.findDevice()
	if err != nil {
		return entities.CaptureResult{}, err
	}

	dev, err := c.driver.Open(idx)
	if err != nil {
		c.lastIndex = -1
		return entities.CaptureResult{}, fmt.Errorf("%w: reopen index %d: %v", ErrNoDeviceFound, idx, err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			c.log.Warn("release device", zap.Int("index", idx), zap.Error(cerr))
		}
	}()

	if err := dev.SetFormat(c.cfg.FourCC, c.cfg.Width, c.cfg.Height); err != nil {
		c.log.Warn("set capture format", zap.Int("index", idx), zap.Error(err))
	}

	start := time.Now()
	if err := sleep(ctx, c.cfg.WarmUp); err != nil {
		return entities.CaptureResult{}, err
	}

	remaining := c.cfg.MaxWait - time.Since(start)
	if remaining <= 0 {
		return entities.CaptureResult{}, ErrCaptureTimeout
	}

	var jpeg []byte
	rejected := 0
	err = retry.Until(ctx, remaining, c.cfg.PollInterval, func(int) error {
		data, err := c.sample(dev)
		if err != nil {
			rejected++
			return err
		}
		jpeg = data
		return nil
	})
	if errors.Is(err, retry.ErrDeadline) {
		c.log.Error("no live frame", zap.Int("index", idx), zap.Int("rejected", rejected), zap.Duration("waited", c.cfg.MaxWait))
		return entities.CaptureResult{}, ErrCaptureTimeout
	}
	if err != nil {
		return entities.CaptureResult{}, err
	}

	if err := writeFile(c.cfg.ImagePath, jpeg); err != nil {
		return entities.CaptureResult{}, fmt.Errorf("camera: persist frame: %w", err)
	}
	c.log.Info("frame captured", zap.Int("index", idx), zap.Int("rejected", rejected), zap.String("path", c.cfg.ImagePath))

	return entities.CaptureResult{Success: true, Device: idx, Path: c.cfg.ImagePath, JPEG: jpeg}, nil
}

// sample reads one frame and returns its JPEG encoding if it is live.
func (c *Camera) sample(dev Device) ([]byte, error) {
	f, err := dev.Read()
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errEmptyFrame
	}
	defer f.Close()

	if IsBlackFrame(f.Luma(), c.cfg.MeanThreshold, c.cfg.StdThreshold) {
		return nil, errBlackFrame
	}
	return f.JPEG()
}

// findDevice probes the candidates in order and returns the first index that yields a frame.
// The previously working index is tried first.
func (c *Camera) findDevice() (int, error) {
	candidates := c.driver.Candidates()
	if len(candidates) == 0 {
		candidates = make([]int, 0, c.cfg.MaxDeviceIndex+1)
		for i := 0; i <= c.cfg.MaxDeviceIndex; i++ {
			candidates = append(candidates, i)
		}
	}
	candidates = preferIndex(candidates, c.lastIndex)
	c.log.Debug("scanning devices", zap.Ints("candidates", candidates))

	for _, idx := range candidates {
		if c.probe(idx) {
			c.lastIndex = idx
			return idx, nil
		}
	}
	c.lastIndex = -1
	c.log.Error("no working camera found", zap.Ints("candidates", candidates))
	return -1, ErrNoDeviceFound
}

func (c *Camera) probe(idx int) bool {
	dev, err := c.driver.Open(idx)
	if err != nil {
		return false
	}
	defer dev.Close()

	f, err := dev.Read()
	if err != nil || f == nil {
		c.log.Warn("device opened but gave no frame", zap.Int("index", idx), zap.Error(err))
		return false
	}
	f.Close()
	return true
}

func preferIndex(candidates []int, idx int) []int {
	if idx < 0 {
		return candidates
	}
	out := make([]int, 0, len(candidates))
	found := false
	for _, c := range candidates {
		if c == idx {
			found = true
			continue
		}
		out = append(out, c)
	}
	if !found {
		return candidates
	}
	return append([]int{idx}, out...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// writeFile replaces path atomically so readers never see a partial image.
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
