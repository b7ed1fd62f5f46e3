package sensors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const DefaultIIORoot = "/sys/bus/iio/devices"

// IIOClimate reads a DHT11 through the Linux industrial I/O interface exposed by the dht11
// kernel driver (dtoverlay=dht11,gpiopin=N). Values are in milli-units.
type IIOClimate struct {
	root string
	name string
	pin  int
	dir  string
}

var _ ClimateDriver = (*IIOClimate)(nil)

// OpenIIO finds the device under root named name@pin, or failing that the first whose name
// starts with name. A pin of zero or less matches on the prefix only.
// The handle is returned even when no device is found yet; Reset looks again.
func OpenIIO(root, name string, pin int) (*IIOClimate, error) {
	if root == "" {
		root = DefaultIIORoot
	}
	if name == "" {
		name = "dht11"
	}
	d := &IIOClimate{root: root, name: name, pin: pin}
	return d, d.Reset()
}

// Reset looks the device up again; the kernel renumbers it when the driver rebinds.
func (d *IIOClimate) Reset() error {
	dirs, err := filepath.Glob(filepath.Join(d.root, "iio:device*"))
	if err != nil {
		return err
	}
	exact := ""
	if d.pin > 0 {
		exact = fmt.Sprintf("%s@%d", d.name, d.pin)
	}
	prefix := ""
	for _, dir := range dirs {
		b, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		got := strings.TrimSpace(string(b))
		if exact != "" && got == exact {
			d.dir = dir
			return nil
		}
		if prefix == "" && strings.HasPrefix(got, d.name) {
			prefix = dir
		}
	}
	d.dir = prefix
	if prefix == "" {
		return fmt.Errorf("iio: no %s device under %s", d.name, d.root)
	}
	return nil
}

func (d *IIOClimate) Read(ctx context.Context) (Climate, error) {
	if err := ctx.Err(); err != nil {
		return Climate{}, err
	}
	if d.dir == "" {
		return Climate{}, fmt.Errorf("iio: %s not present", d.name)
	}
	t, err := readMilli(filepath.Join(d.dir, "in_temp_input"))
	if err != nil {
		return Climate{}, err
	}
	h, err := readMilli(filepath.Join(d.dir, "in_humidityrelative_input"))
	if err != nil {
		return Climate{}, err
	}
	return Climate{Temperature: t, Humidity: h}, nil
}

func readMilli(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("iio: %w", err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("iio: parse %s: %w", filepath.Base(path), err)
	}
	return float64(v) / 1000, nil
}
