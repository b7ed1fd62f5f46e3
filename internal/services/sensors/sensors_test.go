package sensors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartplant/plantcare/internal/model/entities"
	"github.com/smartplant/plantcare/pkg/gpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var soilPins = []int{5, 6, 13, 19, 26, 21}

// fakeClimate fails the first failures reads, then returns value.
type fakeClimate struct {
	failures int
	value    Climate
	reads    int
	resets   int
}

func (f *fakeClimate) Read(context.Context) (Climate, error) {
	f.reads++
	if f.reads <= f.failures {
		return Climate{}, errors.New("checksum mismatch")
	}
	return f.value, nil
}

func (f *fakeClimate) Reset() error {
	f.resets++
	return nil
}

func newAggregator(t *testing.T, io *gpio.Fake, climate ClimateDriver) *Aggregator {
	t.Helper()
	a, err := New(io, climate, Pins{Light: 20, Soil: soilPins}, RetryPolicy{Attempts: 5, Delay: time.Millisecond}, nil)
	require.NoError(t, err)
	return a
}

func setSoil(io *gpio.Fake, dry int) {
	for i, pin := range soilPins {
		io.Set(pin, i < dry)
	}
}

func TestNewConfiguresInputs(t *testing.T) {
	io := gpio.NewFake()
	newAggregator(t, io, &fakeClimate{})
	for _, pin := range append([]int{20}, soilPins...) {
		dir, ok := io.Direction(pin)
		require.True(t, ok, "pin %d", pin)
		assert.Equal(t, gpio.In, dir)
	}

	_, err := New(io, nil, Pins{Light: 20}, DefaultRetryPolicy(), nil)
	assert.Error(t, err)
}

func TestVote(t *testing.T) {
	dry, wet := entities.SoilDry, entities.SoilWet
	tests := []struct {
		name     string
		states   []entities.SoilState
		summary  string
		majority entities.SoilState
	}{
		{"tie resolves dry", []entities.SoilState{dry, dry, dry, wet, wet, wet}, "3/6 DRY", dry},
		{"wet majority", []entities.SoilState{dry, dry, wet, wet, wet, wet}, "4/6 WET", wet},
		{"all dry", []entities.SoilState{dry, dry, dry}, "3/3 DRY", dry},
		{"single wet", []entities.SoilState{wet}, "1/1 WET", wet},
		{"no probes", nil, "0/0 DRY", dry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Vote(tt.states)
			assert.Equal(t, len(tt.states), v.Dry+v.Wet)
			assert.Equal(t, tt.summary, v.Summary())
			assert.Equal(t, tt.majority, v.Majority)
		})
	}
}

func TestVoteInvariants(t *testing.T) {
	for n := 1; n <= 8; n++ {
		for dry := 0; dry <= n; dry++ {
			states := make([]entities.SoilState, n)
			for i := range states {
				states[i] = entities.SoilWet
				if i < dry {
					states[i] = entities.SoilDry
				}
			}
			v := Vote(states)
			assert.Equal(t, n, v.Total())
			assert.Equal(t, dry >= n-dry, v.Majority == entities.SoilDry, "n=%d dry=%d", n, dry)
		}
	}
}

func TestReadSoilAndLight(t *testing.T) {
	io := gpio.NewFake()
	a := newAggregator(t, io, &fakeClimate{})

	setSoil(io, 3)
	vote, err := a.ReadSoil()
	require.NoError(t, err)
	assert.Equal(t, "3/6 DRY", vote.Summary())

	setSoil(io, 2)
	vote, err = a.ReadSoil()
	require.NoError(t, err)
	assert.Equal(t, "4/6 WET", vote.Summary())

	io.Set(20, gpio.High)
	light, err := a.ReadLight()
	require.NoError(t, err)
	assert.Equal(t, entities.LightDark, light)

	io.Set(20, gpio.Low)
	light, err = a.ReadLight()
	require.NoError(t, err)
	assert.Equal(t, entities.LightBright, light)
}

func TestReadClimateRetries(t *testing.T) {
	io := gpio.NewFake()
	climate := &fakeClimate{failures: 2, value: Climate{Temperature: 22.5, Humidity: 61}}
	a := newAggregator(t, io, climate)

	c, err := a.ReadClimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Climate{Temperature: 22.5, Humidity: 61}, c)
	assert.Equal(t, 3, climate.reads)
	assert.Equal(t, 2, climate.resets)
}

func TestReadClimateExhausted(t *testing.T) {
	io := gpio.NewFake()
	climate := &fakeClimate{failures: 100}
	a := newAggregator(t, io, climate)

	_, err := a.ReadClimate(context.Background())
	require.ErrorIs(t, err, ErrClimateUnavailable)
	assert.Equal(t, 5, climate.reads)
	assert.Equal(t, 5, climate.resets, "transport is reset after every failed attempt")
}

func TestReadClimateFailureIsNotFatal(t *testing.T) {
	io := gpio.NewFake()
	a := newAggregator(t, io, &fakeClimate{failures: 100})
	setSoil(io, 2)
	io.Set(20, gpio.Low)

	r, err := a.Read(context.Background())
	require.NoError(t, err)
	assert.False(t, r.ClimateOK())
	assert.Nil(t, r.Temperature)
	assert.Equal(t, entities.LightBright, r.Light)
	assert.Equal(t, "4/6 WET", r.SoilSummary)
	assert.Equal(t, entities.SoilWet, r.SoilMajority)
}

func TestReadPropagatesDigitalFailure(t *testing.T) {
	io := gpio.NewFake()
	a := newAggregator(t, io, &fakeClimate{value: Climate{Temperature: 20, Humidity: 40}})
	io.FailRead(13, gpio.ErrInjected)

	_, err := a.Read(context.Background())
	require.ErrorIs(t, err, gpio.ErrInjected)
}

func TestReadCancelled(t *testing.T) {
	io := gpio.NewFake()
	a, err := New(io, &fakeClimate{failures: 100}, Pins{Light: 20, Soil: soilPins},
		RetryPolicy{Attempts: 5, Delay: time.Hour}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = a.Read(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func writeIIO(t *testing.T, dir, name, temp, hum string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644))
	if temp != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "in_temp_input"), []byte(temp+"\n"), 0o644))
	}
	if hum != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "in_humidityrelative_input"), []byte(hum+"\n"), 0o644))
	}
}

func TestIIOClimate(t *testing.T) {
	root := t.TempDir()
	writeIIO(t, filepath.Join(root, "iio:device0"), "mcp3008", "", "")
	writeIIO(t, filepath.Join(root, "iio:device1"), "dht11@4", "23000", "48000")

	d, err := OpenIIO(root, "dht11", 0)
	require.NoError(t, err)

	c, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Climate{Temperature: 23, Humidity: 48}, c)

	require.NoError(t, os.Remove(filepath.Join(root, "iio:device1", "in_humidityrelative_input")))
	_, err = d.Read(context.Background())
	assert.Error(t, err)
}

func TestIIOClimateSelectsConfiguredPin(t *testing.T) {
	root := t.TempDir()
	writeIIO(t, filepath.Join(root, "iio:device0"), "dht11@17", "40000", "10000")
	writeIIO(t, filepath.Join(root, "iio:device1"), "dht11@4", "23000", "48000")

	d, err := OpenIIO(root, "dht11", 4)
	require.NoError(t, err)
	c, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Climate{Temperature: 23, Humidity: 48}, c)

	other, err := OpenIIO(root, "dht11", 22)
	require.NoError(t, err, "falls back to the first dht11")
	c, err = other.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40.0, c.Temperature)
}

func TestIIOClimateMissing(t *testing.T) {
	d, err := OpenIIO(t.TempDir(), "dht11", 4)
	assert.Error(t, err)
	require.NotNil(t, d)
	_, err = d.Read(context.Background())
	assert.Error(t, err)
}

func TestIIOClimateAppearsAfterStartup(t *testing.T) {
	root := t.TempDir()
	d, err := OpenIIO(root, "dht11", 4)
	require.Error(t, err)

	io := gpio.NewFake()
	a := newAggregator(t, io, d)
	_, err = a.ReadClimate(context.Background())
	assert.ErrorIs(t, err, ErrClimateUnavailable)

	writeIIO(t, filepath.Join(root, "iio:device3"), "dht11@4", "31000", "40000")
	c, err := a.ReadClimate(context.Background())
	require.NoError(t, err, "reset between attempts finds the device")
	assert.Equal(t, Climate{Temperature: 31, Humidity: 40}, c)
}
