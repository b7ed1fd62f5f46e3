package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderPin(t *testing.T) {
	h, err := HeaderPin(17)
	require.NoError(t, err)
	assert.Equal(t, "11", h)

	h, err = HeaderPin(21)
	require.NoError(t, err)
	assert.Equal(t, "40", h)

	_, err = HeaderPin(40)
	assert.Error(t, err)
}

func TestFake_DirectionIsEnforced(t *testing.T) {
	f := NewFake()
	_, err := f.Read(5)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	require.NoError(t, f.Configure(5, In))
	err = f.Write(5, High)
	assert.True(t, errors.Is(err, ErrWrongMode))

	f.Set(5, High)
	lvl, err := f.Read(5)
	require.NoError(t, err)
	assert.Equal(t, High, lvl)
}

func TestFake_WriteFaultKeepsPreviousLevel(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Configure(17, Out))
	require.NoError(t, f.Write(17, High))

	f.FailWrite(17, Low, ErrInjected)
	err := f.Write(17, Low)
	require.Error(t, err)

	var pe *PinError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 17, pe.Pin)
	assert.Equal(t, High, f.Level(17))
	assert.Equal(t, []Level{High}, f.Writes(17))
}

func TestFake_ClosedRejectsIO(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Configure(27, Out))
	require.NoError(t, f.Close())
	assert.True(t, errors.Is(f.Write(27, High), ErrClosed))
}
