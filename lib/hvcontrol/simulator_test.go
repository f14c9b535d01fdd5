package hvcontrol

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/caenhv"
)

func TestSimulatorDefaults(t *testing.T) {
	s := NewSimulator(nil, 0, rand.New(rand.NewSource(1)))
	require.Equal(t, []int{1, 3}, s.DeviceNumbers())
	require.Equal(t, 4, s.ChannelsPerDevice(1))
	require.Equal(t, 4, s.ChannelsPerDevice(3))
	require.Equal(t, DefaultSimChannels, s.ChannelsPerDevice(99))
	require.NoError(t, s.Close())
}

func TestSimulatorSortsAndDedups(t *testing.T) {
	s := NewSimulator([]int{7, 2, 7}, 2, nil)
	require.Equal(t, []int{2, 7}, s.DeviceNumbers())
	require.Equal(t, 2, s.ChannelsPerDevice(7))
}

func TestSimulatorStoresWritable(t *testing.T) {
	s := NewSimulator([]int{1}, 4, rand.New(rand.NewSource(1)))

	v, err := s.GetChannelParameter(1, 2, caenhv.VSet)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)

	for _, p := range caenhv.WritableParams {
		require.NoError(t, s.SetChannelParameter(1, 2, p, 1))
		v, err := s.GetChannelParameter(1, 2, p)
		require.NoError(t, err)
		require.Equal(t, 1.0, v, p.String())
	}

	// other channels are untouched
	v, err = s.GetChannelParameter(1, 3, caenhv.VSet)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
}

func TestSimulatorReadOnly(t *testing.T) {
	s := NewSimulator([]int{1}, 4, rand.New(rand.NewSource(1)))
	for _, p := range caenhv.ReadOnlyParams {
		require.ErrorIs(t, s.SetChannelParameter(1, 0, p, 42), ErrReadOnly)
	}
	for i := 0; i < 100; i++ {
		v, err := s.GetChannelParameter(1, 0, caenhv.VMon)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 500.0)
		require.Equal(t, round2(v), v)

		v, err = s.GetChannelParameter(1, 0, caenhv.IMon)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 5.0)

		v, err = s.GetChannelParameter(1, 0, caenhv.ChStatus)
		require.NoError(t, err)
		require.Contains(t, []float64{0, float64(caenhv.StatusOn)}, v)

		v, err = s.GetChannelParameter(1, 0, caenhv.Polarity)
		require.NoError(t, err)
		require.Contains(t, []float64{0, 1}, v)
	}
}

func TestSimulatorBadAddress(t *testing.T) {
	s := NewSimulator([]int{1}, 4, nil)
	_, err := s.GetChannelParameter(2, 0, caenhv.VSet)
	require.ErrorIs(t, err, ErrUnknownDevice)
	_, err = s.GetChannelParameter(1, 4, caenhv.VSet)
	require.Error(t, err)
	require.ErrorIs(t, s.SetChannelParameter(5, 0, caenhv.VSet, 1), ErrUnknownDevice)
}
