package caenhv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	require.Equal(t, "Off", Status(0).String())
	require.Equal(t, "On", StatusOn.String())
	require.Equal(t, "On,RUp", (StatusOn | StatusRampUp).String())
	require.Equal(t, "Trip,Kill", (StatusTripped | StatusKilled).String())
	require.Equal(t, "Off", Status(1<<15).String())
}

func TestStatusFlags(t *testing.T) {
	s := StatusOn | StatusOverCurrent
	require.True(t, s.On())
	require.True(t, s.Has(StatusOn|StatusOverCurrent))
	require.False(t, s.Has(StatusOn|StatusRampUp))
	require.True(t, s.Alarm())
	require.False(t, (StatusOn | StatusRampDown).Alarm())
}
