package caenhv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestString(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{Request{Board: 0, Cmd: CmdMonitor, Channel: 2, Param: "VMON"}, "$BD:00,CMD:MON,CH:2,PAR:VMON"},
		{Request{Board: 3, Cmd: CmdSet, Channel: 0, Param: "VSET", Value: "100.00"}, "$BD:03,CMD:SET,CH:0,PAR:VSET,VAL:100.00"},
		{Request{Board: 0, Cmd: CmdMonitor, Channel: -1, Param: BoardName}, "$BD:00,CMD:MON,PAR:BDNAME"},
		{Request{Board: 12, Cmd: CmdSet, Channel: 1, Param: "ON"}, "$BD:12,CMD:SET,CH:1,PAR:ON"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, tc.req.String())
	}
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse("#BD:00,CMD:OK,VAL:0100.0\r\n")
	require.NoError(t, err)
	require.Equal(t, 0, resp.Board)
	require.Equal(t, "0100.0", resp.Value)
	require.NoError(t, resp.Err)

	resp, err = ParseResponse("#BD:05,CMD:OK")
	require.NoError(t, err)
	require.Equal(t, 5, resp.Board)
	require.Empty(t, resp.Value)
}

func TestParseResponseErrors(t *testing.T) {
	for field, want := range map[string]error{
		"CMD": ErrCommand,
		"CH":  ErrChannel,
		"PAR": ErrParameter,
		"VAL": ErrValue,
		"LOC": ErrLocal,
	} {
		resp, err := ParseResponse("#BD:00," + field + ":ERR")
		require.NoError(t, err, field)
		require.ErrorIs(t, resp.Err, want, field)
		var pe *ProtocolError
		require.True(t, errors.As(resp.Err, &pe))
		require.Equal(t, field, pe.Field)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"BD:00,CMD:OK",
		"#BD:00",
		"#BD:xx,CMD:OK",
		"#CMD:OK,VAL:1",
		"#BD:00,CMDOK",
	} {
		_, err := ParseResponse(line)
		require.Error(t, err, "line %q", line)
	}
}
