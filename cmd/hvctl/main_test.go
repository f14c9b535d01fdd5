package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/caenhv"
	"github.com/gotmc/caenhv/lib/config"
	"github.com/gotmc/caenhv/lib/connutil"
	"github.com/gotmc/caenhv/lib/hvcontrol"
	"github.com/gotmc/caenhv/lib/journal"
)

func emulatedConn(t *testing.T) *connutil.Conn {
	t.Helper()
	return &connutil.Conn{
		Emulate: true,
		Config: config.Config{
			Serial:  config.SerialConfig{Baud: 115200, ReadTimeout: time.Second},
			Device:  config.DeviceConfig{SimDevices: []int{7}, SimChannels: 2},
			Journal: config.JournalConfig{Path: filepath.Join(t.TempDir(), "journal.db")},
		},
	}
}

func TestTarget(t *testing.T) {
	dev, ch, p, err := target([]string{"7", "1", "vset"})
	require.NoError(t, err)
	require.Equal(t, 7, dev)
	require.Equal(t, 1, ch)
	require.Equal(t, caenhv.VSet, p)

	_, _, _, err = target([]string{"x", "1", "VSet"})
	require.Error(t, err)
	_, _, _, err = target([]string{"7", "1", "VSett"})
	require.ErrorIs(t, err, caenhv.ErrUnknownParam)
}

func TestRunUsage(t *testing.T) {
	conn := emulatedConn(t)
	require.ErrorIs(t, run(conn, nil), errUsage)
	require.ErrorIs(t, run(conn, []string{"get", "7"}), errUsage)
	require.ErrorIs(t, run(conn, []string{"frobnicate"}), errUsage)
}

func TestRunSetJournals(t *testing.T) {
	conn := emulatedConn(t)
	require.NoError(t, run(conn, []string{"set", "7", "1", "VSet", "250"}))
	require.NoError(t, run(conn, []string{"get", "7", "1", "VSet"}))
	require.Error(t, run(conn, []string{"set", "7", "1", "VMon", "1"}))
	require.NoError(t, run(conn, []string{"history", "5"}))

	j, err := journal.Open(conn.Config.Journal.Path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "VMon", entries[0].Param)
	require.NotEmpty(t, entries[0].Err)
	require.Equal(t, "VSet", entries[1].Param)
	require.Equal(t, 250.0, entries[1].New)
	require.Empty(t, entries[1].Err)
}

func TestRunListAndRaw(t *testing.T) {
	conn := emulatedConn(t)
	require.NoError(t, run(conn, []string{"list"}))
	require.NoError(t, run(conn, []string{"raw", "7", "$BD:00,CMD:MON,PAR:BDNAME"}))
	require.Error(t, run(conn, []string{"raw", "8", "$BD:00,CMD:MON,PAR:BDNAME"}))
}

func TestHistoryWithoutJournal(t *testing.T) {
	conn := emulatedConn(t)
	conn.Config.Journal.Path = ""
	require.Error(t, run(conn, []string{"history"}))
}

// unreadable fails every read.
type unreadable struct {
	hvcontrol.Controller
}

func (unreadable) GetChannelParameter(int, int, caenhv.Param) (float64, error) {
	return 0, errors.New("read timeout")
}

func TestSetJournalsUnknownOld(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	sim := hvcontrol.NewSimulator([]int{2}, 1, rand.New(rand.NewSource(1)))
	path := filepath.Join(t.TempDir(), "journal.db")
	require.NoError(t, set(unreadable{sim}, path, 2, 0, caenhv.VSet, 30))
	require.Contains(t, logs.String(), "reading previous VSet of 2-0")

	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].OldUnknown)
	require.Equal(t, 30.0, entries[0].New)

	var out bytes.Buffer
	require.NoError(t, history(&out, path, []string{"1"}))
	require.Contains(t, out.String(), "  2-0  VSet     ? -> 30  ok")
}
