package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	j, err := Open(filepath.Join(t.TempDir(), "sub", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	session := NewSession()
	require.Len(t, session, 36)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(ctx, Entry{Session: session, Device: 1, Channel: 0, Param: "VSet", Old: 0, New: 100, At: base}))
	require.NoError(t, j.Record(ctx, Entry{Session: session, Device: 1, Channel: 1, Param: "Pw", Old: 0, New: 1, At: base.Add(time.Second)}))
	require.NoError(t, j.Record(ctx, Entry{Session: session, Device: 3, Channel: 2, Param: "VSet", Old: 5, New: 9000, Err: "wrong set value", At: base.Add(2 * time.Second)}))

	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 3, got[0].Device)
	require.Equal(t, "wrong set value", got[0].Err)
	require.Equal(t, 9000.0, got[0].New)
	require.Equal(t, "Pw", got[1].Param)
	require.Equal(t, session, got[1].Session)
	require.True(t, got[1].At.Equal(base.Add(time.Second)))
}

func TestOpenTwiceKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, Entry{Session: NewSession(), Device: 1, Param: "RUp", New: 20}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 20.0, got[0].New)
	require.False(t, got[0].At.IsZero())
}

func TestRecordUnknownOld(t *testing.T) {
	ctx := context.Background()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	require.NoError(t, j.Record(ctx, Entry{Session: NewSession(), Device: 2, Param: "VSet", New: 50, OldUnknown: true}))
	require.NoError(t, j.Record(ctx, Entry{Session: NewSession(), Device: 2, Param: "VSet", Old: 50, New: 60}))

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.False(t, got[0].OldUnknown)
	require.Equal(t, 50.0, got[0].Old)
	require.True(t, got[1].OldUnknown)
}
