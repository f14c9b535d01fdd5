package caenhv_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/caenhv"
	"github.com/gotmc/caenhv/caenhvtest"
)

func newBoard(t *testing.T, serial, nch int) (*caenhv.Board, *caenhvtest.Board) {
	t.Helper()
	emu := caenhvtest.New(serial, nch)
	b, err := caenhv.NewBoard(emu)
	require.NoError(t, err)
	return b, emu
}

func TestNewBoardIdentifies(t *testing.T) {
	b, emu := newBoard(t, 1234, 4)
	require.Equal(t, "DT5533EN", b.Name())
	require.Equal(t, 4, b.Channels())
	require.Equal(t, 1234, b.Serial())
	require.Equal(t, "1.04", b.Firmware())
	require.Equal(t, []string{
		"$BD:00,CMD:MON,PAR:BDNAME",
		"$BD:00,CMD:MON,PAR:BDNCH",
		"$BD:00,CMD:MON,PAR:BDSNUM",
		"$BD:00,CMD:MON,PAR:BDFREL",
	}, emu.Requests())
}

func TestNewBoardAddress(t *testing.T) {
	_, err := caenhv.NewBoard(caenhvtest.New(1, 4), caenhv.WithBoardAddress(32))
	require.Error(t, err)

	emu := caenhvtest.New(7, 2)
	emu.Address = 5
	b, err := caenhv.NewBoard(emu, caenhv.WithBoardAddress(5))
	require.NoError(t, err)
	require.Equal(t, 5, b.Address())

	// nobody answers at the wrong address
	_, err = caenhv.NewBoard(caenhvtest.New(7, 2), caenhv.WithBoardAddress(5))
	require.Error(t, err)
}

func TestBoardGetPut(t *testing.T) {
	b, emu := newBoard(t, 1, 4)

	require.NoError(t, b.Put(2, caenhv.VSet, 150))
	require.Equal(t, "150.00", emu.Value(2, "VSET"))
	v, err := b.Get(2, caenhv.VSet)
	require.NoError(t, err)
	require.Equal(t, 150.0, v)

	v, err = b.Get(2, caenhv.VMon)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)

	require.NoError(t, b.Put(2, caenhv.Pw, 1))
	require.True(t, emu.IsOn(2))
	v, err = b.Get(2, caenhv.VMon)
	require.NoError(t, err)
	require.Equal(t, 150.0, v)
	v, err = b.Get(2, caenhv.Pw)
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
	v, err = b.Get(2, caenhv.ChStatus)
	require.NoError(t, err)
	require.Equal(t, float64(caenhv.StatusOn), v)

	require.NoError(t, b.Put(2, caenhv.Pw, 0))
	require.False(t, emu.IsOn(2))
}

func TestBoardEnums(t *testing.T) {
	b, emu := newBoard(t, 1, 2)

	v, err := b.Get(0, caenhv.PDwn)
	require.NoError(t, err)
	require.Equal(t, "Ramp", caenhv.PDwn.Format(v))

	require.NoError(t, b.Put(0, caenhv.PDwn, 0))
	require.Equal(t, "KILL", emu.Value(0, "PDWN"))

	require.NoError(t, b.Put(1, caenhv.ImonRange, 1))
	require.Equal(t, "LOW", emu.Value(1, "IMRANGE"))

	v, err = b.Get(1, caenhv.Polarity)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)

	require.Error(t, b.Put(0, caenhv.PDwn, 3))
}

func TestBoardErrors(t *testing.T) {
	b, emu := newBoard(t, 1, 2)

	_, err := b.Get(2, caenhv.VSet)
	require.Error(t, err)

	require.ErrorIs(t, b.Put(0, caenhv.VMon, 1), caenhv.ErrReadOnly)
	require.ErrorIs(t, b.Put(0, caenhv.VSet, 99999), caenhv.ErrValue)

	_, err = b.Monitor(0, "NOPE")
	require.ErrorIs(t, err, caenhv.ErrParameter)

	emu.Local = true
	err = b.Put(0, caenhv.VSet, 10)
	require.ErrorIs(t, err, caenhv.ErrLocal)
	require.Contains(t, err.Error(), "$BD:00,CMD:SET,CH:0,PAR:VSET,VAL:10.00")

	mode, err := b.ControlMode()
	require.NoError(t, err)
	require.Equal(t, "LOCAL", mode)
}

func TestBoardRawAndClear(t *testing.T) {
	b, _ := newBoard(t, 42, 4)

	reply, err := b.Raw("$BD:00,CMD:MON,PAR:BDSNUM")
	require.NoError(t, err)
	require.Equal(t, "#BD:00,CMD:OK,VAL:42", reply)

	require.NoError(t, b.ClearAlarm())

	s, err := b.Query("bdnch")
	require.NoError(t, err)
	require.Equal(t, "4", s)
}

var errStalled = errors.New("read timeout")

// stallingLink loses the next reply's timing once: the read fails while the
// reply stays queued in the board.
type stallingLink struct {
	*caenhvtest.Board
	stall bool
}

func (l *stallingLink) Read(p []byte) (int, error) {
	if l.stall {
		l.stall = false
		return 0, errStalled
	}
	return l.Board.Read(p)
}

func TestBoardRecoversAfterReadTimeout(t *testing.T) {
	emu := caenhvtest.New(1, 2)
	link := &stallingLink{Board: emu}
	b, err := caenhv.NewBoard(link)
	require.NoError(t, err)

	require.NoError(t, b.Put(0, caenhv.VSet, 150))
	require.NoError(t, b.Put(1, caenhv.VSet, 42))

	link.stall = true
	_, err = b.Get(0, caenhv.VSet)
	require.ErrorIs(t, err, errStalled)

	v, err := b.Get(1, caenhv.VSet)
	require.NoError(t, err)
	require.Equal(t, 42.0, v)

	reply, err := b.Raw("$BD:00,CMD:MON,PAR:BDNAME")
	require.NoError(t, err)
	require.Equal(t, "#BD:00,CMD:OK,VAL:DT5533EN", reply)
}

func TestBoardQueryErrorCarriesRequest(t *testing.T) {
	b, _ := newBoard(t, 1, 2)

	line := "$BD:00,CMD:MON,CH:0,PAR:NOPE"
	_, err := b.Query(line)
	require.ErrorIs(t, err, caenhv.ErrParameter)
	var pe *caenhv.ProtocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, line, pe.Request)
}
