package console

import (
	"context"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/multierr"

	"github.com/gotmc/caenhv"
	"github.com/gotmc/caenhv/lib/hvcontrol"
	"github.com/gotmc/caenhv/lib/journal"
)

type cellKey struct {
	dev, ch int
	p       caenhv.Param
}

type row struct{ dev, ch int }

func (r row) label() string { return fmt.Sprintf("%d-%d", r.dev, r.ch) }

type tickMsg time.Time

// tableMsg carries a full read of every cell.
type tableMsg struct {
	rows   []row
	values map[cellKey]float64
	err    error
}

// readingsMsg carries one poll of the read-only cells.
type readingsMsg struct {
	values map[cellKey]float64
	err    error
}

type change struct {
	key      cellKey
	old, new float64
	oldKnown bool
	err      error
}

type appliedMsg struct {
	changes []change
	invalid []string
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func listRows(ctrl hvcontrol.Controller) []row {
	var rows []row
	for _, dev := range ctrl.DeviceNumbers() {
		for ch := 0; ch < ctrl.ChannelsPerDevice(dev); ch++ {
			rows = append(rows, row{dev: dev, ch: ch})
		}
	}
	return rows
}

// loadTable reads every column of every channel.
func loadTable(ctrl hvcontrol.Controller, cols []caenhv.Param) tea.Cmd {
	return func() tea.Msg {
		rows := listRows(ctrl)
		values := make(map[cellKey]float64, len(rows)*len(cols))
		var errs error
		for _, r := range rows {
			for _, p := range cols {
				v, err := ctrl.GetChannelParameter(r.dev, r.ch, p)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", r.label(), p, err))
					continue
				}
				values[cellKey{r.dev, r.ch, p}] = v
			}
		}
		return tableMsg{rows: rows, values: values, err: errs}
	}
}

// pollReadOnly reads the read-only columns of the given rows.
func pollReadOnly(ctrl hvcontrol.Controller, rows []row, cols []caenhv.Param, obs Observer) tea.Cmd {
	return func() tea.Msg {
		values := make(map[cellKey]float64, len(rows)*len(cols))
		var errs error
		for _, r := range rows {
			for _, p := range cols {
				if !p.ReadOnly() {
					continue
				}
				v, err := ctrl.GetChannelParameter(r.dev, r.ch, p)
				if err != nil {
					if obs != nil {
						obs.PollError()
					}
					errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", r.label(), p, err))
					continue
				}
				if obs != nil {
					obs.Observe(r.dev, r.ch, p, v)
				}
				values[cellKey{r.dev, r.ch, p}] = v
			}
		}
		return readingsMsg{values: values, err: errs}
	}
}

// applyChanges writes the pending changes and records each outcome.
func applyChanges(ctrl hvcontrol.Controller, pending []change, invalid []string, rec Recorder, session string, obs Observer) tea.Cmd {
	return func() tea.Msg {
		done := make([]change, 0, len(pending))
		for _, c := range pending {
			c.err = ctrl.SetChannelParameter(c.key.dev, c.key.ch, c.key.p, c.new)
			if obs != nil {
				obs.SetResult(c.key.p, c.err)
			}
			if rec != nil {
				e := journal.Entry{
					Session: session,
					Device:  c.key.dev,
					Channel: c.key.ch,
					Param:   c.key.p.String(),
					Old:     c.old,
					New:     c.new,

					OldUnknown: !c.oldKnown,
				}
				if c.err != nil {
					e.Err = c.err.Error()
				}
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := rec.Record(ctx, e); err != nil {
					log.Printf("journal: %s", err)
				}
				cancel()
			}
			done = append(done, c)
		}
		return appliedMsg{changes: done, invalid: invalid}
	}
}
