// Package console is the operator table: one row per HV channel, read-only
// cells refreshed at a fixed cadence and writable cells edited in place and
// committed with Apply or discarded with Cancel.
package console

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/multierr"

	"github.com/gotmc/caenhv"
	"github.com/gotmc/caenhv/lib/hvcontrol"
	"github.com/gotmc/caenhv/lib/journal"
)

// DefaultInterval is the read-only refresh period (10 Hz).
const DefaultInterval = 100 * time.Millisecond

// Recorder stores applied setpoints; *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Observer receives polled readings and write outcomes; *metrics.Exporter
// satisfies it.
type Observer interface {
	Observe(dev, ch int, p caenhv.Param, v float64)
	PollError()
	SetResult(p caenhv.Param, err error)
}

// Options configures a Model.
type Options struct {
	Columns  []caenhv.Param // defaults to DefaultColumns
	Interval time.Duration  // defaults to DefaultInterval
	Journal  Recorder
	Session  string
	Metrics  Observer
}

// DefaultColumns are shown after the channel label.
var DefaultColumns = []caenhv.Param{
	caenhv.VSet, caenhv.VMon, caenhv.ISet, caenhv.IMon, caenhv.Pw, caenhv.ChStatus,
	caenhv.Polarity, caenhv.MaxV, caenhv.RUp, caenhv.RDwn, caenhv.Trip, caenhv.PDwn,
}

// Model is the bubbletea model of the console.
type Model struct {
	ctrl hvcontrol.Controller
	opts Options
	cols []caenhv.Param
	rows []row

	labels   map[cellKey]string  // read-only cells
	buffers  map[cellKey]string  // writable cells as the operator left them
	previous map[cellKey]float64 // last values read from the device

	curRow, curCol int
	editing        bool
	input          textinput.Model
	polling        bool
	loaded         bool
	status         string
	statusErr      bool

	keys  keyMap
	help  help.Model
	width int
}

// New returns a console over ctrl.
func New(ctrl hvcontrol.Controller, opts Options) *Model {
	if len(opts.Columns) == 0 {
		opts.Columns = DefaultColumns
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	in := textinput.New()
	in.Prompt = ""
	in.CharLimit = 16
	in.Width = cellWidth - 1
	return &Model{
		ctrl:     ctrl,
		opts:     opts,
		cols:     opts.Columns,
		labels:   make(map[cellKey]string),
		buffers:  make(map[cellKey]string),
		previous: make(map[cellKey]float64),
		input:    in,
		keys:     defaultKeys(),
		help:     help.New(),
	}
}

// ParseColumns resolves column names into parameters.
func ParseColumns(names []string) ([]caenhv.Param, error) {
	cols := make([]caenhv.Param, 0, len(names))
	for _, n := range names {
		p, err := caenhv.LookupParam(n)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", n, err)
		}
		cols = append(cols, p)
	}
	return cols, nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(loadTable(m.ctrl, m.cols), tick(m.opts.Interval))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		next := tick(m.opts.Interval)
		if m.polling || !m.loaded {
			return m, next
		}
		m.polling = true
		return m, tea.Batch(pollReadOnly(m.ctrl, m.rows, m.cols, m.opts.Metrics), next)

	case readingsMsg:
		m.polling = false
		for k, v := range msg.values {
			m.labels[k] = k.p.Format(v)
		}
		if msg.err != nil {
			log.Printf("poll: %s", msg.err)
		}
		return m, nil

	case tableMsg:
		m.applyTable(msg)
		return m, nil

	case appliedMsg:
		m.reportApplied(msg)
		return m, loadTable(m.ctrl, m.cols)

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Commit):
		if k, ok := m.selected(); ok {
			m.buffers[k] = strings.TrimSpace(m.input.Value())
		}
		m.stopEditing()
		return m, nil
	case key.Matches(msg, m.keys.Abort):
		m.stopEditing()
		return m, nil
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) stopEditing() {
	m.editing = false
	m.input.Blur()
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.curRow > 0 {
			m.curRow--
		}
	case key.Matches(msg, m.keys.Down):
		if m.curRow < len(m.rows)-1 {
			m.curRow++
		}
	case key.Matches(msg, m.keys.Left):
		if m.curCol > 0 {
			m.curCol--
		}
	case key.Matches(msg, m.keys.Right):
		if m.curCol < len(m.cols)-1 {
			m.curCol++
		}
	case key.Matches(msg, m.keys.Toggle):
		m.toggle()
	case key.Matches(msg, m.keys.Edit):
		k, ok := m.selected()
		if !ok || k.p.ReadOnly() {
			return m, nil
		}
		if k.p.Toggle() {
			m.toggle()
			return m, nil
		}
		m.editing = true
		m.input.SetValue(m.buffers[k])
		m.input.CursorEnd()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Apply):
		return m, m.apply()
	case key.Matches(msg, m.keys.Cancel):
		m.cancel()
	case key.Matches(msg, m.keys.Refresh):
		m.setStatus("Refreshing…", false)
		return m, loadTable(m.ctrl, m.cols)
	}
	return m, nil
}

// selected returns the cell under the cursor.
func (m *Model) selected() (cellKey, bool) {
	if m.curRow >= len(m.rows) || m.curCol >= len(m.cols) {
		return cellKey{}, false
	}
	r := m.rows[m.curRow]
	return cellKey{r.dev, r.ch, m.cols[m.curCol]}, true
}

// toggle advances a Pw or enum cell to its next value. The device is not
// touched until Apply.
func (m *Model) toggle() {
	k, ok := m.selected()
	if !ok || k.p.ReadOnly() || !k.p.Toggle() {
		return
	}
	choices := k.p.Choices()
	next := 0
	for i, c := range choices {
		if strings.EqualFold(c, m.buffers[k]) {
			next = (i + 1) % len(choices)
			break
		}
	}
	m.buffers[k] = choices[next]
}

// editText renders a value into a writable cell.
func editText(p caenhv.Param, v float64) string {
	if p.Toggle() {
		return p.Format(v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (m *Model) applyTable(msg tableMsg) {
	m.loaded = true
	m.rows = msg.rows
	if m.curRow >= len(m.rows) {
		m.curRow = max(len(m.rows)-1, 0)
	}
	m.labels = make(map[cellKey]string)
	m.buffers = make(map[cellKey]string)
	m.previous = make(map[cellKey]float64)
	for k, v := range msg.values {
		if k.p.ReadOnly() {
			m.labels[k] = k.p.Format(v)
			continue
		}
		m.previous[k] = v
		m.buffers[k] = editText(k.p, v)
	}
	if msg.err != nil {
		log.Printf("load: %s", msg.err)
		m.setStatus(fmt.Sprintf("Some values could not be read: %s", firstLine(msg.err)), true)
	}
}

// pending collects the writable cells whose buffers differ from the last
// read value. Empty buffers are skipped; unparsable ones are reported.
func (m *Model) pending() ([]change, []string) {
	var (
		changes []change
		invalid []string
	)
	for _, r := range m.rows {
		for _, p := range m.cols {
			if p.ReadOnly() {
				continue
			}
			k := cellKey{r.dev, r.ch, p}
			text, ok := m.buffers[k]
			if !ok || text == "" {
				continue
			}
			v, err := p.Parse(text)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("Invalid input for %s on Channel %s. Please enter a numeric value.", p, r.label()))
				continue
			}
			old, known := m.previous[k]
			if known && old == v {
				continue
			}
			changes = append(changes, change{key: k, old: old, new: v, oldKnown: known})
		}
	}
	return changes, invalid
}

func (m *Model) apply() tea.Cmd {
	changes, invalid := m.pending()
	if len(changes) == 0 {
		if len(invalid) > 0 {
			m.setStatus(strings.Join(invalid, " "), true)
		} else {
			m.setStatus("Nothing to apply.", false)
		}
		return nil
	}
	m.setStatus(fmt.Sprintf("Applying %d change(s)…", len(changes)), false)
	return applyChanges(m.ctrl, changes, invalid, m.opts.Journal, m.opts.Session, m.opts.Metrics)
}

func (m *Model) reportApplied(msg appliedMsg) {
	var (
		errs error
		ok   int
	)
	for _, c := range msg.changes {
		if c.err != nil {
			r := row{c.key.dev, c.key.ch}
			errs = multierr.Append(errs, fmt.Errorf("%s on Channel %s: %w", c.key.p, r.label(), c.err))
			continue
		}
		ok++
	}
	parts := []string{fmt.Sprintf("Applied %d of %d change(s).", ok, len(msg.changes))}
	parts = append(parts, msg.invalid...)
	for _, err := range multierr.Errors(errs) {
		parts = append(parts, err.Error()+".")
	}
	m.setStatus(strings.Join(parts, " "), errs != nil || len(msg.invalid) > 0)
}

// cancel restores every writable cell to the last value read from the
// device.
func (m *Model) cancel() {
	for k, v := range m.previous {
		m.buffers[k] = editText(k.p, v)
	}
	if m.editing {
		m.stopEditing()
	}
	m.setStatus("Changes discarded.", false)
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func firstLine(err error) string {
	errs := multierr.Errors(err)
	if len(errs) > 1 {
		return fmt.Sprintf("%s (and %d more)", errs[0], len(errs)-1)
	}
	return err.Error()
}
