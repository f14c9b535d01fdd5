// Copyright (c) 2024 The caenhv developers. All rights reserved.
// Project site: https://github.com/gotmc/caenhv
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package caenhv

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/gotmc/query"
)

// Board models one CAEN desktop HV power supply (DT55xxE, N1470 family)
// reached through its USB virtual COM port.
type Board struct {
	mu       sync.Mutex
	rw       io.ReadWriter
	r        *bufio.Reader
	addr     int
	debug    bool // if true, log requests and replies. Set via WithDebug().
	name     string
	channels int
	serial   int
	firmware string
}

// BoardOption applies an option to the board.
type BoardOption func(*Board)

// WithBoardAddress sets the board address used in the BD field. Desktop
// units answer at address 0; N1470 modules on a daisy chain use 0-31.
func WithBoardAddress(addr int) BoardOption { return func(b *Board) { b.addr = addr } }

// WithDebug causes requests and replies to be logged.
func WithDebug() BoardOption { return func(b *Board) { b.debug = true } }

// wire values for enumerated parameters, indexed by code
var enumWire = map[Param][]string{
	ImonRange: {"HIGH", "LOW"},
	PDwn:      {"KILL", "RAMP"},
	Polarity:  {"+", "-"},
}

// NewBoard identifies the board on the other end of rw and returns it ready
// for use. Optionally board configuration can be included using a
// BoardOption.
func NewBoard(rw io.ReadWriter, opts ...BoardOption) (*Board, error) {
	b := Board{
		rw: rw,
		r:  bufio.NewReader(rw),
	}

	// Apply options using the functional option pattern.
	for _, opt := range opts {
		opt(&b)
	}

	if !isBoardAddressValid(b.addr) {
		return nil, fmt.Errorf("invalid board address %d (must be 0-31)", b.addr)
	}

	var err error
	if b.name, err = query.String(&b, BoardName); err != nil {
		return nil, fmt.Errorf("reading board name: %w", err)
	}
	if b.channels, err = query.Int(&b, BoardChannels); err != nil {
		return nil, fmt.Errorf("reading channel count: %w", err)
	}
	if b.serial, err = query.Int(&b, BoardSerial); err != nil {
		return nil, fmt.Errorf("reading serial number: %w", err)
	}
	if b.firmware, err = query.String(&b, BoardFirmware); err != nil {
		return nil, fmt.Errorf("reading firmware release: %w", err)
	}
	if b.channels <= 0 {
		return nil, fmt.Errorf("board %s reports %d channels", b.name, b.channels)
	}
	return &b, nil
}

// Name returns the model name, e.g. "DT5533E".
func (b *Board) Name() string { return b.name }

// Channels returns the number of HV channels.
func (b *Board) Channels() int { return b.channels }

// Serial returns the board serial number.
func (b *Board) Serial() int { return b.serial }

// Firmware returns the firmware release string.
func (b *Board) Firmware() string { return b.firmware }

// Address returns the board address used in requests.
func (b *Board) Address() int { return b.addr }

func (b *Board) String() string {
	return fmt.Sprintf("%s #%d (%d ch, fw %s)", b.name, b.serial, b.channels, b.firmware)
}

// Raw sends a single protocol line and returns the reply line with the
// terminator removed. No interpretation of the reply is done.
func (b *Board) Raw(line string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exchange(line)
}

// exchange must be called with b.mu held.
func (b *Board) exchange(line string) (string, error) {
	cmd := strings.TrimSpace(line) + Terminator
	if b.debug {
		log.Printf("cmd %q", cmd)
	}
	if _, err := io.WriteString(b.rw, cmd); err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}
	s, err := b.r.ReadString('\n')
	if b.debug {
		log.Printf("read data: %q", s)
	}
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		// a late reply must not be taken as the answer to the next request
		b.discardInput()
		return "", fmt.Errorf("error reading reply to %q: %w", strings.TrimSpace(line), err)
	}
	return strings.TrimSpace(s), nil
}

// inputResetter is implemented by links that can drop unread input, such as
// go.bug.st/serial ports.
type inputResetter interface {
	ResetInputBuffer() error
}

func (b *Board) discardInput() {
	b.r.Reset(b.rw)
	if ir, ok := b.rw.(inputResetter); ok {
		if err := ir.ResetInputBuffer(); err != nil {
			log.Printf("error flushing input: %s", err)
		}
	}
}

// send exchanges line and returns the VAL field of the reply. It must be
// called with b.mu held.
func (b *Board) send(line string) (string, error) {
	reply, err := b.exchange(line)
	if err != nil {
		return "", err
	}
	resp, err := ParseResponse(reply)
	if err != nil {
		return "", err
	}
	if resp.Err != nil {
		if pe, ok := resp.Err.(*ProtocolError); ok {
			pe.Request = line
		}
		return "", resp.Err
	}
	return strings.TrimSpace(resp.Value), nil
}

// do sends req and returns the VAL field of the reply.
func (b *Board) do(req Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req.Board = b.addr
	return b.send(req.String())
}

// Query implements the gotmc/query Querier interface. A cmd beginning with
// '$' is sent verbatim; anything else is read as a board parameter. The VAL
// field of the reply is returned.
func (b *Board) Query(cmd string) (string, error) {
	if strings.HasPrefix(cmd, "$") {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.send(strings.TrimSpace(cmd))
	}
	return b.do(Request{Cmd: CmdMonitor, Channel: -1, Param: strings.ToUpper(strings.TrimSpace(cmd))})
}

// Monitor reads a channel parameter by its wire name and returns the raw
// value.
func (b *Board) Monitor(ch int, wire string) (string, error) {
	if err := b.checkChannel(ch); err != nil {
		return "", err
	}
	return b.do(Request{Cmd: CmdMonitor, Channel: ch, Param: wire})
}

// Set writes a channel parameter by its wire name. An empty val sends no VAL
// field, as used by ON and OFF.
func (b *Board) Set(ch int, wire, val string) error {
	if err := b.checkChannel(ch); err != nil {
		return err
	}
	_, err := b.do(Request{Cmd: CmdSet, Channel: ch, Param: wire, Value: val})
	return err
}

// Get reads a channel parameter and converts it to its numeric value.
func (b *Board) Get(ch int, p Param) (float64, error) {
	if err := b.checkChannel(ch); err != nil {
		return 0, err
	}
	switch p {
	case Pw:
		s, err := b.Status(ch)
		if err != nil {
			return 0, err
		}
		if s.On() {
			return 1, nil
		}
		return 0, nil
	case ChStatus:
		s, err := b.Status(ch)
		return float64(s), err
	}
	if names, ok := enumWire[p]; ok {
		s, err := b.Monitor(ch, p.Wire())
		if err != nil {
			return 0, err
		}
		for i, n := range names {
			if strings.EqualFold(n, s) {
				return float64(i), nil
			}
		}
		return 0, fmt.Errorf("unexpected %s value %q", p, s)
	}
	if !p.valid() {
		return 0, fmt.Errorf("get %s: %w", p, ErrUnknownParam)
	}
	req := Request{Board: b.addr, Cmd: CmdMonitor, Channel: ch, Param: p.Wire()}
	return query.Float64(b, req.String())
}

// Put writes a channel parameter.
func (b *Board) Put(ch int, p Param, v float64) error {
	if !p.valid() {
		return fmt.Errorf("set %s: %w", p, ErrUnknownParam)
	}
	if p.ReadOnly() {
		return fmt.Errorf("set %s: %w", p, ErrReadOnly)
	}
	if p == Pw {
		if v != 0 {
			return b.On(ch)
		}
		return b.Off(ch)
	}
	if names, ok := enumWire[p]; ok {
		i := int(math.Round(v))
		if i < 0 || i >= len(names) {
			return fmt.Errorf("set %s: code %v out of range", p, v)
		}
		return b.Set(ch, p.Wire(), names[i])
	}
	return b.Set(ch, p.Wire(), strconv.FormatFloat(v, 'f', 2, 64))
}

// Status reads the channel status word.
func (b *Board) Status(ch int) (Status, error) {
	s, err := b.Monitor(ch, "STAT")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unexpected status value %q: %w", s, err)
	}
	return Status(n), nil
}

// On enables the channel output.
func (b *Board) On(ch int) error { return b.Set(ch, "ON", "") }

// Off disables the channel output.
func (b *Board) Off(ch int) error { return b.Set(ch, "OFF", "") }

// ClearAlarm clears the board alarm signal.
func (b *Board) ClearAlarm() error {
	_, err := b.do(Request{Cmd: CmdSet, Channel: -1, Param: BoardClear})
	return err
}

// ControlMode returns "REMOTE" or "LOCAL". SET commands are refused in LOCAL
// mode.
func (b *Board) ControlMode() (string, error) {
	return query.String(b, BoardControl)
}

func (b *Board) checkChannel(ch int) error {
	if ch < 0 || ch >= b.channels {
		return fmt.Errorf("invalid channel %d (board %s has %d)", ch, b.name, b.channels)
	}
	return nil
}

// isBoardAddressValid checks that the board address is between 0 and 31,
// inclusive.
func isBoardAddressValid(addr int) bool {
	return addr >= 0 && addr <= 31
}
