// Package caenhvtest provides an in-memory CAEN desktop HV board that answers
// the ASCII command protocol, for tests and dry runs without hardware.
package caenhvtest

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Board emulates one HV board. It implements io.ReadWriter: every complete
// request line written queues its reply for reading.
type Board struct {
	Name     string
	Serial   int
	Firmware string
	Address  int
	Local    bool    // refuse SET commands as a front-panel controlled unit does
	MaxVSet  float64 // upper bound for VSET and MAXV
	MaxISet  float64 // upper bound for ISET

	mu       sync.Mutex
	in       bytes.Buffer
	out      bytes.Buffer
	channels []*channel
	requests []string
	closed   bool
}

type channel struct {
	on   bool
	vals map[string]string
}

var numericPars = map[string]bool{
	"VSET": true, "ISET": true, "MAXV": true, "RUP": true, "RDW": true, "TRIP": true,
}

var enumPars = map[string][]string{
	"PDWN":    {"KILL", "RAMP"},
	"IMRANGE": {"HIGH", "LOW"},
}

// New returns a board with n channels and the given serial number.
func New(serial, n int) *Board {
	b := &Board{
		Name:     "DT5533EN",
		Serial:   serial,
		Firmware: "1.04",
		MaxVSet:  4000,
		MaxISet:  3000,
	}
	for i := 0; i < n; i++ {
		b.channels = append(b.channels, &channel{vals: map[string]string{
			"VSET":    "0.0",
			"ISET":    "0.00",
			"MAXV":    "4000",
			"RUP":     "50",
			"RDW":     "50",
			"TRIP":    "10.0",
			"PDWN":    "RAMP",
			"IMRANGE": "HIGH",
			"POL":     "+",
		}})
	}
	return b
}

// Write queues the reply to every complete line in p.
func (b *Board) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.in.Write(p)
	for {
		line, err := b.in.ReadString('\n')
		if err != nil {
			// put back the partial line
			rest := append([]byte(line), b.in.Bytes()...)
			b.in.Reset()
			b.in.Write(rest)
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.requests = append(b.requests, line)
		if reply := b.handle(line); reply != "" {
			b.out.WriteString(reply + "\r\n")
		}
	}
	return len(p), nil
}

// Read returns queued replies, or io.EOF when there are none.
func (b *Board) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out.Len() == 0 {
		return 0, io.EOF
	}
	return b.out.Read(p)
}

// ResetInputBuffer drops replies not yet read, as a serial port flush does.
func (b *Board) ResetInputBuffer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out.Reset()
	return nil
}

// Close makes further writes fail.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Requests returns the request lines received so far.
func (b *Board) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// Value returns the stored value of a channel parameter by wire name.
func (b *Board) Value(ch int, par string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[ch].vals[par]
}

// IsOn reports whether the channel output is enabled.
func (b *Board) IsOn(ch int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[ch].on
}

func (b *Board) handle(line string) string {
	if !strings.HasPrefix(line, "$") {
		return "#CMD:ERR"
	}
	fields := map[string]string{}
	for _, f := range strings.Split(line[1:], ",") {
		k, v, _ := strings.Cut(f, ":")
		fields[k] = v
	}
	bd, err := strconv.Atoi(fields["BD"])
	if err != nil {
		return "#CMD:ERR"
	}
	if bd != b.Address {
		return ""
	}
	reply := func(s string) string { return fmt.Sprintf("#BD:%02d,%s", bd, s) }

	cmd := fields["CMD"]
	if cmd != "MON" && cmd != "SET" {
		return reply("CMD:ERR")
	}
	par, ok := fields["PAR"]
	if !ok {
		return reply("PAR:ERR")
	}

	chs, hasCh := fields["CH"]
	if !hasCh {
		return b.board(cmd, par, reply)
	}
	n, err := strconv.Atoi(chs)
	if err != nil || n < 0 || n >= len(b.channels) {
		return reply("CH:ERR")
	}
	ch := b.channels[n]

	if cmd == "MON" {
		switch par {
		case "VMON":
			if !ch.on {
				return reply("CMD:OK,VAL:0000.0")
			}
			v, _ := strconv.ParseFloat(ch.vals["VSET"], 64)
			return reply(fmt.Sprintf("CMD:OK,VAL:%06.1f", v))
		case "IMON":
			if !ch.on {
				return reply("CMD:OK,VAL:0000.00")
			}
			return reply("CMD:OK,VAL:0001.25")
		case "STAT":
			if ch.on {
				return reply("CMD:OK,VAL:00001")
			}
			return reply("CMD:OK,VAL:00000")
		}
		v, ok := ch.vals[par]
		if !ok {
			return reply("PAR:ERR")
		}
		return reply("CMD:OK,VAL:" + v)
	}

	if b.Local {
		return reply("LOC:ERR")
	}
	val, hasVal := fields["VAL"]
	switch {
	case par == "ON" || par == "OFF":
		ch.on = par == "ON"
		return reply("CMD:OK")
	case numericPars[par]:
		f, err := strconv.ParseFloat(val, 64)
		if !hasVal || err != nil || f < 0 {
			return reply("VAL:ERR")
		}
		if (par == "VSET" || par == "MAXV") && f > b.MaxVSet {
			return reply("VAL:ERR")
		}
		if par == "ISET" && f > b.MaxISet {
			return reply("VAL:ERR")
		}
		ch.vals[par] = val
		return reply("CMD:OK")
	case enumPars[par] != nil:
		for _, e := range enumPars[par] {
			if e == val {
				ch.vals[par] = val
				return reply("CMD:OK")
			}
		}
		return reply("VAL:ERR")
	}
	return reply("PAR:ERR")
}

func (b *Board) board(cmd, par string, reply func(string) string) string {
	if cmd == "SET" {
		if par == "BDCLR" {
			return reply("CMD:OK")
		}
		return reply("PAR:ERR")
	}
	switch par {
	case "BDNAME":
		return reply("CMD:OK,VAL:" + b.Name)
	case "BDNCH":
		return reply(fmt.Sprintf("CMD:OK,VAL:%d", len(b.channels)))
	case "BDSNUM":
		return reply(fmt.Sprintf("CMD:OK,VAL:%d", b.Serial))
	case "BDFREL":
		return reply("CMD:OK,VAL:" + b.Firmware)
	case "BDCTR":
		if b.Local {
			return reply("CMD:OK,VAL:LOCAL")
		}
		return reply("CMD:OK,VAL:REMOTE")
	}
	return reply("PAR:ERR")
}
