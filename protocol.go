// Copyright (c) 2024 The caenhv developers. All rights reserved.
// Project site: https://github.com/gotmc/caenhv
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package caenhv

import (
	"errors"
	"fmt"
	"strings"
)

// Command verbs of the ASCII protocol.
const (
	CmdMonitor = "MON"
	CmdSet     = "SET"
)

// Board level parameters.
const (
	BoardName     = "BDNAME"
	BoardChannels = "BDNCH"
	BoardFirmware = "BDFREL"
	BoardSerial   = "BDSNUM"
	BoardControl  = "BDCTR"
	BoardClear    = "BDCLR"
)

// Terminator ends every request and response line.
const Terminator = "\r\n"

// Errors reported by the board in place of CMD:OK.
var (
	ErrCommand   = errors.New("wrong command format or command not recognized")
	ErrChannel   = errors.New("channel field not present or wrong channel value")
	ErrParameter = errors.New("field parameter not present or parameter not recognized")
	ErrValue     = errors.New("wrong set value (<Min or >Max)")
	ErrLocal     = errors.New("command SET with module in LOCAL mode")
)

var fieldErrors = map[string]error{
	"CMD": ErrCommand,
	"CH":  ErrChannel,
	"PAR": ErrParameter,
	"VAL": ErrValue,
	"LOC": ErrLocal,
}

// ProtocolError describes an error reply to a request.
type ProtocolError struct {
	Request string
	Field   string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s:ERR: %s", strings.TrimSpace(e.Request), e.Field, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Request is a single command addressed to a board.
type Request struct {
	Board   int
	Cmd     string
	Channel int // negative for board parameters
	Param   string
	Value   string // empty when no VAL field is sent
}

// String formats the request as a protocol line without the terminator.
func (r Request) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "$BD:%02d,CMD:%s", r.Board, r.Cmd)
	if r.Channel >= 0 {
		fmt.Fprintf(&b, ",CH:%d", r.Channel)
	}
	fmt.Fprintf(&b, ",PAR:%s", r.Param)
	if r.Value != "" {
		fmt.Fprintf(&b, ",VAL:%s", r.Value)
	}
	return b.String()
}

// Response is a parsed reply line.
type Response struct {
	Board int
	Value string
	Err   error
}

// ParseResponse parses a reply such as "#BD:00,CMD:OK,VAL:0100.0".
func ParseResponse(line string) (Response, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") {
		return Response{}, fmt.Errorf("malformed response %q: missing '#'", line)
	}
	var (
		resp  Response
		hasBD bool
		ok    bool
	)
	for _, field := range strings.Split(line[1:], ",") {
		key, val, found := strings.Cut(field, ":")
		if !found {
			return Response{}, fmt.Errorf("malformed response %q: field %q", line, field)
		}
		switch {
		case key == "BD":
			if _, err := fmt.Sscanf(val, "%d", &resp.Board); err != nil {
				return Response{}, fmt.Errorf("malformed response %q: board %q", line, val)
			}
			hasBD = true
		case val == "ERR":
			e, known := fieldErrors[key]
			if !known {
				e = fmt.Errorf("unknown error field %s", key)
			}
			resp.Err = &ProtocolError{Field: key, Err: e}
			return resp, nil
		case key == "CMD" && val == "OK":
			ok = true
		case key == "VAL":
			resp.Value = val
		}
	}
	if !ok {
		return Response{}, fmt.Errorf("malformed response %q: no CMD:OK", line)
	}
	if !hasBD {
		return Response{}, fmt.Errorf("malformed response %q: no BD field", line)
	}
	return resp, nil
}
