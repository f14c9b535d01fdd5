// Copyright (c) 2024 The caenhv developers. All rights reserved.
// Project site: https://github.com/gotmc/caenhv
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package caenhv

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Param identifies a channel parameter by its vendor name.
type Param int

// Available channel parameters.
const (
	VSet Param = iota
	VMon
	ISet
	IMon
	ImonRange
	MaxV
	RUp
	RDwn
	Trip
	PDwn
	Polarity
	ChStatus
	Pw
)

type paramKind int

const (
	kindNumeric paramKind = iota
	kindEnum
	kindBool
	kindBitfield
)

type paramDesc struct {
	name     string
	wire     string
	readOnly bool
	kind     paramKind
	format   string   // numeric params
	names    []string // enum/bool params, indexed by code
}

var paramDescs = [...]paramDesc{
	VSet:      {name: "VSet", wire: "VSET", kind: kindNumeric, format: "%.1f"},
	VMon:      {name: "VMon", wire: "VMON", readOnly: true, kind: kindNumeric, format: "%.1f"},
	ISet:      {name: "ISet", wire: "ISET", kind: kindNumeric, format: "%.2f"},
	IMon:      {name: "IMon", wire: "IMON", readOnly: true, kind: kindNumeric, format: "%.2f"},
	ImonRange: {name: "ImonRange", wire: "IMRANGE", kind: kindEnum, names: []string{"High", "Low"}},
	MaxV:      {name: "MaxV", wire: "MAXV", kind: kindNumeric, format: "%.0f"},
	RUp:       {name: "RUp", wire: "RUP", kind: kindNumeric, format: "%.0f"},
	RDwn:      {name: "RDwn", wire: "RDW", kind: kindNumeric, format: "%.0f"},
	Trip:      {name: "Trip", wire: "TRIP", kind: kindNumeric, format: "%.1f"},
	PDwn:      {name: "PDwn", wire: "PDWN", kind: kindEnum, names: []string{"Kill", "Ramp"}},
	Polarity:  {name: "Polarity", wire: "POL", readOnly: true, kind: kindEnum, names: []string{"Positive", "Negative"}},
	ChStatus:  {name: "ChStatus", wire: "STAT", readOnly: true, kind: kindBitfield},
	Pw:        {name: "Pw", wire: "STAT", kind: kindBool, names: []string{"Off", "On"}},
}

// ReadOnlyParams are the measured and status values refreshed from the
// hardware.
var ReadOnlyParams = []Param{VMon, IMon, ChStatus, Polarity}

// WritableParams are the setpoints and limits an operator edits and applies.
var WritableParams = []Param{VSet, ISet, MaxV, RUp, RDwn, Trip, PDwn, Pw}

// AllParams lists every channel parameter in declaration order.
var AllParams = []Param{VSet, VMon, ISet, IMon, ImonRange, MaxV, RUp, RDwn, Trip, PDwn, Polarity, ChStatus, Pw}

// ErrReadOnly is returned when setting a measured or status parameter.
var ErrReadOnly = errors.New("parameter is read-only")

// ErrUnknownParam is returned by LookupParam for unrecognized names.
var ErrUnknownParam = errors.New("unknown parameter")

func (p Param) valid() bool { return p >= 0 && int(p) < len(paramDescs) }

func (p Param) String() string {
	if !p.valid() {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return paramDescs[p].name
}

// Wire returns the parameter name used by the ASCII command protocol.
func (p Param) Wire() string {
	if !p.valid() {
		return ""
	}
	return paramDescs[p].wire
}

// ReadOnly reports whether p is a measured or status value.
func (p Param) ReadOnly() bool { return p.valid() && paramDescs[p].readOnly }

// Toggle reports whether p takes one of a small set of named values instead of
// a free-form number.
func (p Param) Toggle() bool {
	if !p.valid() {
		return false
	}
	k := paramDescs[p].kind
	return k == kindEnum || k == kindBool
}

// Choices returns the names of an enum or bool parameter indexed by value, or
// nil for numeric parameters.
func (p Param) Choices() []string {
	if !p.Toggle() {
		return nil
	}
	return paramDescs[p].names
}

// Format renders v the way an operator reads it.
func (p Param) Format(v float64) string {
	if !p.valid() {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	d := paramDescs[p]
	switch d.kind {
	case kindNumeric:
		return fmt.Sprintf(d.format, v)
	case kindBitfield:
		return Status(uint16(v)).String()
	default:
		i := int(math.Round(v))
		if i >= 0 && i < len(d.names) {
			return d.names[i]
		}
		return strconv.Itoa(i)
	}
}

// Parse converts operator text into a value for p. Enum and bool parameters
// accept their names, case-insensitively, or their numeric code.
func (p Param) Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !p.valid() {
		return 0, fmt.Errorf("parse %q: %w", s, ErrUnknownParam)
	}
	d := paramDescs[p]
	if d.kind == kindEnum || d.kind == kindBool {
		for i, n := range d.names {
			if strings.EqualFold(n, s) {
				return float64(i), nil
			}
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", d.name, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s value %q", d.name, s)
	}
	if d.kind == kindEnum || d.kind == kindBool {
		i := int(v)
		if float64(i) != v || i < 0 || i >= len(d.names) {
			return 0, fmt.Errorf("invalid %s value %q (want one of %s)", d.name, s, strings.Join(d.names, ", "))
		}
	}
	return v, nil
}

// LookupParam resolves a parameter by name, ignoring case. When nothing
// matches, the error names the closest known parameter.
func LookupParam(name string) (Param, error) {
	name = strings.TrimSpace(name)
	best, bestDist := Param(-1), 4
	for _, p := range AllParams {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
		d := levenshtein.ComputeDistance(strings.ToLower(p.String()), strings.ToLower(name))
		if d < bestDist {
			best, bestDist = p, d
		}
	}
	if best.valid() {
		return 0, fmt.Errorf("%w %q (did you mean %s?)", ErrUnknownParam, name, best)
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownParam, name)
}
