// Copyright (c) 2024 The caenhv developers. All rights reserved.
// Project site: https://github.com/gotmc/caenhv
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package caenhv

import "strings"

// Status is the channel status word returned for the STAT parameter.
type Status uint16

// Channel status bits.
const (
	StatusOn Status = 1 << iota
	StatusRampUp
	StatusRampDown
	StatusOverCurrent
	StatusOverVoltage
	StatusUnderVoltage
	StatusMaxV
	StatusTripped
	StatusOverPower
	StatusOverTemperature
	StatusDisabled
	StatusKilled
	StatusInterlocked
	StatusNotCalibrated
)

var statusDesc = []struct {
	bit  Status
	name string
}{
	{StatusOn, "On"},
	{StatusRampUp, "RUp"},
	{StatusRampDown, "RDwn"},
	{StatusOverCurrent, "OvC"},
	{StatusOverVoltage, "OvV"},
	{StatusUnderVoltage, "UnV"},
	{StatusMaxV, "MaxV"},
	{StatusTripped, "Trip"},
	{StatusOverPower, "OvP"},
	{StatusOverTemperature, "OvT"},
	{StatusDisabled, "Dis"},
	{StatusKilled, "Kill"},
	{StatusInterlocked, "Ilk"},
	{StatusNotCalibrated, "NoCal"},
}

// On reports whether the channel output is enabled.
func (s Status) On() bool { return s&StatusOn != 0 }

// Has reports whether every bit in flags is set.
func (s Status) Has(flags Status) bool { return s&flags == flags }

// Alarm reports whether any fault bit is set.
func (s Status) Alarm() bool {
	const faults = StatusOverCurrent | StatusOverVoltage | StatusUnderVoltage |
		StatusMaxV | StatusTripped | StatusOverPower | StatusOverTemperature |
		StatusKilled | StatusInterlocked
	return s&faults != 0
}

// String lists the set flags, or "Off" when none are set.
func (s Status) String() string {
	if s == 0 {
		return "Off"
	}
	var names []string
	for _, d := range statusDesc {
		if s&d.bit != 0 {
			names = append(names, d.name)
		}
	}
	if len(names) == 0 {
		return "Off"
	}
	return strings.Join(names, ",")
}
