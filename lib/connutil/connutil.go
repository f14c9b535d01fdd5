package connutil

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotmc/caenhv"
	"github.com/gotmc/caenhv/caenhvtest"
	"github.com/gotmc/caenhv/lib/config"
	"github.com/gotmc/caenhv/lib/find"
	"github.com/gotmc/caenhv/lib/hvcontrol"
)

// Conn turns configuration and command-line flags into a Controller.
type Conn struct {
	Config  config.Config
	Emulate bool // in-memory protocol emulator instead of serial ports

	ports string
}

// AddFlags is to be called before [flag.Parse]. Flag defaults come from
// c.Config, so flags override the config file and environment.
func (c *Conn) AddFlags() {
	flag.StringVar(
		&c.ports,
		"port",
		strings.Join(c.Config.Serial.Ports, ","),
		"Comma-separated serial ports of the HV boards (empty: discover)",
	)
	flag.StringVar(&c.Config.Serial.SerialNumber, "serial", c.Config.Serial.SerialNumber, "USB serial number of the one board to use (empty: all)")
	flag.StringVar(&c.Config.Serial.Discovery, "discovery", c.Config.Serial.Discovery, "port discovery: acm, sysfs or enumerate")
	flag.IntVar(&c.Config.Serial.Baud, "baud", c.Config.Serial.Baud, "serial line rate")
	flag.DurationVar(&c.Config.Serial.ReadTimeout, "timeout", c.Config.Serial.ReadTimeout, "serial read timeout")
	flag.IntVar(&c.Config.Device.BoardAddress, "bd", c.Config.Device.BoardAddress, "board address (0-31)")
	flag.BoolVar(&c.Config.Device.Debug, "debug", c.Config.Device.Debug, "log protocol traffic")
	flag.BoolVar(&c.Config.Device.Simulate, "sim", c.Config.Device.Simulate, "use simulated devices")
	flag.BoolVar(&c.Emulate, "emulate", c.Emulate, "use emulated boards speaking the serial protocol")
}

// Ports returns the serial device paths to try: the configured ones, the
// one whose USB serial number matches, or those found by discovery.
func (c *Conn) Ports() ([]string, error) {
	var ports []string
	for _, p := range strings.Split(c.ports, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ports = append(ports, p)
		}
	}
	if len(ports) == 0 {
		ports = c.Config.Serial.Ports
	}
	if len(ports) > 0 {
		return ports, nil
	}
	s := c.Config.Serial
	if s.SerialNumber != "" {
		dev, err := find.FindIn(s.SysClass, find.SerialFilter(s.SerialNumber))
		if err != nil {
			return nil, fmt.Errorf("board with serial %s: %w", s.SerialNumber, err)
		}
		return []string{filepath.Join(s.DevDir, dev)}, nil
	}
	return find.Discover(s.Discovery, s.DevDir, s.ScanMax)
}

// Setup is to be called after both [(Conn).AddFlags] and [flag.Parse] are
// called. The returned cleanup closes every device handle.
func (c *Conn) Setup() (ctrl hvcontrol.Controller, cleanup func(), err error) {
	nocleanup := func() {}

	log.SetFlags(log.Lmicroseconds)

	d := c.Config.Device
	if d.Simulate {
		log.Printf("simulating devices %v with %d channels", d.SimDevices, d.SimChannels)
		sim := hvcontrol.NewSimulator(d.SimDevices, d.SimChannels, rand.New(rand.NewSource(time.Now().UnixNano())))
		return sim, func() { sim.Close() }, nil
	}

	opts := []caenhv.BoardOption{caenhv.WithBoardAddress(d.BoardAddress)}
	if d.Debug {
		opts = append(opts, caenhv.WithDebug())
	}

	var (
		ports  []string
		opener hvcontrol.Opener
	)
	if c.Emulate {
		ports, opener = emulated(d)
	} else {
		ports, err = c.Ports()
		if err != nil {
			return nil, nocleanup, fmt.Errorf("locating serial ports: %w", err)
		}
		opener = hvcontrol.SerialOpener(c.Config.Serial.Baud, c.Config.Serial.ReadTimeout)
	}

	hw, err := hvcontrol.Open(ports, opener, opts...)
	if err != nil {
		return nil, nocleanup, err
	}
	cleanup = func() {
		if err := hw.Close(); err != nil {
			log.Printf("error closing devices: %s", err)
		}
	}
	return hw, cleanup, nil
}

// emulated returns one in-memory board per simulated serial number.
func emulated(d config.DeviceConfig) ([]string, hvcontrol.Opener) {
	boards := make(map[string]*caenhvtest.Board)
	var ports []string
	for _, sn := range d.SimDevices {
		name := fmt.Sprintf("emu%d", sn)
		b := caenhvtest.New(sn, d.SimChannels)
		b.Address = d.BoardAddress
		boards[name] = b
		ports = append(ports, name)
	}
	return ports, func(path string) (io.ReadWriteCloser, error) {
		b, ok := boards[path]
		if !ok {
			return nil, fmt.Errorf("no emulated board %s", path)
		}
		return b, nil
	}
}
