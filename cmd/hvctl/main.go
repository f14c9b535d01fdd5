// Copyright (c) 2024 The caenhv developers. All rights reserved.
// Project site: https://github.com/gotmc/caenhv
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// hvctl reads and writes single CAEN HV channel parameters from the shell.
//
//	hvctl [flags] list
//	hvctl [flags] get <device> <channel> <param>
//	hvctl [flags] set <device> <channel> <param> <value>
//	hvctl [flags] history [n]
//	hvctl [flags] raw <device> <line>...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gotmc/caenhv"
	"github.com/gotmc/caenhv/lib/cmdlog"
	"github.com/gotmc/caenhv/lib/config"
	"github.com/gotmc/caenhv/lib/connutil"
	"github.com/gotmc/caenhv/lib/hvcontrol"
	"github.com/gotmc/caenhv/lib/journal"
)

var errUsage = errors.New("usage: hvctl [flags] list | get DEV CH PARAM | set DEV CH PARAM VALUE | history [N] | raw DEV LINE...")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	conn := connutil.Conn{Config: cfg}
	conn.AddFlags()
	flag.StringVar(&conn.Config.Journal.Path, "journal", cfg.Journal.Path, "setpoint journal database (empty: disabled)")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), errUsage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(&conn, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(conn *connutil.Conn, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	if cmd == "history" {
		return history(os.Stdout, conn.Config.Journal.Path, args)
	}

	ctrl, cleanup, err := conn.Setup()
	if err != nil {
		return err
	}
	defer cleanup()

	switch cmd {
	case "list":
		return list(ctrl)
	case "get":
		if len(args) != 3 {
			return errUsage
		}
		dev, ch, p, err := target(args)
		if err != nil {
			return err
		}
		v, err := ctrl.GetChannelParameter(dev, ch, p)
		if err != nil {
			return err
		}
		fmt.Println(p.Format(v))
		return nil
	case "set":
		if len(args) != 4 {
			return errUsage
		}
		dev, ch, p, err := target(args)
		if err != nil {
			return err
		}
		v, err := p.Parse(args[3])
		if err != nil {
			return err
		}
		return set(ctrl, conn.Config.Journal.Path, dev, ch, p, v)
	case "raw":
		if len(args) < 2 {
			return errUsage
		}
		return raw(ctrl, args[0], args[1:])
	}
	return errUsage
}

// target parses the device, channel and parameter arguments.
func target(args []string) (dev, ch int, p caenhv.Param, err error) {
	if dev, err = strconv.Atoi(args[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("device %q: %w", args[0], err)
	}
	if ch, err = strconv.Atoi(args[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("channel %q: %w", args[1], err)
	}
	p, err = caenhv.LookupParam(args[2])
	return dev, ch, p, err
}

func list(ctrl hvcontrol.Controller) error {
	for _, dev := range ctrl.DeviceNumbers() {
		desc := fmt.Sprintf("device %d", dev)
		if hw, ok := ctrl.(*hvcontrol.Hardware); ok {
			if b, err := hw.Board(dev); err == nil {
				desc = fmt.Sprintf("%s on %s", b, hw.Path(dev))
			}
		}
		fmt.Printf("%s: %d channels\n", desc, ctrl.ChannelsPerDevice(dev))
		for ch := 0; ch < ctrl.ChannelsPerDevice(dev); ch++ {
			fmt.Printf("  %d-%d", dev, ch)
			for _, p := range []caenhv.Param{caenhv.VSet, caenhv.VMon, caenhv.IMon, caenhv.ChStatus} {
				v, err := ctrl.GetChannelParameter(dev, ch, p)
				if err != nil {
					fmt.Printf("  %s=?", p)
					continue
				}
				fmt.Printf("  %s=%s", p, p.Format(v))
			}
			fmt.Println()
		}
	}
	return nil
}

// set writes v and records the change in the journal at path, if any.
func set(ctrl hvcontrol.Controller, path string, dev, ch int, p caenhv.Param, v float64) error {
	e := journal.Entry{Device: dev, Channel: ch, Param: p.String(), New: v}
	old, err := ctrl.GetChannelParameter(dev, ch, p)
	if err != nil {
		log.Printf("reading previous %s of %d-%d: %s", p, dev, ch, err)
		e.OldUnknown = true
	}
	e.Old = old
	werr := ctrl.SetChannelParameter(dev, ch, p, v)
	if path != "" {
		if err := record(path, e, werr); err != nil {
			log.Printf("journal: %s", err)
		}
	}
	return werr
}

func record(path string, e journal.Entry, werr error) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	e.Session = journal.NewSession()
	e.At = time.Now()
	if werr != nil {
		e.Err = werr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return j.Record(ctx, e)
}

func history(w io.Writer, path string, args []string) error {
	if path == "" {
		return errors.New("no journal configured")
	}
	n := 20
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
			return errUsage
		}
	}
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	entries, err := j.Recent(context.Background(), n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		result := "ok"
		if e.Err != "" {
			result = e.Err
		}
		prev := "?"
		if !e.OldUnknown {
			prev = strconv.FormatFloat(e.Old, 'g', -1, 64)
		}
		fmt.Fprintf(w, "%s  %d-%d  %-8s %s -> %g  %s\n",
			e.At.Local().Format(time.DateTime), e.Device, e.Channel, e.Param, prev, e.New, result)
	}
	return nil
}

// raw sends protocol lines to one board and logs the replies.
func raw(ctrl hvcontrol.Controller, devArg string, lines []string) error {
	hw, ok := ctrl.(*hvcontrol.Hardware)
	if !ok {
		return errors.New("raw needs hardware or emulated boards")
	}
	dev, err := strconv.Atoi(devArg)
	if err != nil {
		return fmt.Errorf("device %q: %w", devArg, err)
	}
	b, err := hw.Board(dev)
	if err != nil {
		return err
	}
	_, bquery, _ := cmdlog.PrettyFuncs(b)
	for _, l := range lines {
		bquery(l)
	}
	return nil
}
