// Copyright (c) 2024 The caenhv developers. All rights reserved.
// Project site: https://github.com/gotmc/caenhv
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// hvconsole is the operator console for CAEN desktop HV boards: a table of
// every channel with live readbacks and editable setpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gotmc/caenhv"
	"github.com/gotmc/caenhv/lib/config"
	"github.com/gotmc/caenhv/lib/connutil"
	"github.com/gotmc/caenhv/lib/console"
	"github.com/gotmc/caenhv/lib/hvcontrol"
	"github.com/gotmc/caenhv/lib/journal"
	"github.com/gotmc/caenhv/lib/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	conn := connutil.Conn{Config: cfg}
	conn.AddFlags()
	flag.DurationVar(&conn.Config.UI.PollInterval, "poll", cfg.UI.PollInterval, "read-only refresh period")
	flag.StringVar(&conn.Config.Journal.Path, "journal", cfg.Journal.Path, "setpoint journal database (empty: disabled)")
	flag.StringVar(&conn.Config.Metrics.Listen, "metrics", cfg.Metrics.Listen, "Prometheus listen address (empty: disabled)")
	flag.StringVar(&conn.Config.Log.File, "log", cfg.Log.File, "log file while the console is running")
	flag.Parse()
	cfg = conn.Config
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	cols, ctrl, cleanup, err := prepare(&conn)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	// the terminal belongs to the table from here on
	if cfg.Log.File != "" {
		f, err := tea.LogToFile(cfg.Log.File, "hvconsole")
		if err != nil {
			cleanup()
			log.Fatalf("log file: %s", err)
		}
		defer f.Close()
	}

	opts := console.Options{Columns: cols, Interval: cfg.UI.PollInterval}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Printf("journal disabled: %s", err)
		} else {
			defer j.Close()
			opts.Journal = j
			opts.Session = journal.NewSession()
			log.Printf("journal %s, session %s", cfg.Journal.Path, opts.Session)
		}
	}
	if cfg.Metrics.Listen != "" {
		exp := metrics.New()
		srv := exp.Serve(cfg.Metrics.Listen)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		opts.Metrics = exp
	}

	p := tea.NewProgram(console.New(ctrl, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Printf("console: %s", err)
	}
}

// prepare resolves the table columns and connects to the devices. It runs
// before the log moves to a file, so its errors reach the terminal.
func prepare(conn *connutil.Conn) ([]caenhv.Param, hvcontrol.Controller, func(), error) {
	cols, err := console.ParseColumns(conn.Config.UI.Columns)
	if err != nil {
		return nil, nil, nil, err
	}
	ctrl, cleanup, err := conn.Setup()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("no CAEN devices found: %w", err)
	}
	return cols, ctrl, cleanup, nil
}
