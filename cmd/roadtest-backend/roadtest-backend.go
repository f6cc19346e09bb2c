// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// The driver-side half of the harness: polls the control channel and
// applies commands to the emulated hardware.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	roadtest "github.com/roadtest/go-roadtest"
	"github.com/roadtest/go-roadtest/backend"
	"github.com/roadtest/go-roadtest/control"
	"github.com/roadtest/go-roadtest/irqmock"
	"github.com/roadtest/go-roadtest/record"
	"github.com/roadtest/go-roadtest/sysfs"
)

var rootCmd = &cobra.Command{
	Use:   "roadtest-backend",
	Short: "roadtest-backend emulates hardware for driver tests",
	Long: "roadtest-backend runs the driver-side half of the test harness: " +
		"it polls the control channel in the work directory, applies commands " +
		"to the emulated hardware, and reports observed operations back on " +
		"the operations log.",
	RunE: run,
}

var opts struct {
	workDir  string
	irqFile  string
	mockup   bool
	recordDB string
	interval time.Duration
	debug    bool
}

func init() {
	rootCmd.Flags().StringVarP(&opts.workDir, "work-dir", "w", "",
		"work directory shared with the test process")
	rootCmd.Flags().StringVar(&opts.irqFile, "irq-file", "",
		"deliver interrupts by writing the line number to the given file")
	rootCmd.Flags().BoolVar(&opts.mockup, "mockup", false,
		"deliver interrupts by pulsing gpio-mockup lines")
	rootCmd.Flags().StringVar(&opts.recordDB, "record", "",
		"mirror operation records into the given SQLite database")
	rootCmd.Flags().DurationVarP(&opts.interval, "interval", "i", 10*time.Millisecond,
		"control channel poll interval")
	rootCmd.Flags().BoolVar(&opts.debug, "debug", false,
		"log every applied command and model access")
}

func main() {
	// RT_WORK_DIR may come from a .env next to the runner
	godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "roadtest-backend: %s\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	backend.Debug = opts.debug

	workDir := opts.workDir
	if workDir == "" {
		workDir = os.Getenv(roadtest.EnvWorkDir)
	}
	if workDir == "" {
		return fmt.Errorf("no work directory; pass --work-dir or set %s",
			roadtest.EnvWorkDir)
	}
	cmd.SilenceUsage = true

	trigger, cleanup, err := makeTrigger()
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := backend.New(workDir, backend.WithTrigger(trigger))
	if err != nil {
		return err
	}
	defer b.Close()

	var store *record.Store
	var ops *control.OpsReader
	if opts.recordDB != "" {
		store, err = record.Open(workDir, opts.recordDB)
		if err != nil {
			return err
		}
		defer store.Close()
		ops = control.NewOpsReader(workDir)
		log.Printf("recording session %s", store.Session())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	tick := time.NewTicker(opts.interval)
	defer tick.Stop()

	log.Printf("serving %s", workDir)
	for {
		select {
		case sig := <-sigs:
			log.Printf("%s, exiting", sig)
			return nil
		case <-tick.C:
			if err := b.ProcessControl(); err != nil {
				return err
			}
			if store != nil {
				if err := mirror(ops, store); err != nil {
					return err
				}
			}
		}
	}
}

func mirror(ops *control.OpsReader, store *record.Store) error {
	calls, err := ops.ReadNext()
	if err != nil {
		return err
	}
	for _, c := range calls {
		if err := store.Record(c); err != nil {
			return err
		}
	}
	return nil
}

func makeTrigger() (backend.TriggerFunc, func(), error) {
	cleanup := func() {}
	switch {
	case opts.mockup:
		chip, err := irqmock.Setup(backend.NumLines)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { chip.Close() }
		return func(pin int) {
			if err := chip.Pulse(pin); err != nil {
				log.Printf("gpio %d: delivering irq: %s", pin, err)
			}
		}, cleanup, nil
	case opts.irqFile != "":
		path := opts.irqFile
		return func(pin int) {
			if err := sysfs.WriteInt(path, pin); err != nil {
				log.Printf("gpio %d: delivering irq: %s", pin, err)
			}
		}, cleanup, nil
	}
	return func(pin int) {
		log.Printf("gpio %d: irq fired with no delivery configured", pin)
	}, cleanup, nil
}
