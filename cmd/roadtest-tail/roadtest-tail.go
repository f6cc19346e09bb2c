// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// A utility to pretty-print the operations log of a harness session.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/warthog618/config"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/keys"
	"github.com/warthog618/config/pflag"

	"github.com/roadtest/go-roadtest/control"
)

var version = "undefined"

func main() {
	cfg, flags := loadConfig()
	workDir := flags.Args()[0]
	r := control.NewOpsReader(workDir)

	follow := cfg.MustGet("follow").Bool()
	interval := cfg.MustGet("interval").Duration()
	for {
		calls, err := r.ReadNext()
		if err != nil {
			die(err.Error())
		}
		for _, c := range calls {
			fmt.Println(c)
		}
		if !follow {
			return
		}
		time.Sleep(interval)
	}
}

func loadConfig() (*config.Config, *pflag.Getter) {
	ff := []pflag.Flag{
		{Short: 'h', Name: "help", Options: pflag.IsBool},
		{Short: 'v', Name: "version", Options: pflag.IsBool},
		{Short: 'f', Name: "follow", Options: pflag.IsBool},
		{Short: 'i', Name: "interval"},
	}
	defaults := dict.New(dict.WithMap(
		map[string]interface{}{
			"help":     false,
			"version":  false,
			"follow":   false,
			"interval": "100ms",
		}))
	flags := pflag.New(pflag.WithFlags(ff),
		pflag.WithKeyReplacer(keys.NullReplacer()),
	)
	cfg := config.New(flags, config.WithDefault(defaults))
	if cfg.MustGet("help").Bool() {
		printHelp()
		os.Exit(0)
	}
	if cfg.MustGet("version").Bool() {
		printVersion()
		os.Exit(0)
	}
	if flags.NArg() == 0 {
		die("work directory must be specified")
	}
	return cfg, flags
}

func die(reason string) {
	fmt.Fprintln(os.Stderr, "roadtest-tail: "+reason)
	os.Exit(1)
}

func printHelp() {
	fmt.Printf("Usage: %s [OPTIONS] <work-dir>\n", os.Args[0])
	fmt.Println("Pretty-print the operations log of a harness session.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h, --help:\t\tdisplay this message and exit")
	fmt.Println("  -v, --version:\tdisplay the version and exit")
	fmt.Println("  -f, --follow:\t\tkeep polling for new operations")
	fmt.Println("  -i, --interval=DURATION:\tpoll interval when following")
}

func printVersion() {
	fmt.Printf("%s (roadtest) %s\n", os.Args[0], version)
}
