// Copyright 2025 The GhostServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the ghostserve completion server and its
interactive driver.

ghostserve serves inline ghost-text completions from a local phrase
dictionary. It runs as a MessagePack IPC server for editors, or as an
interactive prompt for trying the completion flow by hand.

# Usage

Start the IPC server on stdin/stdout:

	ghostserve serve --dict words.txt

Type against the local dictionary, or against a spawned server process:

	ghostserve try
	ghostserve try --remote ./ghostserve

Show or reset the configuration file:

	ghostserve config path
	ghostserve config reset

# Configuration

Settings live in ghostserve/config.toml under the user config directory,
created with defaults on first run, or in the file given by --config:

	[completion]
	timeout_ms = 5000
	debounce_ms = 0

	[server]
	max_items = 8
	min_prefix = 1
	max_prefix = 60
	rate_limit = 100

	[capabilities]
	partial_accept = true
	multi_line = true
	cycle = true

Changes to the file are picked up while running.

# Dictionaries

The dictionary is found through --dict, the server.dictionary setting, or
a words.txt / words.msgpack next to the working directory, the executable
or the config directory. Text, msgpack and chunked binary files are read.
*/
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	AppName = "ghostserve"
	gh      = "https://github.com/bastiangx/ghostserve"
)

var (
	configPath string
	dictPath   string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Inline ghost-text completions from a phrase dictionary",
	Long: `ghostserve serves inline ghost-text completions.

Commands:
  serve    - run the MessagePack IPC server on stdin/stdout
  try      - type against the completion engine interactively
  config   - show or reset the configuration file
  version  - show the version`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugMode {
			log.SetLevel(log.DebugLevel)
			log.SetReportTimestamp(true)
		} else {
			log.SetLevel(log.WarnLevel)
		}
	},
}

func init() {
	log.SetOutput(os.Stderr)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	rootCmd.PersistentFlags().StringVar(&dictPath, "dict", "", "dictionary file or chunk directory")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "toggle debug logging")

	rootCmd.AddCommand(serveCmd, tryCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
