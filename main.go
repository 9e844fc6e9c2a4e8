// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mstarongithub/wayembed/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	flagWidth  int
	flagHeight int
	logLevel   string
	socketDir  string
	noConsole  bool
)

var rootCmd = &cobra.Command{
	Use:   "wayembed [flags] [-- client [args...]]",
	Short: "Nested Wayland compositor rendering into an off-screen canvas",
	Long: "wayembed runs a Wayland compositor on a private socket and composites its clients\n" +
		"into one virtual screen. Arguments after -- are started as a client.\n" +
		"Unless disabled, a console on stdin drives input and inspects the screen, type help.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		setupLogging(conf.LogLevel)
		return hostMain(cmd.Context(), conf, args)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to the config file. Default is $XDG_CONFIG_HOME/"+config.RelativePath)
	flags.IntVar(&flagWidth, "width", 0, "Width of the virtual screen")
	flags.IntVar(&flagHeight, "height", 0, "Height of the virtual screen")
	flags.StringVar(&logLevel, "log-level", "", "One of trace, debug, info, warn, error")
	flags.StringVar(&socketDir, "socket-dir", "", "Directory to create the private socket directory in")
	flags.BoolVar(&noConsole, "no-console", false, "Do not read commands from stdin")
}

// loadConfig reads the config file and applies the flags that were set on
// top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("width") {
		conf.Width = flagWidth
	}
	if flags.Changed("height") {
		conf.Height = flagHeight
	}
	if flags.Changed("log-level") {
		conf.LogLevel = logLevel
	}
	if flags.Changed("socket-dir") {
		conf.SocketDir = socketDir
	}
	if noConsole && conf.StartType == config.START_REPL {
		conf.StartType = config.START_NONE
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	// The console owns stdout
	logrus.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithError(err).WithField("level", level).Warnln("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
