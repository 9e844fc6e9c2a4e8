package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mstarongithub/wayembed/compositor"
	"github.com/mstarongithub/wayembed/config"
	"github.com/mstarongithub/wayembed/mainloop"
	"github.com/mstarongithub/wayembed/pixel"
	"github.com/mstarongithub/wayembed/util/wrappers"
	"github.com/mstarongithub/wayembed/wlserver"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// bridgeServerLog forwards protocol server messages into logrus at the
// current log level.
func bridgeServerLog() {
	verbosity := wlserver.LogImportanceError
	switch {
	case logrus.IsLevelEnabled(logrus.DebugLevel):
		verbosity = wlserver.LogImportanceDebug
	case logrus.IsLevelEnabled(logrus.InfoLevel):
		verbosity = wlserver.LogImportanceInfo
	}
	wlserver.OnLog(verbosity, func(importance wlserver.LogImportance, msg string) {
		switch importance {
		case wlserver.LogImportanceDebug:
			logrus.Debugln(msg)
		case wlserver.LogImportanceInfo:
			logrus.Infoln(msg)
		case wlserver.LogImportanceError:
			logrus.Errorln(msg)
		case wlserver.LogImportanceSilent:
			return
		}
	})
}

func optionsFromConfig(conf *config.Config) (compositor.Options, error) {
	opts := compositor.DefaultOptions()
	opts.Width, opts.Height = conf.Width, conf.Height
	bg, err := config.ParseColor(conf.Background)
	if err != nil {
		return opts, err
	}
	opts.Background = bg
	opts.SocketDir = conf.SocketDir
	opts.IdentityPrefix = conf.IdentityPrefix
	opts.ContextMenuButton = conf.ContextMenuButton
	mode, ok := compositor.ParseModifierMode(conf.ModifierMode)
	if !ok {
		return opts, fmt.Errorf("unknown modifier mode %q", conf.ModifierMode)
	}
	opts.ModifierMode = mode
	opts.KeyboardLayout = conf.KeyboardLayout
	format, err := pixel.ParseFormat(conf.RenderFormat)
	if err != nil {
		return opts, err
	}
	opts.RenderFormat = format
	opts.RefreshMHz = conf.RefreshHz * 1000
	return opts, nil
}

func hostMain(ctx context.Context, conf *config.Config, clientArgs []string) error {
	bridgeServerLog()

	opts, err := optionsFromConfig(conf)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loop, err := mainloop.New()
	if err != nil {
		return fmt.Errorf("creating main loop: %w", err)
	}
	defer loop.Close()

	comp, err := compositor.New(opts)
	if err != nil {
		return fmt.Errorf("initializing compositor: %w", err)
	}
	defer comp.Close()

	host := newHeadlessHost(loop, comp, conf.RefreshHz, conf.SnapshotDir)
	comp.SetHost(host)
	comp.OnContextMenu(func(x, y int) {
		logrus.WithFields(logrus.Fields{"x": x, "y": y}).Infoln("Context menu requested")
	})
	loop.AddSource(comp.Source())

	if len(clientArgs) > 0 {
		if _, err := spawnClient(comp, clientArgs, os.Stderr); err != nil {
			logrus.WithError(err).Errorln("Failed to start client")
		}
	}

	switch conf.StartType {
	case config.START_SINGLE_COMMAND:
		if _, err := spawnClient(comp, strings.Fields(*conf.StartCommand), os.Stderr); err != nil {
			logrus.WithError(err).Errorln("Failed to start command")
		}
	case config.START_REPL:
		// The wrappers keep the repl from closing stdin and stdout on exit
		con := newConsole(loop, comp, host)
		go con.run(wrappers.NewReaderWrapper(os.Stdin), wrappers.NewWriterWrapper(os.Stdout))
	}

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logrus.Infoln("Interrupted, shutting down")
		err = nil
	}
	return err
}

// clientEnv points WAYLAND_DISPLAY at the socket. Absolute paths are
// accepted by libwayland, so XDG_RUNTIME_DIR is only set when missing.
func clientEnv(env []string, socketPath string) []string {
	hasRuntimeDir := false
	env = sliceutils.Filter(env, func(kv string) bool {
		if strings.HasPrefix(kv, "XDG_RUNTIME_DIR=") {
			hasRuntimeDir = true
		}
		return !strings.HasPrefix(kv, "WAYLAND_DISPLAY=") &&
			!strings.HasPrefix(kv, "WAYLAND_SOCKET=")
	})
	env = append(env, "WAYLAND_DISPLAY="+socketPath)
	if !hasRuntimeDir {
		env = append(env, "XDG_RUNTIME_DIR="+filepath.Dir(socketPath))
	}
	return env
}

// spawnClient starts args as a client of comp. It does not wait for the
// process, its exit is logged.
func spawnClient(comp *compositor.Compositor, args []string, out io.Writer) (*exec.Cmd, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, errors.New("no command given")
	}
	if comp.SocketPath() == "" {
		return nil, errors.New("compositor has no socket for clients to connect to")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = clientEnv(os.Environ(), comp.SocketPath())
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", args[0], err)
	}
	cmdString := strings.Join(args, " ")
	logrus.WithFields(logrus.Fields{"command": cmdString, "pid": cmd.Process.Pid}).Infoln("Started client")
	go func() {
		err := cmd.Wait()
		var exiterr *exec.ExitError
		if errors.As(err, &exiterr) {
			logrus.WithError(err).WithFields(logrus.Fields{
				"exit-code": exiterr.ExitCode(),
				"command":   cmdString,
			}).Warningln("Bad command completion")
			return
		}
		logrus.WithField("command", cmdString).Infoln("Client exited")
	}()
	return cmd, nil
}
