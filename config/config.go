// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml"
)

// Where Find looks for the config file, relative to the XDG config dirs
const RelativePath = "wayembed/config.toml"

type StartType int

const (
	// Tells wayembed to start a console on stdin for interacting with it
	START_REPL = StartType(iota)
	// Tells wayembed to execute a specific command on startup
	START_SINGLE_COMMAND
	// Tells wayembed to start without any specific targets
	// Clients can still connect through the socket
	START_NONE
)

var startTypeNames = []string{"repl", "command", "none"}

func (s StartType) String() string {
	if int(s) < 0 || int(s) >= len(startTypeNames) {
		return fmt.Sprintf("StartType(%d)", int(s))
	}
	return startTypeNames[s]
}

// UnmarshalText accepts the names as well as the numeric values
func (s *StartType) UnmarshalText(text []byte) error {
	str := strings.ToLower(strings.TrimSpace(string(text)))
	for i, name := range startTypeNames {
		if str == name || str == strconv.Itoa(i) {
			*s = StartType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown start type %q", str)
}

type Config struct {
	StartType StartType `toml:"start_type,omitempty"`
	// What command to execute on start. Only matters if StartType is set to START_SINGLE_COMMAND
	StartCommand *string `toml:"start_command,omitempty"`

	// Size of the virtual screen in pixel
	Width  int `toml:"width"`
	Height int `toml:"height"`
	// Background colour as #rrggbb
	Background string `toml:"background"`
	// Parent of the private socket directory. Defaults to XDG_RUNTIME_DIR
	SocketDir string `toml:"socket_dir"`
	// App ids starting with this get their placement remembered
	IdentityPrefix string `toml:"identity_prefix"`
	// Host button opening the context menu. 0 disables it
	ContextMenuButton int `toml:"context_menu_button"`
	// Either "all" or "first-match"
	ModifierMode   string `toml:"modifier_mode"`
	KeyboardLayout string `toml:"keyboard_layout"`
	// Pixel format frames are rendered in
	RenderFormat string `toml:"render_format"`
	LogLevel     string `toml:"log_level"`
	// Where snapshots without an explicit path go
	SnapshotDir string `toml:"snapshot_dir"`
	// Frame clock rate in Hz
	RefreshHz int `toml:"refresh_hz"`
}

// Defaults returns the configuration used when no file exists
func Defaults() Config {
	return Config{
		StartType:         START_REPL,
		Width:             800,
		Height:            600,
		Background:        "#ffffff",
		SocketDir:         xdg.RuntimeDir,
		IdentityPrefix:    "Cmb:",
		ContextMenuButton: 3,
		ModifierMode:      "all",
		KeyboardLayout:    "us",
		RenderFormat:      "argb8888",
		LogLevel:          "info",
		RefreshHz:         60,
	}
}

// Find returns the config file path from the XDG config dirs
func Find() (string, error) {
	return xdg.SearchConfigFile(RelativePath)
}

// Load reads the config at path on top of the defaults
// An empty path searches the XDG config dirs, finding nothing there is not an error
func Load(path string) (*Config, error) {
	conf := Defaults()
	if path == "" {
		found, err := Find()
		if err != nil {
			return &conf, nil
		}
		path = found
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := Parse(data, &conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &conf, nil
}

// Parse decodes TOML into conf, keeping the values of keys data does not set
func Parse(data []byte, conf *Config) error {
	if err := toml.Unmarshal(data, conf); err != nil {
		return err
	}
	return conf.Validate()
}

func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
	}
	if _, err := ParseColor(c.Background); err != nil {
		return err
	}
	if c.ContextMenuButton < 0 {
		return fmt.Errorf("invalid context menu button %d", c.ContextMenuButton)
	}
	if c.RefreshHz <= 0 {
		return fmt.Errorf("invalid refresh rate %d", c.RefreshHz)
	}
	if c.StartType == START_SINGLE_COMMAND && (c.StartCommand == nil || strings.TrimSpace(*c.StartCommand) == "") {
		return errors.New("start_type is command but no start_command is set")
	}
	return nil
}

// ParseColor parses #rrggbb, the leading # is optional
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q, want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
