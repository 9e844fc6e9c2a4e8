// Package ipc holds the reports the console prints for inspect commands.
// They are plain data so other tools can decode the YAML output.
package ipc

import (
	"gopkg.in/yaml.v3"
)

type (
	// The virtual screen
	ScreenReport struct {
		Width      int    `yaml:"width"`
		Height     int    `yaml:"height"`
		Background string `yaml:"background"`
		// Path clients connect to. Empty if binding failed
		Socket       string `yaml:"socket"`
		Updating     bool   `yaml:"updating"`
		ErrorMessage string `yaml:"error_message,omitempty"`
		Windows      int    `yaml:"windows"`
	}

	// One toplevel window
	WindowReport struct {
		ID         uint64 `yaml:"id"`
		AppID      string `yaml:"app_id"`
		Title      string `yaml:"title"`
		Mapped     bool   `yaml:"mapped"`
		X          int    `yaml:"x"`
		Y          int    `yaml:"y"`
		Width      int    `yaml:"width"`
		Height     int    `yaml:"height"`
		Maximized  bool   `yaml:"maximized"`
		Fullscreen bool   `yaml:"fullscreen"`
		// Whether the window placement is remembered
		Persisted bool  `yaml:"persisted"`
		PID       int32 `yaml:"pid,omitempty"`
	}

	// The current pointer grab
	GrabReport struct {
		Mode   string   `yaml:"mode"`
		Window uint64   `yaml:"window,omitempty"`
		Edges  []string `yaml:"edges,omitempty"`
	}

	// The pointer and the cursor image
	CursorReport struct {
		X        float64 `yaml:"x"`
		Y        float64 `yaml:"y"`
		Custom   bool    `yaml:"custom"`
		Width    int     `yaml:"width,omitempty"`
		Height   int     `yaml:"height,omitempty"`
		HotspotX int     `yaml:"hotspot_x,omitempty"`
		HotspotY int     `yaml:"hotspot_y,omitempty"`
	}

	// A remembered placement, keyed by identity in a map
	StateReport struct {
		X          int  `yaml:"x"`
		Y          int  `yaml:"y"`
		Width      int  `yaml:"width"`
		Height     int  `yaml:"height"`
		Maximized  bool `yaml:"maximized"`
		Fullscreen bool `yaml:"fullscreen"`
	}
)

// Encode renders a report as YAML without the trailing newline
func Encode(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return string(out), nil
}
