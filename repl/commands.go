package repl

import (
	"fmt"
	"sort"
	"strings"
)

// Command is one console command. Args are the whitespace separated
// words after the name.
type Command struct {
	Name  string
	Usage string
	Help  string
	// MinArgs is checked before Run is called
	MinArgs int
	Run     func(args []string, r *Repl) (string, error)
}

// Commands dispatches lines to registered commands by their first word.
// It includes a help command listing everything registered.
type Commands struct {
	byName map[string]Command
}

func NewCommands() *Commands {
	c := &Commands{byName: make(map[string]Command)}
	c.Register(Command{
		Name: "help",
		Help: "List commands",
		Run: func([]string, *Repl) (string, error) {
			return c.helpText(), nil
		},
	})
	return c
}

// Register adds cmd, replacing any command of the same name
func (c *Commands) Register(cmd Command) {
	c.byName[cmd.Name] = cmd
}

func (c *Commands) Lookup(name string) (Command, bool) {
	cmd, ok := c.byName[name]
	return cmd, ok
}

// Handle is a MessageHandler
func (c *Commands) Handle(in string, r *Repl) (string, error) {
	fields := strings.Fields(in)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, ok := c.byName[fields[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q, try help", fields[0])
	}
	args := fields[1:]
	if len(args) < cmd.MinArgs {
		return "", fmt.Errorf("usage: %s %s", cmd.Name, cmd.Usage)
	}
	return cmd.Run(args, r)
}

func (c *Commands) helpText() string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		cmd := c.byName[name]
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-28s %s", strings.TrimSpace(cmd.Name+" "+cmd.Usage), cmd.Help)
	}
	return b.String()
}
