package tui

import (
	"fmt"
	"strings"
)

// Command is one line-mode slash command.
type Command struct {
	Name string // e.g. "/open"
	Args string // e.g. "<id>"
	Desc string
}

// commands returns the line-mode slash commands.
func commands() []Command {
	return []Command{
		{Name: "/new", Desc: "Start a new conversation"},
		{Name: "/list", Desc: "List conversations"},
		{Name: "/open", Args: "<id>", Desc: "Open a conversation"},
		{Name: "/delete", Args: "<id>", Desc: "Delete a conversation"},
		{Name: "/whoami", Desc: "Show the signed-in user"},
		{Name: "/logout", Desc: "Sign out"},
		{Name: "/help", Desc: "Show this help"},
		{Name: "/quit", Desc: "Exit"},
	}
}

// filterCommands returns commands whose Name starts with prefix
// (case-insensitive).
func filterCommands(items []Command, prefix string) []Command {
	if prefix == "" || prefix == "/" {
		return items
	}
	lower := strings.ToLower(prefix)
	var out []Command
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it.Name), lower) {
			out = append(out, it)
		}
	}
	return out
}

func renderHelp(items []Command) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "  %-16s %s\n", strings.TrimSpace(it.Name+" "+it.Args), it.Desc)
	}
	b.WriteString("Anything else is sent as a message.")
	return b.String()
}

// unknownCommand explains an unrecognised command and suggests matches.
func unknownCommand(name string) error {
	matches := filterCommands(commands(), name)
	if len(matches) == 0 || len(matches) == len(commands()) {
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return fmt.Errorf("unknown command %s (did you mean %s?)", name, strings.Join(names, ", "))
}
