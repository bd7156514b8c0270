package tui

import (
	"strings"
	"unicode"
)

// Command is a parsed ':' prompt line. Name is canonical when the input
// matched a known command or alias.
type Command struct {
	Name string
	Args string
}

type commandSpec struct {
	name    string
	aliases []string
}

var commands = []commandSpec{
	{name: "open", aliases: []string{"o"}},
	{name: "search", aliases: []string{"s"}},
	{name: "retry"},
	{name: "close", aliases: []string{"c"}},
	{name: "login"},
	{name: "logout"},
	{name: "help", aliases: []string{"h"}},
	{name: "quit", aliases: []string{"q", "exit"}},
}

// ParseCommand splits input at the first space and resolves the name by
// exact alias or unique prefix.
func ParseCommand(input string) Command {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	name, args, _ := strings.Cut(input, " ")
	name = strings.ToLower(name)
	if i := strings.IndexFunc(args, func(r rune) bool { return !unicode.IsSpace(r) }); i >= 0 {
		args = strings.TrimRightFunc(args[i:], unicode.IsSpace)
	} else {
		args = ""
	}
	return Command{Name: resolveCommand(name), Args: args}
}

func resolveCommand(name string) string {
	if name == "" {
		return ""
	}
	var match string
	for _, c := range commands {
		if c.name == name {
			return c.name
		}
		for _, a := range c.aliases {
			if a == name {
				return c.name
			}
		}
		if strings.HasPrefix(c.name, name) {
			if match != "" {
				return name
			}
			match = c.name
		}
	}
	if match != "" {
		return match
	}
	return name
}
