package ui

import (
	"strings"
)

const helpText = "/file <path> · /video · /audio · /who · /save <n> [dir] · /quit"

// command is a slash command typed into the input line.
type command struct {
	name string
	args []string
}

// parseCommand splits a "/name arg..." line. Lines not starting with a slash
// are chat text. A doubled slash escapes a message that starts with one.
func parseCommand(line string) (command, bool) {
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return command{}, false
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// unescape strips the escape slash from a "//text" message.
func unescape(line string) string {
	if strings.HasPrefix(line, "//") {
		return line[1:]
	}
	return line
}
