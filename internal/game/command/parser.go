package command

import "strings"

// ParseResult holds the parsed command word and arguments of a text line.
type ParseResult struct {
	// Command is the first word of the input, lowercased.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the text after the command with inner spacing preserved.
	RawArgs string
}

// Parse splits a text line into a command and arguments. A leading quote is
// its own command word, so "'hello" parses like "' hello".
//
// Postcondition: If line is blank, Command is empty.
func Parse(line string) ParseResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{}
	}
	if strings.HasPrefix(line, "'") && len(line) > 1 {
		line = "' " + line[1:]
	}

	cmd, rest, found := strings.Cut(line, " ")
	if !found {
		return ParseResult{Command: strings.ToLower(cmd)}
	}
	rest = strings.TrimSpace(rest)
	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}
	return ParseResult{Command: strings.ToLower(cmd), Args: args, RawArgs: rest}
}
