// Package telnet serves the game to Telnet clients: a TCP acceptor, a
// line-oriented connection that strips Telnet negotiation, and ANSI colors.
package telnet

// ANSI SGR sequences.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	White  = "\033[37m"

	BrightBlack = "\033[90m"
	BrightRed   = "\033[91m"
	BrightCyan  = "\033[96m"
)

// Colorize wraps text in color and a trailing Reset.
//
// Precondition: color must be an ANSI escape sequence.
func Colorize(color, text string) string {
	return color + text + Reset
}

// StripANSI removes every "\033[...m" sequence from s.
func StripANSI(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			if j < len(s) {
				i = j
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}
