package checker

import "strings"

// Normalize canonicalizes program output for comparison: CRLF becomes LF,
// trailing whitespace is stripped from each line, and trailing blank lines
// are dropped.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n")
}

// DecodeEscapes rewrites the literal two-character sequences \n, \r and \t
// into their control characters. Testcase text stored through single-line
// transports arrives this way; text that already contains a real newline is
// left untouched.
func DecodeEscapes(s string) string {
	if strings.ContainsRune(s, '\n') {
		return s
	}
	r := strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t")
	return r.Replace(s)
}
