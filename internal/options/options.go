// Package options parses free-form codec option strings of the form
// `-key=value -other="quoted value"` and applies them to a codec's dynamic
// option table.
package options

import (
	"fmt"
	"strings"

	"github.com/kataras/golog"
)

// Pair is one accepted key/value option
type Pair struct {
	Key   string
	Value string
}

func (p Pair) String() string {
	return p.Key + "=" + p.Value
}

// Warning describes a token that was skipped
type Warning struct {
	Token  string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("option '%s' is malformed, %s", w.Token, w.Reason)
}

// Setter is the option table of a codec
type Setter interface {
	SetOption(key, value string) error
}

// Tokenize splits s on spaces outside quotes.
//
// Quotes group characters. A quote of the other kind opens a nested level and
// is kept literally, as is the quote closing it; the outermost pair is
// removed. Backslash escapes a b f n r t v \ ' " ? are decoded. Octal (\0 to
// \7, up to three digits), hex (\xHH) and unicode (\uHHHH, \UHHHHHHHH)
// escapes are consumed without producing output.
func Tokenize(s string) []string {
	var (
		tokens []string
		cur    strings.Builder
		quotes []byte
	)

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			i += unescape(s, i, &cur)
		case c == '\'' || c == '"':
			depth := len(quotes)
			if depth > 0 && quotes[depth-1] == c {
				quotes = quotes[:depth-1]
				if depth > 1 {
					cur.WriteByte(c)
				}
			} else {
				if depth > 0 {
					cur.WriteByte(c)
				}
				quotes = append(quotes, c)
			}
		case c == ' ' && len(quotes) == 0:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}

// unescape handles the escape starting at s[i] and returns how many bytes
// after the backslash it consumed
func unescape(s string, i int, out *strings.Builder) int {
	if i+1 >= len(s) {
		return 0
	}
	switch c := s[i+1]; c {
	case 'a':
		out.WriteByte('\a')
	case 'b':
		out.WriteByte('\b')
	case 'f':
		out.WriteByte('\f')
	case 'n':
		out.WriteByte('\n')
	case 'r':
		out.WriteByte('\r')
	case 't':
		out.WriteByte('\t')
	case 'v':
		out.WriteByte('\v')
	case '\\', '\'', '"', '?':
		out.WriteByte(c)
	case 'x':
		return 1 + countWhile(s, i+2, 2, isHex)
	case 'u':
		return 1 + countWhile(s, i+2, 4, isHex)
	case 'U':
		return 1 + countWhile(s, i+2, 8, isHex)
	default:
		if isOctal(c) {
			return countWhile(s, i+1, 3, isOctal)
		}
		// Unknown escape: drop the backslash, keep the character
		return 0
	}
	return 1
}

func countWhile(s string, from, max int, ok func(byte) bool) int {
	n := 0
	for from+n < len(s) && n < max && ok(s[from+n]) {
		n++
	}
	return n
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Parse tokenizes s and validates each token as -key=value. Invalid tokens
// become warnings; parsing never fails.
func Parse(s string) ([]Pair, []Warning) {
	var (
		pairs    []Pair
		warnings []Warning
	)
	for _, tok := range Tokenize(s) {
		if tok[0] != '-' {
			warnings = append(warnings, Warning{Token: tok, Reason: "must start with a '-'"})
			continue
		}
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			warnings = append(warnings, Warning{Token: tok, Reason: "must contain a '='"})
			continue
		}
		pairs = append(pairs, Pair{Key: tok[1:eq], Value: tok[eq+1:]})
	}
	return pairs, warnings
}

// Apply parses s and sets every valid pair on target. Malformed tokens and
// rejected keys are logged as warnings and skipped. It returns the pairs the
// target accepted.
func Apply(target Setter, s string, log *golog.Logger) []Pair {
	pairs, warnings := Parse(s)
	for _, w := range warnings {
		log.Warn(w.String())
	}

	var applied []Pair
	for _, p := range pairs {
		if err := target.SetOption(p.Key, p.Value); err != nil {
			log.Warnf("option '%s' (key: '%s', value: '%s') encountered error: %v", "-"+p.String(), p.Key, p.Value, err)
			continue
		}
		applied = append(applied, p)
	}
	return applied
}
