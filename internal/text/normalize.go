// Package text provides input-text normalization for speech synthesis.
//
// The engine's tokenizer handles plain punctuation well but typographic
// variants and stray control characters degrade output, so requests are
// folded to a canonical form before validation and synthesis.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

// Typographic characters folded to plain ASCII equivalents.
const (
	emDash        = "—"
	enDash        = "–"
	figureDash    = "‒"
	horizontalBar = "―"
	ellipsisChar  = "…"

	leftDoubleQuote  = "“"
	rightDoubleQuote = "”"
	leftSingleQuote  = "‘"
	rightSingleQuote = "’"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

var typographicReplacer = strings.NewReplacer(
	emDash, " - ",
	enDash, "-",
	figureDash, "-",
	horizontalBar, " - ",
	ellipsisChar, "...",
	leftDoubleQuote, `"`,
	rightDoubleQuote, `"`,
	leftSingleQuote, "'",
	rightSingleQuote, "'",
)

// Normalize folds typographic punctuation, strips control characters, and
// collapses whitespace runs. The result may be empty, which callers treat
// as a validation failure.
func Normalize(input string) string {
	folded := typographicReplacer.Replace(input)

	var builder strings.Builder

	builder.Grow(len(folded))

	for _, r := range folded {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}

		builder.WriteRune(r)
	}

	collapsed := whitespaceRe.ReplaceAllString(builder.String(), " ")

	return strings.TrimSpace(collapsed)
}
