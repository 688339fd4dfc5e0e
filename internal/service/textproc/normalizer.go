package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

// Options selects the optional stripping passes of Normalize.
type Options struct {
	RemoveReferences bool
	RemoveQuotes     bool
}

const word = `[\p{L}\p{N}_]`

var (
	referenceHeading = regexp.MustCompile(
		`(?im)^[ \t]*(?:#+[ \t]*)?(?:\d+(?:\.\d+)*\.?[ \t]+)?(?:references?|bibliography|works[ \t]+cited)[ \t]*:?[ \t]*$`)

	inlineCitations = []*regexp.Regexp{
		regexp.MustCompile(`\[\d+\]`),
		regexp.MustCompile(`\(` + word + `+,?\s*\d{4}\)`),
		regexp.MustCompile(`\(` + word + `+\s+et\s+al\.,?\s*\d{4}\)`),
	}

	quotePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"[^"]*"`),
		regexp.MustCompile(`“[^”]*”`),
		regexp.MustCompile(`'[^']{10,}'`),
		regexp.MustCompile(`(?m)^>.*$`),
	}
)

// Normalize prepares text for comparison. Reference and quote stripping run
// on the original line structure, before whitespace is collapsed.
func Normalize(text string, opts Options) string {
	if opts.RemoveReferences {
		text = RemoveReferences(text)
	}
	if opts.RemoveQuotes {
		text = RemoveQuotes(text)
	}

	text = collapseWhitespace(text)
	text = stripSpecialChars(text)

	return strings.TrimSpace(text)
}

// RemoveReferences drops everything from the first References, Bibliography
// or Works Cited heading line, then removes inline citation markers.
func RemoveReferences(text string) string {
	if loc := referenceHeading.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	for _, re := range inlineCitations {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// RemoveQuotes drops double-quoted spans, single-quoted spans of at least ten
// characters and block-quote lines.
func RemoveQuotes(text string) string {
	for _, re := range quotePatterns {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

func collapseWhitespace(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func stripSpecialChars(text string) string {
	return strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) || strings.ContainsRune(".,!?;:-", r) {
			return r
		}
		return -1
	}, text)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
