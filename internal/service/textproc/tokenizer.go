package textproc

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const tokenPattern = word + `+(?:['’]` + word + `+)*|[^\p{L}\p{N}_\s]+`

// Tokenizer splits lower-cased text into word and punctuation tokens.
// Setup compiles the pattern once; if that fails every call degrades to a
// whitespace split and the error handler is notified once.
type Tokenizer struct {
	once    sync.Once
	re      *regexp.Regexp
	err     error
	compile func() (*regexp.Regexp, error)
	onError func(error)
}

func NewTokenizer(onError func(error)) *Tokenizer {
	return &Tokenizer{
		compile: func() (*regexp.Regexp, error) { return regexp.Compile(tokenPattern) },
		onError: onError,
	}
}

func (t *Tokenizer) Setup() error {
	return t.setup(nil)
}

// setup compiles inside the once; onError, when set, is used instead of the
// constructor's handler for that single run.
func (t *Tokenizer) setup(onError func(error)) error {
	t.once.Do(func() {
		if onError == nil {
			onError = t.onError
		}
		t.re, t.err = t.compile()
		if t.err != nil && onError != nil {
			onError(t.err)
		}
	})
	return t.err
}

// Degraded reports whether the whitespace fallback is in use.
func (t *Tokenizer) Degraded() bool {
	return t.Setup() != nil
}

func (t *Tokenizer) Tokenize(text string) []string {
	text = strings.ToLower(text)
	if t.Setup() != nil {
		return strings.Fields(text)
	}
	return t.re.FindAllString(text, -1)
}

// WordSet keeps alphanumeric tokens longer than two characters.
func (t *Tokenizer) WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range t.Tokenize(text) {
		if utf8.RuneCountInString(tok) > 2 && isAlnum(tok) {
			set[tok] = struct{}{}
		}
	}
	return set
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return s != ""
}

var defaultTokenizer = NewTokenizer(nil)

// Setup prepares the package tokenizer. Call it once at process start;
// later calls, and their handlers, only see the first result.
func Setup(onError func(error)) error {
	return defaultTokenizer.setup(onError)
}

func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

func WordSet(text string) map[string]struct{} {
	return defaultTokenizer.WordSet(text)
}
