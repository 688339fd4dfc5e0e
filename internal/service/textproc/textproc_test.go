package textproc

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNormalizeCleanupOrder(t *testing.T) {
	got := Normalize("  Hello,   world!\n\n\tNew © line  ", Options{})
	// the copyright sign goes after whitespace is collapsed, leaving two spaces
	if want := "Hello, world! New  line"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeKeepsUnicodeWords(t *testing.T) {
	got := Normalize("Ünïcode wörds_and 42 § dash-es; ok?", Options{})
	if want := "Ünïcode wörds_and 42  dash-es; ok?"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRemoveReferences(t *testing.T) {
	text := "Body text [1] cites (Smith, 2020) and (Jones et al., 2019).\n\nReferences\n[1] Smith, J. A book. 2020."
	if got, want := RemoveReferences(text), "Body text  cites  and ."; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got := Normalize(text, Options{RemoveReferences: true})
	if want := "Body text cites and ."; got != want {
		t.Fatalf("normalized got %q, want %q", got, want)
	}
}

func TestRemoveReferencesHeadingVariants(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"numbered markdown", "Intro text.\n## 5. Works Cited:\nfoo bar", "Intro text."},
		{"upper case", "Intro text.\nBIBLIOGRAPHY\nfoo", "Intro text."},
		{"singular", "Intro text.\n  Reference\nfoo", "Intro text."},
		{"word inside sentence", "The reference manual helps.\nMore text.", "The reference manual helps.\nMore text."},
		{"no heading", "Just text.", "Just text."},
		// extracted PDF text can merge the heading into a body line; only
		// the inline citation is dropped then
		{"heading merged into line", "The conclusion holds. References [1] Smith, J. 2020.", "The conclusion holds. References  Smith, J. 2020."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RemoveReferences(tc.text); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRemoveQuotes(t *testing.T) {
	text := "He said \"copy this\" and 'short' but 'this is a long quote' ok\n> quoted line\nend"
	if got, want := RemoveQuotes(text), "He said  and 'short' but  ok\n\nend"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got := Normalize(text, Options{RemoveQuotes: true})
	if want := "He said and short but ok end"; got != want {
		t.Fatalf("normalized got %q, want %q", got, want)
	}
}

func TestRemoveQuotesKeepsContractions(t *testing.T) {
	text := "We don't and won't go"
	if got := RemoveQuotes(text); got != text {
		t.Fatalf("contractions should survive, got %q", got)
	}
}

func TestRemoveQuotesCurly(t *testing.T) {
	if got, want := RemoveQuotes("before “quoted words” after"), "before  after"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeFlagsOff(t *testing.T) {
	text := "Text \"quoted\"\nReferences\n[1] x"
	got := Normalize(text, Options{})
	if want := "Text quoted References 1 x"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTokenize(t *testing.T) {
	tok := NewTokenizer(nil)
	if err := tok.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	got := tok.Tokenize("Hello, World! Don't stop.")
	want := []string{"hello", ",", "world", "!", "don't", "stop", "."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWordSet(t *testing.T) {
	got := keys(NewTokenizer(nil).WordSet("The cat, the CAT and an ox! Don't snake_case 2024"))
	want := []string{"2024", "and", "cat", "the"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTokenizerFallback(t *testing.T) {
	calls := 0
	tok := NewTokenizer(func(error) { calls++ })
	tok.compile = func() (*regexp.Regexp, error) { return nil, errors.New("tokenizer data unavailable") }

	if err := tok.Setup(); err == nil {
		t.Fatal("expected setup error")
	}
	got := tok.Tokenize("Alpha  beta,\tGamma")
	want := []string{"alpha", "beta,", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	tok.Tokenize("again")

	if calls != 1 {
		t.Fatalf("error handler called %d times, want 1", calls)
	}
	if !tok.Degraded() {
		t.Fatal("expected degraded tokenizer")
	}
	if set := tok.WordSet("alpha beta, gamma"); len(set) != 2 {
		t.Fatalf("fallback word set = %v", keys(set))
	}
}

func TestTokenizerConcurrentSetup(t *testing.T) {
	var calls atomic.Int32
	tok := NewTokenizer(nil)
	tok.compile = func() (*regexp.Regexp, error) { return nil, errors.New("tokenizer data unavailable") }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = tok.setup(func(error) { calls.Add(1) })
		}()
		go func() {
			defer wg.Done()
			tok.Tokenize("Alpha beta")
		}()
	}
	wg.Wait()

	if n := calls.Load(); n > 1 {
		t.Fatalf("error handler called %d times, want at most 1", n)
	}
	if !tok.Degraded() {
		t.Fatal("expected degraded tokenizer")
	}
}

func TestPackageSetupIdempotent(t *testing.T) {
	if err := Setup(nil); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := Setup(nil); err != nil {
		t.Fatalf("second Setup failed: %v", err)
	}
	if got := Tokenize("One two"); len(got) != 2 {
		t.Fatalf("unexpected tokens %q", got)
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
