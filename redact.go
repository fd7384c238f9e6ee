package main

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gojp/kana"
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"golang.org/x/text/unicode/norm"
)

// redaction holds the three representations of a page title that must not be
// readable anywhere in guessing-mode content: the literal subject, its
// hiragana reading, and its Hepburn romanization.
type redaction struct {
	subject string
	reading string
	romaji  string
}

// forms lists the distinct non-empty representations to redact.
func (r redaction) forms() []string {
	var forms []string
	for _, form := range []string{r.subject, r.reading, r.romaji} {
		if form == "" {
			continue
		}
		duplicate := false
		for _, seen := range forms {
			if seen == form {
				duplicate = true
				break
			}
		}
		if !duplicate {
			forms = append(forms, form)
		}
	}
	return forms
}

// redactor derives readings lazily; the morphological dictionary is loaded
// once, on first use.
type redactor struct {
	once sync.Once
	tok  *tokenizer.Tokenizer
	err  error
}

func newRedactor() *redactor {
	return &redactor{}
}

func (r *redactor) tokenizer() (*tokenizer.Tokenizer, error) {
	r.once.Do(func() {
		r.tok, r.err = tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	})

	return r.tok, r.err
}

var disambiguated = regexp.MustCompile(`^(.+?)[ _]?\(.+\)`)

// redactionSubject strips a trailing "(disambiguator)" so only the name
// itself is hidden.
func redactionSubject(title string) string {
	if m := disambiguated.FindStringSubmatch(title); m != nil {
		return m[1]
	}

	return title
}

// derive computes the redaction for a title. If the dictionary cannot be
// loaded the literal subject is still redacted.
func (r *redactor) derive(title string) redaction {
	subject := redactionSubject(title)
	red := redaction{subject: subject}

	tok, err := r.tokenizer()
	if err != nil {
		return red
	}

	var reading strings.Builder
	var romaji []string

	for _, t := range tok.Tokenize(subject) {
		read, ok := t.Reading()
		if !ok || read == "" || read == "*" {
			read = t.Surface
		}
		reading.WriteString(read)
		romaji = append(romaji, kana.KanaToRomaji(katakanaToHiragana(read)))
	}

	red.reading = katakanaToHiragana(reading.String())
	red.romaji = strings.Join(romaji, " ")

	return red
}

// redactFill produces the placeholder for a hidden string, matching its rune
// length so the page layout survives the substitution.
func redactFill(s string) string {
	return strings.Repeat("X", utf8.RuneCountInString(s))
}

// applyRedaction blanks every occurrence of each representation within the
// rendered content.
func applyRedaction(content string, red redaction) string {
	for _, form := range red.forms() {
		content = strings.ReplaceAll(content, form, redactFill(form))
	}

	return content
}

func katakanaToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - 0x60
		}
		return r
	}, s)
}

// foldTitle normalizes a title or guess for comparison: NFKC folding squares
// away width variants, then trim and lowercase.
func foldTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}
