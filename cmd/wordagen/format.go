package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/CTAG07/Wordagen/pkg/markov"
)

const (
	gridColumns  = 5
	gridMinWidth = 12
	tokenWords   = 3
)

// lengthRange is an inclusive word length range.
type lengthRange struct {
	Min, Max int
}

func (r lengthRange) String() string {
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return strconv.Itoa(r.Min) + "-" + strconv.Itoa(r.Max)
}

// parseLength accepts "MIN-MAX" or a single exact length.
func parseLength(s string) (lengthRange, error) {
	s = strings.TrimSpace(s)
	lo, hi, found := strings.Cut(s, "-")
	minLen, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return lengthRange{}, fmt.Errorf("invalid length format %q: use a range like 5-8 or an exact length like 6", s)
	}
	maxLen := minLen
	if found {
		if maxLen, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return lengthRange{}, fmt.Errorf("invalid length format %q: use a range like 5-8 or an exact length like 6", s)
		}
	}
	if err = markov.ValidateLengthRange(minLen, maxLen); err != nil {
		return lengthRange{}, err
	}
	return lengthRange{Min: minLen, Max: maxLen}, nil
}

// writeGrid prints words in rows of five left-aligned columns, each as wide
// as the longest word but never narrower than twelve characters.
func writeGrid(w io.Writer, words []string) error {
	width := gridMinWidth
	for _, word := range words {
		width = max(width, utf8.RuneCountInString(word))
	}
	for i := 0; i < len(words); i += gridColumns {
		row := words[i:min(i+gridColumns, len(words))]
		cells := make([]string, len(row))
		for j, word := range row {
			cells[j] = word + strings.Repeat(" ", width-utf8.RuneCountInString(word))
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "  ")); err != nil {
			return err
		}
	}
	return nil
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}

// writeTrace prints one generation step on a single line.
func writeTrace(w io.Writer, step markov.TraceStep) {
	sym := "-"
	switch step.Symbol {
	case 0:
	case markov.End:
		sym = "END"
	default:
		sym = step.Symbol.String()
	}
	_, _ = fmt.Fprintf(w, "attempt %-3d [%s] %-8s %-3s %s\n", step.Attempt, step.Context, step.Event, sym, step.Word)
}
