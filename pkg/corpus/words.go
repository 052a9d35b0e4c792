package corpus

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinWordLength and MaxWordLength bound the words kept from a list.
	MinWordLength = 2
	MaxWordLength = 15
)

// ReadWords reads whitespace-separated words from r and returns the usable
// ones: lowercased, letters only, between MinWordLength and MaxWordLength
// characters, without duplicates. Words keep the order of first occurrence.
func ReadWords(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	seen := make(map[string]struct{})
	var words []string
	for scanner.Scan() {
		word := strings.ToLower(scanner.Text())
		if !validWord(word) {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read words: %w", err)
	}
	return words, nil
}

func validWord(word string) bool {
	n := utf8.RuneCountInString(word)
	if n < MinWordLength || n > MaxWordLength {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
