package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EstimateTokens gives a rough token count for budget purposes. It is a word based
// heuristic, not a real tokenizer, and tends to overestimate for English prose.
func EstimateTokens(text string) int {
	count := 0
	for _, word := range strings.Fields(text) {
		count += estimateWordTokens(word)
	}
	return count
}

func estimateWordTokens(word string) int {
	length := utf8.RuneCountInString(word)

	if length == 1 {
		return 1
	}

	// digits are usually split into small groups
	if isNumber(word) {
		return (length + 2) / 3
	}

	// non-latin scripts tend to be about one token per character
	r, _ := utf8.DecodeRuneInString(word)
	if r > unicode.MaxLatin1 {
		return length
	}

	if length <= 4 {
		return 1
	}
	return (length + 3) / 4
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}
