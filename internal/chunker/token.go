package chunker

import "strings"

// EstimateTokens gives a rough token count from the word count.
// Spanish legal text runs a little above English, so words are weighted 1.4.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.4)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
