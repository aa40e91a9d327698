package chatstore

import "github.com/creastat/chatstore/session"

// EstimateTokens estimates the token count of text with a Unicode-aware heuristic.
// ASCII characters count for roughly a quarter token each, anything else
// (CJK, Cyrillic, emoji) for a whole token.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}

// EstimateMessageTokens estimates the token cost of a stored message,
// including the text of any product recommendations attached to it.
func EstimateMessageTokens(msg session.Message) int {
	tokens := EstimateTokens(msg.Content)
	for _, p := range msg.Products {
		tokens += EstimateTokens(p.Name) + EstimateTokens(p.Reason)
	}
	return tokens
}
