package app

// EstimateTokens approximates the token cost of a piece of text.
//
// This is deliberately not a tokenizer: compaction thresholds only need a
// deterministic, cheap bound, and four bytes per token is close enough for
// the models we target. Real tokenizers would pull BPE vocabularies onto an
// offline machine for no accuracy we can use.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateMessagesTokens sums the estimate over a message window, including a
// small per-message overhead for role framing.
func EstimateMessagesTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content) + 4
	}
	return total
}
