package llm

// DefaultContextCharBudget is the default cap on accumulated message
// characters before older messages are dropped from the prompt (they
// remain in rawMessages for audit).
const DefaultContextCharBudget = 12000

// PruneMessages iterates newest-to-oldest, accumulating character count
// (sender plus text), and includes messages until budget would be
// exceeded; the newest message is always kept, even when it alone exceeds
// budget. The returned slice
// preserves chronological order. Single-message calls should not call this
// — they skip pruning entirely.
func PruneMessages(messages []Message, budget int) []Message {
	if budget <= 0 {
		budget = DefaultContextCharBudget
	}
	kept := make([]Message, 0, len(messages))
	total := 0
	for i := len(messages) - 1; i >= 0; i-- {
		size := len(messages[i].Sender) + len(messages[i].Text)
		if total+size > budget && len(kept) > 0 {
			break
		}
		total += size
		kept = append(kept, messages[i])
	}
	// kept was built newest-first; reverse to restore chronological order.
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}

// RenderChatLog joins pruned messages into the flat user-content string
// sent to the model.
func RenderChatLog(messages []Message) string {
	out := ""
	for _, m := range messages {
		out += m.Sender + ": " + m.Text + "\n"
	}
	return out
}
