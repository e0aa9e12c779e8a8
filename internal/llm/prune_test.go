package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneMessagesKeepsNewestWithinBudget(t *testing.T) {
	messages := []Message{
		{Sender: "buyer", Text: strings.Repeat("a", 5000)},
		{Sender: "seller", Text: strings.Repeat("b", 5000)},
		{Sender: "buyer", Text: strings.Repeat("c", 5000)},
	}
	// Each message's size is len(Sender)+len(Text): 5005, 5006, 5005. The
	// newest two total 10011, so a 10011 budget keeps exactly those two.
	kept := PruneMessages(messages, 10011)
	require.Len(t, kept, 2)
	assert.Equal(t, messages[1], kept[0])
	assert.Equal(t, messages[2], kept[1])
}

func TestPruneMessagesAlwaysKeepsAtLeastTheNewest(t *testing.T) {
	messages := []Message{
		{Sender: "buyer", Text: strings.Repeat("a", 50000)},
	}
	kept := PruneMessages(messages, 10)
	require.Len(t, kept, 1)
	assert.Equal(t, messages[0], kept[0])
}

func TestPruneMessagesZeroBudgetUsesDefault(t *testing.T) {
	messages := []Message{{Sender: "buyer", Text: "2 kg rice"}}
	kept := PruneMessages(messages, 0)
	assert.Equal(t, messages, kept)
}

func TestRenderChatLogJoinsSenderAndText(t *testing.T) {
	messages := []Message{
		{Sender: "buyer", Text: "2 kg rice"},
		{Sender: "seller", Text: "ok, anything else?"},
	}
	got := RenderChatLog(messages)
	assert.Equal(t, "buyer: 2 kg rice\nseller: ok, anything else?\n", got)
}
