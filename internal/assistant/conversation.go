package assistant

import (
	"github.com/worktab/worktab-api/internal/domain"
	"github.com/worktab/worktab-api/internal/llm"
)

// HistoryWindow is how many trailing history entries are considered before
// role filtering.
const HistoryWindow = 10

// BuildConversation returns the turns sent to the model: the conversational
// turns among the last HistoryWindow history entries, followed by message
// as a user turn. message is not trimmed.
func BuildConversation(history []domain.ChatTurn, message string) []domain.ChatTurn {
	recent := history[max(0, len(history)-HistoryWindow):]

	turns := make([]domain.ChatTurn, 0, len(recent)+1)
	for _, t := range recent {
		if t.IsConversational() {
			turns = append(turns, t)
		}
	}
	return append(turns, domain.ChatTurn{Role: domain.RoleUser, Content: message})
}

func toMessages(turns []domain.ChatTurn) []llm.Message {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{Role: string(t.Role), Content: t.Content}
	}
	return msgs
}
