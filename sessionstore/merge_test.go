package sessionstore

import (
	"testing"
	"time"

	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localSession(id, title string, minute int, messages ...string) session.ChatSession {
	ts := at(minute).Time
	cs := session.ChatSession{
		ID:        id,
		Title:     title,
		Messages:  []session.Message{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	for i, m := range messages {
		cs.Messages = append(cs.Messages, session.Message{
			ID:        id + "-" + string(rune('a'+i)),
			Sender:    session.SenderUser,
			Type:      session.MessageText,
			Content:   m,
			Timestamp: ts,
		})
	}
	return cs
}

func ids(sessions []session.ChatSession) []string {
	out := make([]string, len(sessions))
	for i, cs := range sessions {
		out[i] = cs.ID
	}
	return out
}

func TestMergeSessionsKeepsLocalOnlySessions(t *testing.T) {
	local := []session.ChatSession{
		localSession("a", "Alpha", 5, "hi"),
		localSession("b", chatstore.DefaultTitle, 1),
	}

	merged := MergeSessions(local, nil)
	assert.Equal(t, []string{"a", "b"}, ids(merged))
	assert.Equal(t, local[0].Messages, merged[0].Messages)
}

func TestMergeSessionsAddsRemoteOnly(t *testing.T) {
	local := []session.ChatSession{localSession("a", "Alpha", 5, "hi")}
	remote := []agent.SessionSummary{
		{SessionID: "r", Title: "Remote", CreatedAt: at(2), UpdatedAt: at(9)},
	}

	merged := MergeSessions(local, remote)
	require.Equal(t, []string{"r", "a"}, ids(merged))
	assert.Equal(t, "Remote", merged[0].Title)
	assert.Empty(t, merged[0].Messages)
	assert.NotNil(t, merged[0].Messages)
	assert.Equal(t, at(2).Time, merged[0].CreatedAt)
	assert.Equal(t, at(9).Time, merged[0].UpdatedAt)
}

func TestMergeSessionsTitleRules(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		remote string
		want   string
	}{
		{name: "remote title wins", local: "Local", remote: "Remote", want: "Remote"},
		{name: "placeholder never replaces a real title", local: "Local", remote: chatstore.DefaultTitle, want: "Local"},
		{name: "empty remote title counts as placeholder", local: "Local", remote: "", want: "Local"},
		{name: "remote names a placeholder session", local: chatstore.DefaultTitle, remote: "Remote", want: "Remote"},
		{name: "both placeholders", local: chatstore.DefaultTitle, remote: chatstore.DefaultTitle, want: chatstore.DefaultTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := []session.ChatSession{localSession("a", tt.local, 1, "hi")}
			remote := []agent.SessionSummary{{SessionID: "a", Title: tt.remote, UpdatedAt: at(3)}}

			merged := MergeSessions(local, remote)
			require.Len(t, merged, 1)
			assert.Equal(t, tt.want, merged[0].Title)
			assert.Equal(t, at(3).Time, merged[0].UpdatedAt)
			assert.Len(t, merged[0].Messages, 1)
		})
	}
}

func TestMergeSessionsOrdering(t *testing.T) {
	local := []session.ChatSession{
		localSession("a", "A", 1),
		localSession("b", "B", 4),
		localSession("c", "C", 6),
	}
	remote := []agent.SessionSummary{
		{SessionID: "a", Title: "A", UpdatedAt: at(8)},
		{SessionID: "d", Title: "D", UpdatedAt: at(5)},
		{ID: "e", Title: "E", CreatedAt: at(7)},
	}

	merged := MergeSessions(local, remote)
	assert.Equal(t, []string{"a", "e", "c", "d", "b"}, ids(merged))
	for i := 1; i < len(merged); i++ {
		assert.False(t, merged[i].UpdatedAt.After(merged[i-1].UpdatedAt))
	}
}

func TestMergeSessionsIdempotent(t *testing.T) {
	local := []session.ChatSession{
		localSession("a", "Alpha", 3, "hi"),
		localSession("b", chatstore.DefaultTitle, 3),
	}
	remote := []agent.SessionSummary{
		{SessionID: "a", Title: chatstore.DefaultTitle, UpdatedAt: at(4)},
		{SessionID: "x", Title: "X", UpdatedAt: at(4)},
		{SessionID: "y", Title: "Y", UpdatedAt: at(2)},
	}

	once := MergeSessions(local, remote)
	twice := MergeSessions(once, remote)
	assert.Equal(t, once, twice)
}

func TestMergeSessionsDoesNotAliasInput(t *testing.T) {
	local := []session.ChatSession{localSession("a", "Alpha", 3, "hi")}
	merged := MergeSessions(local, []agent.SessionSummary{{SessionID: "a", Title: "Beta", UpdatedAt: at(4)}})

	merged[0].Messages[0].Content = "changed"
	assert.Equal(t, "Alpha", local[0].Title)
	assert.Equal(t, "hi", local[0].Messages[0].Content)
}

func TestHydrateMessages(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	got := HydrateMessages([]agent.RemoteMessage{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "system", Content: "odd"},
	}, now)

	require.Len(t, got, 3)
	assert.Equal(t, session.SenderUser, got[0].Sender)
	assert.Equal(t, session.SenderAssistant, got[1].Sender)
	assert.Equal(t, session.SenderAssistant, got[2].Sender)
	seen := map[string]bool{}
	for _, m := range got {
		assert.Equal(t, session.MessageText, m.Type)
		assert.Equal(t, now, m.Timestamp)
		assert.NotEmpty(t, m.ID)
		assert.False(t, seen[m.ID])
		seen[m.ID] = true
	}
}
