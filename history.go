package chatstore

import "github.com/creastat/chatstore/session"

const (
	// DefaultTitle is the placeholder title of a session nobody has named yet.
	// The backend returns the same string when it has nothing to summarize.
	DefaultTitle = "New Chat"

	// TitleLength is the number of characters of the first message kept in a derived title.
	TitleLength = 30

	titleEllipsis = "..."
)

// DeriveTitle builds a session title from the first message of a conversation.
// The first TitleLength characters are kept and "..." is appended when the
// content was longer.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleLength {
		return content
	}
	return string(runes[:TitleLength]) + titleEllipsis
}

// IsPlaceholderTitle reports whether title is the generic placeholder.
func IsPlaceholderTitle(title string) bool {
	return title == DefaultTitle
}

// MergeTitle picks the title to keep when remote metadata arrives for a
// session that already has a local title. The remote title wins unless it is
// the placeholder and the local one is not.
func MergeTitle(local, remote string) string {
	if IsPlaceholderTitle(remote) && !IsPlaceholderTitle(local) {
		return local
	}
	return remote
}

// TruncateHistory trims a message list to the given limits before it is persisted.
// It applies the message limit first, then the token limit, removing the oldest
// messages as needed. A limit of zero or less disables that check.
func TruncateHistory(history []session.Message, tokenLimit, messageLimit int) []session.Message {
	if len(history) == 0 {
		return history
	}

	if messageLimit > 0 && len(history) > messageLimit {
		history = history[len(history)-messageLimit:]
	}

	if tokenLimit <= 0 {
		return history
	}

	totalTokens := 0
	for _, msg := range history {
		totalTokens += EstimateMessageTokens(msg)
	}

	for totalTokens > tokenLimit && len(history) > 0 {
		totalTokens -= EstimateMessageTokens(history[0])
		history = history[1:]
	}

	return history
}
