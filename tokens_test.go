package chatstore

import (
	"testing"

	"github.com/creastat/chatstore/session"
	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"日本", 2},
		{"ab日", 2},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateMessageTokensCountsProducts(t *testing.T) {
	msg := session.Message{
		Content:  "abcdefgh",
		Products: []session.Product{{Name: "abcd", Reason: "abcdefgh"}},
	}
	assert.Equal(t, 2+1+2, EstimateMessageTokens(msg))
}
