package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRateLimitRuleMatching(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), nil)

	cases := []struct {
		method string
		path   string
		want   string
	}{
		{"POST", "/register", "register"},
		{"POST", "/otp", "otp"},
		{"POST", "/otp/verify", "otp_verify"},
		{"POST", "/contacts", "contacts"},
		// message sends must not fall under the chat-creation limit
		{"POST", "/chats/0d9bd166-0000-4000-8000-000000000000/messages", "send"},
		{"POST", "/chats/direct", "chats"},
		{"POST", "/chats/group", "chats"},
		{"POST", "/messages/01ABCDEF/read", "receipts"},
		{"GET", "/chats", "read"},
		{"GET", "/users/0d9bd166-0000-4000-8000-000000000000", "read"},
	}

	for _, tc := range cases {
		ru, ok := rl.match(httptest.NewRequest(tc.method, tc.path, nil))
		require.True(t, ok, "%s %s", tc.method, tc.path)
		require.Equal(t, tc.want, ru.name, "%s %s", tc.method, tc.path)
	}
}

func TestRateLimitUnmatchedMethod(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), nil)

	_, ok := rl.match(httptest.NewRequest("DELETE", "/users/abc", nil))
	require.False(t, ok)
}
