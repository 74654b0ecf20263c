package mailer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioning-worker/internal/mailer"
)

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"jane.doe@example.com", "j******e@example.com"},
		{"bob@corp.io", "b*b@corp.io"},
		{"ab@example.com", "**@example.com"},
		{"a@example.com", "*@example.com"},
		{"not-an-email", "***"},
		{"@example.com", "***"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mailer.MaskEmail(tc.in), "input %q", tc.in)
	}
}

func TestClient_Send_PostsBearerAuthJSON(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := mailer.NewClient(srv.URL, "secret-key", "noreply@platform.test")
	err := c.Send(context.Background(), "jane@example.com", "Welcome", "<p>hi</p>")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "noreply@platform.test", gotBody["from"])
	assert.Equal(t, []any{"jane@example.com"}, gotBody["to"])
	assert.Equal(t, "Welcome", gotBody["subject"])
	assert.Equal(t, "<p>hi</p>", gotBody["html"])
}

func TestClient_Send_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := mailer.NewClient(srv.URL, "k", "noreply@platform.test")
	err := c.Send(context.Background(), "jane@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}
