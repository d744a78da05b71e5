package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080":  "ws://localhost:8080/ws",
		"http://localhost:8080/": "ws://localhost:8080/ws",
		"https://chat.intranet":  "wss://chat.intranet/ws",
		"ws://already.websocket": "ws://already.websocket/ws",
	}
	for in, want := range tests {
		require.Equal(t, want, WebSocketURL(in), in)
	}
}

func TestLogin(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Password != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + req.Username})
	}))
	defer ts.Close()

	token, err := Login(context.Background(), ts.Client(), ts.URL, "ana", "secret123")
	require.NoError(t, err)
	require.Equal(t, "tok-ana", token)

	_, err = Login(context.Background(), nil, ts.URL, "ana", "wrong")
	require.ErrorContains(t, err, "invalid credentials")
}
