package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/multichat/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	req := require.New(t)
	rec := httptest.NewRecorder()

	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("text/plain", rec.Header().Get("Content-Type"))
	req.Equal(HealthMessage, rec.Body.String())
}

func TestRoutes_ParticipantsAndMetrics(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})
	routes := h.Routes(nil)

	// Given no one has joined
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/participants", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"participants":[],"sessions":0}`, rec.Body.String())

	// When alice joins
	alice := dial(t, h)
	alice.send(protocol.Connect("alice"))
	req.Equal(protocol.Connect("alice"), alice.next())

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/participants", nil))
	var body ParticipantsResponse
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal([]string{"alice"}, body.Participants)
	req.Equal(1, body.Sessions)

	// Then the metrics endpoint exports the hub collectors
	req.Eventually(func() bool {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Code == http.StatusOK && strings.Contains(rec.Body.String(), "multichat_hub_participants 1")
	}, waitFor, 10*time.Millisecond)
}

func TestRoutes_RejectsWrongMethod(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})

	rec := httptest.NewRecorder()
	h.Routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ws", nil))
	req.Equal(http.StatusMethodNotAllowed, rec.Code)
}

func dialWebSocket(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func TestRoutes_WebSocketJoinsTheChat(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})
	srv := httptest.NewServer(h.Routes([]string{"http://chat.example.com"}))
	defer srv.Close()

	alice := dial(t, h)
	alice.send(protocol.Connect("alice"))
	req.Equal(protocol.Connect("alice"), alice.next())

	// Given a browser client on an allowed origin
	ws, _, err := dialWebSocket(t, srv, "http://CHAT.example.com")
	req.NoError(err)

	// When it joins
	req.NoError(ws.WriteMessage(websocket.TextMessage, protocol.Encode(protocol.Connect("web"))))

	// Then TCP clients see it, and it sees its own Connect
	req.Equal(protocol.Connect("web"), alice.next())
	req.NoError(ws.SetReadDeadline(time.Now().Add(waitFor)))
	_, data, err := ws.ReadMessage()
	req.NoError(err)
	req.Equal(string(protocol.Encode(protocol.Connect("web"))), string(data))

	// When alice speaks, the browser receives it
	alice.send(protocol.Message("alice", "hello web"))
	req.Equal(protocol.Message("alice", "hello web"), alice.next())
	_, data, err = ws.ReadMessage()
	req.NoError(err)
	req.Equal(protocol.Message("alice", "hello web"), protocol.Decode(string(data)))
}

func TestRoutes_WebSocketOriginPolicy(t *testing.T) {
	h := startHub(t, Options{})

	tests := []struct {
		name    string
		allowed []string
		origin  string
		wantOK  bool
	}{
		{"missing origin", []string{"*"}, "", false},
		{"wildcard", []string{"*"}, "http://anywhere.test", true},
		{"listed", []string{" https://chat.test "}, "https://chat.test", true},
		{"scheme mismatch", []string{"https://chat.test"}, "http://chat.test", false},
		{"not listed", []string{"https://chat.test"}, "https://evil.test", false},
		{"invalid config entry ignored", []string{"chat.test"}, "https://chat.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			srv := httptest.NewServer(h.Routes(tt.allowed))
			defer srv.Close()

			_, resp, err := dialWebSocket(t, srv, tt.origin)
			if tt.wantOK {
				req.NoError(err)
				return
			}
			req.Error(err)
			req.NotNil(resp)
			req.Equal(http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestStartServer_ReportsCleanShutdown(t *testing.T) {
	req := require.New(t)
	server := CreateServer("127.0.0.1:0", http.HandlerFunc(HealthHandler))

	errs := make(chan error, 1)
	go func() { errs <- StartServer(server) }()

	req.Eventually(func() bool {
		return ShutdownServer(server, time.Second) == nil
	}, waitFor, 10*time.Millisecond)
	select {
	case err := <-errs:
		req.NoError(err)
	case <-time.After(waitFor):
		t.Fatal("server did not stop")
	}
}
