package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(zaptest.NewLogger(t))
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func submitJob(t *testing.T, srv *httptest.Server, path, body string) string {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 on submit, got %d", resp.StatusCode)
	}
	var accepted struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode accept: %v", err)
	}
	if accepted.JobID == "" {
		t.Fatalf("submit returned empty job_id")
	}
	return accepted.JobID
}

func TestGenerateJobLifecycle(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)
	id := submitJob(t, srv, "/generate", `{"prompt":"red castle"}`)

	resp, err := http.Get(srv.URL + "/generate/" + id)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on completed job, got %d", resp.StatusCode)
	}

	var result struct {
		PNGURL string `json:"png_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.PNGURL != "/results/red-castle.png" {
		t.Fatalf("unexpected png_url: %s", result.PNGURL)
	}
}

func TestPollPendingWhileDelayed(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t)
	s.Delay = time.Hour
	id := submitJob(t, srv, "/detect_inventory", `{"image":"base64data"}`)

	resp, err := http.Get(srv.URL + "/detect_inventory/" + id)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 while pending, got %d", resp.StatusCode)
	}
}

func TestPollUnknownJob(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/generate/no-such-job")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestFailJobReportsTerminalFailure(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t)
	id := submitJob(t, srv, "/generate", `{"prompt":"castle"}`)
	s.FailJob(id)

	resp, err := http.Get(srv.URL + "/generate/" + id)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 on failed job, got %d", resp.StatusCode)
	}
}

func TestSubmitRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t)
	s.Token = "secret"

	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"prompt":"x"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/generate", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d", resp.StatusCode)
	}
}

func dialRoom(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial room: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return string(data)
}

func TestRoomBroadcastAndCommands(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)

	alice := dialRoom(t, srv, "build")
	if got := readFrame(t, alice); got != "PEERS 1" {
		t.Fatalf("expected PEERS 1, got %q", got)
	}

	bob := dialRoom(t, srv, "build")
	if got := readFrame(t, bob); got != "PEERS 2" {
		t.Fatalf("expected PEERS 2, got %q", got)
	}
	if got := readFrame(t, alice); got != "PEERS 2" {
		t.Fatalf("expected PEERS 2 for first peer, got %q", got)
	}

	// Edits reach every peer except the sender.
	if err := alice.WriteMessage(websocket.TextMessage, []byte("place 2x4 at 0,0")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, bob); got != "place 2x4 at 0,0" {
		t.Fatalf("expected the edit, got %q", got)
	}

	// Undo from a different peer retracts the shared history.
	if err := bob.WriteMessage(websocket.TextMessage, []byte("/undo")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, alice); got != "UNDO: place 2x4 at 0,0" {
		t.Fatalf("expected undo echo, got %q", got)
	}

	if err := bob.WriteMessage(websocket.TextMessage, []byte("/redo")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, alice); got != "REDO: place 2x4 at 0,0" {
		t.Fatalf("expected redo echo, got %q", got)
	}

	if err := alice.WriteMessage(websocket.TextMessage, []byte("/chat hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, bob); got != "CHAT: hi" {
		t.Fatalf("expected chat echo, got %q", got)
	}
}

func TestRoomReplaysHistoryToNewcomer(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)

	alice := dialRoom(t, srv, "replay")
	if got := readFrame(t, alice); got != "PEERS 1" {
		t.Fatalf("expected PEERS 1, got %q", got)
	}
	for _, edit := range []string{"edit-1", "edit-2"} {
		if err := alice.WriteMessage(websocket.TextMessage, []byte(edit)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := alice.WriteMessage(websocket.TextMessage, []byte("/chat welcome")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Whether a frame was already in the history when bob joined or arrives
	// as a live broadcast afterwards, bob sees it exactly once and in order.
	bob := dialRoom(t, srv, "replay")
	if got := readFrame(t, bob); got != "PEERS 2" {
		t.Fatalf("expected PEERS 2, got %q", got)
	}
	if got := readFrame(t, bob); got != "edit-1" {
		t.Fatalf("expected first edit, got %q", got)
	}
	if got := readFrame(t, bob); got != "edit-2" {
		t.Fatalf("expected second edit in replay, got %q", got)
	}
	if got := readFrame(t, bob); got != "CHAT: welcome" {
		t.Fatalf("expected chat replay, got %q", got)
	}
}
