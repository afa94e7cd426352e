package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"voxelmind.ai/internal/observerproto"
	"voxelmind.ai/internal/sim/nav"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(nil)
	s.BootstrapFn = func() observerproto.BootstrapResponse {
		return observerproto.BootstrapResponse{Tick: 42, WorldParams: observerproto.WorldParams{TickRateHz: 20}}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/observer/ws", s.WSHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(func() {
		s.Close()
		hs.Close()
	})
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/observer/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return c
}

func waitSessions(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.Sessions() != n {
		if time.Now().After(deadline) {
			t.Fatalf("sessions=%d want=%d", s.Sessions(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readType(t *testing.T, c *websocket.Conn) (string, []byte) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return head.Type, b
}

func TestObserverStreamsFilteredEvents(t *testing.T) {
	s, hs := startServer(t)
	c := dial(t, hs, observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		EntityIDs:       []string{"a"},
		Paths:           true,
	})
	waitSessions(t, s, 1)

	s.PathDebug(nav.DebugSnapshot{Tick: 1, EntityID: "b"})
	s.PathDebug(nav.DebugSnapshot{Tick: 1, EntityID: "a", NextIndex: 3})
	s.PathIncident(nav.Incident{Tick: 2, EntityID: "b", Kind: nav.IncidentStuck})
	s.PublishTick(observerproto.TickMsg{Tick: 2, Mobs: []observerproto.MobState{{ID: "a"}, {ID: "b"}}})

	typ, b := readType(t, c)
	if typ != observerproto.TypePath {
		t.Fatalf("first message type=%s", typ)
	}
	var pm observerproto.PathMsg
	_ = json.Unmarshal(b, &pm)
	if pm.Path.EntityID != "a" || pm.Path.NextIndex != 3 {
		t.Fatalf("path=%+v", pm.Path)
	}
	typ, b = readType(t, c)
	if typ != observerproto.TypeTick {
		t.Fatalf("second message type=%s", typ)
	}
	var tm observerproto.TickMsg
	_ = json.Unmarshal(b, &tm)
	if tm.Tick != 2 || len(tm.Mobs) != 2 || tm.ProtocolVersion != observerproto.Version {
		t.Fatalf("tick=%+v", tm)
	}
}

func TestObserverWithoutPathsSkipsPathMessages(t *testing.T) {
	s, hs := startServer(t)
	c := dial(t, hs, observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version})
	waitSessions(t, s, 1)

	s.PathDebug(nav.DebugSnapshot{Tick: 1, EntityID: "a"})
	s.PathIncident(nav.Incident{Tick: 1, EntityID: "a", Kind: nav.IncidentTimeout})
	typ, _ := readType(t, c)
	if typ != observerproto.TypeIncident {
		t.Fatalf("type=%s", typ)
	}
}

func TestObserverRejectsBadHandshake(t *testing.T) {
	s, hs := startServer(t)
	c := dial(t, hs, observerproto.SubscribeMsg{Type: "HELLO", ProtocolVersion: observerproto.Version})
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v", err)
	}
	if s.Sessions() != 0 {
		t.Fatalf("rejected client was registered")
	}
}

func TestObserverCloseDisconnects(t *testing.T) {
	s, hs := startServer(t)
	c := dial(t, hs, observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version})
	waitSessions(t, s, 1)
	s.Close()
	waitSessions(t, s, 0)
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to end")
	}
}

func TestBootstrap(t *testing.T) {
	_, hs := startServer(t)
	resp, err := http.Get(hs.URL + "/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.ProtocolVersion != observerproto.Version || b.Tick != 42 || b.WorldParams.TickRateHz != 20 {
		t.Fatalf("bootstrap=%+v", b)
	}

	post, err := http.Post(hs.URL+"/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", post.StatusCode)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
