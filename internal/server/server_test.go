package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/dramaturg/internal/engine"
	"github.com/MrWong99/dramaturg/internal/health"
	"github.com/MrWong99/dramaturg/internal/observe"
	"github.com/MrWong99/dramaturg/internal/server"
)

// stubSim is a hand-rolled Simulation double.
type stubSim struct {
	mu     sync.Mutex
	status engine.Status

	stepCompleted bool
	stepErr       error

	interveneOK  bool
	interveneMsg string

	endErr error

	subscribers []chan engine.Status
}

func (s *stubSim) Status() engine.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubSim) Step(_ context.Context) (bool, error) {
	return s.stepCompleted, s.stepErr
}

func (s *stubSim) Intervene(_ context.Context, _ string) (bool, string) {
	return s.interveneOK, s.interveneMsg
}

func (s *stubSim) EndScene(_ context.Context) error {
	return s.endErr
}

func (s *stubSim) Subscribe() (<-chan engine.Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan engine.Status, 8)
	s.subscribers = append(s.subscribers, ch)
	return ch, func() {}
}

func (s *stubSim) publish(st engine.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	for _, ch := range s.subscribers {
		ch <- st
	}
}

func newTestServer(t *testing.T, sim *stubSim, checkers ...health.Checker) *httptest.Server {
	t.Helper()
	srv := server.New(sim, observe.DefaultMetrics(), checkers)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &stubSim{})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyz_EngineError(t *testing.T) {
	sim := &stubSim{status: engine.Status{State: engine.StateError}}
	ts := newTestServer(t, sim)

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestReadyz_ExtraCheckerFails(t *testing.T) {
	sim := &stubSim{status: engine.Status{State: engine.StateIdle}}
	ts := newTestServer(t, sim, health.Checker{
		Name:  "storage",
		Check: func(context.Context) error { return errors.New("disk full") },
	})

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	body := decodeBody[map[string]any](t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	checks, _ := body["checks"].(map[string]any)
	if got, _ := checks["storage"].(string); !strings.Contains(got, "disk full") {
		t.Errorf("storage check = %q, want it to contain %q", got, "disk full")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubSim{})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	sim := &stubSim{status: engine.Status{
		State:        engine.StateIdle,
		SceneID:      "scene_001",
		Participants: []string{"alice", "bob"},
	}}
	ts := newTestServer(t, sim)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	got := decodeBody[engine.Status](t, resp)
	if got.SceneID != "scene_001" {
		t.Errorf("scene_id = %q, want %q", got.SceneID, "scene_001")
	}
	if len(got.Participants) != 2 {
		t.Errorf("participants = %v, want 2 entries", got.Participants)
	}
}

func TestTurn(t *testing.T) {
	sim := &stubSim{
		status:        engine.Status{State: engine.StateIdle, TurnsCompleted: 1},
		stepCompleted: false,
	}
	ts := newTestServer(t, sim)

	resp, err := http.Post(ts.URL+"/api/turn", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/turn: %v", err)
	}
	got := decodeBody[struct {
		Completed bool          `json:"completed"`
		Status    engine.Status `json:"status"`
	}](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got.Completed {
		t.Error("completed = true, want false")
	}
	if got.Status.TurnsCompleted != 1 {
		t.Errorf("turns_completed = %d, want 1", got.Status.TurnsCompleted)
	}
}

func TestTurn_NotRunning(t *testing.T) {
	sim := &stubSim{stepErr: engine.ErrNotRunning}
	ts := newTestServer(t, sim)

	resp, err := http.Post(ts.URL+"/api/turn", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/turn: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestIntervention(t *testing.T) {
	sim := &stubSim{interveneOK: true, interveneMsg: "situation updated: 雷が鳴った"}
	ts := newTestServer(t, sim)

	body := strings.NewReader(`{"command": "update_situation 雷が鳴った"}`)
	resp, err := http.Post(ts.URL+"/api/intervention", "application/json", body)
	if err != nil {
		t.Fatalf("POST /api/intervention: %v", err)
	}
	got := decodeBody[struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !got.OK {
		t.Error("ok = false, want true")
	}
	if !strings.Contains(got.Message, "situation updated") {
		t.Errorf("message = %q", got.Message)
	}
}

func TestIntervention_Rejected(t *testing.T) {
	sim := &stubSim{interveneOK: false, interveneMsg: `character "dave" not found`}
	ts := newTestServer(t, sim)

	body := strings.NewReader(`{"command": "add_character dave"}`)
	resp, err := http.Post(ts.URL+"/api/intervention", "application/json", body)
	if err != nil {
		t.Fatalf("POST /api/intervention: %v", err)
	}
	got := decodeBody[struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}](t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if got.OK {
		t.Error("ok = true, want false")
	}
}

func TestIntervention_BadBody(t *testing.T) {
	ts := newTestServer(t, &stubSim{})

	for _, body := range []string{`not json`, `{}`} {
		resp, err := http.Post(ts.URL+"/api/intervention", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /api/intervention: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestEnd(t *testing.T) {
	sim := &stubSim{status: engine.Status{State: engine.StateNotStarted}}
	ts := newTestServer(t, sim)

	resp, err := http.Post(ts.URL+"/api/end", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/end: %v", err)
	}
	got := decodeBody[engine.Status](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got.State != engine.StateNotStarted {
		t.Errorf("state = %q, want %q", got.State, engine.StateNotStarted)
	}
}

func TestWS_StreamsStatusUpdates(t *testing.T) {
	sim := &stubSim{status: engine.Status{State: engine.StateIdle, TurnsCompleted: 0}}
	ts := newTestServer(t, sim)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// First message is the snapshot at connect time.
	var first engine.Status
	if err := readWSJSON(ctx, conn, &first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.TurnsCompleted != 0 {
		t.Errorf("initial turns_completed = %d, want 0", first.TurnsCompleted)
	}

	sim.publish(engine.Status{State: engine.StateIdle, TurnsCompleted: 1})

	var second engine.Status
	if err := readWSJSON(ctx, conn, &second); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if second.TurnsCompleted != 1 {
		t.Errorf("updated turns_completed = %d, want 1", second.TurnsCompleted)
	}
}

func readWSJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
