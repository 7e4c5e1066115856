package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/cellgrid/internal/broadcast"
	"github.com/rickgao/cellgrid/internal/config"
	"github.com/rickgao/cellgrid/internal/connection"
	"github.com/rickgao/cellgrid/internal/health"
	"github.com/rickgao/cellgrid/internal/identity"
	"github.com/rickgao/cellgrid/internal/model"
	"github.com/rickgao/cellgrid/internal/reservation"
	"github.com/rickgao/cellgrid/internal/session"
	"github.com/rickgao/cellgrid/internal/store"
)

// fakeIdentity maps codes to profiles.
type fakeIdentity struct {
	profiles map[string]identity.Profile
}

func (f *fakeIdentity) AuthCodeURL(state string) string {
	return "https://id.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeIdentity) Authenticate(ctx context.Context, code string) (identity.Profile, error) {
	p, ok := f.profiles[code]
	if !ok {
		return identity.Profile{}, identity.ErrExchangeFailed
	}
	return p, nil
}

// fakeHealth reports a fixed connection state.
type fakeHealth struct {
	mu        sync.Mutex
	connected bool
}

func (f *fakeHealth) set(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *fakeHealth) Status() health.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return health.Status{Connected: f.connected}
}

type testEnv struct {
	server   *httptest.Server
	srv      *Server
	mem      *store.MemoryStore
	adapter  *store.Adapter
	engine   *reservation.Engine
	sessions *session.Manager
	health   *fakeHealth
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemoryStore()
	adapter := store.NewAdapter(mem.Dial)
	require.NoError(t, adapter.Reconnect(ctx))

	hub := broadcast.NewHub(broadcast.DefaultConfig(), nil)
	engine := reservation.NewEngine(reservation.DefaultConfig(), adapter, hub, nil)
	sessions := session.NewManager(config.SessionConfig{
		Secret:     strings.Repeat("s", 32),
		TTL:        time.Hour,
		CookieName: "cellgrid_session",
	})
	hc := &fakeHealth{connected: true}

	srv := New(Config{Conn: connection.DefaultConfig()}, Deps{
		Engine:   engine,
		Hub:      hub,
		Sessions: sessions,
		Identity: &fakeIdentity{profiles: map[string]identity.Profile{
			"code-alice": {ID: "1", Username: "alice"},
			"code-bob":   {ID: "2", Username: "bob"},
		}},
		Health: hc,
	}, nil)

	server := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		server.Close()
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Close(closeCtx)
		_ = adapter.Close()
	})

	return &testEnv{
		server:   server,
		srv:      srv,
		mem:      mem,
		adapter:  adapter,
		engine:   engine,
		sessions: sessions,
		health:   hc,
	}
}

// noRedirectClient returns a client with a cookie jar that does not follow redirects.
func noRedirectClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// login runs /login then /callback and returns the session cookie.
func (e *testEnv) login(t *testing.T, code string) *http.Cookie {
	t.Helper()
	client := noRedirectClient(t)

	resp, err := client.Get(e.server.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = client.Get(e.server.URL + "/callback?code=" + code + "&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	for _, c := range resp.Cookies() {
		if c.Name == "cellgrid_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (e *testEnv) getJSON(t *testing.T, path string, cookie *http.Cookie, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.Unmarshal(body, out), "body: %s", body)
	return resp.StatusCode
}

func (e *testEnv) dialWS(t *testing.T, cookie *http.Cookie) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if cookie != nil {
		header.Add("Cookie", cookie.Name+"="+cookie.Value)
	}
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.server.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, ws *websocket.Conn) wireEvent {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	require.NoError(t, ws.ReadJSON(&ev))
	return ev
}

// expectSilence asserts nothing arrives. The connection cannot be read afterwards.
func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := ws.ReadMessage()
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected no message, got err=%v", err)
}

func selectCell(t *testing.T, ws *websocket.Conn, row, col int) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{
		"event": "select_cell",
		"data":  map[string]int{"row": row, "col": col},
	}))
}

func waitObservers(t *testing.T, e *testEnv, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.srv.deps.Hub.Count() == n
	}, time.Second, 5*time.Millisecond)
}

func TestLoginFlow(t *testing.T) {
	e := newTestEnv(t)

	cookie := e.login(t, "code-alice")
	id, err := e.sessions.Parse(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, session.Identity{UserID: "1", Username: "alice"}, id)

	rec, err := e.adapter.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.Empty(t, rec.Cells)
}

func TestCallback_Rejects(t *testing.T) {
	e := newTestEnv(t)
	client := noRedirectClient(t)

	// No state cookie.
	resp, err := client.Get(e.server.URL + "/callback?code=code-alice&state=forged")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Valid state, unknown code.
	resp, err = client.Get(e.server.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	loc, _ := url.Parse(resp.Header.Get("Location"))

	resp, err = client.Get(e.server.URL + "/callback?code=bogus&state=" + url.QueryEscape(loc.Query().Get("state")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	_, err = e.adapter.Get(context.Background(), "1")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestSearchOwner(t *testing.T) {
	e := newTestEnv(t)
	e.login(t, "code-alice")

	_, err := e.engine.Toggle(context.Background(), "1", 1, 0)
	require.NoError(t, err)

	var owner map[string]any
	code := e.getJSON(t, "/search_owner?cell_number=101", nil, &owner)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"owner": "alice"}, owner)

	owner = nil
	code = e.getJSON(t, "/search_owner?cell_number=1", nil, &owner)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"owner": nil}, owner)

	for _, bad := range []string{"", "abc", "0", "10001", "-5"} {
		var resp errorResponse
		code := e.getJSON(t, "/search_owner?cell_number="+bad, nil, &resp)
		assert.Equal(t, http.StatusBadRequest, code, "cell_number=%q", bad)
		assert.Equal(t, MsgInvalidCellNumber, resp.Error)
	}
}

func TestGrid(t *testing.T) {
	e := newTestEnv(t)
	alice := e.login(t, "code-alice")
	e.login(t, "code-bob")
	ctx := context.Background()

	_, err := e.engine.Toggle(ctx, "1", 0, 0)
	require.NoError(t, err)
	_, err = e.engine.Toggle(ctx, "2", 0, 1)
	require.NoError(t, err)

	var view struct {
		User               *userInfo `json:"user"`
		UserCells          [][2]int  `json:"user_cells"`
		OtherCells         [][2]int  `json:"other_cells"`
		UserSelectedCount  int       `json:"user_selected_count"`
		TotalSelectedCount int       `json:"total_selected_count"`
		MaxSelections      int       `json:"max_selections"`
	}
	code := e.getJSON(t, "/api/grid", alice, &view)
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, view.User)
	assert.Equal(t, "alice", view.User.Username)
	assert.Equal(t, [][2]int{{0, 0}}, view.UserCells)
	assert.Equal(t, [][2]int{{0, 1}}, view.OtherCells)
	assert.Equal(t, 1, view.UserSelectedCount)
	assert.Equal(t, 2, view.TotalSelectedCount)
	assert.Equal(t, 10, view.MaxSelections)

	view.User = nil
	code = e.getJSON(t, "/api/grid", nil, &view)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, view.User)
	assert.Empty(t, view.UserCells)
	assert.Len(t, view.OtherCells, 2)

	e.mem.SetDown(true)
	var errResp errorResponse
	code = e.getJSON(t, "/api/grid", nil, &errResp)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, MsgStoreUnavailable, errResp.Error)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	var body map[string]any
	code := e.getJSON(t, "/health", nil, &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	e.health.set(false)
	body = nil
	code = e.getJSON(t, "/health", nil, &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestWS_ToggleBroadcastsToAll(t *testing.T) {
	e := newTestEnv(t)
	alice := e.login(t, "code-alice")

	actor := e.dialWS(t, alice)
	watcher := e.dialWS(t, nil)
	waitObservers(t, e, 2)

	selectCell(t, actor, 4, 2)

	for _, ws := range []*websocket.Conn{actor, watcher} {
		ev := readEvent(t, ws)
		assert.Equal(t, "update_cell", ev.Event)
		assert.JSONEq(t, `{
			"row": 4, "col": 2, "cell_selected": true, "user_id": "1",
			"user_selected_count": 1, "total_selected_count": 1
		}`, string(ev.Data))
	}

	selectCell(t, actor, 4, 2)
	for _, ws := range []*websocket.Conn{actor, watcher} {
		ev := readEvent(t, ws)
		var u broadcast.CellUpdate
		require.NoError(t, json.Unmarshal(ev.Data, &u))
		assert.False(t, u.Selected)
		assert.Equal(t, 0, u.TotalSelectedCount)
	}
}

func TestWS_ErrorsArePrivate(t *testing.T) {
	e := newTestEnv(t)
	alice := e.login(t, "code-alice")
	bob := e.login(t, "code-bob")

	aliceWS := e.dialWS(t, alice)
	bobWS := e.dialWS(t, bob)
	anonWS := e.dialWS(t, nil)
	waitObservers(t, e, 3)

	// Anonymous toggle.
	selectCell(t, anonWS, 0, 0)
	ev := readEvent(t, anonWS)
	assert.Equal(t, "error", ev.Event)
	assert.JSONEq(t, `{"error":"User not logged in"}`, string(ev.Data))

	// Cell taken. Alice's first frame must be her own update, not the error above.
	selectCell(t, aliceWS, 0, 0)
	for _, ws := range []*websocket.Conn{aliceWS, bobWS, anonWS} {
		assert.Equal(t, "update_cell", readEvent(t, ws).Event)
	}
	selectCell(t, bobWS, 0, 0)
	ev = readEvent(t, bobWS)
	assert.Equal(t, "error", ev.Event)
	assert.JSONEq(t, `{"error":"Cell already taken"}`, string(ev.Data))
	expectSilence(t, aliceWS)

	// Out of range.
	selectCell(t, bobWS, 100, 0)
	ev = readEvent(t, bobWS)
	assert.JSONEq(t, `{"error":"Cell out of range"}`, string(ev.Data))

	// Malformed payload.
	require.NoError(t, bobWS.WriteMessage(websocket.TextMessage, []byte(`{"event":"select_cell","data":{"row":1}}`)))
	ev = readEvent(t, bobWS)
	assert.JSONEq(t, `{"error":"Invalid request"}`, string(ev.Data))
	expectSilence(t, anonWS)
}

func TestWS_QuotaAndOutage(t *testing.T) {
	e := newTestEnv(t)
	alice := e.login(t, "code-alice")
	ws := e.dialWS(t, alice)
	waitObservers(t, e, 1)

	for i := 0; i < 10; i++ {
		selectCell(t, ws, 0, i)
		assert.Equal(t, "update_cell", readEvent(t, ws).Event)
	}

	selectCell(t, ws, 0, 10)
	ev := readEvent(t, ws)
	assert.JSONEq(t, `{"error":"Selection limit reached"}`, string(ev.Data))

	e.mem.SetDown(true)
	selectCell(t, ws, 0, 0)
	ev = readEvent(t, ws)
	assert.JSONEq(t, `{"error":"Store unavailable"}`, string(ev.Data))

	e.mem.SetDown(false)
	require.NoError(t, e.adapter.Reconnect(context.Background()))
	selectCell(t, ws, 0, 0)
	ev = readEvent(t, ws)
	assert.Equal(t, "update_cell", ev.Event)
	var u broadcast.CellUpdate
	require.NoError(t, json.Unmarshal(ev.Data, &u))
	assert.False(t, u.Selected)
	assert.Equal(t, 9, u.UserSelectedCount)
}

func TestServe_Shutdown(t *testing.T) {
	e := newTestEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestToggleContext_IgnoresParentCancel(t *testing.T) {
	e := newTestEnv(t)
	e.srv.cfg.ToggleTimeout = time.Minute

	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "v"))
	cancel()

	ctx, stop := e.srv.toggleContext(parent)
	defer stop()

	assert.NoError(t, ctx.Err())
	assert.Equal(t, "v", ctx.Value(key{}))
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

// A select_cell whose connection is already gone still persists and broadcasts.
func TestSelectCell_CancelledConnectionStillCommits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.engine.Register(ctx, "1", "alice")
	require.NoError(t, err)

	watcher := e.dialWS(t, nil)
	waitObservers(t, e, 1)

	connCtx, cancel := context.WithCancel(ctx)
	cancel()
	e.srv.selectCell(connCtx, "gone", "1", connection.Message{
		Event: connection.EventSelectCell,
		Data:  json.RawMessage(`{"row": 7, "col": 3}`),
	})

	rec, err := e.adapter.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []model.Cell{{Row: 7, Col: 3}}, rec.Cells)

	ev := readEvent(t, watcher)
	assert.Equal(t, "update_cell", ev.Event)
	var u broadcast.CellUpdate
	require.NoError(t, json.Unmarshal(ev.Data, &u))
	assert.True(t, u.Selected)
	assert.Equal(t, 7, u.Row)
	assert.Equal(t, 3, u.Col)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{reservation.ErrUnauthenticated, MsgNotLoggedIn},
		{reservation.ErrQuotaExceeded, MsgSelectionLimit},
		{reservation.ErrCellTaken, MsgCellTaken},
		{reservation.ErrOutOfRange, MsgCellOutOfRange},
		{store.ErrStoreUnavailable, MsgStoreUnavailable},
		{connection.ErrBadMessage, MsgInvalidRequest},
		{errors.New("boom"), MsgInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorMessage(tt.err), "error %v", tt.err)
	}
}
