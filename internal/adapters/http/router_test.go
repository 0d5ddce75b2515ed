package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/farmpulse/internal/adapters/auth"
	"github.com/dkeye/farmpulse/internal/adapters/store"
	"github.com/dkeye/farmpulse/internal/app"
	"github.com/dkeye/farmpulse/internal/app/notify"
	"github.com/dkeye/farmpulse/internal/app/orch"
	"github.com/dkeye/farmpulse/internal/app/outbreak"
	"github.com/dkeye/farmpulse/internal/config"
	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/core/mocks"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/mock/gomock"
)

type recConn struct {
	mu     sync.Mutex
	frames []map[string]any
	closed bool
}

func (c *recConn) TrySend(f core.Frame) error {
	var m map[string]any
	_ = json.Unmarshal(f, &m)
	c.mu.Lock()
	c.frames = append(c.frames, m)
	c.mu.Unlock()
	return nil
}

func (c *recConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type fixture struct {
	router   *gin.Engine
	orch     *orch.Orchestrator
	db       *store.SQLiteStore
	verifier *auth.JWTVerifier
	farmer   *domain.User
	vet      *domain.User
	admin    *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	verifier, err := auth.NewJWTVerifier("test-secret", "HS256")
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{db: db, verifier: verifier}
	for _, u := range []struct {
		dst  **domain.User
		mail string
		role domain.UserRole
	}{
		{&f.farmer, "farmer@test.com", domain.UserRoleFarmer},
		{&f.vet, "vet@test.com", domain.UserRoleVet},
		{&f.admin, "admin@test.com", domain.UserRoleAdmin},
	} {
		user, _ := domain.NewUser(u.mail, "Test "+string(u.role), u.role)
		if err := db.UpsertUser(ctx, user); err != nil {
			t.Fatal(err)
		}
		*u.dst = user
	}

	reg := app.NewRegistry()
	f.orch = orch.New(reg, app.NewSessions())
	f.orch.Users = db
	f.orch.Notifier = &notify.Notifier{Live: reg, Users: db}

	cfg := &config.Config{
		Mode:       "test",
		Secret:     "cookie-secret",
		PingPeriod: time.Minute,
		SendBuffer: 8,
		ICEServers: []config.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	}
	f.router = SetupRouter(ctx, cfg, Deps{Orch: f.orch, Verifier: verifier, Calls: db, Reports: db})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, as *domain.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := f.verifier.Issue(domain.Identity{ID: as.ID, Role: as.Role}, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func (f *fixture) report(t *testing.T) *domain.Report {
	t.Helper()
	r := &domain.Report{FarmerID: f.farmer.ID, DiseaseLabel: "Late Blight", Location: &domain.Point{Lng: 36.82, Lat: -1.29}}
	if err := f.db.InsertReport(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Errorf("healthz: %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/signaling/ice-servers", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ice-servers: %d", w.Code)
	}
	servers := decode(t, w)["ice_servers"].([]any)
	if len(servers) != 1 {
		t.Errorf("unexpected ice servers %v", servers)
	}

	if w := f.do(t, http.MethodGet, "/metrics", nil, nil); w.Code != http.StatusOK {
		t.Errorf("metrics: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/signaling/sessions/active", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
}

func TestRouter_CallRecordLifecycle(t *testing.T) {
	f := newFixture(t)
	r := f.report(t)

	vetLive := &recConn{}
	f.orch.ConnectUser(f.vet.ID, vetLive)

	w := f.do(t, http.MethodPost, "/api/signaling/sessions", f.farmer, CreateSessionRequest{ReportID: r.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["session_id"].(string)

	if len(vetLive.frames) != 1 || vetLive.frames[0]["type"] != "new_session" || vetLive.frames[0]["session_id"] != id {
		t.Errorf("vet not told about new session: %v", vetLive.frames)
	}

	w = f.do(t, http.MethodGet, "/api/signaling/sessions/active", f.vet, nil)
	var active []map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &active)
	if w.Code != http.StatusOK || len(active) != 1 {
		t.Fatalf("active: %d %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodPatch, "/api/signaling/sessions/"+id+"/join", f.farmer, nil); w.Code != http.StatusForbidden {
		t.Errorf("farmer join: expected 403, got %d", w.Code)
	}
	w = f.do(t, http.MethodPatch, "/api/signaling/sessions/"+id+"/join", f.vet, nil)
	if w.Code != http.StatusOK || decode(t, w)["vet_id"] != string(f.vet.ID) {
		t.Fatalf("join: %d %s", w.Code, w.Body.String())
	}

	// live sockets attached to the call are dropped when it ends
	farmerSig, vetSig := &recConn{}, &recConn{}
	f.orch.JoinCall(domain.CallID(id), domain.RoleFarmer, farmerSig)
	f.orch.JoinCall(domain.CallID(id), domain.RoleVet, vetSig)

	w = f.do(t, http.MethodPost, "/api/signaling/sessions/"+id+"/end", f.vet, EndSessionRequest{Notes: "follow up"})
	if w.Code != http.StatusOK {
		t.Fatalf("end: %d %s", w.Code, w.Body.String())
	}
	if !farmerSig.closed || !vetSig.closed {
		t.Error("signaling sockets not closed on end")
	}
	if f.orch.Sessions.State(domain.CallID(id)) != app.StateClosed {
		t.Error("live session survived end")
	}

	w = f.do(t, http.MethodGet, "/api/signaling/sessions/"+id, f.vet, nil)
	rec := decode(t, w)
	if rec["active"] != false || rec["session_notes"] != "follow up" {
		t.Errorf("unexpected stored record %v", rec)
	}
}

func TestRouter_CreateSessionChecks(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodPost, "/api/signaling/sessions", f.farmer, CreateSessionRequest{ReportID: "nope"}); w.Code != http.StatusNotFound {
		t.Errorf("missing report: expected 404, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/signaling/sessions", f.farmer, map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty body: expected 400, got %d", w.Code)
	}

	other, _ := domain.NewUser("other@test.com", "Other", domain.UserRoleFarmer)
	_ = f.db.UpsertUser(context.Background(), other)
	r := f.report(t)
	if w := f.do(t, http.MethodPost, "/api/signaling/sessions", other, CreateSessionRequest{ReportID: r.ID}); w.Code != http.StatusForbidden {
		t.Errorf("foreign report: expected 403, got %d", w.Code)
	}
}

func TestRouter_LiveSnapshot(t *testing.T) {
	f := newFixture(t)
	f.orch.JoinCall("call-9", domain.RoleFarmer, &recConn{})

	w := f.do(t, http.MethodGet, "/api/signaling/sessions/call-9/live", f.vet, nil)
	if w.Code != http.StatusOK || decode(t, w)["state"] != "OPEN" {
		t.Errorf("snapshot: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodGet, "/api/signaling/sessions/other/live", f.vet, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRouter_AdminLiveState(t *testing.T) {
	f := newFixture(t)
	live := &recConn{}
	f.orch.ConnectUser(f.vet.ID, live)
	f.orch.JoinCall("call-3", domain.RoleFarmer, &recConn{})

	w := f.do(t, http.MethodGet, "/api/admin/live", f.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("live state: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	conns := body["connections"].([]any)
	if len(conns) != 2 || conns[0] != "call:call-3:farmer" || conns[1] != "user:"+string(f.vet.ID) {
		t.Errorf("connections: %v", conns)
	}
	sessions := body["sessions"].([]any)
	if len(sessions) != 1 || sessions[0].(map[string]any)["session_id"] != "call-3" {
		t.Errorf("sessions: %v", sessions)
	}

	if w := f.do(t, http.MethodGet, "/api/admin/live", f.vet, nil); w.Code != http.StatusForbidden {
		t.Errorf("vet: expected 403, got %d", w.Code)
	}

	if w := f.do(t, http.MethodDelete, "/api/admin/live/"+string(f.vet.ID), f.admin, nil); w.Code != http.StatusNoContent {
		t.Fatalf("kick: %d %s", w.Code, w.Body.String())
	}
	if !live.closed {
		t.Error("kicked connection should be closed")
	}
	if _, ok := f.orch.Registry.Lookup(core.UserKey(f.vet.ID)); ok {
		t.Error("kicked user still registered")
	}
	if w := f.do(t, http.MethodDelete, "/api/admin/live/"+string(f.vet.ID), f.admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("second kick: expected 404, got %d", w.Code)
	}
}

func TestRouter_Notifications(t *testing.T) {
	f := newFixture(t)
	live := &recConn{}
	f.orch.ConnectUser(f.farmer.ID, live)

	w := f.do(t, http.MethodPost, "/api/notifications", f.admin, NotificationRequest{
		UserID:   f.farmer.ID,
		Title:    "Visit",
		Message:  "Vet arrives tomorrow",
		Channels: []string{"in_app", "sms"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("notify: %d %s", w.Code, w.Body.String())
	}
	deliveries := decode(t, w)["deliveries"].([]any)
	first, second := deliveries[0].(map[string]any), deliveries[1].(map[string]any)
	if first["channel"] != "live" || first["delivered"] != true {
		t.Errorf("live: %v", first)
	}
	if second["channel"] != "sms" || second["delivered"] != false {
		t.Errorf("sms without provider should fail: %v", second)
	}
	if len(live.frames) != 1 || live.frames[0]["title"] != "Visit" {
		t.Errorf("live frame: %v", live.frames)
	}

	if w := f.do(t, http.MethodPost, "/api/notifications", f.farmer, NotificationRequest{UserID: "x", Title: "t"}); w.Code != http.StatusForbidden {
		t.Errorf("farmer: expected 403, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/notifications", f.admin, NotificationRequest{UserID: "x", Title: "t", Channels: []string{"fax"}}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown channel: expected 400, got %d", w.Code)
	}
}

func TestRouter_OutbreakEvent(t *testing.T) {
	f := newFixture(t)
	r := f.report(t)

	if w := f.do(t, http.MethodPost, "/api/outbreak/events", f.vet, OutbreakEventRequest{ReportID: r.ID}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without trigger: expected 503, got %d", w.Code)
	}

	ctrl := gomock.NewController(t)
	idx := mocks.NewMockGeoIndex(ctrl)
	idx.EXPECT().RecordEvent(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev domain.OutbreakEvent) error {
		if ev.DiseaseLabel != "Late Blight" || ev.Location != *r.Location {
			t.Errorf("event not taken from report: %+v", ev)
		}
		return nil
	})
	idx.EXPECT().CountNearby(gomock.Any(), "Late Blight", *r.Location, 50.0, gomock.Any()).Return(2, nil)

	f.orch.Outbreak = &outbreak.Trigger{
		Index:  idx,
		Notify: f.orch.Notifier,
		Policy: app.OutbreakPolicy{Threshold: 5, RadiusKm: 50, Window: 168 * time.Hour},
	}
	w := f.do(t, http.MethodPost, "/api/outbreak/events", f.vet, OutbreakEventRequest{ReportID: r.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("event: %d %s", w.Code, w.Body.String())
	}
	if got := decode(t, w); got["raised"] != false || got["affected_count"] != 2.0 {
		t.Errorf("unexpected alert %v", got)
	}

	w = f.do(t, http.MethodPost, "/api/outbreak/events", f.vet, OutbreakEventRequest{DiseaseLabel: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("no location: expected 400, got %d", w.Code)
	}
}
