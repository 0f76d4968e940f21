package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dungeon-skill-sandbox/internal/config"
	"dungeon-skill-sandbox/internal/game"
	"dungeon-skill-sandbox/internal/monitor"
	"dungeon-skill-sandbox/internal/sandbox"
	"dungeon-skill-sandbox/internal/skills"
)

func newTestHandlers() *Handlers {
	engine := sandbox.NewEngine(game.NewSim(), sandbox.Config{})
	return NewHandlers(engine, skills.NewLibrary(nil), nil, nil, monitor.NewMetrics())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleValidate_Accepts(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleValidate, "/validate", ValidateRequest{
		Source: `game:move(Direction.E) return game:stats()`,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp ValidateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid {
		t.Errorf("Valid = false, errors: %v", resp.Errors)
	}
}

func TestHandleValidate_RejectsWithViolation(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleValidate, "/validate", ValidateRequest{
		Source: `local o = require("os") o.execute("ls")`,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp ValidateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Valid {
		t.Fatal("Valid = true for forbidden import")
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Category != "import" {
		t.Errorf("errors = %v, want one import violation", resp.Errors)
	}
}

func TestHandleValidate_SurfacesDetections(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleValidate, "/validate", ValidateRequest{
		Source: `local s = string.rep("x", 99999999)`,
	})

	var resp ValidateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range resp.Detections {
		if d.Pattern == "memory_bomb" {
			found = true
		}
	}
	if !found {
		t.Errorf("detections = %v, want memory_bomb", resp.Detections)
	}
}

func TestHandleValidate_MissingSource(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleValidate, "/validate", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestHandleExecute_Adhoc(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleExecute, "/execute", ExecuteRequest{
		Source: `game:move(Direction.E) game:move(Direction.E) return game:stats().turn`,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("Success = false, error: %s", resp.Error)
	}
	if resp.ActionsTaken != 2 || resp.TurnsElapsed != 2 {
		t.Errorf("actions/turns = %d/%d, want 2/2", resp.ActionsTaken, resp.TurnsElapsed)
	}
	if len(resp.APICalls) != 2 || resp.APICalls[0].Method != "move" {
		t.Errorf("api calls = %v", resp.APICalls)
	}
	if resp.ID == "" || resp.SourceHash == "" {
		t.Error("missing execution ID or source hash")
	}
}

func TestHandleExecute_ValidationRejected(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleExecute, "/execute", ExecuteRequest{
		Source: `load("return 1")()`,
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "VALIDATION_REJECTED" {
		t.Errorf("got code %q, want VALIDATION_REJECTED", resp.Code)
	}
}

func TestHandleExecute_RequestErrors(t *testing.T) {
	h := newTestHandlers()

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"empty body", map[string]string{}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"source and skill", ExecuteRequest{Source: "return 1", Skill: "x"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown skill", ExecuteRequest{Skill: "ghost"}, http.StatusNotFound, "SKILL_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleExecute, "/execute", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Code != tt.wantCode {
				t.Errorf("got code %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleExecute_SkillRunRecordsUse(t *testing.T) {
	h := newTestHandlers()

	source := `-- Hold position for one turn.
-- Category: tactics
function hold(game, args)
  return game:wait()
end`
	if _, err := h.library.Save(context.Background(), "hold", source); err != nil {
		t.Fatal(err)
	}

	rec := postJSON(t, h.HandleExecute, "/execute", ExecuteRequest{Skill: "hold"})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}
	var resp ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("Success = false, error: %s", resp.Error)
	}

	s, err := h.library.Get(context.Background(), "hold")
	if err != nil {
		t.Fatal(err)
	}
	if s.UseCount != 1 || s.SuccessCount != 1 {
		t.Errorf("usage = %d/%d, want 1/1", s.SuccessCount, s.UseCount)
	}
}

func TestHandleExecute_NamedWithParams(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleExecute, "/execute", ExecuteRequest{
		Source: `function approach(game, args)
  game:move(args.dir)
  return game:position()
end`,
		Mode:      "named",
		EntryName: "approach",
		Params:    map[string]any{"dir": "e"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}
	var resp ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("Success = false, error: %s", resp.Error)
	}
	pos, ok := resp.Payload.(map[string]any)
	if !ok || pos["x"] != float64(6) {
		t.Errorf("payload = %v, want position with x=6", resp.Payload)
	}
}

func TestHandleExecute_RuntimeErrorStillReturnsRecords(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleExecute, "/execute", ExecuteRequest{
		Source: `game:move(Direction.E) error("boom")`,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("Success = true for failed fragment")
	}
	if resp.Error == "" {
		t.Error("error message missing")
	}
	if len(resp.APICalls) != 1 {
		t.Errorf("api calls = %v, want the move before the error", resp.APICalls)
	}
}

func TestHandleListExecutions_NoDB(t *testing.T) {
	h := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/executions", nil)
	rec := httptest.NewRecorder()
	h.HandleListExecutions(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}

func TestHandleListExecutions_BadTimeFilter(t *testing.T) {
	h := newTestHandlers()

	tests := []struct {
		name  string
		query string
	}{
		{"bad since", "?since=yesterday"},
		{"bad until", "?until=2026-99-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/executions"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.HandleListExecutions(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleSaveSkill(t *testing.T) {
	h := newTestHandlers()

	rec := postJSON(t, h.HandleSaveSkill, "/skills", SkillSaveRequest{
		Name: "hold",
		Source: `-- Category: tactics
function hold(game, args) return game:wait() end`,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name       string
		req        SkillSaveRequest
		wantStatus int
	}{
		{"bad name", SkillSaveRequest{Name: "Bad-Name", Source: "function f(g) end"}, http.StatusBadRequest},
		{"forbidden source", SkillSaveRequest{Name: "bad", Source: `function bad(g) require("io") end`}, http.StatusUnprocessableEntity},
		{"no entry function", SkillSaveRequest{Name: "go", Source: `x = 1`}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleSaveSkill, "/skills", tt.req)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleGetAndDeleteSkill(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Security.AllowUnauthenticated = true
	engine := sandbox.NewEngine(game.NewSim(), sandbox.Config{})
	library := skills.NewLibrary(nil)
	srv := NewServer(cfg, engine, library, nil, nil, monitor.NewMetrics())

	source := `-- Category: tactics
function hold(game, args) return game:wait() end`
	if _, err := library.Save(context.Background(), "hold", source); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/skills/hold", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /skills/hold = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/skills/hold", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /skills/hold = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/skills/hold", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", rec.Code)
	}
}

func TestServerRoutes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Security.AllowedKeys = []string{"secret"}
	engine := sandbox.NewEngine(game.NewSim(), sandbox.Config{})
	srv := NewServer(cfg, engine, skills.NewLibrary(nil), nil, nil, monitor.NewMetrics())

	// Health and metrics bypass auth.
	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}

	// API routes require the key.
	body := bytes.NewReader([]byte(`{"source":"return 1"}`))
	req := httptest.NewRequest(http.MethodPost, "/execute", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated POST /execute = %d, want 401", rec.Code)
	}

	body = bytes.NewReader([]byte(`{"source":"return 1"}`))
	req = httptest.NewRequest(http.MethodPost, "/execute", body)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated POST /execute = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}
