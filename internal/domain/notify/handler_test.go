package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notifyhub/internal/common"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   *common.APIError `json:"error"`
}

func newTestRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/service"))
	return r
}

func doRequest(t *testing.T, r http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return w, env
}

func TestHandlerNotify(t *testing.T) {
	svc, a := newTestService(t, nil, nil)
	r := newTestRouter(t, svc)

	w, env := doRequest(t, r, http.MethodPost, "/api/service/notify",
		`{"route_id":"r","title":"Backup","content":"done","push_link_url":"https://example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if !env.Success {
		t.Errorf("expected success envelope")
	}

	var res DispatchResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if res.RouteID != "r" || res.OverallStatus != OverallSuccess || len(res.Attempts) != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := a.Last(); got.Title != "Backup" || got.Body != "done" || got.LinkURL != "https://example.com" {
		t.Errorf("message = %+v", got)
	}
}

func TestHandlerNotifyErrors(t *testing.T) {
	svc, a := newTestService(t, nil, nil)
	r := newTestRouter(t, svc)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"route_id":`, http.StatusBadRequest},
		{"missing route", `{"title":"x"}`, http.StatusBadRequest},
		{"unknown route", `{"route_id":"ghost"}`, http.StatusNotFound},
		{"disabled route", `{"route_id":"off"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doRequest(t, r, http.MethodPost, "/api/service/notify", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("envelope = %+v", env)
			}
		})
	}
	if a.Calls() != 0 {
		t.Errorf("expected no sends got %d", a.Calls())
	}
}

func TestHandlerNotifyReportsFailedDelivery(t *testing.T) {
	a := newFakeAdapter(ChannelBark, failWith(KindAuth))
	reg := newTestRegistry(t, a)
	holder := newTestHolder(t, reg, SnapshotData{
		Channels: []Channel{newChannel("a", ChannelBark)},
		Routes:   []Route{newRoute("r", "a")},
	})
	svc := NewService(NewEngine(holder, reg, fakeRenderer{}, testEngineConfig()), holder, nil, nil)
	r := newTestRouter(t, svc)

	w, env := doRequest(t, r, http.MethodPost, "/api/service/notify", `{"route_id":"r"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if env.Success {
		t.Error("expected success=false when no channel delivered")
	}
	if !strings.Contains(string(env.Data), `"overall_status":"failure"`) {
		t.Errorf("data = %s", env.Data)
	}
}

func TestHandlerNotifyPath(t *testing.T) {
	svc, a := newTestService(t, nil, nil)
	r := newTestRouter(t, svc)

	w, env := doRequest(t, r, http.MethodGet, "/api/service/notify/r/Hello%20there/All%20good?push_img_url=https://img.example.com/a.png", "")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected 200 success got %d: %s", w.Code, w.Body.String())
	}
	got := a.Last()
	if got.Title != "Hello there" || got.Body != "All good" || got.ImageURL != "https://img.example.com/a.png" {
		t.Errorf("message = %+v", got)
	}

	w, _ = doRequest(t, r, http.MethodPost, "/api/service/notify/r/T/C", `{"push_link_url":"https://example.com/x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if got := a.Last(); got.LinkURL != "https://example.com/x" || got.Title != "T" {
		t.Errorf("message = %+v", got)
	}

	w, _ = doRequest(t, r, http.MethodPost, "/api/service/notify/r/T/C", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty body got %d: %s", w.Code, w.Body.String())
	}

	w, _ = doRequest(t, r, http.MethodGet, "/api/service/notify/ghost/T/C", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 got %d", w.Code)
	}
}

func TestHandlerNotifyAsync(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _ := newTestService(t, enq, nil)
	r := newTestRouter(t, svc)

	w, env := doRequest(t, r, http.MethodPost, "/api/service/async/notify", `{"route_id":"r","title":"x"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", w.Code, w.Body.String())
	}
	var resp EnqueueResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.TaskID != "task-1" {
		t.Errorf("task id = %q", resp.TaskID)
	}
}

func TestHandlerQuotaExceeded(t *testing.T) {
	svc, _ := newTestService(t, nil, &fakeLimiter{allow: false})
	r := newTestRouter(t, svc)

	w, _ := doRequest(t, r, http.MethodPost, "/api/service/notify", `{"route_id":"r"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 got %d", w.Code)
	}
}

func TestHandlerIntrospection(t *testing.T) {
	svc, a := newTestService(t, nil, nil)
	r := newTestRouter(t, svc)

	w, env := doRequest(t, r, http.MethodGet, "/api/service/channels", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if strings.Contains(string(env.Data), "abc") {
		t.Errorf("channel listing leaked a secret: %s", env.Data)
	}

	w, env = doRequest(t, r, http.MethodGet, "/api/service/routes", "")
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"id":"r"`) {
		t.Errorf("routes = %d %s", w.Code, env.Data)
	}

	w, env = doRequest(t, r, http.MethodPost, "/api/service/channels/a/test", "")
	if w.Code != http.StatusOK || !env.Success || a.Calls() != 1 {
		t.Errorf("test channel = %d success=%v sends=%d", w.Code, env.Success, a.Calls())
	}

	w, _ = doRequest(t, r, http.MethodPost, "/api/service/channels/ghost/test", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 got %d", w.Code)
	}
}
