package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"water_timer/internal/models"
	"water_timer/internal/service"

	"github.com/gin-gonic/gin"
)

func TestLogsHandler_ListAndValidation(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	now := time.Now().UTC().Truncate(time.Second)
	events := []models.WateringEvent{
		{EventID: "e1", OccurredAt: now, Type: "RUN_START", Description: "valve opened"},
		{EventID: "e2", OccurredAt: now.Add(1 * time.Second), Type: "CATCH_UP", Description: "next run moved forward by 1 period(s)"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
	}
	r := newTestRouter(s)

	// Missing/invalid 'from' → 400
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs?from=notatime", nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}

	// Valid range and type (lowercase type should be normalized to upper in service call)
	w = httptest.NewRecorder()
	q := "/api/v1/logs?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) + "&type=catch_up"
	req = httptest.NewRequest(http.MethodGet, q, nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                   `json:"count"`
		Events []models.WateringEvent `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastType != "CATCH_UP" {
		t.Fatalf("expected lastType CATCH_UP, got %q", logs.lastType)
	}
}

func TestLogsHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "filter rejected", err: fmt.Errorf("%w: unknown event type", service.ErrInvalidFilter), want: http.StatusBadRequest},
		{name: "repository failure", err: errors.New("db locked"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &service.Service{Authorization: &mockAuth{parseID: 1}, EventLog: &mockEventLog{err: tc.err}}
			r := newTestRouter(s)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/logs?type=anything", nil)
			req.Header.Set("Authorization", "Bearer valid")
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestLogsHandler_DateOnlyToIsEndOfDay(t *testing.T) {
	logs := &mockEventLog{}
	r := newTestRouter(&service.Service{EventLog: logs}, WithAuth(false))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/logs?from=2025-08-01&to=2025-08-02", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := time.Date(2025, 8, 2, 23, 59, 59, 999999999, time.UTC)
	if !logs.lastTo.Equal(want) {
		t.Fatalf("to=%v want %v", logs.lastTo, want)
	}
}

func TestParseLogFilter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		query   string
		want    service.LogFilter
		wantMsg string
	}{
		{name: "empty", query: "", want: service.LogFilter{}},
		{name: "since window", query: "since=24h&type=run_end", want: service.LogFilter{From: now.Add(-24 * time.Hour), Type: "RUN_END"}},
		{name: "limit", query: "limit=5", want: service.LogFilter{Limit: 5}},
		{name: "since and from", query: "since=1h&from=2025-05-01", wantMsg: errSinceAndFrom},
		{name: "negative since", query: "since=-1h", wantMsg: errSinceInvalid},
		{name: "bad since", query: "since=yesterday", wantMsg: errSinceInvalid},
		{name: "limit zero", query: "limit=0", wantMsg: errLimitInvalid},
		{name: "limit too big", query: "limit=1001", wantMsg: errLimitInvalid},
		{name: "bad to", query: "to=later", wantMsg: errToInvalid},
		{name: "reversed range", query: "from=2025-06-02&to=2025-06-01T00:00:00Z", wantMsg: errRangeOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/logs?"+tc.query, nil)

			got, msg := parseLogFilter(c, now)
			if msg != tc.wantMsg {
				t.Fatalf("msg=%q want %q", msg, tc.wantMsg)
			}
			if tc.wantMsg != "" {
				return
			}
			if !got.From.Equal(tc.want.From) || !got.To.Equal(tc.want.To) || got.Type != tc.want.Type || got.Limit != tc.want.Limit {
				t.Fatalf("filter=%+v want %+v", got, tc.want)
			}
		})
	}
}

func TestLogsHandler_LimitReachesService(t *testing.T) {
	logs := &mockEventLog{}
	r := newTestRouter(&service.Service{EventLog: logs}, WithAuth(false))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/logs?limit=20", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if logs.lastLimit != 20 {
		t.Fatalf("limit=%d want 20", logs.lastLimit)
	}
}
