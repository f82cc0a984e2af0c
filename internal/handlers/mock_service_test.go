package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"water_timer/internal/models"
	"water_timer/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockSchedule struct {
	snap      models.ScheduleSnapshot
	result    models.WateringSchedule
	updateErr error
	stopped   bool
	stopErr   error
	validate  bool // run ConfigUpdate.Validate like the real scheduler

	lastUpdate  service.ConfigUpdate
	updateCalls int
	stopCalls   int
}

func (m *mockSchedule) ApplyConfigUpdate(_ context.Context, upd service.ConfigUpdate) (models.WateringSchedule, error) {
	m.updateCalls++
	m.lastUpdate = upd
	if m.validate {
		if err := upd.Validate(); err != nil {
			return models.WateringSchedule{}, err
		}
	}
	if m.updateErr != nil {
		return models.WateringSchedule{}, m.updateErr
	}
	return m.result, nil
}
func (m *mockSchedule) StopRun() (bool, error) {
	m.stopCalls++
	return m.stopped, m.stopErr
}
func (m *mockSchedule) Snapshot() models.ScheduleSnapshot { return m.snap }

type mockMonitoring struct {
	mu     sync.Mutex
	status models.Status
}

func (m *mockMonitoring) Status() models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockMonitoring) set(st models.Status) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
}

type mockEventLog struct {
	resp      []models.WateringEvent
	err       error
	lastFrom  time.Time
	lastTo    time.Time
	lastType  string
	lastLimit int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.WateringEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastLimit = f.Limit
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, opts ...Option) *gin.Engine {
	h := NewHandler(s, nil, opts...)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
