package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/worker/ingest"
)

type fakeSyncService struct {
	excluded      []model.Platform
	triggerErr    error
	running       bool
	lastCompleted *time.Time
	calls         int
}

func (s *fakeSyncService) TriggerRunExcluding(excluded []model.Platform) error {
	s.calls++
	s.excluded = excluded
	return s.triggerErr
}

func (s *fakeSyncService) IsRunning() bool { return s.running }

func (s *fakeSyncService) LastCompletedAt() *time.Time { return s.lastCompleted }

var _ SyncServiceInterface = (*fakeSyncService)(nil)

func TestTriggerSync_Returns202(t *testing.T) {
	service := &fakeSyncService{}
	h := NewSyncHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/run", nil)
	w := httptest.NewRecorder()
	h.TriggerSync(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
	if service.calls != 1 {
		t.Errorf("calls = %d, want 1", service.calls)
	}
	if len(service.excluded) != 0 {
		t.Errorf("excluded = %v, want empty", service.excluded)
	}
}

func TestTriggerSync_ParsesExcludeParam(t *testing.T) {
	service := &fakeSyncService{}
	h := NewSyncHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/run?exclude=luogu,hdu", nil)
	w := httptest.NewRecorder()
	h.TriggerSync(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if len(service.excluded) != 2 || service.excluded[0] != model.PlatformLuogu || service.excluded[1] != model.PlatformHDU {
		t.Errorf("excluded = %v", service.excluded)
	}
}

func TestTriggerSync_UnknownPlatformReturns400(t *testing.T) {
	service := &fakeSyncService{}
	h := NewSyncHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/run?exclude=topcoder", nil)
	w := httptest.NewRecorder()
	h.TriggerSync(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if service.calls != 0 {
		t.Error("不正なパラメータで取り込みが開始された")
	}

	var body apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスがJSONでない: %v", err)
	}
	if body.Code != "UNKNOWN_PLATFORM" {
		t.Errorf("Code = %q", body.Code)
	}
}

func TestTriggerSync_InProgressReturns409(t *testing.T) {
	service := &fakeSyncService{triggerErr: ingest.ErrSyncInProgress}
	h := NewSyncHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/run", nil)
	w := httptest.NewRecorder()
	h.TriggerSync(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}

	var body apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスがJSONでない: %v", err)
	}
	if body.Code != "SYNC_IN_PROGRESS" {
		t.Errorf("Code = %q", body.Code)
	}
}

func TestGetStatus_ReportsRunning(t *testing.T) {
	h := NewSyncHandler(&fakeSyncService{running: true})

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	w := httptest.NewRecorder()
	h.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body syncStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスがJSONでない: %v", err)
	}
	if !body.Running {
		t.Error("Running = false, want true")
	}
}

func TestGetLastUpdate_NullWhenNeverCompleted(t *testing.T) {
	h := NewSyncHandler(&fakeSyncService{})

	req := httptest.NewRequest(http.MethodGet, "/api/sync/last-update", nil)
	w := httptest.NewRecorder()
	h.GetLastUpdate(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスがJSONでない: %v", err)
	}
	if v, ok := body["last_completed_at"]; !ok || v != nil {
		t.Errorf("last_completed_at = %v, want null", v)
	}
}

func TestGetLastUpdate_ReturnsTimestamp(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := NewSyncHandler(&fakeSyncService{lastCompleted: &ts})

	req := httptest.NewRequest(http.MethodGet, "/api/sync/last-update", nil)
	w := httptest.NewRecorder()
	h.GetLastUpdate(w, req)

	var body syncLastUpdateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスがJSONでない: %v", err)
	}
	if body.LastCompletedAt == nil || !body.LastCompletedAt.Equal(ts) {
		t.Errorf("LastCompletedAt = %v, want %v", body.LastCompletedAt, ts)
	}
}
