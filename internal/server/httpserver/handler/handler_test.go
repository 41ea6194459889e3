package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/core/service"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
)

// fakeController implements Controller for testing.
type fakeController struct {
	mu        sync.Mutex
	status    *service.Status
	statusErr error
	setErr    error
	addErr    error
	countErr  error
	removeErr error
	nextID    domain.SlotID
	cycleTo   domain.SlotID
	cycleOK   bool

	activated []domain.SlotID
	counts    []int
	removed   []domain.SlotID
}

func newFakeController() *fakeController {
	main := domain.SlotID(0)
	return &fakeController{
		status: &service.Status{
			RunID:            "01J00000000000000000000000",
			ActiveSlot:       &main,
			RequestedDummies: 1,
			DummyLimit:       4,
			Slots: []service.SlotInfo{
				{ID: 0, Main: true, Active: true, State: "online"},
				{ID: 1, State: "online"},
			},
		},
		nextID: 2,
	}
}

func (f *fakeController) Status(context.Context) (*service.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeController) SetActive(id domain.SlotID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.activated = append(f.activated, id)
	return nil
}

func (f *fakeController) Cycle() (domain.SlotID, bool) {
	return f.cycleTo, f.cycleOK
}

func (f *fakeController) AddDummy(context.Context) (domain.SlotID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return 0, f.addErr
	}
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *fakeController) SetDummyCount(_ context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return f.countErr
	}
	f.counts = append(f.counts, n)
	return nil
}

func (f *fakeController) RemoveSlot(_ context.Context, id domain.SlotID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, id)
	return nil
}

func newTestHandler(ctrl Controller) *Handler {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return New(ctrl, metrics, logger.Discard())
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Request-ID", "req-test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v; body=%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

func decodeData(t *testing.T, resp Response, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(newFakeController())

	rec, resp := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Code != "OK" {
		t.Errorf("Code = %q, want OK", resp.Code)
	}
	if resp.RequestID != "req-test" {
		t.Errorf("RequestID = %q, want req-test", resp.RequestID)
	}
}

func TestReady(t *testing.T) {
	ctrl := newFakeController()
	h := newTestHandler(ctrl)

	rec, _ := doRequest(t, h, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	ctrl.status.Slots[0].State = "authenticating"
	rec, resp := doRequest(t, h, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp.Code != "SM-SYS-5031" {
		t.Errorf("Code = %q", resp.Code)
	}

	ctrl.statusErr = domain.ErrSessionClosed
	rec, _ = doRequest(t, h, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("closed session status = %d, want 503", rec.Code)
	}
}

func TestListSlots(t *testing.T) {
	h := newTestHandler(newFakeController())

	rec, resp := doRequest(t, h, http.MethodGet, "/v1/slots", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st service.Status
	decodeData(t, resp, &st)
	if len(st.Slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(st.Slots))
	}
	if st.ActiveSlot == nil || *st.ActiveSlot != 0 {
		t.Errorf("ActiveSlot = %v, want 0", st.ActiveSlot)
	}
}

func TestGetActive(t *testing.T) {
	ctrl := newFakeController()
	pending := domain.SlotID(1)
	ctrl.status.PendingSlot = &pending
	h := newTestHandler(ctrl)

	_, resp := doRequest(t, h, http.MethodGet, "/v1/slots/active", "")
	var got ActiveResponse
	decodeData(t, resp, &got)
	if got.ActiveSlot == nil || *got.ActiveSlot != 0 {
		t.Errorf("ActiveSlot = %v, want 0", got.ActiveSlot)
	}
	if got.PendingSlot == nil || *got.PendingSlot != 1 {
		t.Errorf("PendingSlot = %v, want 1", got.PendingSlot)
	}
}

func TestSetActive(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		setErr   error
		wantCode int
		wantErr  string
	}{
		{name: "accepted", body: `{"slot_id":1}`, wantCode: http.StatusAccepted},
		{name: "slot zero", body: `{"slot_id":0}`, wantCode: http.StatusAccepted},
		{name: "bad json", body: `{`, wantCode: http.StatusBadRequest, wantErr: "SM-ARG-4000"},
		{name: "missing id", body: `{}`, wantCode: http.StatusBadRequest, wantErr: "SM-ARG-1002"},
		{name: "invalid slot", body: `{"slot_id":9}`, setErr: domain.ErrInvalidSlot, wantCode: http.StatusNotFound, wantErr: "SM-SLOT-4040"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.setErr = tt.setErr
			h := newTestHandler(ctrl)

			rec, resp := doRequest(t, h, http.MethodPost, "/v1/slots/active", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body=%s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				if resp.Code != tt.wantErr {
					t.Errorf("Code = %q, want %q", resp.Code, tt.wantErr)
				}
				if rec.Header().Get("X-Error-Code") != tt.wantErr {
					t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
				}
				return
			}
			if len(ctrl.activated) != 1 {
				t.Fatalf("activated = %v", ctrl.activated)
			}
			var got ActiveResponse
			decodeData(t, resp, &got)
			if !got.Switched || got.PendingSlot == nil || *got.PendingSlot != ctrl.activated[0] {
				t.Errorf("response = %+v", got)
			}
		})
	}
}

func TestCycle(t *testing.T) {
	ctrl := newFakeController()
	h := newTestHandler(ctrl)

	rec, resp := doRequest(t, h, http.MethodPost, "/v1/slots/cycle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("noop cycle status = %d, want 200", rec.Code)
	}
	var got ActiveResponse
	decodeData(t, resp, &got)
	if got.Switched {
		t.Error("Switched = true for single slot")
	}

	ctrl.cycleTo, ctrl.cycleOK = 1, true
	rec, resp = doRequest(t, h, http.MethodPost, "/v1/slots/cycle", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	got = ActiveResponse{}
	decodeData(t, resp, &got)
	if !got.Switched || got.PendingSlot == nil || *got.PendingSlot != 1 {
		t.Errorf("response = %+v", got)
	}
}

func TestRemoveSlot(t *testing.T) {
	ctrl := newFakeController()
	h := newTestHandler(ctrl)

	rec, _ := doRequest(t, h, http.MethodDelete, "/v1/slots/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ctrl.removed) != 1 || ctrl.removed[0] != 1 {
		t.Errorf("removed = %v", ctrl.removed)
	}

	rec, _ = doRequest(t, h, http.MethodDelete, "/v1/slots/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	ctrl.removeErr = domain.ErrInvalidSlot
	rec, _ = doRequest(t, h, http.MethodDelete, "/v1/slots/7", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown slot status = %d, want 404", rec.Code)
	}
}

func TestAddDummy(t *testing.T) {
	ctrl := newFakeController()
	h := newTestHandler(ctrl)

	rec, resp := doRequest(t, h, http.MethodPost, "/v1/dummies", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var got DummiesResponse
	decodeData(t, resp, &got)
	if got.SlotID == nil || *got.SlotID != 2 {
		t.Errorf("SlotID = %v, want 2", got.SlotID)
	}
	if got.LiveDummies != 1 || got.DummyLimit != 4 {
		t.Errorf("response = %+v", got)
	}

	ctrl.addErr = domain.ErrCapacityExceeded
	rec, resp = doRequest(t, h, http.MethodPost, "/v1/dummies", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if resp.Code != "SM-SLOT-4090" {
		t.Errorf("Code = %q", resp.Code)
	}
}

func TestSetDummies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		countErr error
		wantCode int
	}{
		{name: "ok", body: `{"count":3}`, wantCode: http.StatusOK},
		{name: "zero", body: `{"count":0}`, wantCode: http.StatusOK},
		{name: "missing", body: `{}`, wantCode: http.StatusBadRequest},
		{name: "bad json", body: `nope`, wantCode: http.StatusBadRequest},
		{name: "negative", body: `{"count":-1}`, countErr: domain.ErrInvalidArgument, wantCode: http.StatusBadRequest},
		{name: "closed", body: `{"count":1}`, countErr: domain.ErrSessionClosed, wantCode: http.StatusServiceUnavailable},
		{name: "opaque error", body: `{"count":1}`, countErr: errors.New("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.countErr = tt.countErr
			h := newTestHandler(ctrl)

			rec, _ := doRequest(t, h, http.MethodPut, "/v1/dummies", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body=%s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	h := newTestHandler(newFakeController())

	rec, _ := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("body = %q", rec.Body.String())
	}

	noMetrics := New(newFakeController(), nil, logger.Discard())
	rec, _ = doRequest(t, noMetrics, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without metrics = %d, want 404", rec.Code)
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"SM-SLOT-4040", http.StatusNotFound},
		{"SM-SNAP-4040", http.StatusNotFound},
		{"SM-SLOT-4030", http.StatusConflict},
		{"SM-SLOT-4050", http.StatusConflict},
		{"SM-SLOT-4090", http.StatusConflict},
		{"SM-SLOT-4091", http.StatusConflict},
		{"SM-CONN-4290", http.StatusTooManyRequests},
		{"SM-ARG-1001", http.StatusBadRequest},
		{"SM-PROTO-4000", http.StatusBadRequest},
		{"SM-SYS-5030", http.StatusServiceUnavailable},
		{"SM-CONN-5040", http.StatusGatewayTimeout},
		{"SM-CONN-5000", http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := errorCodeToHTTPStatus(tt.code); got != tt.want {
				t.Errorf("errorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
