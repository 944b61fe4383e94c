package scheduling

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/practice"
)

func newTestRouter(t *testing.T) (http.Handler, *appointment.MemoryRepository) {
	t.Helper()
	practices := practice.NewMemoryStore(testPractice(), &practice.Practice{ID: "bare", Active: true})
	appts := appointment.NewMemoryRepository()
	h := NewHandler(NewService(practices, appts, NewMemoryLocker(), nil, WithClock(testClock)), nil)

	r := chi.NewRouter()
	r.Route("/admin", h.RegisterAdminRoutes)
	r.Route("/public", h.RegisterPublicRoutes)
	return r, appts
}

func TestHandlerListSlots(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		path string
		code int
		n    int
	}{
		{"/public/practices/p1/slots?date=2026-03-02", http.StatusOK, 16},
		{"/public/practices/p1/slots?date=2026-03-02&duration=60", http.StatusOK, 8},
		{"/public/practices/p1/slots?date=2026-03-08", http.StatusOK, 0},
		{"/public/practices/p1/slots?date=03/02/2026", http.StatusBadRequest, 0},
		{"/public/practices/p1/slots?date=2026-03-02&duration=abc", http.StatusBadRequest, 0},
		{"/public/practices/ghost/slots?date=2026-03-02", http.StatusNotFound, 0},
		{"/admin/practices/bare/slots?date=2026-03-02", http.StatusUnprocessableEntity, 0},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.Equal(t, tc.code, rec.Code, tc.path)
		if tc.code != http.StatusOK {
			continue
		}
		var body struct {
			Slots []Slot `json:"slots"`
			Count int    `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.n, body.Count, tc.path)
		assert.Len(t, body.Slots, tc.n, tc.path)
	}
}

func TestHandlerBook(t *testing.T) {
	router, appts := newTestRouter(t)
	payload := `{"patient_name":"Ana","patient_phone":"+12125550199","start":"2026-03-02T10:00:00-05:00"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/public/practices/p1/appointments", bytes.NewBufferString(payload)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result BookingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, appointment.SourceWebsite, result.Appointment.Source)
	assert.Equal(t, MirrorNotConfigured, result.Mirror)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/practices/p1/appointments", bytes.NewBufferString(payload)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/practices/p1/appointments", bytes.NewBufferString(`{"start":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/practices/p1/appointments",
		bytes.NewBufferString(`{"patient_phone":"+1","start":"2026-03-02T11:00:00-05:00"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	stored := appts.All()
	require.Len(t, stored, 2)
	assert.Equal(t, appointment.SourceManual, stored[1].Source)
}

func TestHandlerPublicBookingStaysOnPracticeGrid(t *testing.T) {
	router, appts := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/public/practices/p1/appointments",
		bytes.NewBufferString(`{"patient_phone":"+12125550101","start":"2026-03-02T09:00:00-05:00","duration_minutes":480}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, appts.All(), 1)
	assert.Equal(t, 30, appts.All()[0].DurationMinutes)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/practices/p1/slots?date=2026-03-02", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 15, body.Count)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/public/practices/p1/appointments",
		bytes.NewBufferString(`{"patient_phone":"+12125550102","start":"2026-03-03T09:07:00-05:00","duration_minutes":1}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, appts.All(), 1)
}

func TestHandlerRejectsPastStart(t *testing.T) {
	router, appts := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/public/practices/p1/appointments",
		bytes.NewBufferString(`{"patient_phone":"+12125550103","start":"2026-02-23T10:00:00-05:00"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, appts.All())
}
