package lms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.LMSConfig{
		BaseURL:        srv.URL,
		APIKey:         "secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, nil)
}

func TestListStudentsDecodesPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"id":17,"name":" Ana ","email":"ana@example.com"},{"id":"u2","name":"Bia","email":"bia@example.com"}],"pages":3}`))
	})

	page, err := client.ListStudents(context.Background(), 2, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "17", page.Data[0].ID)
	assert.Equal(t, "Ana", page.Data[0].FullName)
	assert.False(t, page.Data[0].Simulated)
	assert.Equal(t, "u2", page.Data[1].ID)
}

func TestListCoursesReadsMetaPages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"c1","title":"Go","slug":"go"}],"meta":{"total_pages":4}}`))
	})

	page, err := client.ListCourses(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Pages)
	assert.Equal(t, "go", page.Data[0].Slug)
}

func TestGetRequestsRetryOnServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[],"pages":0}`))
	})

	page, err := client.ListCourses(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestServerErrorsMapToTransportUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.ListStudents(context.Background(), 1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransportUnavailable))
}

func TestDeadlineDuringBackoffIsTransportUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(config.LMSConfig{
		BaseURL:        srv.URL,
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.ListCourses(ctx, 1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransportUnavailable))
}

func TestCancelDuringBackoffIsNotTransportUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(config.LMSConfig{
		BaseURL:        srv.URL,
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
	}, nil)

	_, err := client.ListCourses(ctx, 1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, appErrors.ErrTransportUnavailable))
}

func TestUnreachableHostIsTransportUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewClient(config.LMSConfig{BaseURL: base, Timeout: time.Second, MaxAttempts: 1}, nil)
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransportUnavailable))
}

func TestClientErrorsAreRejectionsAndNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad page"}`))
	})

	_, err := client.ListStudents(context.Background(), 1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRemoteRejected))
	assert.False(t, errors.Is(err, appErrors.ErrTransportUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetEnrollmentAbsent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "c1", r.URL.Query().Get("course_id"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	got, err := client.GetEnrollment(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetEnrollmentNotFoundStatusIsAbsent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	got, err := client.GetEnrollment(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetEnrollmentFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":900,"user_id":"u1","course_id":"c1","status":"active"}]}`))
	})

	got, err := client.GetEnrollment(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "900", got.ID)
	assert.False(t, got.Simulated)
}

func TestCreateEnrollmentIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateEnrollment(context.Background(), "u1", "c1", models.RemoteEnrollmentOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransportUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateEnrollmentSendsPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var payload createEnrollmentPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "u1", payload.UserID)
		assert.Equal(t, "2026-11-02", payload.StartDate)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"re-1","status":"active"}}`))
	})

	start := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	got, err := client.CreateEnrollment(context.Background(), "u1", "c1", models.RemoteEnrollmentOptions{StartDate: start})
	require.NoError(t, err)
	assert.Equal(t, "re-1", got.ID)
	assert.Equal(t, "u1", got.StudentRemoteID)
	assert.Equal(t, "c1", got.CourseRemoteID)
}

func TestCalculateBackoffCaps(t *testing.T) {
	c := &Client{initialBackoff: 100 * time.Millisecond, maxBackoff: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, c.calculateBackoff(1))
	assert.Equal(t, 200*time.Millisecond, c.calculateBackoff(2))
	assert.Equal(t, 300*time.Millisecond, c.calculateBackoff(3))
}
