package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
	"github.com/noah-isme/lms-enrollment-sync/pkg/middleware/requestid"
)

const maxBodyBytes = 4 << 20

// Client talks to the LMS REST API. Reads are retried with exponential backoff;
// writes are sent exactly once.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.LMSConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		maxAttempts:    attempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With(zap.String("component", "lms_client")),
	}
}

// ListStudents fetches one page of LMS users.
func (c *Client) ListStudents(ctx context.Context, page, pageSize int) (*models.RemotePage[models.RemoteStudent], error) {
	var envelope pageEnvelope[userPayload]
	if err := c.getJSON(ctx, "/users", pageQuery(page, pageSize), &envelope); err != nil {
		return nil, fmt.Errorf("list students page %d: %w", page, err)
	}
	out := &models.RemotePage[models.RemoteStudent]{Data: make([]models.RemoteStudent, 0, len(envelope.Data)), Pages: envelope.totalPages()}
	for _, u := range envelope.Data {
		out.Data = append(out.Data, u.toModel())
	}
	return out, nil
}

// ListCourses fetches one page of LMS courses.
func (c *Client) ListCourses(ctx context.Context, page, pageSize int) (*models.RemotePage[models.RemoteCourse], error) {
	var envelope pageEnvelope[coursePayload]
	if err := c.getJSON(ctx, "/courses", pageQuery(page, pageSize), &envelope); err != nil {
		return nil, fmt.Errorf("list courses page %d: %w", page, err)
	}
	out := &models.RemotePage[models.RemoteCourse]{Data: make([]models.RemoteCourse, 0, len(envelope.Data)), Pages: envelope.totalPages()}
	for _, course := range envelope.Data {
		out.Data = append(out.Data, course.toModel())
	}
	return out, nil
}

// GetEnrollment returns the LMS enrollment for the pair, or nil when the LMS has none.
func (c *Client) GetEnrollment(ctx context.Context, studentRemoteID, courseRemoteID string) (*models.RemoteEnrollment, error) {
	query := url.Values{}
	query.Set("user_id", studentRemoteID)
	query.Set("course_id", courseRemoteID)

	var envelope pageEnvelope[enrollmentPayload]
	err := c.getJSON(ctx, "/enrollments", query, &envelope)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	for _, e := range envelope.Data {
		if string(e.UserID) == studentRemoteID && string(e.CourseID) == courseRemoteID {
			return e.toModel(), nil
		}
	}
	return nil, nil
}

// CreateEnrollment registers the pair on the LMS. It is never retried.
func (c *Client) CreateEnrollment(ctx context.Context, studentRemoteID, courseRemoteID string, opts models.RemoteEnrollmentOptions) (*models.RemoteEnrollment, error) {
	payload := createEnrollmentPayload{
		UserID:     studentRemoteID,
		CourseID:   courseRemoteID,
		ExpiresAt:  opts.ExpiresAt,
		Reference:  opts.Reference,
		SendNotice: opts.SendNotice,
	}
	if !opts.StartDate.IsZero() {
		payload.StartDate = opts.StartDate.Format("2006-01-02")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode enrollment: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/enrollments", nil, body)
	if err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	created, err := decodeObject[enrollmentPayload](raw)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteRejected, err, "decode created enrollment")
	}
	enrollment := created.toModel()
	if enrollment.StudentRemoteID == "" {
		enrollment.StudentRemoteID = studentRemoteID
	}
	if enrollment.CourseRemoteID == "" {
		enrollment.CourseRemoteID = courseRemoteID
	}
	return enrollment, nil
}

// Ping checks that the LMS answers at all. A single attempt is made.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/ping", nil, nil)
	return err
}

var errNotFound = errors.New("lms: not found")

func pageQuery(page, pageSize int) url.Values {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(pageSize))
	return query
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	var (
		raw []byte
		err error
	)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		raw, err = c.do(ctx, http.MethodGet, path, query, nil)
		if err == nil || !errors.Is(err, appErrors.ErrTransportUnavailable) || attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("lms request failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return appErrors.WrapAs(appErrors.ErrTransportUnavailable, err, "lms deadline exceeded while retrying")
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return appErrors.WrapAs(appErrors.ErrRemoteRejected, err, "decode lms response")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "lms-enrollment-sync/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if reqID := requestid.FromContext(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, appErrors.WrapAs(appErrors.ErrTransportUnavailable, err, "")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrTransportUnavailable, err, "read lms response")
	}

	c.logger.Debug("lms request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return nil, appErrors.WrapAs(appErrors.ErrTransportUnavailable, fmt.Errorf("unexpected status: %d", resp.StatusCode), "")
	default:
		return nil, appErrors.WrapAs(appErrors.ErrRemoteRejected, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw)), "")
	}
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if c.maxBackoff > 0 && backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func decodeObject[T any](raw []byte) (*T, error) {
	var wrapped objectEnvelope[T]
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var plain T
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return &plain, nil
}

func snippet(raw []byte) string {
	const limit = 200
	s := string(bytes.TrimSpace(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
