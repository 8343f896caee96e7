package lms

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
)

// flexID accepts LMS identifiers encoded either as JSON strings or numbers.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexID(n.String())
	return nil
}

type pageEnvelope[T any] struct {
	Data  []T `json:"data"`
	Pages int `json:"pages"`
	Meta  *struct {
		TotalPages int `json:"total_pages"`
	} `json:"meta,omitempty"`
}

func (p pageEnvelope[T]) totalPages() int {
	if p.Pages > 0 {
		return p.Pages
	}
	if p.Meta != nil {
		return p.Meta.TotalPages
	}
	return 0
}

type userPayload struct {
	ID        flexID     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Document  string     `json:"document"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func (u userPayload) toModel() models.RemoteStudent {
	return models.RemoteStudent{
		ID:        string(u.ID),
		FullName:  strings.TrimSpace(u.Name),
		Email:     strings.TrimSpace(u.Email),
		Phone:     u.Phone,
		Document:  u.Document,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		Simulated: false,
	}
}

type coursePayload struct {
	ID          flexID     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	Published   bool       `json:"published"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

func (c coursePayload) toModel() models.RemoteCourse {
	return models.RemoteCourse{
		ID:          string(c.ID),
		Title:       strings.TrimSpace(c.Title),
		Slug:        c.Slug,
		Description: c.Description,
		Published:   c.Published,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Simulated:   false,
	}
}

type enrollmentPayload struct {
	ID        flexID     `json:"id"`
	UserID    flexID     `json:"user_id"`
	CourseID  flexID     `json:"course_id"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date"`
	CreatedAt *time.Time `json:"created_at"`
}

func (e enrollmentPayload) toModel() *models.RemoteEnrollment {
	return &models.RemoteEnrollment{
		ID:              string(e.ID),
		StudentRemoteID: string(e.UserID),
		CourseRemoteID:  string(e.CourseID),
		Status:          e.Status,
		StartDate:       e.StartDate,
		CreatedAt:       e.CreatedAt,
		Simulated:       false,
	}
}

type createEnrollmentPayload struct {
	UserID     string     `json:"user_id"`
	CourseID   string     `json:"course_id"`
	StartDate  string     `json:"start_date,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Reference  string     `json:"reference,omitempty"`
	SendNotice bool       `json:"send_notice"`
}

// single-object responses may or may not be wrapped in {"data": ...}.
type objectEnvelope[T any] struct {
	Data *T `json:"data"`
}
