package degraded

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
)

// SimulatedIDPrefix reserves an id namespace that real LMS records never use.
const SimulatedIDPrefix = "sim-"

//go:embed simulated.yaml
var simulatedYAML []byte

type dataset struct {
	Students []struct {
		ID       string `yaml:"id"`
		FullName string `yaml:"full_name"`
		Email    string `yaml:"email"`
	} `yaml:"students"`
	Courses []struct {
		ID          string `yaml:"id"`
		Title       string `yaml:"title"`
		Slug        string `yaml:"slug"`
		Description string `yaml:"description"`
		Published   bool   `yaml:"published"`
	} `yaml:"courses"`
	Enrollment struct {
		Status string `yaml:"status"`
	} `yaml:"enrollment"`
}

var (
	loadOnce sync.Once
	loaded   *dataset
	loadErr  error
)

func parseDataset(raw []byte) (*dataset, error) {
	var ds dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse simulated dataset: %w", err)
	}
	for _, s := range ds.Students {
		if !IsSimulatedID(s.ID) {
			return nil, fmt.Errorf("simulated student %q outside the %s namespace", s.ID, SimulatedIDPrefix)
		}
	}
	for _, c := range ds.Courses {
		if !IsSimulatedID(c.ID) {
			return nil, fmt.Errorf("simulated course %q outside the %s namespace", c.ID, SimulatedIDPrefix)
		}
	}
	return &ds, nil
}

func data() *dataset {
	loadOnce.Do(func() {
		loaded, loadErr = parseDataset(simulatedYAML)
	})
	if loadErr != nil {
		panic(loadErr)
	}
	return loaded
}

// IsSimulatedID reports whether id belongs to the reserved simulated namespace.
func IsSimulatedID(id string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(id)), SimulatedIDPrefix)
}

// SimulatedStudents returns a page of placeholder students.
func SimulatedStudents(page, pageSize int) models.RemotePage[models.RemoteStudent] {
	ds := data()
	all := make([]models.RemoteStudent, 0, len(ds.Students))
	for _, s := range ds.Students {
		all = append(all, models.RemoteStudent{
			ID:        s.ID,
			FullName:  s.FullName,
			Email:     s.Email,
			Simulated: true,
		})
	}
	return paginate(all, page, pageSize)
}

// SimulatedCourses returns a page of placeholder courses.
func SimulatedCourses(page, pageSize int) models.RemotePage[models.RemoteCourse] {
	ds := data()
	all := make([]models.RemoteCourse, 0, len(ds.Courses))
	for _, c := range ds.Courses {
		all = append(all, models.RemoteCourse{
			ID:          c.ID,
			Title:       c.Title,
			Slug:        c.Slug,
			Description: c.Description,
			Published:   c.Published,
			Simulated:   true,
		})
	}
	return paginate(all, page, pageSize)
}

// SimulatedEnrollment fabricates the LMS mirror of an enrollment that could not be written.
func SimulatedEnrollment(studentRemoteID, courseRemoteID string) models.RemoteEnrollment {
	now := time.Now().UTC()
	return models.RemoteEnrollment{
		ID:              SimulatedIDPrefix + "enrollment-" + studentRemoteID + "-" + courseRemoteID,
		StudentRemoteID: studentRemoteID,
		CourseRemoteID:  courseRemoteID,
		Status:          data().Enrollment.Status,
		CreatedAt:       &now,
		Simulated:       true,
	}
}

func paginate[T any](all []T, page, pageSize int) models.RemotePage[T] {
	if pageSize <= 0 {
		pageSize = len(all)
	}
	if page < 1 {
		page = 1
	}
	pages := 0
	if pageSize > 0 {
		pages = (len(all) + pageSize - 1) / pageSize
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return models.RemotePage[T]{Data: []T{}, Pages: pages}
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return models.RemotePage[T]{Data: all[start:end], Pages: pages}
}
