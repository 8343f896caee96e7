package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/internal/publisher"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

type fakeSource struct {
	students     [][]models.RemoteStudent
	courses      [][]models.RemoteCourse
	failOnPage   int
	failWith     error
	requested    []int
	afterPage    func(page int)
	reportsPages bool
}

func (f *fakeSource) ListStudents(ctx context.Context, page, pageSize int) (*models.RemotePage[models.RemoteStudent], error) {
	f.requested = append(f.requested, page)
	if f.failOnPage == page {
		return nil, f.failWith
	}
	defer f.after(page)
	if page > len(f.students) {
		return &models.RemotePage[models.RemoteStudent]{Pages: len(f.students)}, nil
	}
	return &models.RemotePage[models.RemoteStudent]{Data: f.students[page-1], Pages: len(f.students)}, nil
}

func (f *fakeSource) ListCourses(ctx context.Context, page, pageSize int) (*models.RemotePage[models.RemoteCourse], error) {
	f.requested = append(f.requested, page)
	if f.failOnPage == page {
		return nil, f.failWith
	}
	defer f.after(page)
	if page > len(f.courses) {
		return &models.RemotePage[models.RemoteCourse]{Pages: len(f.courses)}, nil
	}
	return &models.RemotePage[models.RemoteCourse]{Data: f.courses[page-1], Pages: len(f.courses)}, nil
}

func (f *fakeSource) after(page int) {
	if f.afterPage != nil {
		f.afterPage(page)
	}
}

type memStudentStore struct {
	byEmail map[string]models.Student
	// raceOnCreate inserts the record and then reports a unique violation,
	// as if a concurrent sync won the insert.
	raceOnCreate bool
	creates      int
	updates      int
}

func newMemStudentStore() *memStudentStore {
	return &memStudentStore{byEmail: make(map[string]models.Student)}
}

func (m *memStudentStore) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	if s, ok := m.byEmail[models.NormalizeEmail(email)]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memStudentStore) FindByRemoteID(ctx context.Context, remoteID string) (*models.Student, error) {
	for _, s := range m.byEmail {
		if s.RemoteID != nil && *s.RemoteID == remoteID {
			found := s
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStudentStore) Count(ctx context.Context) (int, error) {
	return len(m.byEmail), nil
}

func (m *memStudentStore) Create(ctx context.Context, student *models.Student) error {
	m.creates++
	if _, exists := m.byEmail[student.Email]; exists {
		return fmt.Errorf("create student: %w", &pq.Error{Code: "23505", Constraint: "students_email_key"})
	}
	if student.RemoteID != nil {
		if _, err := m.FindByRemoteID(ctx, *student.RemoteID); err == nil {
			return fmt.Errorf("create student: %w", &pq.Error{Code: "23505", Constraint: "students_remote_id_key"})
		}
	}
	if student.ID == "" {
		student.ID = fmt.Sprintf("stu-%d", len(m.byEmail)+1)
	}
	m.byEmail[student.Email] = *student
	if m.raceOnCreate {
		return fmt.Errorf("create student: %w", &pq.Error{Code: "23505", Constraint: "students_email_key"})
	}
	return nil
}

func (m *memStudentStore) Update(ctx context.Context, student *models.Student) error {
	m.updates++
	for email, existing := range m.byEmail {
		if existing.ID == student.ID {
			delete(m.byEmail, email)
		}
	}
	m.byEmail[student.Email] = *student
	return nil
}

type memCourseStore struct {
	byRemote map[string]models.Course
	// honorCtx makes every call fail once its context is done, like a database driver.
	honorCtx bool
}

func newMemCourseStore() *memCourseStore {
	return &memCourseStore{byRemote: make(map[string]models.Course)}
}

func (m *memCourseStore) FindByRemoteID(ctx context.Context, remoteID string) (*models.Course, error) {
	if m.honorCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if c, ok := m.byRemote[remoteID]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memCourseStore) Create(ctx context.Context, course *models.Course) error {
	if m.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	for _, existing := range m.byRemote {
		if existing.Slug == course.Slug {
			return fmt.Errorf("create course: %w", &pq.Error{Code: "23505", Constraint: "courses_slug_key"})
		}
	}
	if course.ID == "" {
		course.ID = "crs-" + course.RemoteID
	}
	m.byRemote[course.RemoteID] = *course
	return nil
}

func (m *memCourseStore) Update(ctx context.Context, course *models.Course) error {
	m.byRemote[course.RemoteID] = *course
	return nil
}

type runRecorder struct {
	runs []models.SyncRun
}

func (r *runRecorder) Create(ctx context.Context, run *models.SyncRun) error {
	run.ID = fmt.Sprintf("run-%d", len(r.runs)+1)
	r.runs = append(r.runs, *run)
	return nil
}

type eventRecorder struct {
	keys []string
}

func (e *eventRecorder) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	e.keys = append(e.keys, routingKey)
	return nil
}

type syncFixture struct {
	source   *fakeSource
	students *memStudentStore
	courses  *memCourseStore
	runs     *runRecorder
	events   *eventRecorder
	svc      *SyncService
}

func newSyncFixture(source *fakeSource) *syncFixture {
	f := &syncFixture{
		source:   source,
		students: newMemStudentStore(),
		courses:  newMemCourseStore(),
		runs:     &runRecorder{},
		events:   &eventRecorder{},
	}
	cfg := config.SyncConfig{DefaultPageSize: 50, MaxPageSize: 500, RemoteTimeout: time.Second, StoreTimeout: time.Second}
	f.svc = NewSyncService(source, f.students, f.courses, f.runs, f.events, NewMetricsService(), cfg, nil, nil)
	return f
}

func remoteStudent(id, email string) models.RemoteStudent {
	return models.RemoteStudent{ID: id, FullName: "Student " + id, Email: email}
}

func remoteCourse(id, title, slug string) models.RemoteCourse {
	return models.RemoteCourse{ID: id, Title: title, Slug: slug, Published: true}
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func snapshotStudents(store *memStudentStore) map[string]models.Student {
	out := make(map[string]models.Student, len(store.byEmail))
	for email, student := range store.byEmail {
		student.SyncedAt = nil
		student.UpdatedAt = time.Time{}
		out[email] = student
	}
	return out
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	source := &fakeSource{students: [][]models.RemoteStudent{
		{remoteStudent("u1", "Ana@Example.com"), remoteStudent("u2", "bia@example.com")},
		{remoteStudent("u3", "caio@example.com")},
	}}
	f := newSyncFixture(source)
	opts := SyncOptions{FullSync: true, PageSize: 2}

	first, err := f.svc.Synchronize(context.Background(), models.EntityStudents, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Imported)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 3, first.Total)
	assert.Len(t, first.Logs, 3)
	before := snapshotStudents(f.students)

	second, err := f.svc.Synchronize(context.Background(), models.EntityStudents, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 3, second.Updated)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, before, snapshotStudents(f.students))

	stored := f.students.byEmail["ana@example.com"]
	require.NotNil(t, stored.RemoteID)
	assert.Equal(t, "u1", *stored.RemoteID)
	assert.Equal(t, fmt.Sprintf("%04d000001", time.Now().UTC().Year()), stored.EnrollmentNumber)
}

func TestSynchronizeFollowsRemoteEmailChange(t *testing.T) {
	source := &fakeSource{students: [][]models.RemoteStudent{{remoteStudent("u1", "old@example.com")}}}
	f := newSyncFixture(source)
	opts := SyncOptions{PageSize: 50}

	_, err := f.svc.Synchronize(context.Background(), models.EntityStudents, opts)
	require.NoError(t, err)
	original := f.students.byEmail["old@example.com"]

	source.students = [][]models.RemoteStudent{{remoteStudent("u1", "New@Example.com")}}
	for run := 0; run < 2; run++ {
		result, err := f.svc.Synchronize(context.Background(), models.EntityStudents, opts)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, 0, result.Failed)
		assert.Equal(t, 0, result.Imported)
	}

	require.Len(t, f.students.byEmail, 1)
	moved, ok := f.students.byEmail["new@example.com"]
	require.True(t, ok)
	assert.Equal(t, original.ID, moved.ID)
	assert.Equal(t, original.EnrollmentNumber, moved.EnrollmentNumber)
}

func TestSynchronizeCoursesWithDuplicateSlug(t *testing.T) {
	source := &fakeSource{courses: [][]models.RemoteCourse{{
		remoteCourse("c1", "Go Basics", "go-basics"),
		remoteCourse("c2", "SQL", "sql"),
		remoteCourse("c3", "Go Basics Again", "go-basics"),
	}}}
	f := newSyncFixture(source)

	result, err := f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.Total)
	require.Len(t, result.Logs, 3)
	assert.Equal(t, 2, countPrefix(result.Logs, models.SyncLogOK))
	assert.Equal(t, 1, countPrefix(result.Logs, models.SyncLogError))
	assert.Contains(t, result.Logs[2], "c3")
	assert.Contains(t, f.courses.byRemote, "c1")
	assert.Contains(t, f.courses.byRemote, "c2")
	assert.NotContains(t, f.courses.byRemote, "c3")

	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, models.SyncRunPartial, f.runs.runs[0].Status)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, []string{publisher.EventSyncCompleted}, f.events.keys)
}

func TestSynchronizeEmptySource(t *testing.T) {
	f := newSyncFixture(&fakeSource{})

	result, err := f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{FullSync: true, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	require.Len(t, result.Logs, 1)
	assert.True(t, strings.HasPrefix(result.Logs[0], models.SyncLogInfo))
}

func TestSynchronizeFullSyncWalksPagesInOrder(t *testing.T) {
	source := &fakeSource{courses: [][]models.RemoteCourse{
		{remoteCourse("c1", "A", "a")},
		{remoteCourse("c2", "B", "b")},
		{remoteCourse("c3", "C", "c")},
	}}
	f := newSyncFixture(source)

	result, err := f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{FullSync: true, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, source.requested)
	assert.Equal(t, 3, result.Imported)
}

func TestSynchronizeIncrementalReadsFirstPageOnly(t *testing.T) {
	source := &fakeSource{courses: [][]models.RemoteCourse{
		{remoteCourse("c1", "A", "a")},
		{remoteCourse("c2", "B", "b")},
	}}
	f := newSyncFixture(source)

	result, err := f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, source.requested)
	assert.Equal(t, 1, result.Total)
}

func TestSynchronizeTransportFailureKeepsPartialResult(t *testing.T) {
	source := &fakeSource{
		courses: [][]models.RemoteCourse{
			{remoteCourse("c1", "A", "a"), remoteCourse("c2", "B", "b")},
			{remoteCourse("c3", "C", "c")},
		},
		failOnPage: 2,
		failWith:   appErrors.WrapAs(appErrors.ErrTransportUnavailable, errors.New("connection reset"), ""),
	}
	f := newSyncFixture(source)

	result, err := f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{FullSync: true, PageSize: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransportUnavailable))
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Total)
	assert.Len(t, f.courses.byRemote, 2)
	assert.Equal(t, models.SyncRunFailed, f.runs.runs[0].Status)
}

func TestSynchronizeDropsCatalogCacheOnSuccess(t *testing.T) {
	catalog, cacheRepo, _ := newCatalogFixture(&fakeSource{courses: [][]models.RemoteCourse{{remoteCourse("c1", "A", "a")}}})
	ctx := context.Background()
	_, err := catalog.ListCourses(ctx, 1, 0, false)
	require.NoError(t, err)
	require.NotEmpty(t, cacheRepo.store)

	f := newSyncFixture(&fakeSource{courses: [][]models.RemoteCourse{{remoteCourse("c1", "A", "a")}}})
	f.svc.UseCatalogCache(catalog)

	_, err = f.svc.Synchronize(ctx, models.EntityCourses, SyncOptions{PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{cacheKeyCatalogAll}, cacheRepo.deleted)
	assert.Empty(t, cacheRepo.store)
}

func TestSynchronizeKeepsCatalogCacheOnFailure(t *testing.T) {
	catalog, cacheRepo, _ := newCatalogFixture(&fakeSource{})
	f := newSyncFixture(&fakeSource{
		failOnPage: 1,
		failWith:   appErrors.WrapAs(appErrors.ErrTransportUnavailable, errors.New("connection reset"), ""),
	})
	f.svc.UseCatalogCache(catalog)

	_, err := f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{PageSize: 50})
	require.Error(t, err)
	assert.Empty(t, cacheRepo.deleted)
}

func TestSynchronizeOfflineNeverCallsSource(t *testing.T) {
	source := &fakeSource{students: [][]models.RemoteStudent{{remoteStudent("u1", "a@example.com")}}}
	f := newSyncFixture(source)

	result, err := f.svc.Synchronize(context.Background(), models.EntityStudents, SyncOptions{PageSize: 50, Offline: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransportUnavailable))
	assert.Empty(t, source.requested)
	assert.Len(t, result.Logs, 1)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, f.students.byEmail)
	assert.Empty(t, f.events.keys)
}

func TestSynchronizeRefusesSimulatedAndInvalidRecords(t *testing.T) {
	simulated := remoteStudent("sim-student-001", "demo@example.invalid")
	tagged := remoteStudent("u9", "tagged@example.com")
	tagged.Simulated = true
	source := &fakeSource{students: [][]models.RemoteStudent{{
		simulated,
		tagged,
		{ID: "u3", FullName: "No Mail"},
		remoteStudent("u4", "ok@example.com"),
	}}}
	f := newSyncFixture(source)

	result, err := f.svc.Synchronize(context.Background(), models.EntityStudents, SyncOptions{PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 4, result.Total)
	assert.Len(t, result.Logs, 4)
	assert.Len(t, f.students.byEmail, 1)
}

func TestSynchronizeConcurrentInsertCountsAsUpdate(t *testing.T) {
	source := &fakeSource{students: [][]models.RemoteStudent{{remoteStudent("u1", "ana@example.com")}}}
	f := newSyncFixture(source)
	f.students.raceOnCreate = true

	result, err := f.svc.Synchronize(context.Background(), models.EntityStudents, SyncOptions{PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, f.students.byEmail, 1)
}

func TestSynchronizeCancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &fakeSource{
		courses: [][]models.RemoteCourse{
			{remoteCourse("c1", "A", "a")},
			{remoteCourse("c2", "B", "b")},
		},
		afterPage: func(page int) {
			if page == 1 {
				cancel()
			}
		},
	}
	f := newSyncFixture(source)

	result, err := f.svc.Synchronize(ctx, models.EntityCourses, SyncOptions{FullSync: true, PageSize: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSyncCancelled))
	assert.True(t, result.Cancelled)
	assert.Equal(t, []int{1}, source.requested)
	assert.Equal(t, 1, result.Total)
	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, models.SyncRunCancelled, f.runs.runs[0].Status)
}

func TestSynchronizeFinishesPageStartedBeforeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &fakeSource{
		courses: [][]models.RemoteCourse{
			{remoteCourse("c1", "A", "a"), remoteCourse("c2", "B", "b"), remoteCourse("c3", "C", "c")},
			{remoteCourse("c4", "D", "d")},
		},
		afterPage: func(page int) {
			if page == 1 {
				cancel()
			}
		},
	}
	f := newSyncFixture(source)
	f.courses.honorCtx = true

	result, err := f.svc.Synchronize(ctx, models.EntityCourses, SyncOptions{FullSync: true, PageSize: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSyncCancelled))
	assert.True(t, result.Cancelled)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 0, countPrefix(result.Logs, models.SyncLogError))
	assert.Equal(t, []int{1}, source.requested)
	assert.Len(t, f.courses.byRemote, 3)
}

func TestSynchronizeValidatesOptions(t *testing.T) {
	source := &fakeSource{}
	f := newSyncFixture(source)

	_, err := f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{PageSize: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Synchronize(context.Background(), models.EntityCourses, SyncOptions{PageSize: 1000})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Synchronize(context.Background(), models.EntityType("invoices"), SyncOptions{PageSize: 10})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, source.requested)
}

func TestSlugifyAndEnrollmentNumber(t *testing.T) {
	assert.Equal(t, "go-basics-101", slugify("  Go Basics: 101! "))
	assert.Equal(t, "2026000042", enrollmentNumber(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 42))
}
