package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/repository"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

// memComplaints is an in-memory ComplaintRepository. Mutate works on a copy and commits only on success.
type memComplaints struct {
	mu         sync.Mutex
	rows       map[string]domain.Complaint
	seq        int
	failCreate error
	failMutate error
}

func newMemComplaints() *memComplaints {
	return &memComplaints{rows: map[string]domain.Complaint{}}
}

func clone(c domain.Complaint) domain.Complaint {
	history := make([]domain.FeedbackEntry, len(c.FeedbackHistory))
	for i, entry := range c.FeedbackHistory {
		if entry.Rating != nil {
			rating := *entry.Rating
			entry.Rating = &rating
		}
		history[i] = entry
	}
	c.FeedbackHistory = history
	if c.Department != nil {
		department := *c.Department
		c.Department = &department
	}
	return c
}

func (m *memComplaints) Create(_ context.Context, complaint *domain.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	m.seq++
	complaint.ID = uuid.NewString()
	complaint.CreatedAt = time.Unix(int64(m.seq), 0)
	complaint.UpdatedAt = complaint.CreatedAt
	m.rows[complaint.ID] = clone(*complaint)
	return nil
}

func (m *memComplaints) GetByID(_ context.Context, id string) (*domain.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := clone(row)
	return &c, nil
}

func (m *memComplaints) List(_ context.Context, filter repository.ComplaintFilter) ([]domain.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []domain.Complaint{}
	for _, row := range m.rows {
		if filter.ReporterID != nil && row.ReporterID != *filter.ReporterID {
			continue
		}
		if filter.RoutedTo != nil && row.RoutedTo() != *filter.RoutedTo {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, row.Status) {
			continue
		}
		result = append(result, clone(row))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *memComplaints) Mutate(_ context.Context, id string, fn repository.MutateFunc) (*domain.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	working := clone(row)
	if err := fn(&working); err != nil {
		return nil, err
	}
	if m.failMutate != nil {
		return nil, m.failMutate
	}
	for i := range working.FeedbackHistory {
		if working.FeedbackHistory[i].ID == "" {
			working.FeedbackHistory[i].ID = uuid.NewString()
		}
	}
	m.rows[id] = clone(working)
	return &working, nil
}

func (m *memComplaints) CountByStatus(context.Context) (map[domain.ComplaintStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.ComplaintStatus]int{}
	for _, row := range m.rows {
		counts[row.Status]++
	}
	return counts, nil
}

func (m *memComplaints) CountByCategory(context.Context) (map[domain.Category]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.Category]int{}
	for _, row := range m.rows {
		counts[row.Category]++
	}
	return counts, nil
}

func containsStatus(statuses []domain.ComplaintStatus, status domain.ComplaintStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// recordingDispatcher captures published events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, len(d.events))
	for i, e := range d.events {
		out[i] = e.Type
	}
	return out
}

// mockPublisher is a testify mock of EventPublisher.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(ctx context.Context, channel string, payload any) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu   sync.Mutex
	rows map[string]domain.User
	seq  int
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[string]domain.User{}}
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Email == user.Email {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	m.seq++
	user.ID = uuid.NewString()
	user.CreatedAt = time.Unix(int64(m.seq), 0)
	user.UpdatedAt = user.CreatedAt
	m.rows[user.ID] = *user
	return nil
}

func (m *memUsers) Update(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.rows[user.ID] = *user
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &row, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Email == email {
			user := row
			return &user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) List(context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := []domain.User{}
	for _, row := range m.rows {
		users = append(users, row)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (m *memUsers) CountByRole(context.Context) (map[domain.Role]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.Role]int{}
	for _, row := range m.rows {
		counts[row.Role]++
	}
	return counts, nil
}
