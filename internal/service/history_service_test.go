package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/storage"
)

type memHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
	fail    error
}

func (m *memHistory) Create(_ context.Context, entry *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	entry.ID = uuid.NewString()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memHistory) ListByComplaint(_ context.Context, complaintID string) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.HistoryEntry{}
	for _, entry := range m.entries {
		if entry.ComplaintID == complaintID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func newHistoryFixture(t *testing.T) (*LifecycleService, *HistoryService, *memHistory) {
	t.Helper()
	gate, err := auth.NewDefaultGate()
	require.NoError(t, err)
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })

	complaints := newMemComplaints()
	store := &memHistory{}
	dispatcher := events.NewInMemoryDispatcher()
	history := NewHistoryService(store, complaints, gate, nil)
	history.RegisterHandlers(dispatcher)

	lifecycle := NewLifecycleService(LifecycleDependencies{
		ComplaintRepo: complaints,
		Blobs:         storage.NewBlobStore(bucket, "http://media.test"),
		Gate:          gate,
		Dispatcher:    dispatcher,
	})
	return lifecycle, history, store
}

func TestHistoryRecordsLifecycle(t *testing.T) {
	lifecycle, history, _ := newHistoryFixture(t)
	ctx := context.Background()

	created, err := lifecycle.Create(ctx, citizen, potholeInput())
	require.NoError(t, err)
	_, err = lifecycle.SetPriority(ctx, roadsAdmin, created.ID, domain.PriorityHigh)
	require.NoError(t, err)
	_, err = lifecycle.SendProof(ctx, roadsAdmin, created.ID, pngBytes)
	require.NoError(t, err)
	_, err = lifecycle.SubmitFeedback(ctx, citizen, created.ID, FeedbackInput{Rating: 2, WantsReopen: true})
	require.NoError(t, err)

	entries, err := history.List(ctx, citizen, created.ID)
	require.NoError(t, err)

	changes := make([]domain.ChangeType, len(entries))
	for i, entry := range entries {
		changes[i] = entry.ChangeType
	}
	assert.Equal(t, []domain.ChangeType{
		domain.ChangeCreated,
		domain.ChangePriority,
		domain.ChangeProof,
		domain.ChangeStatus,
		domain.ChangeRating,
		domain.ChangeStatus,
	}, changes)

	last := entries[len(entries)-1]
	assert.Equal(t, string(domain.StatusResolved), last.OldValue)
	assert.Equal(t, string(domain.StatusReopened), last.NewValue)
	assert.Equal(t, "feedback_reopened", last.Reason)
	assert.Equal(t, citizen.UserID, last.ActorID)
	assert.Equal(t, "2", entries[4].NewValue)
}

func TestHistoryListRespectsScope(t *testing.T) {
	lifecycle, history, _ := newHistoryFixture(t)
	ctx := context.Background()

	created, err := lifecycle.Create(ctx, citizen, potholeInput())
	require.NoError(t, err)

	_, err = history.List(ctx, neighbour, created.ID)
	assertCode(t, err, "FORBIDDEN")
	_, err = history.List(ctx, wasteAdmin, created.ID)
	assertCode(t, err, "FORBIDDEN")
	_, err = history.List(ctx, superadmin, "not-a-uuid")
	assertCode(t, err, "NOT_FOUND")

	entries, err := history.List(ctx, roadsAdmin, created.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHistoryFailureDoesNotFailOperation(t *testing.T) {
	lifecycle, _, store := newHistoryFixture(t)
	store.fail = errors.New("history table locked")

	created, err := lifecycle.Create(context.Background(), citizen, potholeInput())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, created.Status)
}
