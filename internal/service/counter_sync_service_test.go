package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-market-api/internal/models"
)

type fakePendingStore struct {
	members map[models.ItemType][]string
	cleared map[models.ItemType]int
	err     error
}

func (f *fakePendingStore) Members(ctx context.Context, itemType models.ItemType) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[itemType], nil
}

func (f *fakePendingStore) Clear(ctx context.Context, itemType models.ItemType) error {
	if f.cleared == nil {
		f.cleared = make(map[models.ItemType]int)
	}
	f.cleared[itemType]++
	return nil
}

type fakeCountReader struct {
	counts map[string]int
	err    error
}

func (f *fakeCountReader) CountByItemIDs(ctx context.Context, itemType models.ItemType, itemIDs []string) ([]models.ItemCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.ItemCount
	for _, id := range itemIDs {
		if n, ok := f.counts[id]; ok {
			out = append(out, models.ItemCount{ItemID: id, Count: n})
		}
	}
	return out, nil
}

type fakeCountWriter struct {
	written map[string]int
	err     error
}

func (f *fakeCountWriter) UpdateRegistrationCount(ctx context.Context, itemType models.ItemType, id string, count int) error {
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = make(map[string]int)
	}
	f.written[string(itemType)+":"+id] = count
	return nil
}

func TestCounterSyncServiceSyncConverges(t *testing.T) {
	pending := &fakePendingStore{members: map[models.ItemType][]string{
		models.ItemTypeTest:   {"t1", "t2"},
		models.ItemTypeCourse: {"c1"},
	}}
	counts := &fakeCountReader{counts: map[string]int{"t1": 5, "t2": 2, "c1": 9}}
	writer := &fakeCountWriter{}

	svc := NewCounterSyncService(pending, counts, writer, nil, time.Minute, zap.NewNop())
	updated, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, updated)
	assert.Equal(t, 5, writer.written["test:t1"])
	assert.Equal(t, 2, writer.written["test:t2"])
	assert.Equal(t, 9, writer.written["course:c1"])
	assert.Equal(t, 1, pending.cleared[models.ItemTypeTest])
	assert.Equal(t, 1, pending.cleared[models.ItemTypeCourse])
}

func TestCounterSyncServiceZeroesMissingItems(t *testing.T) {
	// An item whose registrations were all removed is absent from the
	// aggregate and must be written back as zero.
	pending := &fakePendingStore{members: map[models.ItemType][]string{
		models.ItemTypeTest: {"t1", "gone"},
	}}
	counts := &fakeCountReader{counts: map[string]int{"t1": 4}}
	writer := &fakeCountWriter{}

	svc := NewCounterSyncService(pending, counts, writer, nil, time.Minute, zap.NewNop())
	updated, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, 0, writer.written["test:gone"])
}

func TestCounterSyncServiceEmptyPendingIsNoop(t *testing.T) {
	pending := &fakePendingStore{}
	writer := &fakeCountWriter{}

	svc := NewCounterSyncService(pending, &fakeCountReader{}, writer, nil, time.Minute, zap.NewNop())
	updated, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Empty(t, writer.written)
	assert.Empty(t, pending.cleared)
}

func TestCounterSyncServiceStoreDownAborts(t *testing.T) {
	pending := &fakePendingStore{err: errors.New("redis down")}

	svc := NewCounterSyncService(pending, &fakeCountReader{}, &fakeCountWriter{}, nil, time.Minute, zap.NewNop())
	_, err := svc.Sync(context.Background())
	require.Error(t, err)
}

func TestCounterSyncServiceWriteFailureKeepsPending(t *testing.T) {
	pending := &fakePendingStore{members: map[models.ItemType][]string{
		models.ItemTypeTest: {"t1"},
	}}
	counts := &fakeCountReader{counts: map[string]int{"t1": 1}}
	writer := &fakeCountWriter{err: errors.New("db down")}

	svc := NewCounterSyncService(pending, counts, writer, nil, time.Minute, zap.NewNop())
	_, err := svc.Sync(context.Background())
	require.Error(t, err)
	// The set is not cleared, so the next pass retries these IDs.
	assert.Empty(t, pending.cleared)
}

func TestCounterSyncServiceRunStopsOnCancel(t *testing.T) {
	pending := &fakePendingStore{}
	svc := NewCounterSyncService(pending, &fakeCountReader{}, &fakeCountWriter{}, nil, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancellation")
	}
}
