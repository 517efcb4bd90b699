package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/repository"
)

func TestActivityServiceRecordPersistsInBackground(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	entityID := uint(12)
	svc.Record(ActivityEntry{
		ActorID:    3,
		ActorRole:  "Evaluator",
		Action:     "Evidence.Graded",
		EntityType: "Evidence",
		EntityID:   &entityID,
		Metadata:   map[string]interface{}{"score": 82.0},
	})

	require.Eventually(t, func() bool {
		listing, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10})
		return err == nil && len(listing.Items) == 1
	}, 2*time.Second, 10*time.Millisecond)

	listing, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	entry := listing.Items[0]
	require.Equal(t, uint(3), entry.ActorID)
	require.Equal(t, "evaluator", entry.ActorRole, "roles are normalized to lower case")
	require.Equal(t, "evidence.graded", entry.Action)
	require.Equal(t, entityID, *entry.EntityID)
	require.Equal(t, 82.0, entry.Metadata["score"])
}

func TestActivityServiceRecordNeverBlocks(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), nil, "", testLogger())
	// No Start: the queue fills and overflow entries are dropped silently.

	done := make(chan struct{})
	go func() {
		for i := 0; i < activityBufferSize*2; i++ {
			svc.Record(ActivityEntry{ActorID: 1, ActorRole: "admin", Action: "noop", EntityType: "evidence"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record must not block when the buffer is full")
	}
}

func TestActivityServiceListFiltersAndPaginates(t *testing.T) {
	db := setupServiceDB(t)
	repo := repository.NewActivityLogRepository(db)
	svc := NewActivityService(repo, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	for i := 0; i < 3; i++ {
		svc.Record(ActivityEntry{ActorID: 1, ActorRole: "instructor", Action: "evidence.submitted", EntityType: "evidence"})
	}
	svc.Record(ActivityEntry{ActorID: 2, ActorRole: "evaluator", Action: "evidence.graded", EntityType: "evidence"})

	require.Eventually(t, func() bool {
		listing, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10})
		return err == nil && len(listing.Items) == 4
	}, 2*time.Second, 10*time.Millisecond)

	graded, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10, Action: "evidence.graded"})
	require.NoError(t, err)
	require.Len(t, graded.Items, 1)
	require.Equal(t, uint(2), graded.Items[0].ActorID)

	paged, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
	require.Equal(t, int64(4), paged.Pagination.TotalItems)
	require.Equal(t, 2, paged.Pagination.TotalPages)
}
