package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-attendance/internal/models"
	"ms-attendance/internal/sse"
)

func snapshotFor(eventID string, total int) models.EventSnapshot {
	return models.EventSnapshot{
		Event: models.Event{ID: eventID, TotalAttendance: total},
	}
}

func TestEmitReachesEventSubscribers(t *testing.T) {
	emitter := sse.NewAttendanceEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := emitter.SubscribeToEvent(ctx, "evt1")
	require.Equal(t, 1, emitter.SubscriberCount("evt1"))

	emitter.Emit(snapshotFor("evt1", 42))

	select {
	case snap := <-ch:
		assert.Equal(t, "evt1", snap.Event.ID)
		assert.Equal(t, 42, snap.Event.TotalAttendance)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestEmitIsScopedToEvent(t *testing.T) {
	emitter := sse.NewAttendanceEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := emitter.SubscribeToEvent(ctx, "evt1")
	ch2 := emitter.SubscribeToEvent(ctx, "evt2")

	emitter.Emit(snapshotFor("evt1", 7))

	select {
	case snap := <-ch1:
		assert.Equal(t, "evt1", snap.Event.ID)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case snap := <-ch2:
		t.Fatalf("subscriber of evt2 received snapshot for %s", snap.Event.ID)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockEmit(t *testing.T) {
	emitter := sse.NewAttendanceEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitter.SubscribeToEvent(ctx, "evt1")

	// The channel buffer holds 10 snapshots; the rest are dropped, never
	// queued against the writer
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			emitter.Emit(snapshotFor("evt1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestContextCancelRemovesSubscriber(t *testing.T) {
	emitter := sse.NewAttendanceEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := emitter.SubscribeToEvent(ctx, "evt1")
	require.Equal(t, 1, emitter.SubscriberCount("evt1"))

	cancel()

	// Channel close signals the cleanup goroutine ran
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				assert.Equal(t, 0, emitter.SubscriberCount("evt1"))
				return
			}
		case <-deadline:
			t.Fatal("subscriber was not removed after cancel")
		}
	}
}
