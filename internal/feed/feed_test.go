package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversAndCoalesces(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := hub.Subscribe(ctx, ProjectTasks("p1"))
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(ProjectTasks("p1")))

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(ctx, ProjectTasks("p1")))
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestHubTopicIsolationAndClose(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Subscribe(ctx, UserNotifications("u1"))
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), UserNotifications("u2")))
	select {
	case <-ch:
		t.Fatal("unexpected signal from other topic")
	default:
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers(UserNotifications("u1")) == 0 }, time.Second, 10*time.Millisecond)
}
