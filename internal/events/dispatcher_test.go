package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var seen []string
	d.Subscribe(EventTokenStatusChanged, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.TokenID)
		return errors.New("first failed")
	})
	d.Subscribe(EventTokenStatusChanged, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.TokenID)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
		return nil
	})
	d.Subscribe(EventTokenPortalRefreshed, func(context.Context, Event) error {
		seen = append(seen, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTokenStatusChanged, TokenID: "t1"})

	require.Error(t, err)
	assert.ErrorContains(t, err, "first failed")
	assert.Equal(t, []string{"first:t1", "second:t1"}, seen)
}

func TestPublishWithoutListeners(t *testing.T) {
	assert.NoError(t, NewInMemoryDispatcher().Publish(context.Background(), Event{Type: EventTokenUsageExhausted}))
}
