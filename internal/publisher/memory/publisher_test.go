package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()

	id1, err := pub.Publish(context.Background(), "scrape-jobs", map[string]string{"job_id": "job-1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "scrape-jobs", "done")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, "scrape-jobs", events[0].Topic)

	events[0].Topic = "modified"
	require.Equal(t, "scrape-jobs", pub.Events()[0].Topic)
}
