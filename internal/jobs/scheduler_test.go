package jobs

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	args []*redis.XAddArgs
}

func (q *recordingQueue) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	q.args = append(q.args, a)
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	return cmd
}

func TestEnqueueWritesToConfiguredStream(t *testing.T) {
	q := &recordingQueue{}
	s := NewScheduler(q, "dashboard:tasks", zerolog.Nop())

	require.NoError(t, s.Enqueue(context.Background(), TaskAuditPrune))
	require.Len(t, q.args, 1)
	assert.Equal(t, "dashboard:tasks", q.args[0].Stream)
	assert.Equal(t, map[string]any{"type": TaskAuditPrune}, q.args[0].Values)
}

func TestStartWithoutQueueIsNoop(t *testing.T) {
	s := NewScheduler(nil, "dashboard:tasks", zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Empty(t, s.cron.Entries())
	assert.NoError(t, s.Enqueue(context.Background(), TaskCleanup))
}

func TestStartRegistersJobs(t *testing.T) {
	s := NewScheduler(&recordingQueue{}, "dashboard:tasks", zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 2)
}
