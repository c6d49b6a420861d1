package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, q *Queue, id, status string) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		job = q.GetJob(id)
		return job != nil && job.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestQueue_Completes(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue(func(ctx context.Context, job Job) ([]byte, string, error) {
		return []byte("png:" + job.TemplateID), "image/png", nil
	}, 3, OnDone(func(j Job) { done <- j }))
	defer q.Stop()

	id, err := q.Enqueue(Request{TemplateID: "tpl-1", Width: 595})
	require.NoError(t, err)

	job := waitFor(t, q, id, StatusCompleted)
	assert.Equal(t, []byte("png:tpl-1"), job.Output)
	assert.Equal(t, FormatPNG, job.Format)

	notified := <-done
	assert.Equal(t, id, notified.ID)

	all := q.GetAllJobs()
	require.Len(t, all, 1)
	assert.Nil(t, all[0].Output)
}

func TestQueue_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	q := NewQueue(func(ctx context.Context, job Job) ([]byte, string, error) {
		attempts.Add(1)
		return nil, "", errors.New("template not found")
	}, 3, WithRetryDelay(time.Millisecond))
	defer q.Stop()

	id, err := q.Enqueue(Request{TemplateID: "tpl-1"})
	require.NoError(t, err)

	job := waitFor(t, q, id, StatusFailed)
	assert.Equal(t, 3, job.Retries)
	assert.Equal(t, "template not found", job.Error)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestQueue_RetrySucceeds(t *testing.T) {
	var attempts atomic.Int32
	q := NewQueue(func(ctx context.Context, job Job) ([]byte, string, error) {
		if attempts.Add(1) == 1 {
			return nil, "", errors.New("temporary")
		}
		return []byte("ok"), "text/html", nil
	}, 3, WithRetryDelay(time.Millisecond))
	defer q.Stop()

	id, err := q.Enqueue(Request{TemplateID: "tpl-1", Format: FormatHTML})
	require.NoError(t, err)

	job := waitFor(t, q, id, StatusCompleted)
	assert.Equal(t, 1, job.Retries)
	assert.Empty(t, job.Error)
}

func TestQueue_RejectsBadRequests(t *testing.T) {
	q := NewQueue(func(ctx context.Context, job Job) ([]byte, string, error) { return nil, "", nil }, 1)
	defer q.Stop()

	_, err := q.Enqueue(Request{})
	assert.Error(t, err)
	_, err = q.Enqueue(Request{TemplateID: "x", Format: "pdf"})
	assert.Error(t, err)
}

func TestQueue_IDsAreOrdered(t *testing.T) {
	q := NewQueue(func(ctx context.Context, job Job) ([]byte, string, error) { return nil, "", nil }, 1)
	defer q.Stop()

	a, err := q.Enqueue(Request{TemplateID: "x"})
	require.NoError(t, err)
	b, err := q.Enqueue(Request{TemplateID: "x"})
	require.NoError(t, err)
	assert.Less(t, a, b)
}

func TestQueue_ClearCompleted(t *testing.T) {
	q := NewQueue(func(ctx context.Context, job Job) ([]byte, string, error) { return nil, "", nil }, 1)
	defer q.Stop()

	id, err := q.Enqueue(Request{TemplateID: "x"})
	require.NoError(t, err)
	waitFor(t, q, id, StatusCompleted)

	assert.Equal(t, 1, q.ClearCompleted())
	assert.Nil(t, q.GetJob(id))
}

func TestQueue_StopCancelsRender(t *testing.T) {
	started := make(chan struct{})
	q := NewQueue(func(ctx context.Context, job Job) ([]byte, string, error) {
		close(started)
		<-ctx.Done()
		return nil, "", ctx.Err()
	}, 5)

	id, err := q.Enqueue(Request{TemplateID: "x"})
	require.NoError(t, err)
	<-started
	q.Stop()

	assert.Equal(t, StatusFailed, q.GetJob(id).Status)
}
