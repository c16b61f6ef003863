package auditexport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobmemory "crmcore/internal/infra/blob/memory"
	"crmcore/pkg/domain"
)

func TestWorkerCompletesQueuedExport(t *testing.T) {
	store := blobmemory.New()
	worker := NewWorker(New(seededService(t), store), 4)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	job, err := worker.Enqueue(context.Background(), Request{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)

	require.Eventually(t, func() bool {
		got, ok := worker.Job(job.ID)
		return ok && got.Done()
	}, 2*time.Second, 10*time.Millisecond)

	done, _ := worker.Job(job.ID)
	assert.Equal(t, StatusSucceeded, done.Status)
	require.NotNil(t, done.Artifact)
	require.NotNil(t, done.CompletedAt)
	_, err = store.Head(context.Background(), done.Artifact.Key)
	assert.NoError(t, err)
	assert.Len(t, worker.Jobs(), 1)
}

func TestWorkerRecordsFailures(t *testing.T) {
	worker := NewWorker(New(failingSource{}, blobmemory.New()), 1)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	job, err := worker.Enqueue(context.Background(), Request{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, _ := worker.Job(job.ID)
		return got.Done()
	}, 2*time.Second, 10*time.Millisecond)
	failed, _ := worker.Job(job.ID)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "store offline")
}

func TestWorkerRejectsWhenFullOrStopped(t *testing.T) {
	worker := NewWorker(New(seededService(t), blobmemory.New()), 1)
	_, err := worker.Enqueue(context.Background(), Request{})
	require.NoError(t, err)
	_, err = worker.Enqueue(context.Background(), Request{})
	assert.True(t, errors.Is(err, ErrQueueFull))

	_, err = worker.Enqueue(context.Background(), Request{Format: "pdf"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	require.NoError(t, worker.Stop(context.Background()))
	_, err = worker.Enqueue(context.Background(), Request{})
	assert.True(t, errors.Is(err, ErrStopped))
}
