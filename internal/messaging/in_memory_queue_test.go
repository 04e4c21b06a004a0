package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueuePublishAndReceive(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	jobId := uuid.New()

	require.NoError(t, queue.PublishScanTask(ctx, ScanTaskPayload{JobId: jobId}))
	require.NoError(t, queue.PublishProcessTask(ctx, ProcessTaskPayload{JobId: jobId, TaskId: 7}))

	task := <-queue.Tasks()
	assert.Equal(t, ScanQueue, task.Type())
	var scanPayload ScanTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &scanPayload))
	assert.Equal(t, jobId, scanPayload.JobId)
	assert.NoError(t, task.Ack())

	task = <-queue.Tasks()
	assert.Equal(t, ProcessQueue, task.Type())
	var processPayload ProcessTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &processPayload))
	assert.Equal(t, 7, processPayload.TaskId)
	assert.NoError(t, task.Nack())
}

func TestInMemoryQueueCloseEndsConsumers(t *testing.T) {
	queue := NewInMemoryQueue()

	done := make(chan struct{})
	go func() {
		for range queue.Tasks() {
		}
		close(done)
	}()

	queue.Close()

	<-done
}
