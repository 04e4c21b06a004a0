//go:build integration
// +build integration

// The build tag 'integration' allows separating integration tests from unit tests.
// Run unit tests with: go test ./...
// Run integration tests with: go test -tags=integration ./...

package messaging

import (
	"context"
	"encoding/json"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestPublishConsumeOverRabbitMQ(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log.Println("Setting up RabbitMQ container...")
	rabbitmqContainer, err := rabbitmq.RunContainer(ctx,
		testcontainers.WithImage("rabbitmq:3.11-management"),
	)
	require.NoError(t, err, "Failed to start RabbitMQ container")
	defer func() {
		if err := rabbitmqContainer.Terminate(context.Background()); err != nil {
			log.Printf("Warning: failed to terminate RabbitMQ container: %v", err)
		}
	}()

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")
	log.Printf("RabbitMQ container ready at: %s", connStr)

	publisher, err := NewRabbitMQPublisher(connStr)
	require.NoError(t, err, "Failed to create publisher")
	defer publisher.Close()

	receiver, err := NewRabbitMQReceiver(connStr)
	require.NoError(t, err, "Failed to create receiver")
	defer receiver.Close()

	jobId := uuid.New()

	require.NoError(t, publisher.PublishScanTask(ctx, ScanTaskPayload{JobId: jobId}))
	require.NoError(t, publisher.PublishProcessTask(ctx, ProcessTaskPayload{JobId: jobId, TaskId: 3}))

	received := make(map[string]Task)
	for len(received) < 2 {
		select {
		case task := <-receiver.Tasks():
			received[task.Type()] = task
			require.NoError(t, task.Ack())
		case <-ctx.Done():
			t.Fatal("Test timed out waiting for tasks")
		}
	}

	scanTask, ok := received[ScanQueue]
	require.True(t, ok, "expected a task on the scan queue")
	var scanPayload ScanTaskPayload
	require.NoError(t, json.Unmarshal(scanTask.Payload(), &scanPayload))
	assert.Equal(t, jobId, scanPayload.JobId)

	processTask, ok := received[ProcessQueue]
	require.True(t, ok, "expected a task on the process queue")
	var processPayload ProcessTaskPayload
	require.NoError(t, json.Unmarshal(processTask.Payload(), &processPayload))
	assert.Equal(t, jobId, processPayload.JobId)
	assert.Equal(t, 3, processPayload.TaskId)
}
