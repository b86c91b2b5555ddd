package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

func TestWorkerCmd_NeedsQueue(t *testing.T) {
	assert.Equal(t, needsQueue, workerCmd.Annotations[annotationNeeds])
	assert.Equal(t, needsQueue, deadLettersCmd.Annotations[annotationNeeds])
	assert.Equal(t, needsQueue, uploadCmd.Annotations[annotationNeeds])
}

func TestWorkerCmd_Run(t *testing.T) {
	ts := setupTestServices(t)

	_, err := execute(t, "worker")

	require.NoError(t, err)
	assert.Equal(t, 1, ts.worker.runs)
}

func TestWorkerCmd_Once(t *testing.T) {
	ts := setupTestServices(t)

	out, err := execute(t, "worker", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue is empty.")

	ts.worker.received = 3
	ts.worker.result = domain.EventBatchResult{
		Processed: 1, Skipped: 1,
		Failures: map[string]error{"m-3": errors.New("timeout")},
	}
	out, err = execute(t, "worker", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "Received 3 messages: 1 documents processed, 1 skipped, 1 messages left for redelivery")
	assert.Zero(t, ts.worker.runs)
}

func TestDeadLettersCmd(t *testing.T) {
	ts := setupTestServices(t)

	out, err := execute(t, "worker", "dead-letters")
	require.NoError(t, err)
	assert.Contains(t, out, "No dead letters.")

	ts.worker.letters = []domain.DeadLetter{
		{MessageID: "m-1", ReceiveCount: 5, EnqueuedAt: time.Now(), DocumentKeys: []domain.DocumentKey{"alice/bad.pdf"}},
		{MessageID: "m-2", ReceiveCount: 5, EnqueuedAt: time.Now(), Body: "not json"},
	}
	out, err = execute(t, "worker", "dead-letters")
	require.NoError(t, err)
	assert.Contains(t, out, "m-1  received 5 times")
	assert.Contains(t, out, "alice/bad.pdf")
	assert.Contains(t, out, "body: not json")

	out, err = execute(t, "worker", "dead-letters", "--json", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"message_id": "m-1"`)
	assert.NotContains(t, out, "m-2")
}
