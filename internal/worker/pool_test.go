package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedJob(t *testing.T, jobType string, payload interface{}) []byte {
	t.Helper()
	inner, err := json.Marshal(payload)
	require.NoError(t, err)
	encoded, err := json.Marshal(Job{Type: jobType, Payload: inner})
	require.NoError(t, err)
	return encoded
}

func TestDispatcherEnqueueAudit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	d := NewDispatcher(rdb)

	payload := AuditJobPayload{
		Operation:   "session.open",
		OperatorID:  uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		EntityID:    uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		BeforeTotal: 0,
		AfterTotal:  50000,
		OccurredAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	mock.ExpectLPush(QueueAudit, expectedJob(t, "audit", payload)).SetVal(1)

	require.NoError(t, d.EnqueueAudit(context.Background(), payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherEnqueueFiscal(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	d := NewDispatcher(rdb)

	payload := FiscalJobPayload{ReceiptToken: "33333333-3333-3333-3333-333333333333"}
	mock.ExpectLPush(QueueFiscal, expectedJob(t, "fiscal", payload)).SetVal(1)

	require.NoError(t, d.EnqueueFiscal(context.Background(), payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendToDLQ(t *testing.T) {
	rdb, mock := redismock.NewClientMock()

	// Only the list key is deterministic; match any value.
	mock.Regexp().ExpectLPush(DLQPrefix+QueueFiscal, `.*max retries.*`).SetVal(1)

	SendToDLQ(context.Background(), rdb, QueueFiscal, "fiscal",
		json.RawMessage(`{"receipt_token":"abc"}`), "max retries (5) exceeded", 5)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeRetryBackoffCaps(t *testing.T) {
	assert.Equal(t, time.Minute, computeRetryBackoff(1))
	assert.Equal(t, 2*time.Minute, computeRetryBackoff(2))
	assert.Equal(t, 8*time.Minute, computeRetryBackoff(4))
	assert.Equal(t, 30*time.Minute, computeRetryBackoff(10))
}
