package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueAudit  = "jobs:audit"
	QueueFiscal = "jobs:fiscal"
	QueueEmail  = "jobs:email"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueAudit pushes an audit-trail record job. Fire-and-forget: callers
// ignore the error beyond logging — audit must never block a sale.
func (d *Dispatcher) EnqueueAudit(ctx context.Context, payload interface{}) error {
	return d.enqueue(ctx, QueueAudit, "audit", payload)
}

// EnqueueFiscal pushes a fiscal document emission job.
func (d *Dispatcher) EnqueueFiscal(ctx context.Context, payload interface{}) error {
	return d.enqueue(ctx, QueueFiscal, "fiscal", payload)
}

// EnqueueEmail pushes an email job.
func (d *Dispatcher) EnqueueEmail(ctx context.Context, payload interface{}) error {
	return d.enqueue(ctx, QueueEmail, "email", payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Handler processes one dequeued job payload.
type Handler interface {
	Process(ctx context.Context, raw json.RawMessage)
}

// WorkerHandlers maps each queue to its processor. Wired at the composition
// root so the pool has full access to infrastructure dependencies.
type WorkerHandlers struct {
	Audit  Handler
	Fiscal Handler
	Email  Handler
}

func (h *WorkerHandlers) forQueue(queue string) Handler {
	switch queue {
	case QueueAudit:
		return h.Audit
	case QueueFiscal:
		return h.Fiscal
	case QueueEmail:
		return h.Email
	}
	return nil
}

// StartWorkerPool launches numWorkers goroutines consuming all queues.
// Each goroutine blocks on BRPOP — zero CPU when idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, handlers *WorkerHandlers, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, handlers, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, handlers *WorkerHandlers, id int) {
	queues := []string{QueueAudit, QueueFiscal, QueueEmail}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop — waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, handlers, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, handlers *WorkerHandlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}
	h := handlers.forQueue(queue)
	if h == nil {
		log.Error().Str("queue", queue).Str("type", job.Type).Msg("no handler for queue")
		return
	}
	h.Process(ctx, job.Payload)
}
