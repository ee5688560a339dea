package ledgersync

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/imfsl/ledger_backend/config"
	"bitbucket.org/imfsl/ledger_backend/models"
	"bitbucket.org/imfsl/ledger_backend/utils"
)

// AuditQueue writes invocation metrics off the request path through a
// bounded in-process queue with bounded retries. Loss happens only when
// the queue is full or retries are exhausted, and both are logged, so
// dropping a metric is a visible decision rather than an unawaited write.
type AuditQueue struct {
	tasks      chan models.FunctionInvocation
	sink       func(models.FunctionInvocation) error
	maxRetries int
	retryDelay time.Duration

	mu        sync.Mutex
	closed    bool
	startOnce sync.Once
	done      chan struct{}
}

func NewAuditQueue(capacity int, sink func(models.FunctionInvocation) error) *AuditQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &AuditQueue{
		tasks:      make(chan models.FunctionInvocation, capacity),
		sink:       sink,
		maxRetries: 3,
		retryDelay: 200 * time.Millisecond,
		done:       make(chan struct{}),
	}
}

func (q *AuditQueue) Start() {
	q.startOnce.Do(func() {
		go q.loop()
	})
}

func (q *AuditQueue) loop() {
	defer close(q.done)
	for inv := range q.tasks {
		q.deliver(inv)
	}
}

func (q *AuditQueue) deliver(inv models.FunctionInvocation) {
	var err error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(q.retryDelay)
		}
		if err = q.sink(inv); err == nil {
			return
		}
	}
	config.LogError(config.GetLogger(), "ledgersync", "AuditQueue.deliver",
		"metric dropped after retries", inv.FunctionName, err)
}

// Enqueue never blocks the caller. Returns false when the queue is full
// or already draining.
func (q *AuditQueue) Enqueue(inv models.FunctionInvocation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		config.GetLogger().Warnf("audit queue draining; dropping metric for %s", inv.FunctionName)
		return false
	}
	select {
	case q.tasks <- inv:
		return true
	default:
		config.GetLogger().Warnf("audit queue full; dropping metric for %s", inv.FunctionName)
		return false
	}
}

// Drain stops intake and waits for in-flight metrics, bounded by ctx.
// A late Enqueue is rejected under the same lock rather than racing the
// closed channel; calling Drain twice is safe.
func (q *AuditQueue) Drain(ctx context.Context) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
	case <-ctx.Done():
		config.GetLogger().Warn("audit queue drain timed out; remaining metrics lost")
	}
}

var (
	auditQueue     *AuditQueue
	auditQueueOnce sync.Once
)

// GetAuditQueue returns the process-wide queue backed by the canonical DB.
func GetAuditQueue() *AuditQueue {
	auditQueueOnce.Do(func() {
		auditQueue = NewAuditQueue(256, func(inv models.FunctionInvocation) error {
			return config.GetDB().Create(&inv).Error
		})
		auditQueue.Start()
	})
	return auditQueue
}

// RecordInvocation enqueues one handler metric.
func RecordInvocation(ctx context.Context, functionName, status string, startedAt time.Time, detail string) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	GetAuditQueue().Enqueue(models.FunctionInvocation{
		FunctionName:  functionName,
		Status:        status,
		DurationMs:    time.Since(startedAt).Milliseconds(),
		Detail:        detail,
		CorrelationId: correlationId,
	})
}
