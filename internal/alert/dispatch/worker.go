package dispatch

import (
	"context"
	"sync"

	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"go.uber.org/zap"
)

// Job is one approved firing waiting for channel delivery.
type Job struct {
	Rule   *alertdomain.AlertRule
	Record *auditdomain.AuditLog
}

// Worker decouples channel I/O from the request thread that persisted the
// audit record. The queue is bounded; when it is full the job is dropped and
// logged rather than blocking the caller, matching the best-effort delivery
// contract.
type Worker struct {
	dispatcher *Dispatcher
	log        *zap.Logger
	jobs       chan Job

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWorker constructs the dispatch worker with the dispatcher's queue size.
func NewWorker(dispatcher *Dispatcher, log *zap.Logger) *Worker {
	return &Worker{
		dispatcher: dispatcher,
		log:        log.Named("alert.dispatch.worker"),
		jobs:       make(chan Job, dispatcher.cfg.QueueSize),
		done:       make(chan struct{}),
	}
}

// Enqueue hands a firing to the background workers without blocking.
func (w *Worker) Enqueue(job Job) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		w.log.Warn("dispatch queue full, dropping firing",
			zap.String("rule_id", job.Rule.ID.String()),
			zap.String("audit_log_id", job.Record.ID.String()),
		)
		w.dispatcher.metrics.ObserveDropped()
		return false
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		for i := 0; i < w.dispatcher.cfg.Workers; i++ {
			w.wg.Add(1)
			go w.run()
		}
	})
}

// Stop drains in-flight jobs and waits for the workers to exit. Queued jobs
// not yet picked up are abandoned; their firings were already recorded by
// the cooldown tracker, which is the at-most-once side of the contract.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case job := <-w.jobs:
			// Each job gets a fresh context: a request finishing must not
			// cancel deliveries it already queued.
			w.dispatcher.Dispatch(context.Background(), job.Rule, job.Record)
		}
	}
}
