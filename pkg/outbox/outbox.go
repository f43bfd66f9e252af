package outbox

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/banelo/banelo-backend/pkg/database"
	"gorm.io/gorm"
)

// Task statuses
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const (
	maxAttempts = 8
	baseBackoff = 30 * time.Second
	maxBackoff  = 6 * time.Hour
)

// Enqueue stores a secondary write (e.g. remote audit sync) in the same
// transaction as the local write that triggered it. The worker retries it
// until it succeeds, so a failed remote sync is never silently dropped.
func Enqueue(tx *gorm.DB, kind string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	task := database.OutboxTask{
		Kind:          kind,
		Payload:       string(data),
		Status:        StatusPending,
		NextAttemptAt: time.Now(),
	}
	return tx.Create(&task).Error
}

// HandlerFunc processes one task; returning an error schedules a retry
type HandlerFunc func(task *database.OutboxTask) error

// Worker drains pending outbox tasks on a timer
type Worker struct {
	db       *gorm.DB
	interval time.Duration
	handlers map[string]HandlerFunc
}

func NewWorker(db *gorm.DB, interval time.Duration) *Worker {
	return &Worker{
		db:       db,
		interval: interval,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a task kind
func (w *Worker) Register(kind string, fn HandlerFunc) {
	w.handlers[kind] = fn
}

// Start begins the worker loop. Runs immediately on startup, then on every
// tick.
func (w *Worker) Start() {
	ticker := time.NewTicker(w.interval)
	go func() {
		w.RunOnce()

		for range ticker.C {
			w.RunOnce()
		}
	}()
	log.Printf("Outbox worker started (runs every %s)", w.interval)
}

// RunOnce processes every task that is due. A failing task is rescheduled
// with exponential backoff and does not stop the others.
func (w *Worker) RunOnce() {
	var tasks []database.OutboxTask
	if err := w.db.Where("status = ? AND next_attempt_at <= ?", StatusPending, time.Now()).
		Order("next_attempt_at ASC").
		Limit(100).
		Find(&tasks).Error; err != nil {
		log.Printf("Outbox: failed to fetch pending tasks: %v", err)
		return
	}

	for i := range tasks {
		task := &tasks[i]
		handler, ok := w.handlers[task.Kind]
		if !ok {
			// A kind nobody handles would otherwise sit pending forever and
			// crowd out newer tasks through the fetch limit
			task.Status = StatusFailed
			task.LastError = fmt.Sprintf("no handler registered for kind %q", task.Kind)
			log.Printf("Outbox: task %s has unknown kind %q, marking failed", task.ID, task.Kind)
			if err := w.db.Save(task).Error; err != nil {
				log.Printf("Outbox: failed to mark task %s failed: %v", task.ID, err)
			}
			continue
		}

		if err := handler(task); err != nil {
			w.reschedule(task, err)
			continue
		}

		task.Status = StatusDone
		if err := w.db.Save(task).Error; err != nil {
			log.Printf("Outbox: failed to mark task %s done: %v", task.ID, err)
		}
	}
}

func (w *Worker) reschedule(task *database.OutboxTask, cause error) {
	task.Attempts++
	task.LastError = cause.Error()

	if task.Attempts >= maxAttempts {
		task.Status = StatusFailed
		log.Printf("Outbox: task %s (%s) failed permanently after %d attempts: %v",
			task.ID, task.Kind, task.Attempts, cause)
	} else {
		backoff := baseBackoff << uint(task.Attempts-1)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		task.NextAttemptAt = time.Now().Add(backoff)
		log.Printf("Outbox: task %s (%s) attempt %d failed, retrying in %s: %v",
			task.ID, task.Kind, task.Attempts, backoff, cause)
	}

	if err := w.db.Save(task).Error; err != nil {
		log.Printf("Outbox: failed to reschedule task %s: %v", task.ID, err)
	}
}
