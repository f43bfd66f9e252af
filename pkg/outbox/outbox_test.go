package outbox

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/banelo/banelo-backend/pkg/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func pendingTask(t *testing.T, db *gorm.DB, kind string) database.OutboxTask {
	t.Helper()
	if err := Enqueue(db, kind, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	var task database.OutboxTask
	if err := db.Last(&task, "kind = ?", kind).Error; err != nil {
		t.Fatalf("failed to load task: %v", err)
	}
	return task
}

func TestRunOnce_CompletesTask(t *testing.T) {
	db := testDB(t)
	w := NewWorker(db, time.Minute)

	handled := 0
	w.Register("sync", func(task *database.OutboxTask) error {
		handled++
		return nil
	})

	task := pendingTask(t, db, "sync")
	w.RunOnce()

	if handled != 1 {
		t.Fatalf("handler ran %d times, want 1", handled)
	}
	var got database.OutboxTask
	db.First(&got, "id = ?", task.ID)
	if got.Status != StatusDone {
		t.Errorf("status = %s, want %s", got.Status, StatusDone)
	}
}

func TestRunOnce_ReschedulesFailedTask(t *testing.T) {
	db := testDB(t)
	w := NewWorker(db, time.Minute)
	w.Register("sync", func(task *database.OutboxTask) error {
		return errors.New("remote unavailable")
	})

	task := pendingTask(t, db, "sync")
	before := time.Now()
	w.RunOnce()

	var got database.OutboxTask
	db.First(&got, "id = ?", task.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s, want still %s", got.Status, StatusPending)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if !got.NextAttemptAt.After(before) {
		t.Errorf("next attempt %v not pushed into the future", got.NextAttemptAt)
	}
	if got.LastError == "" {
		t.Error("last_error not recorded")
	}
}

func TestRunOnce_FailsTaskWithNoHandler(t *testing.T) {
	db := testDB(t)
	w := NewWorker(db, time.Minute)

	task := pendingTask(t, db, "orphan_kind")
	w.RunOnce()

	var got database.OutboxTask
	db.First(&got, "id = ?", task.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want %s (unknown kind must not stay pending)", got.Status, StatusFailed)
	}
	if got.LastError == "" {
		t.Error("last_error not recorded for unknown kind")
	}

	// A second run must not pick it up again
	w.RunOnce()
	var count int64
	db.Model(&database.OutboxTask{}).Where("status = ?", StatusPending).Count(&count)
	if count != 0 {
		t.Errorf("pending tasks = %d, want 0", count)
	}
}

func TestRunOnce_PermanentFailureAfterMaxAttempts(t *testing.T) {
	db := testDB(t)
	w := NewWorker(db, time.Minute)
	w.Register("sync", func(task *database.OutboxTask) error {
		return errors.New("remote unavailable")
	})

	task := pendingTask(t, db, "sync")
	for i := 0; i < maxAttempts; i++ {
		// Pull the retry time back so the task is always due
		db.Model(&database.OutboxTask{}).Where("id = ?", task.ID).
			Update("next_attempt_at", time.Now().Add(-time.Second))
		w.RunOnce()
	}

	var got database.OutboxTask
	db.First(&got, "id = ?", task.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want %s after %d attempts", got.Status, StatusFailed, maxAttempts)
	}
	if got.Attempts != maxAttempts {
		t.Errorf("attempts = %d, want %d", got.Attempts, maxAttempts)
	}
}
