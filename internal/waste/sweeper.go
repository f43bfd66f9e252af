package waste

import (
	"fmt"
	"log"
	"time"

	"github.com/banelo/banelo-backend/internal/stock"
	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/banelo/banelo-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SweepFailure reports one item the sweep could not process
type SweepFailure struct {
	ItemID   uuid.UUID `json:"item_id"`
	ItemName string    `json:"item_name"`
	Err      error     `json:"-"`
}

func (f SweepFailure) Error() string {
	return fmt.Sprintf("sweep failed for %s: %v", f.ItemName, f.Err)
}

// Sweeper expires stale display stock. Perishable items whose display-pool
// expiration date has passed get their entire display quantity recorded as
// waste and deducted. Re-running on the same day is a no-op: once display
// is zero the item no longer matches the predicate.
type Sweeper struct {
	db       *gorm.DB
	ledger   *stock.Ledger
	interval time.Duration

	// Now is overridable so sweeps are testable against a fixed day
	Now func() time.Time
}

// NewSweeper creates an expiration sweeper running every interval
func NewSweeper(db *gorm.DB, ledger *stock.Ledger, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		ledger:   ledger,
		interval: interval,
		Now:      time.Now,
	}
}

// Start begins the sweep loop. Runs immediately on startup, then on every
// tick.
func (s *Sweeper) Start() {
	ticker := time.NewTicker(s.interval)
	go func() {
		s.Run()

		for range ticker.C {
			s.Run()
		}
	}()
	log.Printf("Expiration sweeper started (runs every %s)", s.interval)
}

// Run executes one sweep. A failing item is reported and skipped; the rest
// of the sweep continues. The error return covers the candidate query only,
// where no per-item attribution exists yet.
func (s *Sweeper) Run() ([]SweepFailure, error) {
	now := s.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var candidates []database.StockItem
	if err := s.db.Where(
		"is_perishable = ? AND expiration_date IS NOT NULL AND expiration_date <= ? AND display_qty > 0",
		true, today,
	).Find(&candidates).Error; err != nil {
		log.Printf("Sweeper: failed to list expired stock: %v", err)
		return nil, fmt.Errorf("failed to list expired stock: %w", err)
	}

	var failures []SweepFailure
	swept := 0
	for _, candidate := range candidates {
		if err := s.sweepItem(candidate.ID); err != nil {
			log.Printf("Sweeper: %s (%s): %v", candidate.Name, candidate.ID, err)
			failures = append(failures, SweepFailure{
				ItemID:   candidate.ID,
				ItemName: candidate.Name,
				Err:      err,
			})
			continue
		}
		swept++
	}

	if swept > 0 || len(failures) > 0 {
		log.Printf("Sweeper: expired %d item(s), %d failure(s)", swept, len(failures))
	}
	return failures, nil
}

// sweepItem records and deducts one item's expired display stock inside a
// single transaction, so the waste record and the deduction land together
// or not at all
func (s *Sweeper) sweepItem(itemID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var item database.StockItem
		if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
			return err
		}

		// Another run (or a sale) may have drained the display pool since
		// the candidate list was built
		if !item.DisplayQty.IsPositive() {
			return nil
		}

		record := database.WasteRecord{
			ItemID:   item.ID,
			Quantity: item.DisplayQty,
			Reason:   database.WasteReasonExpired,
			Note:     "expired on display",
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		res, err := s.ledger.DeductTx(tx, item.ID, item.DisplayQty)
		if err != nil {
			return err
		}
		if !res.FromWarehouse.IsZero() {
			// Deducting exactly the display quantity can never touch the
			// warehouse pool; this indicates a racing write
			return fmt.Errorf("unexpected warehouse deduction of %s", res.FromWarehouse)
		}

		return outbox.Enqueue(tx, "waste_sync", map[string]interface{}{
			"waste_record_id": record.ID,
			"item_id":         item.ID,
			"quantity":        record.Quantity,
			"reason":          record.Reason,
		})
	})
}
