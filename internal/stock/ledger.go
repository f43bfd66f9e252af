package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the referenced stock item does not exist
	ErrNotFound = errors.New("stock item not found")
	// ErrInvalidQuantity is returned for zero or negative quantities
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrInsufficientStock is returned when a transfer asks for more than
	// the warehouse pool holds
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict is returned when concurrent writers exhaust the
	// optimistic retry budget for one item
	ErrConflict = errors.New("concurrent stock update, please retry")
)

// InsufficientStockError carries the item and amounts so the operator can
// act on the failure (restock, transfer less, or cancel).
type InsufficientStockError struct {
	ItemID    uuid.UUID
	ItemName  string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %s, available %s",
		e.ItemName, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DeductResult reports how a deduction was satisfied. Shortfall is non-zero
// when both pools together held less than requested; the deduction is still
// applied (pools drained to zero) and NOT rolled back, so callers that need
// all-or-nothing semantics must validate availability first.
type DeductResult struct {
	FromDisplay   decimal.Decimal `json:"from_display"`
	FromWarehouse decimal.Decimal `json:"from_warehouse"`
	Shortfall     decimal.Decimal `json:"shortfall"`
	Item          *database.StockItem
}

// Taken is the quantity actually removed from the item's pools
func (r *DeductResult) Taken() decimal.Decimal {
	return r.FromDisplay.Add(r.FromWarehouse)
}

// Partial reports whether the item ran out mid-deduction
func (r *DeductResult) Partial() bool {
	return r.Shortfall.IsPositive()
}

// maxWriteRetries bounds the optimistic-concurrency loop per operation
const maxWriteRetries = 5

// Ledger is the sole authority over the warehouse and display pools of
// every stock item. All quantity changes go through it so neither pool can
// ever go negative. Each read-modify-write is guarded by a version check
// and retried, which serializes concurrent writers per item without
// dialect-specific row locks.
type Ledger struct {
	db *gorm.DB

	// Now is overridable so expiration stamping is testable
	Now func() time.Time
}

// NewLedger creates a ledger over the given database handle
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, Now: time.Now}
}

// Transfer moves quantity units from the warehouse pool to the display
// pool. Perishable items get their display-pool expiration date refreshed
// to today + shelf life; the single date covers the whole display pool, so
// a later transfer overwrites the previous one.
func (l *Ledger) Transfer(itemID uuid.UUID, qty decimal.Decimal) (*database.StockItem, error) {
	return l.TransferTx(l.db, itemID, qty)
}

// TransferTx is Transfer running against the caller's transaction handle
func (l *Ledger) TransferTx(tx *gorm.DB, itemID uuid.UUID, qty decimal.Decimal) (*database.StockItem, error) {
	if !qty.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		item, err := l.find(tx, itemID)
		if err != nil {
			return nil, err
		}

		if item.WarehouseQty.LessThan(qty) {
			return nil, &InsufficientStockError{
				ItemID:    item.ID,
				ItemName:  item.Name,
				Requested: qty,
				Available: item.WarehouseQty,
			}
		}

		newWarehouse := item.WarehouseQty.Sub(qty)
		newDisplay := item.DisplayQty.Add(qty)
		updates := map[string]interface{}{
			"warehouse_qty": newWarehouse,
			"display_qty":   newDisplay,
			"total_qty":     newWarehouse.Add(newDisplay),
		}
		if item.IsPerishable {
			updates["expiration_date"] = l.today().AddDate(0, 0, item.ShelfLifeDays)
		}

		ok, err := l.saveGuarded(tx, item, updates)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.find(tx, itemID)
		}
	}

	return nil, ErrConflict
}

// Deduct removes quantity units from the item's combined stock, display
// pool first, remainder from the warehouse. When both pools together hold
// less than requested the deduction is clamped: the pools drain to zero and
// the result reports the shortfall. Display reaching zero clears the
// expiration date.
func (l *Ledger) Deduct(itemID uuid.UUID, qty decimal.Decimal) (*DeductResult, error) {
	return l.DeductTx(l.db, itemID, qty)
}

// DeductTx is Deduct running against the caller's transaction handle
func (l *Ledger) DeductTx(tx *gorm.DB, itemID uuid.UUID, qty decimal.Decimal) (*DeductResult, error) {
	if !qty.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		item, err := l.find(tx, itemID)
		if err != nil {
			return nil, err
		}

		fromDisplay := decimal.Min(qty, item.DisplayQty)
		remaining := qty.Sub(fromDisplay)
		fromWarehouse := decimal.Min(remaining, item.WarehouseQty)
		shortfall := remaining.Sub(fromWarehouse)

		newDisplay := item.DisplayQty.Sub(fromDisplay)
		newWarehouse := item.WarehouseQty.Sub(fromWarehouse)
		updates := map[string]interface{}{
			"warehouse_qty": newWarehouse,
			"display_qty":   newDisplay,
			"total_qty":     newWarehouse.Add(newDisplay),
		}
		if newDisplay.IsZero() {
			updates["expiration_date"] = nil
		}

		ok, err := l.saveGuarded(tx, item, updates)
		if err != nil {
			return nil, err
		}
		if ok {
			reloaded, err := l.find(tx, itemID)
			if err != nil {
				return nil, err
			}
			return &DeductResult{
				FromDisplay:   fromDisplay,
				FromWarehouse: fromWarehouse,
				Shortfall:     shortfall,
				Item:          reloaded,
			}, nil
		}
	}

	return nil, ErrConflict
}

// Restock adds quantity units to the warehouse pool (stock-in from a
// supplier delivery)
func (l *Ledger) Restock(itemID uuid.UUID, qty decimal.Decimal) (*database.StockItem, error) {
	if !qty.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		item, err := l.find(l.db, itemID)
		if err != nil {
			return nil, err
		}

		newWarehouse := item.WarehouseQty.Add(qty)
		ok, err := l.saveGuarded(l.db, item, map[string]interface{}{
			"warehouse_qty": newWarehouse,
			"total_qty":     newWarehouse.Add(item.DisplayQty),
		})
		if err != nil {
			return nil, err
		}
		if ok {
			return l.find(l.db, itemID)
		}
	}

	return nil, ErrConflict
}

// Quantities returns a read-only snapshot of the item's pools
func (l *Ledger) Quantities(itemID uuid.UUID) (warehouse, display decimal.Decimal, err error) {
	item, err := l.find(l.db, itemID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return item.WarehouseQty, item.DisplayQty, nil
}

func (l *Ledger) find(tx *gorm.DB, itemID uuid.UUID) (*database.StockItem, error) {
	var item database.StockItem
	if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// saveGuarded applies updates only if nobody else has written the item
// since it was read. Returns false when the version moved.
func (l *Ledger) saveGuarded(tx *gorm.DB, item *database.StockItem, updates map[string]interface{}) (bool, error) {
	updates["version"] = item.Version + 1
	res := tx.Model(&database.StockItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *Ledger) today() time.Time {
	now := l.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
