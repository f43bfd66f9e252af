package waste

import (
	"errors"
	"net/http"
	"time"

	"github.com/banelo/banelo-backend/internal/stock"
	"github.com/banelo/banelo-backend/pkg/activitylog"
	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/banelo/banelo-backend/pkg/outbox"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	ledger *stock.Ledger
	audit  *activitylog.Logger
}

func NewHandler(db *gorm.DB, ledger *stock.Ledger) *Handler {
	return &Handler{
		db:     db,
		ledger: ledger,
		audit:  activitylog.NewLogger(db),
	}
}

type RecordInput struct {
	ItemID   uuid.UUID       `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Reason   string          `json:"reason"`
	Note     string          `json:"note"`
}

var validReasons = map[string]bool{
	database.WasteReasonManual:  true,
	database.WasteReasonDamaged: true,
	database.WasteReasonExpired: true,
}

// Record logs a manual waste event and deducts the lost quantity. The
// deduction is clamped to what the pools actually hold, and the record
// stores the quantity actually removed.
func (h *Handler) Record(c *gin.Context) {
	var input RecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reason := input.Reason
	if reason == "" {
		reason = database.WasteReasonManual
	}
	if !validReasons[reason] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid waste reason"})
		return
	}

	var recordedBy *uuid.UUID
	if userID, err := uuid.Parse(c.GetString("user_id")); err == nil {
		recordedBy = &userID
	}

	var record database.WasteRecord
	var shortfall decimal.Decimal
	err := h.db.Transaction(func(tx *gorm.DB) error {
		res, err := h.ledger.DeductTx(tx, input.ItemID, input.Quantity)
		if err != nil {
			return err
		}
		shortfall = res.Shortfall

		record = database.WasteRecord{
			ItemID:     input.ItemID,
			Quantity:   res.Taken(),
			Reason:     reason,
			Note:       input.Note,
			RecordedBy: recordedBy,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		return outbox.Enqueue(tx, "waste_sync", map[string]interface{}{
			"waste_record_id": record.ID,
			"item_id":         record.ItemID,
			"quantity":        record.Quantity,
			"reason":          record.Reason,
		})
	})
	if err != nil {
		h.writeWasteError(c, err)
		return
	}

	h.audit.LogActivity(c, "record_waste", "waste_record", &record.ID, gin.H{
		"item_id":  record.ItemID,
		"quantity": record.Quantity,
		"reason":   record.Reason,
	})

	response := gin.H{"data": record}
	if shortfall.IsPositive() {
		response["warning"] = "Recorded quantity was clamped to available stock"
		response["shortfall"] = shortfall
	}
	c.JSON(http.StatusCreated, response)
}

// List returns waste records filtered by item and optional date range
func (h *Handler) List(c *gin.Context) {
	query := h.db.Preload("Item").Order("created_at DESC")

	if itemID := c.Query("item_id"); itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}
	if reason := c.Query("reason"); reason != "" {
		query = query.Where("reason = ?", reason)
	}
	if from := c.Query("date_from"); from != "" {
		if parsed, err := time.Parse("2006-01-02", from); err == nil {
			query = query.Where("created_at >= ?", parsed)
		}
	}
	if to := c.Query("date_to"); to != "" {
		if parsed, err := time.Parse("2006-01-02", to); err == nil {
			endOfDay := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 0, parsed.Location())
			query = query.Where("created_at <= ?", endOfDay)
		}
	}

	var records []database.WasteRecord
	if err := query.Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch waste records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (h *Handler) writeWasteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, stock.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock item not found"})
	case errors.Is(err, stock.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be greater than zero"})
	case errors.Is(err, stock.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Stock was updated concurrently, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
