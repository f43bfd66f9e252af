package stock

import (
	"errors"
	"net/http"

	"github.com/banelo/banelo-backend/pkg/activitylog"
	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	ledger *Ledger
	audit  *activitylog.Logger
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{
		db:     db,
		ledger: NewLedger(db),
		audit:  activitylog.NewLogger(db),
	}
}

// Ledger exposes the ledger for other components (sale processor, sweeper)
func (h *Handler) Ledger() *Ledger {
	return h.ledger
}

type CreateItemInput struct {
	Name          string          `json:"name" binding:"required"`
	Category      string          `json:"category" binding:"required"`
	Unit          string          `json:"unit"`
	Price         decimal.Decimal `json:"price"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	InitialQty    decimal.Decimal `json:"initial_qty"` // goes into the warehouse pool
	IsPerishable  bool            `json:"is_perishable"`
	ShelfLifeDays int             `json:"shelf_life_days"`
}

var validCategories = map[string]bool{
	database.CategoryIngredient: true,
	database.CategoryBeverage:   true,
	database.CategoryPastry:     true,
	database.CategoryOther:      true,
}

// Create adds a new stock item; the initial quantity lands in the warehouse pool
func (h *Handler) Create(c *gin.Context) {
	var input CreateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !validCategories[input.Category] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}
	if input.InitialQty.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Initial quantity cannot be negative"})
		return
	}
	if input.ShelfLifeDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Shelf life cannot be negative"})
		return
	}

	unit := input.Unit
	if unit == "" {
		unit = "pcs"
	}

	item := database.StockItem{
		Name:          input.Name,
		Category:      input.Category,
		Unit:          unit,
		Price:         input.Price,
		CostPerUnit:   input.CostPerUnit,
		WarehouseQty:  input.InitialQty,
		DisplayQty:    decimal.Zero,
		TotalQty:      input.InitialQty,
		IsPerishable:  input.IsPerishable,
		ShelfLifeDays: input.ShelfLifeDays,
		IsActive:      true,
	}

	if err := h.db.Create(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.audit.LogCreate(c, "stock_item", item.ID, item)

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

// List returns stock items, optionally filtered by category
func (h *Handler) List(c *gin.Context) {
	query := h.db.Order("name ASC")

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if c.Query("include_inactive") != "true" {
		query = query.Where("is_active = ?", true)
	}

	var items []database.StockItem
	if err := query.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// Get returns a single stock item
func (h *Handler) Get(c *gin.Context) {
	var item database.StockItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock item not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

type UpdateItemInput struct {
	Name          string          `json:"name" binding:"required"`
	Category      string          `json:"category" binding:"required"`
	Unit          string          `json:"unit"`
	Price         decimal.Decimal `json:"price"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	IsPerishable  bool            `json:"is_perishable"`
	ShelfLifeDays int             `json:"shelf_life_days"`
}

// Update modifies item metadata. Pool quantities are deliberately not
// updatable here; they only change through transfer/restock/deduct so the
// ledger stays the single authority over them.
func (h *Handler) Update(c *gin.Context) {
	var item database.StockItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock item not found"})
		return
	}

	var input UpdateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validCategories[input.Category] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	old := item
	item.Name = input.Name
	item.Category = input.Category
	if input.Unit != "" {
		item.Unit = input.Unit
	}
	item.Price = input.Price
	item.CostPerUnit = input.CostPerUnit
	item.IsPerishable = input.IsPerishable
	item.ShelfLifeDays = input.ShelfLifeDays

	if err := h.db.Save(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.audit.LogUpdate(c, "stock_item", item.ID, old, item)

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// Deactivate soft-deletes an item; rows are never physically removed so
// sale and waste history keeps resolving
func (h *Handler) Deactivate(c *gin.Context) {
	var item database.StockItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock item not found"})
		return
	}

	item.IsActive = false
	if err := h.db.Save(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.audit.LogDeactivate(c, "stock_item", item.ID, item.Name)

	c.JSON(http.StatusOK, gin.H{"message": "Stock item deactivated"})
}

type QuantityInput struct {
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
}

// Transfer moves stock from the warehouse pool to the display pool
func (h *Handler) Transfer(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return
	}

	var input QuantityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.ledger.Transfer(itemID, input.Quantity)
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}

	h.audit.LogActivity(c, "transfer", "stock_item", &itemID, gin.H{
		"quantity":      input.Quantity,
		"warehouse_qty": item.WarehouseQty,
		"display_qty":   item.DisplayQty,
	})

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// Restock adds stock to the warehouse pool
func (h *Handler) Restock(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return
	}

	var input QuantityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.ledger.Restock(itemID, input.Quantity)
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}

	h.audit.LogActivity(c, "restock", "stock_item", &itemID, gin.H{
		"quantity":      input.Quantity,
		"warehouse_qty": item.WarehouseQty,
	})

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *Handler) writeLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock item not found"})
	case errors.Is(err, ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be greater than zero"})
	case errors.Is(err, ErrInsufficientStock):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Stock was updated concurrently, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
