package sale

import (
	"errors"
	"net/http"
	"time"

	"github.com/banelo/banelo-backend/internal/recipe"
	"github.com/banelo/banelo-backend/internal/stock"
	"github.com/banelo/banelo-backend/pkg/activitylog"
	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Handler struct {
	db        *gorm.DB
	processor *Processor
	audit     *activitylog.Logger
}

func NewHandler(db *gorm.DB, ledger *stock.Ledger, resolver *recipe.Resolver) *Handler {
	return &Handler{
		db:        db,
		processor: NewProcessor(db, ledger, resolver),
		audit:     activitylog.NewLogger(db),
	}
}

// Create processes a checkout request
func (h *Handler) Create(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cashierID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown cashier"})
		return
	}
	req.CashierID = cashierID

	sale, err := h.processor.Process(req)
	if err != nil {
		h.writeSaleError(c, err)
		return
	}

	h.audit.LogActivity(c, "sale", "sale", &sale.ID, gin.H{
		"invoice_number": sale.InvoiceNumber,
		"total":          sale.Total,
	})

	c.JSON(http.StatusCreated, gin.H{"data": sale})
}

type QuoteInput struct {
	Items           []LineRequest   `json:"items" binding:"required,min=1"`
	DiscountType    string          `json:"discount_type"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// Quote prices a cart without touching stock, for receipt preview
func (h *Handler) Quote(c *gin.Context) {
	var input QuoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	discountType := input.DiscountType
	if discountType == "" {
		discountType = DiscountNone
	}

	cart := make([]CartLine, 0, len(input.Items))
	for _, line := range input.Items {
		product, err := h.processor.loadSellable(line.ProductID)
		if err != nil {
			h.writeSaleError(c, err)
			return
		}
		cart = append(cart, CartLine{UnitPrice: product.Price, Quantity: line.Quantity})
	}

	totals, err := ComputeTotals(cart, discountType, input.DiscountPercent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": totals})
}

// List returns sales filtered by an optional date range
func (h *Handler) List(c *gin.Context) {
	query := h.db.Preload("Items").Preload("Items.Product").
		Order("created_at DESC")

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

	var sales []database.Sale
	if err := query.Find(&sales).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sales"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sales})
}

// Get returns a single sale
func (h *Handler) Get(c *gin.Context) {
	var sale database.Sale
	if err := h.db.Preload("Items").Preload("Items.Product").Preload("Cashier").
		First(&sale, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sale not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sale})
}

func (h *Handler) writeSaleError(c *gin.Context, err error) {
	var unavailable *ProductUnavailableError
	var insufficient *InsufficientIngredientError

	switch {
	case errors.As(err, &unavailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": unavailable.Error()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"error":     insufficient.Error(),
			"item_id":   insufficient.ItemID,
			"item_name": insufficient.ItemName,
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.Is(err, ErrInsufficientCash),
		errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrUnknownPaymentMode),
		errors.Is(err, ErrUnknownDiscountType),
		errors.Is(err, ErrNoItems),
		errors.Is(err, ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, stock.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Stock was updated concurrently, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
