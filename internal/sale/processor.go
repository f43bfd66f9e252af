package sale

import (
	"errors"
	"fmt"
	"time"

	"github.com/banelo/banelo-backend/internal/recipe"
	"github.com/banelo/banelo-backend/internal/stock"
	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/banelo/banelo-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrNoItems is returned for an empty cart
	ErrNoItems = errors.New("sale must contain at least one item")
	// ErrInvalidQuantity is returned for a non-positive line quantity
	ErrInvalidQuantity = errors.New("line quantity must be greater than zero")
)

// ProductUnavailableError identifies a product that cannot be sold at all
// (unknown, deactivated, or its recipe has no ingredients)
type ProductUnavailableError struct {
	ProductID uuid.UUID
	Name      string
	Reason    string
}

func (e *ProductUnavailableError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID.String()
	}
	return fmt.Sprintf("product %s unavailable: %s", name, e.Reason)
}

// InsufficientIngredientError identifies which item blocked the sale so the
// operator can restock, transfer, or cancel
type InsufficientIngredientError struct {
	ItemID    uuid.UUID
	ItemName  string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientIngredientError) Error() string {
	return fmt.Sprintf("insufficient stock of %s: need %s, have %s",
		e.ItemName, e.Required.String(), e.Available.String())
}

// LineRequest is one requested cart line
type LineRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

// Request is a complete checkout request
type Request struct {
	Items            []LineRequest   `json:"items" binding:"required,min=1"`
	DiscountType     string          `json:"discount_type"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	PaymentMode      string          `json:"payment_mode" binding:"required"`
	PaymentReference string          `json:"payment_reference"`
	CashReceived     decimal.Decimal `json:"cash_received"`
	CashierID        uuid.UUID       `json:"-"`
}

// Processor applies the full effect of a sale or refuses it. All stock
// deductions for one sale happen in a single transaction: availability for
// every required item is validated first and the whole sale aborts if any
// item would go short, so a failed sale never leaves ingredients partially
// deducted.
type Processor struct {
	db       *gorm.DB
	ledger   *stock.Ledger
	resolver *recipe.Resolver
}

func NewProcessor(db *gorm.DB, ledger *stock.Ledger, resolver *recipe.Resolver) *Processor {
	return &Processor{db: db, ledger: ledger, resolver: resolver}
}

// Process validates payment, deducts stock all-or-nothing and appends the
// sale record. Returns the persisted sale or an error naming the item at
// fault.
func (p *Processor) Process(req Request) (*database.Sale, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	discountType := req.DiscountType
	if discountType == "" {
		discountType = DiscountNone
	}

	// Price the cart up front; payment validation needs the total and must
	// reject before any stock is touched
	products := make(map[uuid.UUID]*database.StockItem, len(req.Items))
	cart := make([]CartLine, 0, len(req.Items))
	for _, line := range req.Items {
		product, err := p.loadSellable(line.ProductID)
		if err != nil {
			return nil, err
		}
		products[line.ProductID] = product
		cart = append(cart, CartLine{UnitPrice: product.Price, Quantity: line.Quantity})
	}

	totals, err := ComputeTotals(cart, discountType, req.DiscountPercent)
	if err != nil {
		return nil, err
	}
	if err := ValidatePayment(req.PaymentMode, req.PaymentReference, req.CashReceived, totals.Total); err != nil {
		return nil, err
	}

	var sale database.Sale
	err = p.db.Transaction(func(tx *gorm.DB) error {
		// Resolve recipes and aggregate demand per stock item across the
		// whole cart, so two lines sharing an ingredient are validated
		// against their combined requirement
		demand, order, err := p.aggregateDemand(tx, req.Items, products)
		if err != nil {
			return err
		}

		// Pre-flight: every required item must cover its full demand from
		// combined stock (display is drawn first, warehouse covers the rest)
		for _, itemID := range order {
			required := demand[itemID]
			var item database.StockItem
			if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &ProductUnavailableError{ProductID: itemID, Reason: "referenced ingredient not found"}
				}
				return err
			}
			available := item.DisplayQty.Add(item.WarehouseQty)
			if available.LessThan(required) {
				return &InsufficientIngredientError{
					ItemID:    item.ID,
					ItemName:  item.Name,
					Required:  required,
					Available: available,
				}
			}
		}

		// Apply the deductions. A shortfall here means a concurrent sale
		// won the race after our pre-flight read; rolling back keeps the
		// all-or-nothing guarantee.
		for _, itemID := range order {
			res, err := p.ledger.DeductTx(tx, itemID, demand[itemID])
			if err != nil {
				return err
			}
			if res.Partial() {
				return &InsufficientIngredientError{
					ItemID:    itemID,
					ItemName:  res.Item.Name,
					Required:  demand[itemID],
					Available: res.Taken(),
				}
			}
		}

		changeDue := decimal.Zero
		if req.PaymentMode == database.PaymentCash {
			changeDue = req.CashReceived.Sub(totals.Total)
		}

		items := make([]database.SaleItem, 0, len(req.Items))
		for _, line := range req.Items {
			product := products[line.ProductID]
			items = append(items, database.SaleItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
				Subtotal:  product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
			})
		}

		sale = database.Sale{
			InvoiceNumber:    newInvoiceNumber(),
			CashierID:        req.CashierID,
			Items:            items,
			DiscountType:     discountType,
			DiscountPercent:  req.DiscountPercent,
			Subtotal:         totals.Subtotal,
			VATAmount:        totals.VATAmount,
			DiscountAmount:   totals.DiscountAmount,
			Total:            totals.Total,
			PaymentMode:      req.PaymentMode,
			PaymentReference: req.PaymentReference,
			CashReceived:     req.CashReceived,
			ChangeDue:        changeDue,
			Status:           "completed",
		}
		if err := tx.Create(&sale).Error; err != nil {
			return err
		}

		// Secondary audit sync rides the same transaction; the worker
		// retries it until it lands
		return outbox.Enqueue(tx, "sale_sync", map[string]interface{}{
			"sale_id":        sale.ID,
			"invoice_number": sale.InvoiceNumber,
			"total":          sale.Total,
			"cashier_id":     sale.CashierID,
		})
	})
	if err != nil {
		return nil, err
	}

	p.db.Preload("Items").Preload("Items.Product").First(&sale, "id = ?", sale.ID)

	return &sale, nil
}

// aggregateDemand expands every cart line through its recipe (if any) into
// per-item required quantities. Returns the demand map plus a stable
// iteration order so error reporting and locking are deterministic.
func (p *Processor) aggregateDemand(tx *gorm.DB, lines []LineRequest, products map[uuid.UUID]*database.StockItem) (map[uuid.UUID]decimal.Decimal, []uuid.UUID, error) {
	demand := make(map[uuid.UUID]decimal.Decimal)
	var order []uuid.UUID

	add := func(itemID uuid.UUID, qty decimal.Decimal) {
		if _, seen := demand[itemID]; !seen {
			order = append(order, itemID)
		}
		demand[itemID] = demand[itemID].Add(qty)
	}

	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))

		rec, err := p.resolver.GetTx(tx, line.ProductID)
		if err != nil {
			return nil, nil, err
		}

		if rec == nil {
			// Directly stocked: the product's own pools are the sellable stock
			add(line.ProductID, qty)
			continue
		}

		if len(rec.Ingredients) == 0 {
			return nil, nil, &ProductUnavailableError{
				ProductID: line.ProductID,
				Name:      products[line.ProductID].Name,
				Reason:    "recipe has no ingredients",
			}
		}

		for _, ingredient := range rec.Ingredients {
			if !ingredient.QuantityPerUnit.IsPositive() {
				continue
			}
			// Exact decimal requirement; fractional ingredient units are
			// deducted without truncation
			add(ingredient.IngredientID, ingredient.QuantityPerUnit.Mul(qty))
		}
	}

	return demand, order, nil
}

func (p *Processor) loadSellable(productID uuid.UUID) (*database.StockItem, error) {
	var product database.StockItem
	if err := p.db.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductUnavailableError{ProductID: productID, Reason: "not found"}
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, &ProductUnavailableError{ProductID: productID, Name: product.Name, Reason: "deactivated"}
	}
	return &product, nil
}

// newInvoiceNumber builds a unique invoice id. The date keeps receipts
// human-sortable; the uuid fragment rules out collisions under concurrent
// checkouts, which a timestamp alone cannot.
func newInvoiceNumber() string {
	return fmt.Sprintf("INV-%s-%s", time.Now().Format("20060102"), uuid.New().String()[:8])
}
