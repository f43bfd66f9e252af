package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item categories
const (
	CategoryIngredient = "ingredient"
	CategoryBeverage   = "beverage"
	CategoryPastry     = "pastry"
	CategoryOther      = "other"
)

// Waste reasons
const (
	WasteReasonExpired = "expired"
	WasteReasonManual  = "manual"
	WasteReasonDamaged = "damaged"
)

// Payment modes
const (
	PaymentCash  = "cash"
	PaymentGCash = "gcash"
)

// Base model for all entities
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns an id client-side when the database default is not
// available (the sqlite test driver has no gen_random_uuid()).
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User represents a system user (owner or cashier)
type User struct {
	BaseModel
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	GoogleID     string `gorm:"index" json:"-"` // For Google OAuth (optional)
	PasswordHash string `json:"-"`              // Optional for OAuth users
	Name         string `gorm:"not null" json:"name"`
	Role         string `gorm:"default:'cashier'" json:"role"` // owner, cashier
	IsActive     bool   `gorm:"default:true" json:"is_active"`
}

// StockItem is the unit of inventory tracking. Every item carries two pools:
// WarehouseQty (back storage, not sellable) and DisplayQty (on the floor,
// the only pool availability is computed from). TotalQty is recomputed from
// the pools on every write, never adjusted on its own.
type StockItem struct {
	BaseModel
	Name          string          `gorm:"not null" json:"name"`
	Category      string          `gorm:"not null;index" json:"category"` // ingredient, beverage, pastry, other
	Unit          string          `gorm:"default:'pcs'" json:"unit"`      // pcs, kg, liter, etc.
	Price         decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"price"`
	CostPerUnit   decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"cost_per_unit"`
	WarehouseQty  decimal.Decimal `gorm:"type:decimal(12,3);default:0" json:"warehouse_qty"`
	DisplayQty    decimal.Decimal `gorm:"type:decimal(12,3);default:0" json:"display_qty"`
	TotalQty      decimal.Decimal `gorm:"type:decimal(12,3);default:0" json:"total_qty"`
	IsPerishable  bool            `gorm:"default:false" json:"is_perishable"`
	ShelfLifeDays int             `gorm:"default:0" json:"shelf_life_days"`
	// Single expiration date for the whole display pool. A later transfer
	// overwrites it; display reaching zero clears it. Batch-level dates are
	// not tracked.
	ExpirationDate *time.Time `gorm:"type:date" json:"expiration_date,omitempty"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	Version        int64      `gorm:"default:0" json:"-"` // optimistic lock counter
}

// Recipe maps a sellable product to the ingredients consumed per unit sold.
// A product without a recipe is directly stocked (its own display pool is
// the sellable quantity).
type Recipe struct {
	BaseModel
	ProductID   uuid.UUID          `gorm:"type:uuid;uniqueIndex;not null" json:"product_id"`
	Product     StockItem          `gorm:"foreignKey:ProductID" json:"-"`
	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeID" json:"ingredients"`
}

// RecipeIngredient is one line of a recipe
type RecipeIngredient struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	RecipeID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"recipe_id"`
	IngredientID    uuid.UUID       `gorm:"type:uuid;not null" json:"ingredient_id"`
	Ingredient      StockItem       `gorm:"foreignKey:IngredientID" json:"ingredient"`
	QuantityPerUnit decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity_per_unit"`
	Unit            string          `json:"unit"`
}

func (ri *RecipeIngredient) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == uuid.Nil {
		ri.ID = uuid.New()
	}
	return nil
}

// Sale is an append-only record of a completed checkout
type Sale struct {
	BaseModel
	InvoiceNumber    string          `gorm:"uniqueIndex;not null" json:"invoice_number"`
	CashierID        uuid.UUID       `gorm:"type:uuid;not null" json:"cashier_id"`
	Cashier          User            `gorm:"foreignKey:CashierID" json:"cashier,omitempty"`
	Items            []SaleItem      `gorm:"foreignKey:SaleID" json:"items"`
	DiscountType     string          `gorm:"default:'none'" json:"discount_type"` // none, senior, pwd, custom
	DiscountPercent  decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"discount_percent"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	VATAmount        decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"vat_amount"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"discount_amount"`
	Total            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	PaymentMode      string          `gorm:"default:'cash'" json:"payment_mode"` // cash, gcash
	PaymentReference string          `json:"payment_reference"`
	CashReceived     decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"cash_received"`
	ChangeDue        decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"change_due"`
	Status           string          `gorm:"default:'completed'" json:"status"`
}

// SaleItem is one line of a sale
type SaleItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	SaleID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"sale_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	Product   StockItem       `gorm:"foreignKey:ProductID" json:"product"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
}

func (si *SaleItem) BeforeCreate(tx *gorm.DB) error {
	if si.ID == uuid.Nil {
		si.ID = uuid.New()
	}
	return nil
}

// WasteRecord is an append-only record of lost stock, written by the
// expiration sweeper (reason=expired) or by an operator.
type WasteRecord struct {
	BaseModel
	ItemID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"item_id"`
	Item       StockItem       `gorm:"foreignKey:ItemID" json:"item"`
	Quantity   decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	Reason     string          `gorm:"not null" json:"reason"` // expired, manual, damaged
	Note       string          `json:"note"`
	RecordedBy *uuid.UUID      `gorm:"type:uuid" json:"recorded_by"` // nil when written by the sweeper
}

// ActivityLog tracks operator actions for audit trail
type ActivityLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User       User       `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"not null" json:"action"` // sale, transfer, restock, waste, stock_adjust, etc.
	EntityType string     `json:"entity_type"`            // sale, stock_item, recipe, waste_record
	EntityID   *uuid.UUID `gorm:"type:uuid" json:"entity_id"`
	Details    string     `gorm:"type:text" json:"details"` // JSON details
	IPAddress  string     `json:"ip_address"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (al *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if al.ID == uuid.Nil {
		al.ID = uuid.New()
	}
	return nil
}

// OutboxTask is a pending secondary write (e.g. remote audit sync) retried
// until it succeeds. Replaces fire-and-forget syncing so a failed remote
// write is never silently dropped.
type OutboxTask struct {
	BaseModel
	Kind          string    `gorm:"not null;index" json:"kind"`
	Payload       string    `gorm:"type:text" json:"payload"`
	Status        string    `gorm:"default:'pending';index" json:"status"` // pending, done, failed
	Attempts      int       `gorm:"default:0" json:"attempts"`
	NextAttemptAt time.Time `gorm:"index" json:"next_attempt_at"`
	LastError     string    `json:"last_error"`
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&StockItem{},
		&Recipe{},
		&RecipeIngredient{},
		&Sale{},
		&SaleItem{},
		&WasteRecord{},
		&ActivityLog{},
		&OutboxTask{},
	)
}
