package recipe

import (
	"errors"
	"log"
	"math"

	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrProductNotFound is returned when availability is requested for a
// product that does not exist
var ErrProductNotFound = errors.New("product not found")

// Resolver translates a composite product into ingredient demand and
// computes supply-constrained availability
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Get returns the product's recipe with its ingredient lines, or nil when
// the product is directly stocked
func (r *Resolver) Get(productID uuid.UUID) (*database.Recipe, error) {
	return r.GetTx(r.db, productID)
}

// GetTx is Get running against the caller's transaction handle
func (r *Resolver) GetTx(tx *gorm.DB, productID uuid.UUID) (*database.Recipe, error) {
	var rec database.Recipe
	err := tx.Preload("Ingredients").Preload("Ingredients.Ingredient").
		Where("product_id = ?", productID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// MaxServingsFromDisplay returns how many units of the product can be sold
// right now, constrained to display-pool stock only. Warehouse stock never
// advertises as sellable.
func (r *Resolver) MaxServingsFromDisplay(productID uuid.UUID) (int64, error) {
	return r.maxServings(r.db, productID, false)
}

// MaxServingsFromDisplayTx is the transaction-scoped variant used by the
// sale processor so availability and deduction see the same rows
func (r *Resolver) MaxServingsFromDisplayTx(tx *gorm.DB, productID uuid.UUID) (int64, error) {
	return r.maxServings(tx, productID, false)
}

// MaxServingsFromTotal computes the same bottleneck over warehouse+display
// stock; used for back-office views, not point-of-sale availability
func (r *Resolver) MaxServingsFromTotal(productID uuid.UUID) (int64, error) {
	return r.maxServings(r.db, productID, true)
}

func (r *Resolver) maxServings(tx *gorm.DB, productID uuid.UUID, useTotal bool) (int64, error) {
	var product database.StockItem
	if err := tx.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}

	rec, err := r.GetTx(tx, productID)
	if err != nil {
		return 0, err
	}

	// No recipe: the product is directly stocked
	if rec == nil {
		return floorNonNegative(available(&product, useTotal)), nil
	}

	// A recipe with no ingredient lines cannot be made; this is an explicit
	// zero, not "unlimited"
	if len(rec.Ingredients) == 0 {
		return 0, nil
	}

	servings := int64(math.MaxInt64)
	for _, line := range rec.Ingredients {
		if !line.QuantityPerUnit.IsPositive() {
			continue
		}

		var ingredient database.StockItem
		if err := tx.First(&ingredient, "id = ?", line.IngredientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Dangling ingredient reference makes the whole product
				// unavailable; surfaced in the log so the data gets fixed
				log.Printf("recipe for product %s references missing ingredient %s",
					productID, line.IngredientID)
				return 0, nil
			}
			return 0, err
		}

		canMake := available(&ingredient, useTotal).
			Div(line.QuantityPerUnit).
			Floor().
			IntPart()
		if canMake < servings {
			servings = canMake
		}
	}

	if servings == math.MaxInt64 || servings < 0 {
		return 0, nil
	}
	return servings, nil
}

func available(item *database.StockItem, useTotal bool) decimal.Decimal {
	if useTotal {
		return item.WarehouseQty.Add(item.DisplayQty)
	}
	return item.DisplayQty
}

func floorNonNegative(d decimal.Decimal) int64 {
	n := d.Floor().IntPart()
	if n < 0 {
		return 0
	}
	return n
}
