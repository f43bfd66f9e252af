package recipe

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
	db       *gorm.DB
	resolver *Resolver
	audit    *activitylog.Logger
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{
		db:       db,
		resolver: NewResolver(db),
		audit:    activitylog.NewLogger(db),
	}
}

// Resolver exposes the resolver for other components
func (h *Handler) Resolver() *Resolver {
	return h.resolver
}

// List returns all recipes with their ingredient lines
func (h *Handler) List(c *gin.Context) {
	var recipes []database.Recipe
	if err := h.db.Preload("Ingredients").Preload("Ingredients.Ingredient").
		Find(&recipes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": recipes})
}

// Get returns the recipe for a product
func (h *Handler) Get(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	rec, err := h.resolver.Get(productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec})
}

type IngredientLineInput struct {
	IngredientID    uuid.UUID       `json:"ingredient_id" binding:"required"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit" binding:"required"`
	Unit            string          `json:"unit"`
}

type ReplaceRecipeInput struct {
	Ingredients []IngredientLineInput `json:"ingredients" binding:"required"`
}

// Replace creates or fully replaces the recipe for a product
func (h *Handler) Replace(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var input ReplaceRecipeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var product database.StockItem
	if err := h.db.First(&product, "id = ?", productID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	// Every line must reference an existing ingredient with a positive
	// per-unit quantity
	for _, line := range input.Ingredients {
		if !line.QuantityPerUnit.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity_per_unit must be greater than zero"})
			return
		}
		var ingredient database.StockItem
		if err := h.db.First(&ingredient, "id = ?", line.IngredientID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ingredient " + line.IngredientID.String() + " not found"})
			return
		}
	}

	var rec database.Recipe
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).First(&rec).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			rec = database.Recipe{ProductID: productID}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("recipe_id = ?", rec.ID).
			Delete(&database.RecipeIngredient{}).Error; err != nil {
			return err
		}

		for _, line := range input.Ingredients {
			unit := line.Unit
			ingredientLine := database.RecipeIngredient{
				RecipeID:        rec.ID,
				IngredientID:    line.IngredientID,
				QuantityPerUnit: line.QuantityPerUnit,
				Unit:            unit,
			}
			if err := tx.Create(&ingredientLine).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.db.Preload("Ingredients").Preload("Ingredients.Ingredient").First(&rec, "id = ?", rec.ID)

	h.audit.LogUpdate(c, "recipe", rec.ID, nil, rec)

	c.JSON(http.StatusOK, gin.H{"data": rec})
}

// Availability returns how many units of a product can be sold right now
// (display stock only) and how many could be made from total stock
func (h *Handler) Availability(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	fromDisplay, err := h.resolver.MaxServingsFromDisplay(productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	fromTotal, err := h.resolver.MaxServingsFromTotal(productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"product_id":          productID,
			"sellable_now":        fromDisplay,
			"possible_from_total": fromTotal,
		},
	})
}
