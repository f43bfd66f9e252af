package sale

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/banelo/banelo-backend/internal/recipe"
	"github.com/banelo/banelo-backend/internal/stock"
	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/google/uuid"
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
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newProcessor(db *gorm.DB) *Processor {
	return NewProcessor(db, stock.NewLedger(db), recipe.NewResolver(db))
}

func createItem(t *testing.T, db *gorm.DB, name string, price string, warehouse, display string) database.StockItem {
	t.Helper()
	item := database.StockItem{
		Name:         name,
		Category:     database.CategoryOther,
		Price:        dec(price),
		WarehouseQty: dec(warehouse),
		DisplayQty:   dec(display),
		TotalQty:     dec(warehouse).Add(dec(display)),
		IsActive:     true,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("failed to create item %s: %v", name, err)
	}
	return item
}

func createRecipe(t *testing.T, db *gorm.DB, productID uuid.UUID, lines []database.RecipeIngredient) {
	t.Helper()
	rec := database.Recipe{ProductID: productID}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("failed to create recipe: %v", err)
	}
	for _, line := range lines {
		line.RecipeID = rec.ID
		if err := db.Create(&line).Error; err != nil {
			t.Fatalf("failed to create recipe line: %v", err)
		}
	}
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) database.StockItem {
	t.Helper()
	var item database.StockItem
	if err := db.First(&item, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload item: %v", err)
	}
	return item
}

func cashRequest(productID uuid.UUID, qty int, cash string) Request {
	return Request{
		Items:        []LineRequest{{ProductID: productID, Quantity: qty}},
		PaymentMode:  database.PaymentCash,
		CashReceived: dec(cash),
		CashierID:    uuid.New(),
	}
}

func TestProcess_RecipeSaleDeductsIngredients(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	flour := createItem(t, db, "Flour", "0", "5", "10")
	sugar := createItem(t, db, "Sugar", "0", "2", "6")
	cake := createItem(t, db, "Cake", "112.00", "0", "0")
	createRecipe(t, db, cake.ID, []database.RecipeIngredient{
		{IngredientID: flour.ID, QuantityPerUnit: dec("2")},
		{IngredientID: sugar.ID, QuantityPerUnit: dec("1")},
	})

	sale, err := p.Process(cashRequest(cake.ID, 3, "500"))
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	// 3 cakes need 6 flour and 3 sugar, display pool drawn first
	gotFlour := reload(t, db, flour.ID)
	if !gotFlour.DisplayQty.Equal(dec("4")) || !gotFlour.WarehouseQty.Equal(dec("5")) {
		t.Errorf("flour pools = %s/%s, want display 4, warehouse 5",
			gotFlour.DisplayQty, gotFlour.WarehouseQty)
	}
	gotSugar := reload(t, db, sugar.ID)
	if !gotSugar.DisplayQty.Equal(dec("3")) || !gotSugar.WarehouseQty.Equal(dec("2")) {
		t.Errorf("sugar pools = %s/%s, want display 3, warehouse 2",
			gotSugar.DisplayQty, gotSugar.WarehouseQty)
	}

	if !sale.Subtotal.Equal(dec("336.00")) {
		t.Errorf("subtotal = %s, want 336.00", sale.Subtotal)
	}
	if !sale.ChangeDue.Equal(dec("164.00")) {
		t.Errorf("change = %s, want 164.00", sale.ChangeDue)
	}
	if len(sale.Items) != 1 || sale.Items[0].Quantity != 3 {
		t.Errorf("unexpected sale items: %+v", sale.Items)
	}

	// Audit sync task rode the same transaction
	var taskCount int64
	db.Model(&database.OutboxTask{}).Where("kind = ?", "sale_sync").Count(&taskCount)
	if taskCount != 1 {
		t.Errorf("outbox tasks = %d, want 1", taskCount)
	}
}

func TestProcess_RecipeSaleSpillsIntoWarehouse(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	milk := createItem(t, db, "Milk", "0", "10", "4")
	latte := createItem(t, db, "Latte", "50.00", "0", "0")
	createRecipe(t, db, latte.ID, []database.RecipeIngredient{
		{IngredientID: milk.ID, QuantityPerUnit: dec("1")},
	})

	if _, err := p.Process(cashRequest(latte.ID, 6, "300")); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	// 4 from display, remaining 2 from warehouse
	got := reload(t, db, milk.ID)
	if !got.DisplayQty.IsZero() || !got.WarehouseQty.Equal(dec("8")) {
		t.Errorf("milk pools = %s/%s, want display 0, warehouse 8",
			got.DisplayQty, got.WarehouseQty)
	}
}

func TestProcess_InsufficientIngredientAbortsWholeSale(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	flour := createItem(t, db, "Flour", "0", "50", "50")
	vanilla := createItem(t, db, "Vanilla", "0", "0", "1")
	cake := createItem(t, db, "Cake", "100.00", "0", "0")
	createRecipe(t, db, cake.ID, []database.RecipeIngredient{
		{IngredientID: flour.ID, QuantityPerUnit: dec("2")},
		{IngredientID: vanilla.ID, QuantityPerUnit: dec("1")},
	})

	_, err := p.Process(cashRequest(cake.ID, 3, "500"))

	var insufficient *InsufficientIngredientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientIngredientError, got %v", err)
	}
	if insufficient.ItemID != vanilla.ID {
		t.Errorf("error names item %s, want the short ingredient %s", insufficient.ItemID, vanilla.ID)
	}
	if !insufficient.Required.Equal(dec("3")) || !insufficient.Available.Equal(dec("1")) {
		t.Errorf("required/available = %s/%s, want 3/1", insufficient.Required, insufficient.Available)
	}

	// Nothing was deducted, including the plentiful ingredient
	gotFlour := reload(t, db, flour.ID)
	if !gotFlour.DisplayQty.Equal(dec("50")) || !gotFlour.WarehouseQty.Equal(dec("50")) {
		t.Errorf("flour was partially deducted: %s/%s", gotFlour.DisplayQty, gotFlour.WarehouseQty)
	}

	var saleCount int64
	db.Model(&database.Sale{}).Count(&saleCount)
	if saleCount != 0 {
		t.Errorf("sales recorded = %d, want 0", saleCount)
	}
}

func TestProcess_DirectlyStockedProduct(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	soda := createItem(t, db, "Soda", "25.00", "12", "5")

	sale, err := p.Process(cashRequest(soda.ID, 7, "200"))
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	got := reload(t, db, soda.ID)
	if !got.DisplayQty.IsZero() || !got.WarehouseQty.Equal(dec("10")) {
		t.Errorf("soda pools = %s/%s, want display 0, warehouse 10",
			got.DisplayQty, got.WarehouseQty)
	}
	if !sale.Total.Equal(dec("175.00")) {
		t.Errorf("total = %s, want 175.00", sale.Total)
	}
}

func TestProcess_SharedIngredientDemandIsAggregated(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	milk := createItem(t, db, "Milk", "0", "0", "5")
	latte := createItem(t, db, "Latte", "50.00", "0", "0")
	mocha := createItem(t, db, "Mocha", "60.00", "0", "0")
	createRecipe(t, db, latte.ID, []database.RecipeIngredient{
		{IngredientID: milk.ID, QuantityPerUnit: dec("2")},
	})
	createRecipe(t, db, mocha.ID, []database.RecipeIngredient{
		{IngredientID: milk.ID, QuantityPerUnit: dec("2")},
	})

	// Each drink alone fits, the combination does not: 2*2 + 2*1 = 6 > 5
	req := Request{
		Items: []LineRequest{
			{ProductID: latte.ID, Quantity: 2},
			{ProductID: mocha.ID, Quantity: 1},
		},
		PaymentMode:  database.PaymentCash,
		CashReceived: dec("1000"),
		CashierID:    uuid.New(),
	}

	_, err := p.Process(req)
	var insufficient *InsufficientIngredientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientIngredientError, got %v", err)
	}
	if !insufficient.Required.Equal(dec("6")) {
		t.Errorf("required = %s, want aggregated 6", insufficient.Required)
	}

	got := reload(t, db, milk.ID)
	if !got.DisplayQty.Equal(dec("5")) {
		t.Errorf("milk deducted despite aborted sale: %s", got.DisplayQty)
	}
}

func TestProcess_EmptyRecipeCannotBeSold(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	mystery := createItem(t, db, "Mystery Drink", "10.00", "0", "99")
	createRecipe(t, db, mystery.ID, nil)

	_, err := p.Process(cashRequest(mystery.ID, 1, "100"))
	var unavailable *ProductUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ProductUnavailableError, got %v", err)
	}
}

func TestProcess_PaymentValidatedBeforeStockIsTouched(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	soda := createItem(t, db, "Soda", "25.00", "0", "10")

	// Short cash
	_, err := p.Process(cashRequest(soda.ID, 2, "49.99"))
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}

	// Malformed GCash reference
	req := cashRequest(soda.ID, 2, "0")
	req.PaymentMode = database.PaymentGCash
	req.PaymentReference = "12345"
	if _, err := p.Process(req); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}

	got := reload(t, db, soda.ID)
	if !got.DisplayQty.Equal(dec("10")) {
		t.Errorf("stock touched by rejected payment: display = %s", got.DisplayQty)
	}
	var saleCount int64
	db.Model(&database.Sale{}).Count(&saleCount)
	if saleCount != 0 {
		t.Errorf("sales recorded = %d, want 0", saleCount)
	}
}

func TestProcess_DeactivatedProductRefused(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	old := createItem(t, db, "Old Item", "10.00", "0", "10")
	db.Model(&database.StockItem{}).Where("id = ?", old.ID).Update("is_active", false)

	_, err := p.Process(cashRequest(old.ID, 1, "100"))
	var unavailable *ProductUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ProductUnavailableError, got %v", err)
	}
}

func TestProcess_FractionalIngredientDemand(t *testing.T) {
	db := testDB(t)
	p := newProcessor(db)

	beans := createItem(t, db, "Beans", "0", "0", "1")
	espresso := createItem(t, db, "Espresso", "90.00", "0", "0")
	createRecipe(t, db, espresso.ID, []database.RecipeIngredient{
		{IngredientID: beans.ID, QuantityPerUnit: dec("0.018")},
	})

	if _, err := p.Process(cashRequest(espresso.ID, 3, "500")); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	got := reload(t, db, beans.ID)
	if !got.DisplayQty.Equal(dec("0.946")) {
		t.Errorf("beans display = %s, want 0.946 (exact decimal deduction)", got.DisplayQty)
	}
}

func TestNewInvoiceNumber_Unique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		inv := newInvoiceNumber()
		if !strings.HasPrefix(inv, "INV-") {
			t.Fatalf("invoice %q missing INV- prefix", inv)
		}
		if seen[inv] {
			t.Fatalf("duplicate invoice number %q after %d draws", inv, i)
		}
		seen[inv] = true
	}
}
