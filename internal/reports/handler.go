package reports

import (
	"fmt"
	"net/http"
	"time"

	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

type ReportRequest struct {
	StartDate string `form:"start_date"` // Format: 2026-01-01
	EndDate   string `form:"end_date"`   // Format: 2026-01-31
}

// parseRange resolves the requested date range, defaulting to the current
// month
func parseRange(req ReportRequest) (time.Time, time.Time) {
	now := time.Now()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	endDate := time.Date(now.Year(), now.Month()+1, 0, 23, 59, 59, 0, now.Location())

	if req.StartDate != "" {
		if parsed, err := time.Parse("2006-01-02", req.StartDate); err == nil {
			startDate = parsed
		}
	}
	if req.EndDate != "" {
		if parsed, err := time.Parse("2006-01-02", req.EndDate); err == nil {
			endDate = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 0, parsed.Location())
		}
	}
	return startDate, endDate
}

type DailySales struct {
	Date         string          `json:"date"`
	Sales        decimal.Decimal `json:"sales"`
	Transactions int             `json:"transactions"`
}

type SalesReport struct {
	StartDate         string          `json:"start_date"`
	EndDate           string          `json:"end_date"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalVAT          decimal.Decimal `json:"total_vat"`
	TotalDiscount     decimal.Decimal `json:"total_discount"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	TotalTransactions int             `json:"total_transactions"`
	TotalItemsSold    int             `json:"total_items_sold"`
	AveragePerTx      decimal.Decimal `json:"average_per_tx"`
	DailySales        []DailySales    `json:"daily_sales"`
}

// GetSalesReport returns aggregated sales for a date range
func (h *Handler) GetSalesReport(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	startDate, endDate := parseRange(req)

	report := SalesReport{
		StartDate: startDate.Format("2006-01-02"),
		EndDate:   endDate.Format("2006-01-02"),
	}

	var totals struct {
		Sales        decimal.Decimal
		VAT          decimal.Decimal
		Discount     decimal.Decimal
		Transactions int64
	}
	h.db.Model(&database.Sale{}).
		Select("COALESCE(SUM(total), 0) as sales, COALESCE(SUM(vat_amount), 0) as vat, COALESCE(SUM(discount_amount), 0) as discount, COUNT(*) as transactions").
		Where("created_at >= ? AND created_at <= ? AND status = ?", startDate, endDate, "completed").
		Scan(&totals)

	report.TotalSales = totals.Sales
	report.TotalVAT = totals.VAT
	report.TotalDiscount = totals.Discount
	report.TotalTransactions = int(totals.Transactions)
	if report.TotalTransactions > 0 {
		report.AveragePerTx = report.TotalSales.DivRound(decimal.NewFromInt(totals.Transactions), 2)
	}

	var itemCount int64
	h.db.Model(&database.SaleItem{}).
		Select("COALESCE(SUM(sale_items.quantity), 0)").
		Joins("JOIN sales ON sale_items.sale_id = sales.id").
		Where("sales.created_at >= ? AND sales.created_at <= ? AND sales.status = ?", startDate, endDate, "completed").
		Scan(&itemCount)
	report.TotalItemsSold = int(itemCount)

	report.TotalCost = h.totalCOGS(startDate, endDate)
	report.GrossProfit = report.TotalSales.Sub(report.TotalCost)

	rows, _ := h.db.Model(&database.Sale{}).
		Select("DATE(created_at) as date, COALESCE(SUM(total), 0) as sales, COUNT(*) as transactions").
		Where("created_at >= ? AND created_at <= ? AND status = ?", startDate, endDate, "completed").
		Group("DATE(created_at)").Order("date ASC").Rows()
	if rows != nil {
		defer rows.Close()
		for rows.Next() {
			var daily DailySales
			rows.Scan(&daily.Date, &daily.Sales, &daily.Transactions)
			report.DailySales = append(report.DailySales, daily)
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// totalCOGS sums the cost of goods sold in the period. Products carrying
// their own unit cost use it directly; recipe products without one are
// costed from their ingredients.
func (h *Handler) totalCOGS(startDate, endDate time.Time) decimal.Decimal {
	type soldItem struct {
		ProductID uuid.UUID
		Quantity  int
		Cost      decimal.Decimal
	}

	var items []soldItem
	h.db.Model(&database.SaleItem{}).
		Select("sale_items.product_id, sale_items.quantity, stock_items.cost_per_unit as cost").
		Joins("JOIN sales ON sale_items.sale_id = sales.id").
		Joins("JOIN stock_items ON sale_items.product_id = stock_items.id").
		Where("sales.created_at >= ? AND sales.created_at <= ? AND sales.status = ?", startDate, endDate, "completed").
		Scan(&items)

	total := decimal.Zero
	for _, item := range items {
		unitCost := item.Cost
		if !unitCost.IsPositive() {
			unitCost = h.recipeUnitCost(item.ProductID)
		}
		total = total.Add(unitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// recipeUnitCost prices one serving of a recipe product from its
// ingredients' per-unit costs
func (h *Handler) recipeUnitCost(productID uuid.UUID) decimal.Decimal {
	var rec database.Recipe
	if err := h.db.Preload("Ingredients").Preload("Ingredients.Ingredient").
		First(&rec, "product_id = ?", productID).Error; err != nil {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, line := range rec.Ingredients {
		total = total.Add(line.QuantityPerUnit.Mul(line.Ingredient.CostPerUnit))
	}
	return total
}

type WasteByReason struct {
	Reason    string          `json:"reason"`
	Records   int             `json:"records"`
	LossValue decimal.Decimal `json:"loss_value"`
}

type WasteReport struct {
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	TotalRecords   int             `json:"total_records"`
	TotalLossValue decimal.Decimal `json:"total_loss_value"`
	ByReason       []WasteByReason `json:"by_reason"`
}

// GetWasteReport totals waste losses for a date range, valued at each
// item's unit cost
func (h *Handler) GetWasteReport(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	startDate, endDate := parseRange(req)

	type wasteRow struct {
		Reason   string
		Quantity decimal.Decimal
		Cost     decimal.Decimal
	}
	var rows []wasteRow
	h.db.Model(&database.WasteRecord{}).
		Select("waste_records.reason, waste_records.quantity, stock_items.cost_per_unit as cost").
		Joins("JOIN stock_items ON waste_records.item_id = stock_items.id").
		Where("waste_records.created_at >= ? AND waste_records.created_at <= ?", startDate, endDate).
		Scan(&rows)

	report := WasteReport{
		StartDate: startDate.Format("2006-01-02"),
		EndDate:   endDate.Format("2006-01-02"),
	}

	byReason := make(map[string]*WasteByReason)
	for _, row := range rows {
		loss := row.Quantity.Mul(row.Cost)
		report.TotalRecords++
		report.TotalLossValue = report.TotalLossValue.Add(loss)

		entry, ok := byReason[row.Reason]
		if !ok {
			entry = &WasteByReason{Reason: row.Reason}
			byReason[row.Reason] = entry
		}
		entry.Records++
		entry.LossValue = entry.LossValue.Add(loss)
	}

	for _, reason := range []string{database.WasteReasonExpired, database.WasteReasonManual, database.WasteReasonDamaged} {
		if entry, ok := byReason[reason]; ok {
			report.ByReason = append(report.ByReason, *entry)
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

type InventorySummary struct {
	TotalItems   int             `json:"total_items"`
	ActiveItems  int             `json:"active_items"`
	StockValue   decimal.Decimal `json:"stock_value"`
	LowStock     []InventoryLine `json:"low_stock"`
	OutOfStock   []InventoryLine `json:"out_of_stock"`
	EmptyDisplay []InventoryLine `json:"empty_display"`
}

type InventoryLine struct {
	ItemID       uuid.UUID       `json:"item_id"`
	Name         string          `json:"name"`
	WarehouseQty decimal.Decimal `json:"warehouse_qty"`
	DisplayQty   decimal.Decimal `json:"display_qty"`
	TotalQty     decimal.Decimal `json:"total_qty"`
}

// GetInventorySummary reports current stock health across both pools
func (h *Handler) GetInventorySummary(c *gin.Context) {
	threshold := decimal.NewFromInt(5)
	if raw := c.Query("low_threshold"); raw != "" {
		if parsed, err := decimal.NewFromString(raw); err == nil && parsed.IsPositive() {
			threshold = parsed
		}
	}

	var items []database.StockItem
	if err := h.db.Order("name ASC").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock items"})
		return
	}

	summary := InventorySummary{
		LowStock:     []InventoryLine{},
		OutOfStock:   []InventoryLine{},
		EmptyDisplay: []InventoryLine{},
	}
	for _, item := range items {
		summary.TotalItems++
		if !item.IsActive {
			continue
		}
		summary.ActiveItems++
		summary.StockValue = summary.StockValue.Add(item.TotalQty.Mul(item.CostPerUnit))

		line := InventoryLine{
			ItemID:       item.ID,
			Name:         item.Name,
			WarehouseQty: item.WarehouseQty,
			DisplayQty:   item.DisplayQty,
			TotalQty:     item.TotalQty,
		}
		switch {
		case item.TotalQty.IsZero():
			summary.OutOfStock = append(summary.OutOfStock, line)
		case item.TotalQty.LessThanOrEqual(threshold):
			summary.LowStock = append(summary.LowStock, line)
		case item.DisplayQty.IsZero() && item.WarehouseQty.IsPositive():
			// Sellable stock exists but none is on display
			summary.EmptyDisplay = append(summary.EmptyDisplay, line)
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// ExportSales streams the period's sales as an Excel workbook
func (h *Handler) ExportSales(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	startDate, endDate := parseRange(req)

	var sales []database.Sale
	if err := h.db.Preload("Items").Preload("Items.Product").
		Where("created_at >= ? AND created_at <= ?", startDate, endDate).
		Order("created_at ASC").Find(&sales).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sales"})
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"Invoice", "Date", "Items", "Subtotal", "VAT", "Discount", "Total", "Payment", "Reference"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Sheet1", cell, header)
	}

	for rowIdx, sale := range sales {
		itemCount := 0
		for _, item := range sale.Items {
			itemCount += item.Quantity
		}

		values := []interface{}{
			sale.InvoiceNumber,
			sale.CreatedAt.Format("2006-01-02 15:04"),
			itemCount,
			sale.Subtotal.InexactFloat64(),
			sale.VATAmount.InexactFloat64(),
			sale.DiscountAmount.InexactFloat64(),
			sale.Total.InexactFloat64(),
			sale.PaymentMode,
			sale.PaymentReference,
		}
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue("Sheet1", cell, value)
		}
	}

	f.SetColWidth("Sheet1", "A", "B", 20)
	f.SetColWidth("Sheet1", "C", "I", 12)

	filename := fmt.Sprintf("sales_%s_%s.xlsx", startDate.Format("20060102"), endDate.Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate export"})
	}
}
