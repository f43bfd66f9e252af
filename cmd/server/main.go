package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/banelo/banelo-backend/internal/auth"
	"github.com/banelo/banelo-backend/internal/recipe"
	"github.com/banelo/banelo-backend/internal/reports"
	"github.com/banelo/banelo-backend/internal/sale"
	"github.com/banelo/banelo-backend/internal/stock"
	"github.com/banelo/banelo-backend/internal/waste"
	"github.com/banelo/banelo-backend/pkg/activitylog"
	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/banelo/banelo-backend/pkg/middleware"
	"github.com/banelo/banelo-backend/pkg/outbox"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize database
	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Handlers share one ledger and one resolver so every stock write goes
	// through the same guarded path
	stockHandler := stock.NewHandler(db)
	ledger := stockHandler.Ledger()
	recipeHandler := recipe.NewHandler(db)
	resolver := recipeHandler.Resolver()

	// Daily expiration sweep
	sweeper := waste.NewSweeper(db, ledger, sweepInterval())
	sweeper.Start()

	// Outbox worker for secondary syncs
	worker := outbox.NewWorker(db, 1*time.Minute)
	worker.Register("sale_sync", func(task *database.OutboxTask) error {
		// Placeholder until the remote bookkeeping endpoint is wired;
		// marking done keeps the queue drained
		log.Printf("Outbox: sale_sync %s", task.ID)
		return nil
	})
	worker.Register("waste_sync", func(task *database.OutboxTask) error {
		log.Printf("Outbox: waste_sync %s", task.ID)
		return nil
	})
	worker.Start()

	// Setup Gin router
	r := gin.Default()

	// Middleware
	r.Use(middleware.CORS())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		v1.POST("/auth/register", authHandler.Register)
		v1.POST("/auth/login", authHandler.Login)
		v1.POST("/auth/refresh", authHandler.RefreshToken)

		// Google OAuth routes
		v1.GET("/auth/google", authHandler.GoogleLogin)
		v1.GET("/auth/google/callback", authHandler.GoogleCallback)

		// Protected routes
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth - get current user
			protected.GET("/auth/me", authHandler.GetMe)

			// Stock item routes
			protected.GET("/items", stockHandler.List)
			protected.POST("/items", stockHandler.Create)
			protected.GET("/items/:id", stockHandler.Get)
			protected.PUT("/items/:id", stockHandler.Update)
			protected.DELETE("/items/:id", stockHandler.Deactivate)
			protected.POST("/items/:id/transfer", stockHandler.Transfer)
			protected.POST("/items/:id/restock", stockHandler.Restock)
			protected.GET("/items/:id/availability", recipeHandler.Availability)

			// Recipe routes
			protected.GET("/recipes", recipeHandler.List)
			protected.GET("/recipes/:product_id", recipeHandler.Get)
			protected.PUT("/recipes/:product_id", recipeHandler.Replace)

			// Sale routes
			saleHandler := sale.NewHandler(db, ledger, resolver)
			protected.GET("/sales", saleHandler.List)
			protected.POST("/sales", saleHandler.Create)
			protected.POST("/sales/quote", saleHandler.Quote)
			protected.GET("/sales/:id", saleHandler.Get)

			// Waste routes
			wasteHandler := waste.NewHandler(db, ledger)
			protected.GET("/waste", wasteHandler.List)
			protected.POST("/waste", wasteHandler.Record)

			// Reports (owner only)
			reportsHandler := reports.NewHandler(db)
			reportRoutes := protected.Group("/reports", middleware.RequireRole("owner"))
			reportRoutes.GET("/sales", reportsHandler.GetSalesReport)
			reportRoutes.GET("/sales/export", reportsHandler.ExportSales)
			reportRoutes.GET("/waste", reportsHandler.GetWasteReport)
			reportRoutes.GET("/inventory", reportsHandler.GetInventorySummary)

			// Audit trail (owner only)
			auditHandler := activitylog.NewHandler(db)
			protected.GET("/audit-logs", middleware.RequireRole("owner"), auditHandler.List)
		}
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// sweepInterval reads SWEEP_INTERVAL_HOURS, defaulting to a daily run
func sweepInterval() time.Duration {
	if raw := os.Getenv("SWEEP_INTERVAL_HOURS"); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return 24 * time.Hour
}
