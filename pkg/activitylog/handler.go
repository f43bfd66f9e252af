package activitylog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// List returns recent activity log entries, newest first
func (h *Handler) List(c *gin.Context) {
	query := h.db.Model(&database.ActivityLog{}).Order("created_at DESC")

	if entityType := c.Query("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
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

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	var logs []database.ActivityLog
	if err := query.Limit(limit).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
