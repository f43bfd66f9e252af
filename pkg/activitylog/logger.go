package activitylog

import (
	"encoding/json"

	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Logger handles activity logging for audit trail
type Logger struct {
	db *gorm.DB
}

// NewLogger creates a new activity logger
func NewLogger(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

// LogActivity creates an activity log entry for the authenticated user
func (l *Logger) LogActivity(c *gin.Context, action, entityType string, entityID *uuid.UUID, details interface{}) error {
	userIDStr := c.GetString("user_id")
	userID, _ := uuid.Parse(userIDStr)

	detailsJSON := ""
	if details != nil {
		if jsonBytes, err := json.Marshal(details); err == nil {
			detailsJSON = string(jsonBytes)
		}
	}

	entry := database.ActivityLog{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    detailsJSON,
		IPAddress:  c.ClientIP(),
	}

	return l.db.Create(&entry).Error
}

// LogCreate logs a create action
func (l *Logger) LogCreate(c *gin.Context, entityType string, entityID uuid.UUID, newData interface{}) error {
	return l.LogActivity(c, "create", entityType, &entityID, map[string]interface{}{
		"new": newData,
	})
}

// LogUpdate logs an update action with old and new values
func (l *Logger) LogUpdate(c *gin.Context, entityType string, entityID uuid.UUID, oldData, newData interface{}) error {
	return l.LogActivity(c, "update", entityType, &entityID, map[string]interface{}{
		"old": oldData,
		"new": newData,
	})
}

// LogDeactivate logs a soft-deactivation
func (l *Logger) LogDeactivate(c *gin.Context, entityType string, entityID uuid.UUID, name string) error {
	return l.LogActivity(c, "deactivate", entityType, &entityID, map[string]interface{}{
		"name": name,
	})
}
