package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreatePurchaseRequest = "CREATE_PURCHASE_REQUEST"
	ActionApprovePurchase       = "APPROVE_PURCHASE_REQUEST"
	ActionRejectPurchase        = "REJECT_PURCHASE_REQUEST"
	ActionCancelPurchase        = "CANCEL_PURCHASE_REQUEST"
	ActionPurchaseNow           = "PURCHASE_NOW"
	ActionUpsertBudget          = "UPSERT_BUDGET"
	ActionUpsertCriteria        = "UPSERT_CRITERIA"
	ActionCreateProduct         = "CREATE_PRODUCT"
	ActionUpdateProduct         = "UPDATE_PRODUCT"
	ActionDeleteProduct         = "DELETE_PRODUCT"
)

// AuditLog tracks Who, What, and When for procurement decisions and budget changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
