package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Budget sources reported with an effective budget
const (
	BudgetSourceMonthly  = "MONTHLY"
	BudgetSourceCriteria = "CRITERIA"
	BudgetSourceNone     = "NONE"
)

// Budget is the allocation of one company for one calendar month
type Budget struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_budget_company_period" json:"company_id"`
	Year      int       `gorm:"not null;uniqueIndex:idx_budget_company_period" json:"year"`
	Month     int       `gorm:"not null;uniqueIndex:idx_budget_company_period" json:"month"`
	Amount    int64     `gorm:"type:bigint;not null" json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Budget) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Criteria is the default monthly budget of a company, used for months
// without a Budget row.
type Criteria struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"company_id"`
	Amount    int64     `gorm:"type:bigint;not null" json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Criteria) TableName() string {
	return "criteria"
}

func (c *Criteria) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Period identifies the calendar month a spend is charged to
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the period containing t (in t's location).
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}
