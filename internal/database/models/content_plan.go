package models

import (
	"strings"
	"time"
)

// PlanStatus defines the lifecycle states of a content plan.
type PlanStatus string

const (
	PlanStatusNew            PlanStatus = "new"
	PlanStatusReadyToPublish PlanStatus = "ready_to_publish"
	PlanStatusPublished      PlanStatus = "published"
)

// DefaultFormat is used when the source idea carries no format.
const DefaultFormat = "standard"

// ContentPlan is a scheduled unit of content, before and after its text is rendered.
type ContentPlan struct {
	ID              int64      `bson:"_id" gorm:"primaryKey;autoIncrement"`
	IdeaID          int64      `bson:"idea_id" gorm:"uniqueIndex"`
	Topic           string     `bson:"topic" gorm:"size:255;not null"`
	Format          string     `bson:"format" gorm:"size:50;not null"`
	PublicationDate time.Time  `bson:"publication_date" gorm:"index;not null"` // always UTC
	Status          PlanStatus `bson:"status" gorm:"size:50;index;not null"`
	Content         string     `bson:"content,omitempty" gorm:"type:text"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

// TableName overrides the table name
func (ContentPlan) TableName() string {
	return "content_plan"
}

// HasContent reports whether rendered text is present.
func (p *ContentPlan) HasContent() bool {
	return strings.TrimSpace(p.Content) != ""
}
