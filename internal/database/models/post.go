package models

import "time"

// Post records a piece of content published to the channel and its engagement numbers.
// Views, Reactions and Comments are either all nil or all set.
type Post struct {
	ID            int64     `bson:"id" gorm:"primaryKey;autoIncrement"`
	ContentPlanID int64     `bson:"content_plan_id" gorm:"uniqueIndex;not null"`
	MessageID     int64     `bson:"message_id" gorm:"not null"`
	ChannelID     int64     `bson:"channel_id" gorm:"not null"`
	PublishedAt   time.Time `bson:"published_at" gorm:"index;not null"`
	Views         *int      `bson:"views,omitempty"`
	Reactions     *int      `bson:"reactions,omitempty"`
	Comments      *int      `bson:"comments,omitempty"`
}

// TableName overrides the table name
func (Post) TableName() string {
	return "posts"
}

// Metrics holds the engagement numbers collected for a post.
type Metrics struct {
	Views     int
	Reactions int
	Comments  int
}

// HasMetrics reports whether engagement numbers were collected.
func (p *Post) HasMetrics() bool {
	return p.Views != nil
}

// CollectedMetrics returns the stored numbers, zero when nothing was collected yet.
func (p *Post) CollectedMetrics() Metrics {
	var m Metrics
	if p.Views != nil {
		m.Views = *p.Views
	}
	if p.Reactions != nil {
		m.Reactions = *p.Reactions
	}
	if p.Comments != nil {
		m.Comments = *p.Comments
	}
	return m
}
