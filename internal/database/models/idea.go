package models

import "time"

// IdeaStatus defines the lifecycle states of an idea.
type IdeaStatus string

const (
	IdeaStatusNew      IdeaStatus = "new"
	IdeaStatusApproved IdeaStatus = "approved"
)

// MaxTopicLength caps the stored topic of ideas and plans (in characters).
const MaxTopicLength = 255

// Idea is a candidate post topic generated from a subject supplied by an actor.
type Idea struct {
	ID        int64      `bson:"_id" gorm:"primaryKey;autoIncrement"`
	ActorID   int64      `bson:"actor_id" gorm:"index"`
	Topic     string     `bson:"topic" gorm:"size:255;not null"`
	Format    string     `bson:"format,omitempty" gorm:"size:50"` // optional: educational, entertaining, ...
	Status    IdeaStatus `bson:"status" gorm:"size:50;index;not null"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

// TableName overrides the table name
func (Idea) TableName() string {
	return "user_ideas"
}
