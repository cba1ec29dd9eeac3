package database

import (
	"context"
	"time"

	"contentplan-bot/internal/database/models"
)

// IdeaRepository defines storage operations for ideas.
type IdeaRepository interface {
	// CreateIdeas persists the ideas in one unit and assigns their IDs.
	CreateIdeas(ctx context.Context, ideas []*models.Idea) error
	GetIdea(ctx context.Context, id int64) (*models.Idea, error)
	// UpdateIdeaStatus moves an idea from one status to another.
	// It returns ErrConflict if the idea is no longer in the from status.
	UpdateIdeaStatus(ctx context.Context, id int64, from, to models.IdeaStatus) error
}

// PlanRepository defines storage operations for content plans.
type PlanRepository interface {
	// CreatePlan persists the plan and assigns its ID.
	// It returns ErrConflict if a plan already exists for the same idea.
	CreatePlan(ctx context.Context, plan *models.ContentPlan) error
	GetPlan(ctx context.Context, id int64) (*models.ContentPlan, error)
	GetPlanByIdea(ctx context.Context, ideaID int64) (*models.ContentPlan, error)
	// SetPlanContent stores rendered text while the plan is still in the given status.
	SetPlanContent(ctx context.Context, id int64, status models.PlanStatus, content string) error
	// UpdatePlanStatus moves a plan from one status to another.
	UpdatePlanStatus(ctx context.Context, id int64, from, to models.PlanStatus) error
	// FindDuePlans returns plans in status whose publication date is at or before now, oldest first.
	FindDuePlans(ctx context.Context, status models.PlanStatus, now time.Time) ([]models.ContentPlan, error)
	FindPlansByIDs(ctx context.Context, ids []int64) ([]models.ContentPlan, error)
}

// PostRepository defines storage operations for published posts.
type PostRepository interface {
	// CompletePublish marks the plan published and records the post in one unit.
	// Nothing is written if the plan is not in the from status (ErrConflict).
	CompletePublish(ctx context.Context, planID int64, from models.PlanStatus, post *models.Post) error
	GetPostByPlan(ctx context.Context, planID int64) (*models.Post, error)
	// FindPostsAwaitingMetrics returns posts published at or before cutoff that have no metrics yet.
	FindPostsAwaitingMetrics(ctx context.Context, cutoff time.Time) ([]models.Post, error)
	FindPostsPublishedSince(ctx context.Context, since time.Time) ([]models.Post, error)
	// SetPostMetrics writes all metric fields at once, only if none were written before (ErrConflict otherwise).
	SetPostMetrics(ctx context.Context, postID int64, m models.Metrics) error
}

// Store is the durable entity store shared by the workflow, the scheduler and the reports.
type Store interface {
	IdeaRepository
	PlanRepository
	PostRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
