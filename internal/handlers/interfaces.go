package handlers

import (
	"context"

	"contentplan-bot/internal/database/models"
	"contentplan-bot/internal/reports"
	"contentplan-bot/internal/workflow"
)

// WorkflowEngine is the part of workflow.Engine driven by chat interactions.
type WorkflowEngine interface {
	SubmitTopic(ctx context.Context, actorID int64, topic string) ([]models.Idea, error)
	ApproveIdea(ctx context.Context, ideaID int64) (*models.Idea, error)
	SchedulePlan(ctx context.Context, ideaID int64, day workflow.Day) (*models.ContentPlan, error)
	RenderPlan(ctx context.Context, planID int64) (*models.ContentPlan, error)
	ApprovePlan(ctx context.Context, planID int64) (*models.ContentPlan, error)
	PublishPlan(ctx context.Context, planID int64, immediate bool) (*models.Post, error)
}

// Reporter builds the weekly channel report.
type Reporter interface {
	Weekly(ctx context.Context) (*reports.Report, error)
}

// AdminChecker decides whether a user may drive the workflow.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}
