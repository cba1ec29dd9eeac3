package workflow

import "contentplan-bot/internal/database/models"

// IdeaTransitionAllowed reports whether an idea may move from one status to another.
// The only edge is new -> approved.
func IdeaTransitionAllowed(from, to models.IdeaStatus) bool {
	return from == models.IdeaStatusNew && to == models.IdeaStatusApproved
}

var planTransitions = map[models.PlanStatus][]models.PlanStatus{
	models.PlanStatusNew:            {models.PlanStatusReadyToPublish, models.PlanStatusPublished},
	models.PlanStatusReadyToPublish: {models.PlanStatusPublished},
}

// PlanTransitionAllowed reports whether a plan may move from one status to another.
// Every edge except new -> ready_to_publish -> published and the immediate new -> published is rejected.
// A plan without content can take none of them.
func PlanTransitionAllowed(plan *models.ContentPlan, to models.PlanStatus) bool {
	if !plan.HasContent() {
		return false
	}
	for _, next := range planTransitions[plan.Status] {
		if next == to {
			return true
		}
	}
	return false
}
