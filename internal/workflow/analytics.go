package workflow

import (
	"context"
	"time"
)

// ReportWindow is the period covered by the weekly analytics.
const ReportWindow = 7 * 24 * time.Hour

const maxPopularTopics = 5

// Analytics summarizes channel activity over a period.
type Analytics struct {
	Since          time.Time
	TotalPosts     int
	TotalViews     int
	TotalReactions int
	TotalComments  int
	AvgViews       float64
	PopularTopics  []string
}

// WeeklyAnalytics aggregates the posts published during the last ReportWindow.
// Posts without collected metrics count as zero.
func (e *Engine) WeeklyAnalytics(ctx context.Context) (Analytics, error) {
	const op = "weekly_analytics"
	since := e.Now().Add(-ReportWindow)
	a := Analytics{Since: since, PopularTopics: []string{}}

	posts, err := e.store.FindPostsPublishedSince(ctx, since)
	if err != nil {
		return a, storeError(op, "post", 0, err)
	}
	if len(posts) == 0 {
		return a, nil
	}

	planIDs := make([]int64, 0, len(posts))
	for _, post := range posts {
		m := post.CollectedMetrics()
		a.TotalViews += m.Views
		a.TotalReactions += m.Reactions
		a.TotalComments += m.Comments
		planIDs = append(planIDs, post.ContentPlanID)
	}
	a.TotalPosts = len(posts)
	a.AvgViews = float64(a.TotalViews) / float64(a.TotalPosts)

	plans, err := e.store.FindPlansByIDs(ctx, planIDs)
	if err != nil {
		return a, storeError(op, "plan", 0, err)
	}
	for _, plan := range plans {
		if len(a.PopularTopics) == maxPopularTopics {
			break
		}
		a.PopularTopics = append(a.PopularTopics, plan.Topic)
	}
	return a, nil
}
