// Package metrics supplies engagement numbers for published posts.
package metrics

import (
	"context"

	"contentplan-bot/internal/database/models"
)

// Provider fetches the engagement numbers of a published post.
type Provider interface {
	Collect(ctx context.Context, post models.Post) (models.Metrics, error)
}

// StubProvider derives deterministic numbers from the post id.
// It stands in until a real channel analytics source is connected.
type StubProvider struct{}

func (StubProvider) Collect(_ context.Context, post models.Post) (models.Metrics, error) {
	return models.Metrics{
		Views:     100 + int(post.ID%50),
		Reactions: 10 + int(post.ID%20),
		Comments:  5 + int(post.ID%10),
	}, nil
}
