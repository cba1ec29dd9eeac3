package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"contentplan-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ Store = (*MemoryStore)(nil)
var _ Store = (*MongoStore)(nil)
var _ Store = (*PostgresStore)(nil)

// setupSQLStore opens the gorm store on an in-memory SQLite database.
// A single connection keeps the database alive and serializes transactions.
func setupSQLStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestPostgresStore_SQLite(t *testing.T) {
	runStoreTests(t, setupSQLStore)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ideas := []*models.Idea{{ActorID: 7, Topic: "one", Status: models.IdeaStatusNew}}
	require.NoError(t, s.CreateIdeas(ctx, ideas))

	got, err := s.GetIdea(ctx, ideas[0].ID)
	require.NoError(t, err)
	got.Topic = "changed"

	again, err := s.GetIdea(ctx, ideas[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "one", again.Topic)
}

func newPlan(t *testing.T, s Store, ideaID int64, status models.PlanStatus, at time.Time) *models.ContentPlan {
	t.Helper()
	plan := &models.ContentPlan{IdeaID: ideaID, Topic: "topic", Format: models.DefaultFormat, Status: status, PublicationDate: at}
	require.NoError(t, s.CreatePlan(context.Background(), plan))
	return plan
}

// runStoreTests checks the behaviour every Store implementation shares.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("IdeasLifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		ideas := []*models.Idea{
			{ActorID: 7, Topic: "one", Status: models.IdeaStatusNew},
			{ActorID: 7, Topic: "two", Status: models.IdeaStatusNew},
		}
		require.NoError(t, s.CreateIdeas(ctx, ideas))
		assert.Equal(t, int64(1), ideas[0].ID)
		assert.Equal(t, int64(2), ideas[1].ID)

		require.NoError(t, s.UpdateIdeaStatus(ctx, 1, models.IdeaStatusNew, models.IdeaStatusApproved))
		assert.ErrorIs(t, s.UpdateIdeaStatus(ctx, 1, models.IdeaStatusNew, models.IdeaStatusApproved), ErrConflict)
		assert.ErrorIs(t, s.UpdateIdeaStatus(ctx, 99, models.IdeaStatusNew, models.IdeaStatusApproved), ErrNotFound)

		got, err := s.GetIdea(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.IdeaStatusApproved, got.Status)
		assert.Equal(t, "one", got.Topic)

		_, err = s.GetIdea(ctx, 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("OnePlanPerIdea", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		plan := newPlan(t, s, 1, models.PlanStatusNew, time.Now())

		err := s.CreatePlan(ctx, &models.ContentPlan{IdeaID: 1, Topic: "again", Format: models.DefaultFormat, Status: models.PlanStatusNew, PublicationDate: time.Now()})
		assert.ErrorIs(t, err, ErrConflict)

		got, err := s.GetPlanByIdea(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, plan.ID, got.ID)
		_, err = s.GetPlanByIdea(ctx, 2)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PlanContentAndStatus", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		plan := newPlan(t, s, 1, models.PlanStatusNew, time.Now())

		require.NoError(t, s.SetPlanContent(ctx, plan.ID, models.PlanStatusNew, "draft"))
		require.NoError(t, s.UpdatePlanStatus(ctx, plan.ID, models.PlanStatusNew, models.PlanStatusReadyToPublish))
		assert.ErrorIs(t, s.SetPlanContent(ctx, plan.ID, models.PlanStatusNew, "late"), ErrConflict)
		assert.ErrorIs(t, s.SetPlanContent(ctx, 99, models.PlanStatusNew, "none"), ErrNotFound)
		assert.ErrorIs(t, s.UpdatePlanStatus(ctx, plan.ID, models.PlanStatusNew, models.PlanStatusReadyToPublish), ErrConflict)
		assert.ErrorIs(t, s.UpdatePlanStatus(ctx, 99, models.PlanStatusNew, models.PlanStatusReadyToPublish), ErrNotFound)

		got, err := s.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, "draft", got.Content)
		assert.Equal(t, models.PlanStatusReadyToPublish, got.Status)
	})

	t.Run("FindDuePlans", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		late := newPlan(t, s, 1, models.PlanStatusReadyToPublish, now.Add(-time.Minute))
		early := newPlan(t, s, 2, models.PlanStatusReadyToPublish, now.Add(-time.Hour))
		exact := newPlan(t, s, 3, models.PlanStatusReadyToPublish, now)
		newPlan(t, s, 4, models.PlanStatusReadyToPublish, now.Add(time.Second))
		newPlan(t, s, 5, models.PlanStatusNew, now.Add(-time.Hour))

		due, err := s.FindDuePlans(ctx, models.PlanStatusReadyToPublish, now)
		require.NoError(t, err)
		require.Len(t, due, 3)
		assert.Equal(t, []int64{early.ID, late.ID, exact.ID}, []int64{due[0].ID, due[1].ID, due[2].ID})
	})

	t.Run("FindPlansByIDs", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		first := newPlan(t, s, 1, models.PlanStatusNew, time.Now())
		second := newPlan(t, s, 2, models.PlanStatusNew, time.Now())

		plans, err := s.FindPlansByIDs(ctx, []int64{second.ID, 99, first.ID})
		require.NoError(t, err)
		ids := []int64{}
		for _, p := range plans {
			ids = append(ids, p.ID)
		}
		assert.ElementsMatch(t, []int64{first.ID, second.ID}, ids)

		plans, err = s.FindPlansByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, plans)
	})

	t.Run("CompletePublish", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		plan := newPlan(t, s, 1, models.PlanStatusReadyToPublish, time.Now())

		post := &models.Post{MessageID: 42, ChannelID: -100, PublishedAt: time.Now()}
		require.NoError(t, s.CompletePublish(ctx, plan.ID, models.PlanStatusReadyToPublish, post))
		assert.NotZero(t, post.ID)
		assert.Equal(t, plan.ID, post.ContentPlanID)

		stored, err := s.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PlanStatusPublished, stored.Status)

		got, err := s.GetPostByPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.MessageID)
		assert.False(t, got.HasMetrics())

		// a plan already carrying a post refuses a second one whatever status is expected
		second := &models.Post{MessageID: 43, ChannelID: -100, PublishedAt: time.Now()}
		assert.ErrorIs(t, s.CompletePublish(ctx, plan.ID, models.PlanStatusPublished, second), ErrConflict)
		assert.ErrorIs(t, s.CompletePublish(ctx, plan.ID, models.PlanStatusReadyToPublish, second), ErrConflict)
		assert.ErrorIs(t, s.CompletePublish(ctx, 99, models.PlanStatusReadyToPublish, second), ErrNotFound)

		got, err = s.GetPostByPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.MessageID)
	})

	t.Run("CompletePublishWrongStatusLeavesPlan", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		plan := newPlan(t, s, 1, models.PlanStatusNew, time.Now())

		err := s.CompletePublish(ctx, plan.ID, models.PlanStatusReadyToPublish, &models.Post{MessageID: 1, PublishedAt: time.Now()})
		assert.ErrorIs(t, err, ErrConflict)

		stored, err := s.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PlanStatusNew, stored.Status)
		_, err = s.GetPostByPlan(ctx, plan.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CompletePublishConcurrent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		plan := newPlan(t, s, 1, models.PlanStatusReadyToPublish, time.Now())

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.CompletePublish(ctx, plan.ID, models.PlanStatusReadyToPublish, &models.Post{MessageID: int64(i), PublishedAt: time.Now()})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("PostMetrics", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		publishedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		plan := newPlan(t, s, 1, models.PlanStatusReadyToPublish, publishedAt)
		post := &models.Post{MessageID: 1, ChannelID: -100, PublishedAt: publishedAt}
		require.NoError(t, s.CompletePublish(ctx, plan.ID, models.PlanStatusReadyToPublish, post))

		awaiting, err := s.FindPostsAwaitingMetrics(ctx, publishedAt.Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, awaiting)

		awaiting, err = s.FindPostsAwaitingMetrics(ctx, publishedAt.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, awaiting, 1)
		assert.Equal(t, post.ID, awaiting[0].ID)

		require.NoError(t, s.SetPostMetrics(ctx, post.ID, models.Metrics{Views: 101, Reactions: 11, Comments: 6}))
		assert.ErrorIs(t, s.SetPostMetrics(ctx, post.ID, models.Metrics{Views: 1}), ErrConflict)
		assert.ErrorIs(t, s.SetPostMetrics(ctx, 99, models.Metrics{}), ErrNotFound)

		got, err := s.GetPostByPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.Metrics{Views: 101, Reactions: 11, Comments: 6}, got.CollectedMetrics())

		awaiting, err = s.FindPostsAwaitingMetrics(ctx, publishedAt.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, awaiting)

		recent, err := s.FindPostsPublishedSince(ctx, publishedAt)
		require.NoError(t, err)
		assert.Len(t, recent, 1)
		recent, err = s.FindPostsPublishedSince(ctx, publishedAt.Add(time.Second))
		require.NoError(t, err)
		assert.Empty(t, recent)
	})
}
