package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"contentplan-bot/internal/database"
	"contentplan-bot/internal/database/models"
	"contentplan-bot/internal/metrics"
	"contentplan-bot/internal/publisher"
	"contentplan-bot/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testChannelID int64 = -100500

var msk = time.FixedZone("MSK", 3*60*60)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateIdeas(ctx context.Context, topic string, goals []string) ([]string, error) {
	args := m.Called(ctx, topic, goals)
	lines, _ := args.Get(0).([]string)
	return lines, args.Error(1)
}

func (m *MockGenerator) RenderTemplate(ctx context.Context, topic, format string) (string, error) {
	args := m.Called(ctx, topic, format)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, channelID int64, content string) (publisher.Receipt, error) {
	args := m.Called(ctx, channelID, content)
	return args.Get(0).(publisher.Receipt), args.Error(1)
}

type failingProvider struct {
	failID int64
}

func (p failingProvider) Collect(ctx context.Context, post models.Post) (models.Metrics, error) {
	if post.ID == p.failID {
		return models.Metrics{}, errors.New("analytics unavailable")
	}
	return metrics.StubProvider{}.Collect(ctx, post)
}

type testSuite struct {
	store     *database.MemoryStore
	generator *MockGenerator
	publisher *MockPublisher
	engine    *workflow.Engine
	scheduler *Scheduler
	now       time.Time
}

func setupTestSuite(t *testing.T, provider metrics.Provider) *testSuite {
	t.Helper()
	s := &testSuite{
		store:     database.NewMemoryStore(),
		generator: new(MockGenerator),
		publisher: new(MockPublisher),
		now:       time.Date(2024, 5, 1, 9, 0, 0, 0, msk),
	}
	clock := func() time.Time { return s.now }

	engine, err := workflow.NewEngine(workflow.EngineDeps{
		Store:       s.store,
		Generator:   s.generator,
		Publisher:   s.publisher,
		ChannelID:   testChannelID,
		Location:    msk,
		PublishHour: 12,
		Now:         clock,
	})
	require.NoError(t, err)
	s.engine = engine

	if provider == nil {
		provider = metrics.StubProvider{}
	}
	sched, err := New(Deps{
		Store:           s.store,
		Publisher:       engine,
		Metrics:         provider,
		PublishInterval: time.Hour,
		MetricsInterval: 24 * time.Hour,
		MetricsDelay:    24 * time.Hour,
		Now:             clock,
	})
	require.NoError(t, err)
	s.scheduler = sched
	return s
}

// readyPlan creates a plan in ready_to_publish due at the given time.
func (s *testSuite) readyPlan(t *testing.T, ideaID int64, content string, due time.Time) *models.ContentPlan {
	t.Helper()
	ctx := context.Background()
	plan := &models.ContentPlan{IdeaID: ideaID, Topic: content, Format: models.DefaultFormat, Status: models.PlanStatusNew, PublicationDate: due}
	require.NoError(t, s.store.CreatePlan(ctx, plan))
	require.NoError(t, s.store.SetPlanContent(ctx, plan.ID, models.PlanStatusNew, content))
	require.NoError(t, s.store.UpdatePlanStatus(ctx, plan.ID, models.PlanStatusNew, models.PlanStatusReadyToPublish))
	return plan
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestScenario_TopicToMetrics(t *testing.T) {
	ctx := context.Background()
	s := setupTestSuite(t, nil)

	s.generator.On("GenerateIdeas", mock.Anything, "Осенние скидки", workflow.DefaultGoals).
		Return([]string{"1. Топ-5 осенних предложений", "2. Как не переплатить", "3. Отзывы покупателей"}, nil).Once()
	ideas, err := s.engine.SubmitTopic(ctx, 7, "Осенние скидки")
	require.NoError(t, err)
	require.Len(t, ideas, 3)
	for _, idea := range ideas {
		assert.Equal(t, models.IdeaStatusNew, idea.Status)
	}

	idea, err := s.engine.ApproveIdea(ctx, ideas[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.IdeaStatusApproved, idea.Status)

	plan, err := s.engine.SchedulePlan(ctx, idea.ID, workflow.Today)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 5, 1, 12, 0, 0, 0, msk).Equal(plan.PublicationDate))
	assert.Equal(t, models.PlanStatusNew, plan.Status)

	s.generator.On("RenderTemplate", mock.Anything, idea.Topic, models.DefaultFormat).Return("Пост про скидки", nil).Once()
	plan, err = s.engine.RenderPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusNew, plan.Status)

	plan, err = s.engine.ApprovePlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusReadyToPublish, plan.Status)

	// before the publication time nothing is due
	res, err := s.scheduler.RunDuePublication(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Selected)

	s.publisher.On("Publish", mock.Anything, testChannelID, "Пост про скидки").
		Return(publisher.Receipt{MessageID: 314, ChannelID: testChannelID}, nil).Once()
	s.now = time.Date(2024, 5, 1, 12, 5, 0, 0, msk)
	res, err = s.scheduler.RunDuePublication(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Selected)
	assert.Equal(t, 1, res.Succeeded)

	stored, err := s.store.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusPublished, stored.Status)
	post, err := s.store.GetPostByPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.True(t, s.now.Equal(post.PublishedAt))
	assert.False(t, post.HasMetrics())

	// a second scan never reselects a published plan
	res, err = s.scheduler.RunDuePublication(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Selected)

	s.now = s.now.Add(26 * time.Hour)
	res, err = s.scheduler.RunMetricsCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	post, err = s.store.GetPostByPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.True(t, post.HasMetrics())
	assert.NotNil(t, post.Reactions)
	assert.NotNil(t, post.Comments)
	s.publisher.AssertExpectations(t)
	s.generator.AssertExpectations(t)
}

func TestRunDuePublication_PartialFailure(t *testing.T) {
	ctx := context.Background()
	s := setupTestSuite(t, nil)
	due := s.now.Add(-time.Hour)

	const n = 6
	failing := map[int64]bool{}
	var plans []*models.ContentPlan
	for i := int64(1); i <= n; i++ {
		plan := s.readyPlan(t, i, fmt.Sprintf("content %d", i), due)
		plans = append(plans, plan)
		if i%3 == 0 {
			failing[plan.ID] = true
			s.publisher.On("Publish", mock.Anything, testChannelID, plan.Content).
				Return(publisher.Receipt{}, errors.New("telego: sendMessage: api: 500 Internal Server Error")).Once()
		} else {
			s.publisher.On("Publish", mock.Anything, testChannelID, plan.Content).
				Return(publisher.Receipt{MessageID: 1000 + i, ChannelID: testChannelID}, nil).Once()
		}
	}
	k := len(failing)
	// not yet due
	s.readyPlan(t, 100, "later", s.now.Add(time.Hour))

	res, err := s.scheduler.RunDuePublication(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, res.Selected)
	assert.Equal(t, n-k, res.Succeeded)
	assert.Equal(t, k, res.Failed)

	published := 0
	for _, plan := range plans {
		stored, err := s.store.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		_, postErr := s.store.GetPostByPlan(ctx, plan.ID)
		if failing[plan.ID] {
			assert.Equal(t, models.PlanStatusReadyToPublish, stored.Status)
			assert.ErrorIs(t, postErr, database.ErrNotFound)
		} else {
			assert.Equal(t, models.PlanStatusPublished, stored.Status)
			assert.NoError(t, postErr)
			published++
		}
	}
	assert.Equal(t, n-k, published)

	// failed plans are retried by the next run
	for id := range failing {
		plan, err := s.store.GetPlan(ctx, id)
		require.NoError(t, err)
		s.publisher.On("Publish", mock.Anything, testChannelID, plan.Content).
			Return(publisher.Receipt{MessageID: 2000 + id, ChannelID: testChannelID}, nil).Once()
	}
	res, err = s.scheduler.RunDuePublication(ctx)
	require.NoError(t, err)
	assert.Equal(t, k, res.Selected)
	assert.Equal(t, k, res.Succeeded)
}

type failingDueStore struct {
	*database.MemoryStore
}

func (failingDueStore) FindDuePlans(context.Context, models.PlanStatus, time.Time) ([]models.ContentPlan, error) {
	return nil, errors.New("server selection timeout")
}

func TestRunDuePublication_StoreFailure(t *testing.T) {
	s := setupTestSuite(t, nil)
	sched, err := New(Deps{
		Store:           failingDueStore{s.store},
		Publisher:       s.engine,
		Metrics:         metrics.StubProvider{},
		PublishInterval: time.Hour,
		MetricsInterval: time.Hour,
	})
	require.NoError(t, err)

	_, err = sched.RunDuePublication(context.Background())
	assert.Error(t, err)
	assert.NotPanics(t, func() { sched.safeRun(context.Background(), JobPublishDue, sched.RunDuePublication) })
}

func TestRunMetricsCollection_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestSuite(t, nil)

	var planIDs []int64
	for i := int64(1); i <= 3; i++ {
		plan := s.readyPlan(t, i, fmt.Sprintf("content %d", i), s.now)
		post := &models.Post{MessageID: i, ChannelID: testChannelID, PublishedAt: s.now}
		require.NoError(t, s.store.CompletePublish(ctx, plan.ID, models.PlanStatusReadyToPublish, post))
		planIDs = append(planIDs, plan.ID)
	}

	res, err := s.scheduler.RunMetricsCollection(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Selected, "posts younger than the delay are not collected")

	s.now = s.now.Add(25 * time.Hour)
	res, err = s.scheduler.RunMetricsCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)

	first := map[int64]models.Metrics{}
	for _, planID := range planIDs {
		post, err := s.store.GetPostByPlan(ctx, planID)
		require.NoError(t, err)
		first[planID] = post.CollectedMetrics()
	}

	res, err = s.scheduler.RunMetricsCollection(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Selected)

	for _, planID := range planIDs {
		post, err := s.store.GetPostByPlan(ctx, planID)
		require.NoError(t, err)
		assert.Equal(t, first[planID], post.CollectedMetrics())
	}
}

func TestRunMetricsCollection_FailureContinues(t *testing.T) {
	ctx := context.Background()
	s := setupTestSuite(t, failingProvider{failID: 1})

	for i := int64(1); i <= 2; i++ {
		plan := s.readyPlan(t, i, fmt.Sprintf("content %d", i), s.now)
		post := &models.Post{MessageID: i, PublishedAt: s.now}
		require.NoError(t, s.store.CompletePublish(ctx, plan.ID, models.PlanStatusReadyToPublish, post))
	}
	s.now = s.now.Add(48 * time.Hour)

	res, err := s.scheduler.RunMetricsCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Selected)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	awaiting, err := s.store.FindPostsAwaitingMetrics(ctx, s.now)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, int64(1), awaiting[0].ID)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := setupTestSuite(t, nil)
	s.scheduler.runOnStart = true
	s.scheduler.publishInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.scheduler.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
