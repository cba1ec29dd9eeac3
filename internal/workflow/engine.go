package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"contentplan-bot/internal/database"
	"contentplan-bot/internal/database/models"
	"contentplan-bot/internal/publisher"
	"contentplan-bot/internal/telemetry"

	"github.com/getsentry/sentry-go"
)

const (
	// MaxIdeasPerTopic caps how many generated candidates are persisted per submission.
	MaxIdeasPerTopic = 5
	// DefaultPublishTimeout bounds a single channel send when EngineDeps leaves it unset.
	DefaultPublishTimeout = 30 * time.Second
)

// DefaultGoals are the post goals handed to idea generation.
var DefaultGoals = []string{"обучающий", "развлекающий", "вовлекающий"}

// errorPrefixes mark generated lines that carry a failure message instead of an idea.
var errorPrefixes = []string{"Ошибка", "Error"}

// TextGenerator produces ideas and post text.
type TextGenerator interface {
	GenerateIdeas(ctx context.Context, topic string, goals []string) ([]string, error)
	RenderTemplate(ctx context.Context, topic, format string) (string, error)
}

// Publisher sends content to a channel.
type Publisher interface {
	Publish(ctx context.Context, channelID int64, content string) (publisher.Receipt, error)
}

// EngineDeps holds the collaborators of the engine.
type EngineDeps struct {
	Store          database.Store
	Generator      TextGenerator
	Publisher      Publisher
	Metrics        *telemetry.Metrics // optional
	ChannelID      int64
	Location       *time.Location
	PublishHour    int
	PublishTimeout time.Duration
	Now            func() time.Time // optional, defaults to time.Now
}

// Engine applies the state transitions of ideas, content plans and posts.
type Engine struct {
	store          database.Store
	generator      TextGenerator
	publisher      Publisher
	metrics        *telemetry.Metrics
	channelID      int64
	location       *time.Location
	publishHour    int
	publishTimeout time.Duration
	now            func() time.Time
	locks          *keyedLocks
}

// NewEngine validates the dependencies and creates an engine.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("text generator is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if deps.ChannelID == 0 {
		return nil, errors.New("channel id is required")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.PublishTimeout <= 0 {
		deps.PublishTimeout = DefaultPublishTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		store:          deps.Store,
		generator:      deps.Generator,
		publisher:      deps.Publisher,
		metrics:        deps.Metrics,
		channelID:      deps.ChannelID,
		location:       deps.Location,
		publishHour:    deps.PublishHour,
		publishTimeout: deps.PublishTimeout,
		now:            deps.Now,
		locks:          newKeyedLocks(),
	}, nil
}

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// FilterIdeas keeps usable generated lines: trimmed, non-empty, not failure messages,
// capped at models.MaxTopicLength characters and at most MaxIdeasPerTopic of them.
func FilterIdeas(lines []string) []string {
	ideas := make([]string, 0, MaxIdeasPerTopic)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || hasErrorPrefix(line) {
			continue
		}
		ideas = append(ideas, truncateRunes(line, models.MaxTopicLength))
		if len(ideas) == MaxIdeasPerTopic {
			break
		}
	}
	return ideas
}

func hasErrorPrefix(s string) bool {
	for _, p := range errorPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// SubmitTopic generates ideas for topic and persists the usable ones as new ideas of actorID.
// An empty result is not an error.
func (e *Engine) SubmitTopic(ctx context.Context, actorID int64, topic string) ([]models.Idea, error) {
	const op = "submit_topic"

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, newError(op, ErrInvalidState, "", 0, errors.New("topic is empty"))
	}

	lines, err := e.generator.GenerateIdeas(ctx, topic, DefaultGoals)
	e.metrics.ObserveGeneration("ideas", err)
	if err != nil {
		return nil, newError(op, ErrExternalService, "", 0, err)
	}

	texts := FilterIdeas(lines)
	if len(texts) == 0 {
		log.Printf("[Workflow] No usable ideas generated for actor %d (%d lines)", actorID, len(lines))
		return []models.Idea{}, nil
	}

	ideas := make([]*models.Idea, 0, len(texts))
	for _, text := range texts {
		ideas = append(ideas, &models.Idea{ActorID: actorID, Topic: text, Status: models.IdeaStatusNew})
	}
	if err := e.store.CreateIdeas(ctx, ideas); err != nil {
		return nil, storeError(op, "idea", 0, err)
	}

	result := make([]models.Idea, 0, len(ideas))
	for _, idea := range ideas {
		result = append(result, *idea)
	}
	log.Printf("[Workflow] Created %d ideas for actor %d", len(result), actorID)
	return result, nil
}

// ApproveIdea moves an idea to approved. Approving an approved idea returns it unchanged.
func (e *Engine) ApproveIdea(ctx context.Context, ideaID int64) (*models.Idea, error) {
	const op = "approve_idea"
	defer e.locks.lock("idea", ideaID)()

	idea, err := e.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, storeError(op, "idea", ideaID, err)
	}
	if idea.Status == models.IdeaStatusApproved {
		return idea, nil
	}
	if !IdeaTransitionAllowed(idea.Status, models.IdeaStatusApproved) {
		return nil, newError(op, ErrInvalidState, "idea", ideaID, fmt.Errorf("status %q", idea.Status))
	}

	if err := e.store.UpdateIdeaStatus(ctx, ideaID, idea.Status, models.IdeaStatusApproved); err != nil {
		return nil, storeError(op, "idea", ideaID, err)
	}
	idea.Status = models.IdeaStatusApproved
	return idea, nil
}

// SchedulePlan creates a new plan from an approved idea, due at the publish hour of the chosen day.
// An idea yields at most one plan.
func (e *Engine) SchedulePlan(ctx context.Context, ideaID int64, day Day) (*models.ContentPlan, error) {
	const op = "schedule_plan"
	if day != Today && day != Tomorrow {
		return nil, newError(op, ErrInvalidState, "idea", ideaID, fmt.Errorf("unsupported day %s", day))
	}
	defer e.locks.lock("idea", ideaID)()

	idea, err := e.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, storeError(op, "idea", ideaID, err)
	}
	if idea.Status != models.IdeaStatusApproved {
		return nil, newError(op, ErrInvalidState, "idea", ideaID, errors.New("idea is not approved"))
	}

	existing, err := e.store.GetPlanByIdea(ctx, ideaID)
	switch {
	case err == nil:
		return nil, newError(op, ErrInvalidState, "idea", ideaID, fmt.Errorf("already scheduled as plan %d", existing.ID))
	case !errors.Is(err, database.ErrNotFound):
		return nil, storeError(op, "idea", ideaID, err)
	}

	format := idea.Format
	if format == "" {
		format = models.DefaultFormat
	}
	plan := &models.ContentPlan{
		IdeaID:          idea.ID,
		Topic:           idea.Topic,
		Format:          format,
		PublicationDate: PublicationTime(e.now(), e.location, e.publishHour, day),
		Status:          models.PlanStatusNew,
	}
	if err := e.store.CreatePlan(ctx, plan); err != nil {
		return nil, storeError(op, "idea", ideaID, err)
	}
	log.Printf("[Workflow] Plan %d scheduled from idea %d for %s", plan.ID, ideaID, plan.PublicationDate.Format(time.RFC3339))
	return plan, nil
}

// RenderPlan generates the plan's text and stores it. The plan keeps status new.
// On generation failure the plan is left untouched.
func (e *Engine) RenderPlan(ctx context.Context, planID int64) (*models.ContentPlan, error) {
	const op = "render_plan"
	defer e.locks.lock("plan", planID)()

	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, storeError(op, "plan", planID, err)
	}
	if plan.Status != models.PlanStatusNew {
		return nil, newError(op, ErrInvalidState, "plan", planID, fmt.Errorf("status %q", plan.Status))
	}

	content, err := e.generator.RenderTemplate(ctx, plan.Topic, plan.Format)
	if err == nil && strings.TrimSpace(content) == "" {
		err = errors.New("generated content is empty")
	}
	e.metrics.ObserveGeneration("template", err)
	if err != nil {
		return nil, newError(op, ErrExternalService, "plan", planID, err)
	}

	if err := e.store.SetPlanContent(ctx, planID, models.PlanStatusNew, content); err != nil {
		return nil, storeError(op, "plan", planID, err)
	}
	plan.Content = content
	return plan, nil
}

// ApprovePlan moves a rendered plan to ready_to_publish. Approving a ready plan returns it unchanged.
func (e *Engine) ApprovePlan(ctx context.Context, planID int64) (*models.ContentPlan, error) {
	const op = "approve_plan"
	defer e.locks.lock("plan", planID)()

	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, storeError(op, "plan", planID, err)
	}
	if plan.Status == models.PlanStatusReadyToPublish {
		return plan, nil
	}
	if !plan.HasContent() {
		return nil, newError(op, ErrInvalidState, "plan", planID, errors.New("template not generated"))
	}
	if !PlanTransitionAllowed(plan, models.PlanStatusReadyToPublish) {
		return nil, newError(op, ErrInvalidState, "plan", planID, fmt.Errorf("status %q", plan.Status))
	}

	if err := e.store.UpdatePlanStatus(ctx, planID, plan.Status, models.PlanStatusReadyToPublish); err != nil {
		return nil, storeError(op, "plan", planID, err)
	}
	plan.Status = models.PlanStatusReadyToPublish
	return plan, nil
}

// commitTimeout bounds the store write that records a send already made.
const commitTimeout = 10 * time.Second

// PublishPlan sends the plan's content to the channel and records the post.
// The scheduled path (immediate=false) requires ready_to_publish, the immediate path also accepts a
// rendered new plan. A failed send leaves the plan unchanged.
func (e *Engine) PublishPlan(ctx context.Context, planID int64, immediate bool) (*models.Post, error) {
	const op = "publish_plan"
	path := "scheduled"
	if immediate {
		path = "immediate"
	}
	defer e.locks.lock("plan", planID)()

	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, storeError(op, "plan", planID, err)
	}
	switch {
	case plan.Status == models.PlanStatusPublished:
		return nil, newError(op, ErrInvalidState, "plan", planID, errors.New("already published"))
	case !plan.HasContent():
		return nil, newError(op, ErrInvalidState, "plan", planID, errors.New("template not generated"))
	case !immediate && plan.Status != models.PlanStatusReadyToPublish:
		return nil, newError(op, ErrInvalidState, "plan", planID, fmt.Errorf("status %q is not ready to publish", plan.Status))
	case !PlanTransitionAllowed(plan, models.PlanStatusPublished):
		return nil, newError(op, ErrInvalidState, "plan", planID, fmt.Errorf("status %q", plan.Status))
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.publishTimeout)
	receipt, err := e.publisher.Publish(sendCtx, e.channelID, plan.Content)
	cancel()
	e.metrics.ObservePublish(path, err)
	if err != nil {
		return nil, newError(op, ErrExternalService, "plan", planID, err)
	}

	post := &models.Post{
		MessageID:   receipt.MessageID,
		ChannelID:   receipt.ChannelID,
		PublishedAt: e.Now(),
	}
	// The message is out, so losing the caller's context must not lose the record.
	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancelCommit()
	if err := e.store.CompletePublish(commitCtx, planID, plan.Status, post); err != nil {
		// The message is already in the channel at this point.
		log.Printf("[Workflow] CRITICAL: plan %d sent as message %d to %d but not recorded: %v",
			planID, receipt.MessageID, receipt.ChannelID, err)
		sentry.CaptureException(fmt.Errorf("plan %d published as message %d but commit failed: %w", planID, receipt.MessageID, err))
		return nil, storeError(op, "plan", planID, err)
	}
	log.Printf("[Workflow] Plan %d published (%s) as message %d", planID, path, post.MessageID)
	return post, nil
}
