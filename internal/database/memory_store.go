package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"contentplan-bot/internal/database/models"
)

// MemoryStore is a process-local Store used for tests and STORE_DRIVER=memory.
// Values are copied on the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	ideas  map[int64]models.Idea
	plans  map[int64]models.ContentPlan
	posts  map[int64]models.Post // keyed by post id
	byPlan map[int64]int64       // plan id -> post id
	seq    struct{ idea, plan, post int64 }
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ideas:  make(map[int64]models.Idea),
		plans:  make(map[int64]models.ContentPlan),
		posts:  make(map[int64]models.Post),
		byPlan: make(map[int64]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateIdeas(ctx context.Context, ideas []*models.Idea) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, idea := range ideas {
		s.seq.idea++
		idea.ID = s.seq.idea
		idea.CreatedAt = now
		idea.UpdatedAt = now
		s.ideas[idea.ID] = *idea
	}
	return nil
}

func (s *MemoryStore) GetIdea(ctx context.Context, id int64) (*models.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idea, ok := s.ideas[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &idea, nil
}

func (s *MemoryStore) UpdateIdeaStatus(ctx context.Context, id int64, from, to models.IdeaStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idea, ok := s.ideas[id]
	if !ok {
		return ErrNotFound
	}
	if idea.Status != from {
		return ErrConflict
	}
	idea.Status = to
	idea.UpdatedAt = s.now()
	s.ideas[id] = idea
	return nil
}

func (s *MemoryStore) CreatePlan(ctx context.Context, plan *models.ContentPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.plans {
		if existing.IdeaID == plan.IdeaID {
			return ErrConflict
		}
	}
	now := s.now()
	s.seq.plan++
	plan.ID = s.seq.plan
	plan.CreatedAt = now
	plan.UpdatedAt = now
	plan.PublicationDate = plan.PublicationDate.UTC()
	s.plans[plan.ID] = *plan
	return nil
}

func (s *MemoryStore) GetPlan(ctx context.Context, id int64) (*models.ContentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &plan, nil
}

func (s *MemoryStore) GetPlanByIdea(ctx context.Context, ideaID int64) (*models.ContentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, plan := range s.plans {
		if plan.IdeaID == ideaID {
			return &plan, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SetPlanContent(ctx context.Context, id int64, status models.PlanStatus, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[id]
	if !ok {
		return ErrNotFound
	}
	if plan.Status != status {
		return ErrConflict
	}
	plan.Content = content
	plan.UpdatedAt = s.now()
	s.plans[id] = plan
	return nil
}

func (s *MemoryStore) UpdatePlanStatus(ctx context.Context, id int64, from, to models.PlanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[id]
	if !ok {
		return ErrNotFound
	}
	if plan.Status != from {
		return ErrConflict
	}
	plan.Status = to
	plan.UpdatedAt = s.now()
	s.plans[id] = plan
	return nil
}

func (s *MemoryStore) FindDuePlans(ctx context.Context, status models.PlanStatus, now time.Time) ([]models.ContentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := []models.ContentPlan{}
	for _, plan := range s.plans {
		if plan.Status == status && !plan.PublicationDate.After(now) {
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].PublicationDate.Equal(plans[j].PublicationDate) {
			return plans[i].ID < plans[j].ID
		}
		return plans[i].PublicationDate.Before(plans[j].PublicationDate)
	})
	return plans, nil
}

func (s *MemoryStore) FindPlansByIDs(ctx context.Context, ids []int64) ([]models.ContentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]models.ContentPlan, 0, len(ids))
	for _, id := range ids {
		if plan, ok := s.plans[id]; ok {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

func (s *MemoryStore) CompletePublish(ctx context.Context, planID int64, from models.PlanStatus, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := s.byPlan[planID]; plan.Status != from || exists {
		return ErrConflict
	}

	s.seq.post++
	post.ID = s.seq.post
	post.ContentPlanID = planID
	post.PublishedAt = post.PublishedAt.UTC()

	plan.Status = models.PlanStatusPublished
	plan.UpdatedAt = s.now()
	s.plans[planID] = plan
	s.posts[post.ID] = copyPost(*post)
	s.byPlan[planID] = post.ID
	return nil
}

func (s *MemoryStore) GetPostByPlan(ctx context.Context, planID int64) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	postID, ok := s.byPlan[planID]
	if !ok {
		return nil, ErrNotFound
	}
	post := copyPost(s.posts[postID])
	return &post, nil
}

func (s *MemoryStore) filterPosts(keep func(models.Post) bool) []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := []models.Post{}
	for _, post := range s.posts {
		if keep(post) {
			posts = append(posts, copyPost(post))
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	return posts
}

func (s *MemoryStore) FindPostsAwaitingMetrics(ctx context.Context, cutoff time.Time) ([]models.Post, error) {
	return s.filterPosts(func(p models.Post) bool {
		return !p.HasMetrics() && !p.PublishedAt.After(cutoff)
	}), nil
}

func (s *MemoryStore) FindPostsPublishedSince(ctx context.Context, since time.Time) ([]models.Post, error) {
	return s.filterPosts(func(p models.Post) bool {
		return !p.PublishedAt.Before(since)
	}), nil
}

func (s *MemoryStore) SetPostMetrics(ctx context.Context, postID int64, m models.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return ErrNotFound
	}
	if post.HasMetrics() {
		return ErrConflict
	}
	views, reactions, comments := m.Views, m.Reactions, m.Comments
	post.Views, post.Reactions, post.Comments = &views, &reactions, &comments
	s.posts[postID] = post
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// copyPost detaches the metric pointers from the stored value.
func copyPost(p models.Post) models.Post {
	if p.Views != nil {
		v := *p.Views
		p.Views = &v
	}
	if p.Reactions != nil {
		v := *p.Reactions
		p.Reactions = &v
	}
	if p.Comments != nil {
		v := *p.Comments
		p.Comments = &v
	}
	return p
}
