package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contentplan-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ideaCollectionName    = "ideas"
	planCollectionName    = "content_plans"
	counterCollectionName = "counters"
)

// planDocument is the stored shape of a content plan. The post produced by
// publishing lives inside the plan document so that the status change and
// the post are written by a single update.
type planDocument struct {
	models.ContentPlan `bson:",inline"`
	Post               *models.Post `bson:"post,omitempty"`
}

// MongoStore implements Store for MongoDB.
type MongoStore struct {
	client   *mongo.Client
	ideas    *mongo.Collection
	plans    *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// NewMongoStore creates a store over the given database.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   client,
		ideas:    db.Collection(ideaCollectionName),
		plans:    db.Collection(planCollectionName),
		counters: db.Collection(counterCollectionName),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the indexes the queries and uniqueness rules rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.ideas.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "actor_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create idea indexes: %w", err)
	}

	_, err := s.plans.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "idea_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "publication_date", Value: 1}}},
		{Keys: bson.D{{Key: "post.id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "post.published_at", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to create plan indexes: %w", err)
	}
	return nil
}

// nextIDs reserves n consecutive ids in the named sequence and returns the first one.
func (s *MongoStore) nextIDs(ctx context.Context, name string, n int64) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": n}}, opts).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	return counter.Seq - n + 1, nil
}

// CreateIdeas inserts all ideas with freshly allocated ids.
func (s *MongoStore) CreateIdeas(ctx context.Context, ideas []*models.Idea) error {
	if len(ideas) == 0 {
		return nil
	}
	first, err := s.nextIDs(ctx, ideaCollectionName, int64(len(ideas)))
	if err != nil {
		return err
	}

	now := s.now()
	docs := make([]interface{}, 0, len(ideas))
	for i, idea := range ideas {
		idea.ID = first + int64(i)
		idea.CreatedAt = now
		idea.UpdatedAt = now
		docs = append(docs, idea)
	}
	if _, err := s.ideas.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert ideas: %w", err)
	}
	return nil
}

// GetIdea retrieves a single idea by id.
func (s *MongoStore) GetIdea(ctx context.Context, id int64) (*models.Idea, error) {
	var idea models.Idea
	if err := s.ideas.FindOne(ctx, bson.M{"_id": id}).Decode(&idea); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find idea %d: %w", id, err)
	}
	return &idea, nil
}

// UpdateIdeaStatus moves the idea to a new status if it still has the expected one.
func (s *MongoStore) UpdateIdeaStatus(ctx context.Context, id int64, from, to models.IdeaStatus) error {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": s.now()}}

	result, err := s.ideas.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update idea %d status: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return s.missOrConflict(ctx, s.ideas, bson.M{"_id": id})
	}
	return nil
}

// CreatePlan inserts the plan with a freshly allocated id.
func (s *MongoStore) CreatePlan(ctx context.Context, plan *models.ContentPlan) error {
	id, err := s.nextIDs(ctx, planCollectionName, 1)
	if err != nil {
		return err
	}
	now := s.now()
	plan.ID = id
	plan.CreatedAt = now
	plan.UpdatedAt = now
	plan.PublicationDate = plan.PublicationDate.UTC()

	if _, err := s.plans.InsertOne(ctx, planDocument{ContentPlan: *plan}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert content plan: %w", err)
	}
	return nil
}

func (s *MongoStore) findPlan(ctx context.Context, filter bson.M) (*planDocument, error) {
	var doc planDocument
	if err := s.plans.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find content plan: %w", err)
	}
	return &doc, nil
}

// GetPlan retrieves a single plan by id.
func (s *MongoStore) GetPlan(ctx context.Context, id int64) (*models.ContentPlan, error) {
	doc, err := s.findPlan(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	return &doc.ContentPlan, nil
}

// GetPlanByIdea retrieves the plan created from the given idea.
func (s *MongoStore) GetPlanByIdea(ctx context.Context, ideaID int64) (*models.ContentPlan, error) {
	doc, err := s.findPlan(ctx, bson.M{"idea_id": ideaID})
	if err != nil {
		return nil, err
	}
	return &doc.ContentPlan, nil
}

// SetPlanContent stores rendered text while the plan keeps the expected status.
func (s *MongoStore) SetPlanContent(ctx context.Context, id int64, status models.PlanStatus, content string) error {
	filter := bson.M{"_id": id, "status": status}
	update := bson.M{"$set": bson.M{"content": content, "updated_at": s.now()}}

	result, err := s.plans.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set content of plan %d: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return s.missOrConflict(ctx, s.plans, bson.M{"_id": id})
	}
	return nil
}

// UpdatePlanStatus moves the plan to a new status if it still has the expected one.
func (s *MongoStore) UpdatePlanStatus(ctx context.Context, id int64, from, to models.PlanStatus) error {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": s.now()}}

	result, err := s.plans.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update plan %d status: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return s.missOrConflict(ctx, s.plans, bson.M{"_id": id})
	}
	return nil
}

func (s *MongoStore) findPlans(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]planDocument, error) {
	cursor, err := s.plans.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to find content plans: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []planDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode content plans: %w", err)
	}
	return docs, nil
}

// FindDuePlans returns plans in status scheduled at or before now, oldest first.
func (s *MongoStore) FindDuePlans(ctx context.Context, status models.PlanStatus, now time.Time) ([]models.ContentPlan, error) {
	filter := bson.M{"status": status, "publication_date": bson.M{"$lte": now.UTC()}}
	findOptions := options.Find().SetSort(bson.D{{Key: "publication_date", Value: 1}, {Key: "_id", Value: 1}})

	docs, err := s.findPlans(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	plans := make([]models.ContentPlan, 0, len(docs))
	for _, doc := range docs {
		plans = append(plans, doc.ContentPlan)
	}
	return plans, nil
}

// FindPlansByIDs returns the plans with the given ids, missing ids are skipped.
func (s *MongoStore) FindPlansByIDs(ctx context.Context, ids []int64) ([]models.ContentPlan, error) {
	if len(ids) == 0 {
		return []models.ContentPlan{}, nil
	}
	docs, err := s.findPlans(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	plans := make([]models.ContentPlan, 0, len(docs))
	for _, doc := range docs {
		plans = append(plans, doc.ContentPlan)
	}
	return plans, nil
}

// CompletePublish marks the plan published and embeds the post in the same update.
func (s *MongoStore) CompletePublish(ctx context.Context, planID int64, from models.PlanStatus, post *models.Post) error {
	id, err := s.nextIDs(ctx, "posts", 1)
	if err != nil {
		return err
	}
	post.ID = id
	post.ContentPlanID = planID
	post.PublishedAt = post.PublishedAt.UTC()

	filter := bson.M{"_id": planID, "status": from, "post": bson.M{"$exists": false}}
	update := bson.M{"$set": bson.M{
		"status":     models.PlanStatusPublished,
		"post":       post,
		"updated_at": s.now(),
	}}

	result, err := s.plans.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to complete publication of plan %d: %w", planID, err)
	}
	if result.MatchedCount == 0 {
		return s.missOrConflict(ctx, s.plans, bson.M{"_id": planID})
	}
	return nil
}

// GetPostByPlan returns the post recorded for the plan.
func (s *MongoStore) GetPostByPlan(ctx context.Context, planID int64) (*models.Post, error) {
	doc, err := s.findPlan(ctx, bson.M{"_id": planID})
	if err != nil {
		return nil, err
	}
	if doc.Post == nil {
		return nil, ErrNotFound
	}
	return doc.Post, nil
}

func (s *MongoStore) findPosts(ctx context.Context, filter bson.M) ([]models.Post, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "post.published_at", Value: 1}})
	docs, err := s.findPlans(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		if doc.Post != nil {
			posts = append(posts, *doc.Post)
		}
	}
	return posts, nil
}

// FindPostsAwaitingMetrics returns posts published at or before cutoff without metrics.
func (s *MongoStore) FindPostsAwaitingMetrics(ctx context.Context, cutoff time.Time) ([]models.Post, error) {
	// {"post.views": nil} matches both a null and a missing field
	return s.findPosts(ctx, bson.M{
		"post":              bson.M{"$exists": true},
		"post.published_at": bson.M{"$lte": cutoff.UTC()},
		"post.views":        nil,
	})
}

// FindPostsPublishedSince returns posts published at or after since.
func (s *MongoStore) FindPostsPublishedSince(ctx context.Context, since time.Time) ([]models.Post, error) {
	return s.findPosts(ctx, bson.M{
		"post":              bson.M{"$exists": true},
		"post.published_at": bson.M{"$gte": since.UTC()},
	})
}

// SetPostMetrics writes all metric fields in one update, once.
func (s *MongoStore) SetPostMetrics(ctx context.Context, postID int64, m models.Metrics) error {
	filter := bson.M{"post.id": postID, "post.views": nil}
	update := bson.M{"$set": bson.M{
		"post.views":     m.Views,
		"post.reactions": m.Reactions,
		"post.comments":  m.Comments,
	}}

	result, err := s.plans.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set metrics of post %d: %w", postID, err)
	}
	if result.MatchedCount == 0 {
		return s.missOrConflict(ctx, s.plans, bson.M{"post.id": postID})
	}
	return nil
}

// missOrConflict tells apart a conditional update that matched nothing because
// the record is gone from one that lost to the record's current state.
func (s *MongoStore) missOrConflict(ctx context.Context, coll *mongo.Collection, filter bson.M) error {
	n, err := coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check record existence: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// Ping checks the connection to the server.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
