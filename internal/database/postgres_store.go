package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contentplan-bot/internal/database/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresStore implements Store on a relational database through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects to PostgreSQL and runs the schema migrations.
func OpenPostgres(ctx context.Context, dsn string, debug bool) (*PostgresStore, error) {
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Successfully connected to database")

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an already opened gorm connection.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.Idea{}, &models.ContentPlan{}, &models.Post{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed successfully")
	return nil
}

func translate(err error, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return fmt.Errorf("failed to %s: %w", what, err)
	}
}

// CreateIdeas inserts all ideas in one transaction.
func (s *PostgresStore) CreateIdeas(ctx context.Context, ideas []*models.Idea) error {
	if len(ideas) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&ideas).Error
	})
	if err != nil {
		return translate(err, "insert ideas")
	}
	return nil
}

// GetIdea retrieves a single idea by id.
func (s *PostgresStore) GetIdea(ctx context.Context, id int64) (*models.Idea, error) {
	var idea models.Idea
	if err := s.db.WithContext(ctx).First(&idea, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("find idea %d", id))
	}
	return &idea, nil
}

// UpdateIdeaStatus moves the idea to a new status if it still has the expected one.
func (s *PostgresStore) UpdateIdeaStatus(ctx context.Context, id int64, from, to models.IdeaStatus) error {
	result := s.db.WithContext(ctx).Model(&models.Idea{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return translate(result.Error, fmt.Sprintf("update idea %d status", id))
	}
	if result.RowsAffected == 0 {
		return missOrConflict(s.db.WithContext(ctx), &models.Idea{}, "id = ?", id)
	}
	return nil
}

// CreatePlan inserts the plan, a second plan for the same idea is a conflict.
func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.ContentPlan) error {
	plan.PublicationDate = plan.PublicationDate.UTC()
	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return translate(err, "insert content plan")
	}
	return nil
}

// GetPlan retrieves a single plan by id.
func (s *PostgresStore) GetPlan(ctx context.Context, id int64) (*models.ContentPlan, error) {
	var plan models.ContentPlan
	if err := s.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("find content plan %d", id))
	}
	return &plan, nil
}

// GetPlanByIdea retrieves the plan created from the given idea.
func (s *PostgresStore) GetPlanByIdea(ctx context.Context, ideaID int64) (*models.ContentPlan, error) {
	var plan models.ContentPlan
	if err := s.db.WithContext(ctx).Where("idea_id = ?", ideaID).First(&plan).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("find content plan of idea %d", ideaID))
	}
	return &plan, nil
}

// SetPlanContent stores rendered text while the plan keeps the expected status.
func (s *PostgresStore) SetPlanContent(ctx context.Context, id int64, status models.PlanStatus, content string) error {
	result := s.db.WithContext(ctx).Model(&models.ContentPlan{}).
		Where("id = ? AND status = ?", id, status).
		Updates(map[string]interface{}{"content": content, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return translate(result.Error, fmt.Sprintf("set content of plan %d", id))
	}
	if result.RowsAffected == 0 {
		return missOrConflict(s.db.WithContext(ctx), &models.ContentPlan{}, "id = ?", id)
	}
	return nil
}

// UpdatePlanStatus moves the plan to a new status if it still has the expected one.
func (s *PostgresStore) UpdatePlanStatus(ctx context.Context, id int64, from, to models.PlanStatus) error {
	result := s.db.WithContext(ctx).Model(&models.ContentPlan{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return translate(result.Error, fmt.Sprintf("update plan %d status", id))
	}
	if result.RowsAffected == 0 {
		return missOrConflict(s.db.WithContext(ctx), &models.ContentPlan{}, "id = ?", id)
	}
	return nil
}

// FindDuePlans returns plans in status scheduled at or before now, oldest first.
func (s *PostgresStore) FindDuePlans(ctx context.Context, status models.PlanStatus, now time.Time) ([]models.ContentPlan, error) {
	var plans []models.ContentPlan
	err := s.db.WithContext(ctx).
		Where("status = ? AND publication_date <= ?", status, now.UTC()).
		Order("publication_date ASC, id ASC").
		Find(&plans).Error
	if err != nil {
		return nil, translate(err, "find due plans")
	}
	return plans, nil
}

// FindPlansByIDs returns the plans with the given ids, missing ids are skipped.
func (s *PostgresStore) FindPlansByIDs(ctx context.Context, ids []int64) ([]models.ContentPlan, error) {
	plans := []models.ContentPlan{}
	if len(ids) == 0 {
		return plans, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&plans).Error; err != nil {
		return nil, translate(err, "find plans by ids")
	}
	return plans, nil
}

// CompletePublish updates the plan status and inserts the post in one transaction.
func (s *PostgresStore) CompletePublish(ctx context.Context, planID int64, from models.PlanStatus, post *models.Post) error {
	post.ContentPlanID = planID
	post.PublishedAt = post.PublishedAt.UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ContentPlan{}).
			Where("id = ? AND status = ?", planID, from).
			Where("NOT EXISTS (SELECT 1 FROM posts WHERE posts.content_plan_id = content_plan.id)").
			Updates(map[string]interface{}{"status": models.PlanStatusPublished, "updated_at": time.Now().UTC()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missOrConflict(tx, &models.ContentPlan{}, "id = ?", planID)
		}
		return tx.Create(post).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return err
		}
		return translate(err, fmt.Sprintf("complete publication of plan %d", planID))
	}
	return nil
}

// GetPostByPlan returns the post recorded for the plan.
func (s *PostgresStore) GetPostByPlan(ctx context.Context, planID int64) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Where("content_plan_id = ?", planID).First(&post).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("find post of plan %d", planID))
	}
	return &post, nil
}

// FindPostsAwaitingMetrics returns posts published at or before cutoff without metrics.
func (s *PostgresStore) FindPostsAwaitingMetrics(ctx context.Context, cutoff time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("published_at <= ? AND views IS NULL", cutoff.UTC()).
		Order("published_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, translate(err, "find posts awaiting metrics")
	}
	return posts, nil
}

// FindPostsPublishedSince returns posts published at or after since.
func (s *PostgresStore) FindPostsPublishedSince(ctx context.Context, since time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("published_at >= ?", since.UTC()).
		Order("published_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, translate(err, "find recent posts")
	}
	return posts, nil
}

// SetPostMetrics writes all metric fields in one statement, once.
func (s *PostgresStore) SetPostMetrics(ctx context.Context, postID int64, m models.Metrics) error {
	result := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND views IS NULL", postID).
		Updates(map[string]interface{}{"views": m.Views, "reactions": m.Reactions, "comments": m.Comments})
	if result.Error != nil {
		return translate(result.Error, fmt.Sprintf("set metrics of post %d", postID))
	}
	if result.RowsAffected == 0 {
		return missOrConflict(s.db.WithContext(ctx), &models.Post{}, "id = ?", postID)
	}
	return nil
}

// missOrConflict tells a missing row from one whose guard no longer matches.
// db must be the connection or transaction that ran the guarded update.
func missOrConflict(db *gorm.DB, model interface{}, query string, args ...interface{}) error {
	var n int64
	if err := db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check record existence: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// Ping checks the connection to the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
