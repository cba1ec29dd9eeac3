package workflow

import (
	"context"
	"testing"
	"time"

	"contentplan-bot/internal/database"
	"contentplan-bot/internal/publisher"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testChannelID int64 = -1001234567890

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

type testEngine struct {
	*Engine
	store     *database.MemoryStore
	generator *MockGenerator
	publisher *MockPublisher
	now       time.Time
}

// setupTestEngine creates an engine over a memory store with a clock the test controls.
func setupTestEngine(t *testing.T, store database.Store) *testEngine {
	t.Helper()
	te := &testEngine{
		generator: new(MockGenerator),
		publisher: new(MockPublisher),
		now:       time.Date(2024, 5, 1, 9, 0, 0, 0, msk),
	}
	if store == nil {
		te.store = database.NewMemoryStore()
		store = te.store
	}
	engine, err := NewEngine(EngineDeps{
		Store:       store,
		Generator:   te.generator,
		Publisher:   te.publisher,
		ChannelID:   testChannelID,
		Location:    msk,
		PublishHour: 12,
		Now:         func() time.Time { return te.now },
	})
	require.NoError(t, err)
	te.Engine = engine
	return te
}
