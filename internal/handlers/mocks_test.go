package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"contentplan-bot/internal/database/models"
	"contentplan-bot/internal/locales"
	"contentplan-bot/internal/reports"
	"contentplan-bot/internal/workflow"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// MockBot is a mock implementing the telegoapi.BotAPI interface
type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error) {
	args := m.Called(ctx, params)
	if member, ok := args.Get(0).(telego.ChatMember); ok {
		return member, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEngine is a mock implementing WorkflowEngine
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) SubmitTopic(ctx context.Context, actorID int64, topic string) ([]models.Idea, error) {
	args := m.Called(ctx, actorID, topic)
	ideas, _ := args.Get(0).([]models.Idea)
	return ideas, args.Error(1)
}

func (m *MockEngine) ApproveIdea(ctx context.Context, ideaID int64) (*models.Idea, error) {
	args := m.Called(ctx, ideaID)
	idea, _ := args.Get(0).(*models.Idea)
	return idea, args.Error(1)
}

func (m *MockEngine) SchedulePlan(ctx context.Context, ideaID int64, day workflow.Day) (*models.ContentPlan, error) {
	args := m.Called(ctx, ideaID, day)
	plan, _ := args.Get(0).(*models.ContentPlan)
	return plan, args.Error(1)
}

func (m *MockEngine) RenderPlan(ctx context.Context, planID int64) (*models.ContentPlan, error) {
	args := m.Called(ctx, planID)
	plan, _ := args.Get(0).(*models.ContentPlan)
	return plan, args.Error(1)
}

func (m *MockEngine) ApprovePlan(ctx context.Context, planID int64) (*models.ContentPlan, error) {
	args := m.Called(ctx, planID)
	plan, _ := args.Get(0).(*models.ContentPlan)
	return plan, args.Error(1)
}

func (m *MockEngine) PublishPlan(ctx context.Context, planID int64, immediate bool) (*models.Post, error) {
	args := m.Called(ctx, planID, immediate)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

// MockReporter is a mock implementing Reporter
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Weekly(ctx context.Context) (*reports.Report, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*reports.Report)
	return report, args.Error(1)
}

// MockAdminChecker is a mock implementing AdminChecker
type MockAdminChecker struct {
	mock.Mock
}

func (m *MockAdminChecker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// --- Test Suite Setup ---

const (
	testUserID = int64(98765)
	testChatID = int64(54321)
)

var testZone = time.FixedZone("MSK", 3*3600)

type testHandlerSuite struct {
	mockBot          *MockBot
	mockEngine       *MockEngine
	mockReporter     *MockReporter
	mockAdminChecker *MockAdminChecker
	handler          *MessageHandler

	mu   sync.Mutex
	sent []*telego.SendMessageParams
}

func setupTestHandlerSuite(t *testing.T) *testHandlerSuite {
	t.Helper()
	require.NoError(t, locales.Init("en"))

	s := &testHandlerSuite{
		mockBot:          new(MockBot),
		mockEngine:       new(MockEngine),
		mockReporter:     new(MockReporter),
		mockAdminChecker: new(MockAdminChecker),
	}
	handler, err := NewMessageHandler(HandlerDeps{
		Engine:          s.mockEngine,
		Reporter:        s.mockReporter,
		AdminChecker:    s.mockAdminChecker,
		Location:        testZone,
		PendingTopicTTL: time.Minute,
	})
	require.NoError(t, err)
	s.handler = handler

	s.mockBot.On("SendMessage", mock.Anything, mock.AnythingOfType("*telego.SendMessageParams")).
		Run(func(args mock.Arguments) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.sent = append(s.sent, args.Get(1).(*telego.SendMessageParams))
		}).
		Return(&telego.Message{}, nil).Maybe()
	return s
}

func (s *testHandlerSuite) asAdmin(isAdmin bool) {
	s.mockAdminChecker.On("IsAdmin", mock.Anything, testUserID).Return(isAdmin, nil)
}

func (s *testHandlerSuite) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, 0, len(s.sent))
	for _, p := range s.sent {
		texts = append(texts, p.Text)
	}
	return texts
}

func (s *testHandlerSuite) lastSent(t *testing.T) *telego.SendMessageParams {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no message was sent")
	return s.sent[len(s.sent)-1]
}

func msg(key string, data map[string]interface{}) string {
	return locales.GetMessage(locales.NewLocalizer("en"), key, data, nil)
}

func testUser() *telego.User {
	return &telego.User{ID: testUserID, FirstName: "Test", Username: "testuser", LanguageCode: "en"}
}

func testMessage(text string) telego.Message {
	return telego.Message{
		MessageID: 100,
		From:      testUser(),
		Chat:      telego.Chat{ID: testChatID},
		Date:      time.Now().Unix(),
		Text:      text,
	}
}

func testCallback(data string) telego.CallbackQuery {
	return telego.CallbackQuery{
		ID:      "query-1",
		From:    *testUser(),
		Message: &telego.Message{MessageID: 7, Chat: telego.Chat{ID: testChatID}},
		Data:    data,
	}
}

// callbackData flattens the keyboard of a sent message.
func callbackData(params *telego.SendMessageParams) []string {
	kb, ok := params.ReplyMarkup.(*telego.InlineKeyboardMarkup)
	if !ok {
		return nil
	}
	var data []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			data = append(data, b.CallbackData)
		}
	}
	return data
}
