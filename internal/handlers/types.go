package handlers

import (
	"context"
	"errors"
	"time"

	telegoapi "contentplan-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// Command represents a bot command, mapping the command string to its description and handler function.
type Command struct {
	Command     string // The command string (e.g., "start").
	Description string // Localization key of the description shown in /help and the command menu.
	AdminOnly   bool
	Handler     func(context.Context, telegoapi.BotAPI, telego.Message) error
}

// HandlerDeps holds the collaborators of the MessageHandler.
type HandlerDeps struct {
	Engine          WorkflowEngine
	Reporter        Reporter
	AdminChecker    AdminChecker
	Location        *time.Location // zone used to show publication dates
	PendingTopicTTL time.Duration
}

// MessageHandler turns chat commands, free text and button presses into workflow operations
// and renders their results back to the user.
type MessageHandler struct {
	engine       WorkflowEngine
	reporter     Reporter
	adminChecker AdminChecker
	location     *time.Location

	// pending holds actors that ran /generate_ideas and owe a topic.
	pending *PendingTopics

	// commands holds the list of available bot commands.
	commands []Command
}

// NewMessageHandler creates and initializes a new MessageHandler instance.
// It validates dependencies and defines the available bot commands.
func NewMessageHandler(deps HandlerDeps) (*MessageHandler, error) {
	if deps.Engine == nil {
		return nil, errors.New("workflow engine cannot be nil")
	}
	if deps.Reporter == nil {
		return nil, errors.New("reporter cannot be nil")
	}
	if deps.AdminChecker == nil {
		return nil, errors.New("admin checker cannot be nil")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.PendingTopicTTL <= 0 {
		deps.PendingTopicTTL = 10 * time.Minute
	}

	h := &MessageHandler{
		engine:       deps.Engine,
		reporter:     deps.Reporter,
		adminChecker: deps.AdminChecker,
		location:     deps.Location,
		pending:      NewPendingTopics(deps.PendingTopicTTL),
	}
	// Descriptions are localized on demand (/help and the command menu).
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
		{Command: "generate_ideas", Description: "CmdGenerateIdeasDesc", AdminOnly: true, Handler: h.HandleGenerateIdeas},
		{Command: "report", Description: "CmdReportDesc", AdminOnly: true, Handler: h.HandleReport},
	}
	return h, nil
}

// GetCommandHandler retrieves the handler function associated with a specific command string (e.g., "start").
// It returns nil if the command is not found.
func (h *MessageHandler) GetCommandHandler(command string) func(context.Context, telegoapi.BotAPI, telego.Message) error {
	for _, cmd := range h.commands {
		if cmd.Command == command {
			return cmd.Handler
		}
	}
	return nil
}

// PendingTopics exposes the conversation store, mainly for periodic pruning.
func (h *MessageHandler) PendingTopics() *PendingTopics {
	return h.pending
}
