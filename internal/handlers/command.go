package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"contentplan-bot/internal/locales"
	"contentplan-bot/internal/reports"
	telegoapi "contentplan-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// HandleStart handles the /start command.
// It sets up the bot command menu and sends a welcome message.
func (h *MessageHandler) HandleStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if err := h.setupCommands(ctx, bot); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to set up commands: %w", err))
	}

	localizer := h.getLocalizer(message.From)
	startMsg := locales.GetMessage(localizer, "MsgStart", nil, nil)
	return h.sendSuccess(ctx, bot, message.Chat.ID, startMsg)
}

// HandleHelp handles the /help command.
// Administrators see every command, other users only the public ones.
func (h *MessageHandler) HandleHelp(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	isAdmin := false
	if message.From != nil {
		var err error
		isAdmin, err = h.adminChecker.IsAdmin(ctx, message.From.ID)
		if err != nil {
			log.Printf("[Cmd:help User:%d] Admin status check failed: %v", message.From.ID, err)
		}
	}

	var helpText strings.Builder
	helpText.WriteString(locales.GetMessage(localizer, "MsgHelpHeader", nil, nil) + "\n")
	for _, cmd := range h.commands {
		if cmd.AdminOnly && !isAdmin {
			continue
		}
		localizedDesc := locales.GetMessage(localizer, cmd.Description, nil, nil)
		helpText.WriteString(fmt.Sprintf("/%s - %s\n", cmd.Command, localizedDesc))
	}
	return h.sendSuccess(ctx, bot, message.Chat.ID, helpText.String())
}

// HandleGenerateIdeas handles /generate_ideas: the next free text from the user becomes the topic.
func (h *MessageHandler) HandleGenerateIdeas(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	ok, err := h.allowed(ctx, bot, message.From, message.Chat.ID)
	if !ok {
		return err
	}

	h.pending.Prune()
	if h.pending.Arm(message.From.ID) {
		log.Printf("[Cmd:generate_ideas User:%d] Replaced a pending topic request", message.From.ID)
	}
	localizer := h.getLocalizer(message.From)
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgAskTopic", nil, nil))
}

// HandleReport handles /report: a summary of the posts published during the last week.
func (h *MessageHandler) HandleReport(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	ok, err := h.allowed(ctx, bot, message.From, message.Chat.ID)
	if !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	report, err := h.reporter.Weekly(ctx)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("weekly report: %w", err))
	}

	switch {
	case report.Empty():
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgReportNoPosts", nil, nil))
	case report.GenerationErr != nil:
		return h.sendSuccess(ctx, bot, message.Chat.ID, fallbackReport(localizer, report))
	default:
		return h.sendSuccess(ctx, bot, message.Chat.ID, report.Text)
	}
}

// setupCommands registers the command menu in the default language.
func (h *MessageHandler) setupCommands(ctx context.Context, bot telegoapi.BotAPI) error {
	localizer := locales.NewLocalizer(locales.DefaultLanguage)

	cmds := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		cmds = append(cmds, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(localizer, cmd.Description, nil, nil),
		})
	}
	if err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: cmds}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// fallbackReport renders the bare numbers when the report text could not be generated.
func fallbackReport(localizer *i18n.Localizer, report *reports.Report) string {
	a := report.Analytics
	topics := "-"
	if len(a.PopularTopics) > 0 {
		topics = strings.Join(a.PopularTopics, ", ")
	}
	return locales.GetMessage(localizer, "MsgReportFallback", map[string]interface{}{
		"TotalPosts":     a.TotalPosts,
		"TotalViews":     a.TotalViews,
		"TotalReactions": a.TotalReactions,
		"TotalComments":  a.TotalComments,
		"AvgViews":       fmt.Sprintf("%.1f", a.AvgViews),
		"Topics":         topics,
	}, nil)
}
