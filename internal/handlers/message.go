package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"contentplan-bot/internal/database/models"
	"contentplan-bot/internal/locales"
	telegoapi "contentplan-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// HandleText handles incoming text messages (excluding commands).
// Text is only meaningful as the answer to /generate_ideas.
func (h *MessageHandler) HandleText(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	userID := message.From.ID
	chatID := message.Chat.ID
	localizer := h.getLocalizer(message.From)

	if !h.pending.Consume(userID) {
		return h.sendSuccess(ctx, bot, chatID, locales.GetMessage(localizer, "MsgUseGenerateIdeas", nil, nil))
	}

	topic := strings.TrimSpace(message.Text)
	log.Printf("[HandleText User:%d] Generating ideas for topic %q", userID, topic)
	_ = h.sendSuccess(ctx, bot, chatID, locales.GetMessage(localizer, "MsgGeneratingIdeas", map[string]interface{}{
		"Topic": topic,
	}, nil))

	ideas, err := h.engine.SubmitTopic(ctx, userID, topic)
	if err != nil {
		return h.replyWorkflowError(ctx, bot, chatID, localizer, err, "MsgIdeasFailed")
	}
	if len(ideas) == 0 {
		return h.sendSuccess(ctx, bot, chatID, locales.GetMessage(localizer, "MsgNoIdeas", nil, nil))
	}

	text, keyboard := ideasMessage(locales.GetMessage(localizer, "MsgIdeasList", map[string]interface{}{
		"Topic": topic,
	}, nil), ideas)
	return h.sendWithKeyboard(ctx, bot, chatID, text, keyboard)
}

// ideasMessage lists the ideas in full and adds one approve button per idea.
func ideasMessage(header string, ideas []models.Idea) (string, *telego.InlineKeyboardMarkup) {
	var text strings.Builder
	text.WriteString(header)
	rows := make([][]telego.InlineKeyboardButton, 0, len(ideas))
	for i, idea := range ideas {
		text.WriteString(fmt.Sprintf("\n%d. %s", i+1, idea.Topic))
		rows = append(rows, tu.InlineKeyboardRow(
			button(buttonLabel(idea.Topic), Action{Kind: ActionApproveIdea, ID: idea.ID}),
		))
	}
	return text.String(), tu.InlineKeyboard(rows...)
}
