package handlers

import (
	"context"
	"errors"
	"log"
	"time"
	"unicode/utf8"

	"contentplan-bot/internal/locales"
	"contentplan-bot/internal/publisher"
	"contentplan-bot/internal/workflow"
	telegoapi "contentplan-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

const (
	// buttonLabelRunes is how much of an idea is shown on its button.
	buttonLabelRunes = 20
	dateLayout       = "02.01.2006 15:04"
)

// sendSuccess sends a message to the user. Delivery errors are logged, not returned.
func (h *MessageHandler) sendSuccess(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string) error {
	return h.sendWithKeyboard(ctx, bot, chatID, text, nil)
}

// sendWithKeyboard sends text in as many messages as needed and attaches the keyboard to the last one.
func (h *MessageHandler) sendWithKeyboard(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string, keyboard *telego.InlineKeyboardMarkup) error {
	chunks := publisher.SplitMessage(text, publisher.MaxMessageLength)
	for i, chunk := range chunks {
		params := tu.Message(tu.ID(chatID), chunk)
		if keyboard != nil && i == len(chunks)-1 {
			params = params.WithReplyMarkup(keyboard)
		}
		if _, err := bot.SendMessage(ctx, params); err != nil {
			log.Printf("Error sending message to chat %d: %v", chatID, err)
			return nil
		}
	}
	return nil
}

// sendError sends a generic error message to the user.
// Logs the original error and returns it so the update loop can report it.
func (h *MessageHandler) sendError(ctx context.Context, bot telegoapi.BotAPI, chatID int64, originalErr error) error {
	log.Printf("Error for user in chat %d: %v", chatID, originalErr)

	localizer := locales.NewLocalizer(locales.DefaultLanguage)
	errMsg := locales.GetMessage(localizer, "MsgErrorGeneral", nil, nil)

	if _, sendErr := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), errMsg)); sendErr != nil {
		log.Printf("Error sending generic error message to chat %d: %v", chatID, sendErr)
	}
	return originalErr
}

// replyWorkflowError renders an engine failure. Rejections and external failures become
// user messages; store and unexpected failures go through sendError.
// externalMsgID names the fallback shown when a collaborator failed.
func (h *MessageHandler) replyWorkflowError(ctx context.Context, bot telegoapi.BotAPI, chatID int64, localizer *i18n.Localizer, err error, externalMsgID string) error {
	var msgID string
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		msgID = "MsgErrorNotFound"
	case errors.Is(err, workflow.ErrInvalidState):
		msgID = "MsgErrorInvalidState"
	case errors.Is(err, workflow.ErrExternalService):
		log.Printf("External service failure for chat %d: %v", chatID, err)
		msgID = externalMsgID
	default:
		return h.sendError(ctx, bot, chatID, err)
	}
	return h.sendSuccess(ctx, bot, chatID, locales.GetMessage(localizer, msgID, nil, nil))
}

// allowed runs the admin check and tells the user when access is denied.
func (h *MessageHandler) allowed(ctx context.Context, bot telegoapi.BotAPI, user *telego.User, chatID int64) (bool, error) {
	if user == nil {
		return false, nil
	}
	isAdmin, err := h.adminChecker.IsAdmin(ctx, user.ID)
	if err != nil {
		return false, h.sendError(ctx, bot, chatID, err)
	}
	if !isAdmin {
		log.Printf("[Access User:%d] Denied, not a channel administrator", user.ID)
		msg := locales.GetMessage(h.getLocalizer(user), "MsgErrorRequiresAdmin", nil, nil)
		return false, h.sendSuccess(ctx, bot, chatID, msg)
	}
	return true, nil
}

// getLocalizer determines the best localizer for a given user.
// The configured default language is used when the user's language is unknown.
func (h *MessageHandler) getLocalizer(user *telego.User) *i18n.Localizer {
	if user != nil && user.LanguageCode != "" {
		return locales.NewLocalizer(user.LanguageCode, locales.DefaultLanguage)
	}
	return locales.NewLocalizer(locales.DefaultLanguage)
}

func (h *MessageHandler) formatDate(t time.Time) string {
	return t.In(h.location).Format(dateLayout)
}

// buttonLabel shortens an idea to fit on a button.
func buttonLabel(topic string) string {
	if utf8.RuneCountInString(topic) <= buttonLabelRunes {
		return topic
	}
	return string([]rune(topic)[:buttonLabelRunes]) + "..."
}

func button(text string, action Action) telego.InlineKeyboardButton {
	return tu.InlineKeyboardButton(text).WithCallbackData(action.Encode())
}
