package handlers

import (
	"context"
	"log"

	"contentplan-bot/internal/locales"
	"contentplan-bot/internal/workflow"
	telegoapi "contentplan-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// HandleCallbackQuery processes inline button presses.
// The query is acknowledged first to stop the loading indicator on the button.
func (h *MessageHandler) HandleCallbackQuery(ctx context.Context, bot telegoapi.BotAPI, query telego.CallbackQuery) error {
	ackParams := &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}
	if err := bot.AnswerCallbackQuery(ctx, ackParams); err != nil {
		log.Printf("Error answering callback query %s: %v", query.ID, err)
	}

	chatID := callbackChatID(query)
	localizer := h.getLocalizer(&query.From)

	action, err := ParseAction(query.Data)
	if err != nil {
		log.Printf("[Callback User:%d] Ignoring callback %q: %v", query.From.ID, query.Data, err)
		return h.sendSuccess(ctx, bot, chatID, locales.GetMessage(localizer, "MsgCallbackNotHandled", nil, nil))
	}

	ok, err := h.allowed(ctx, bot, &query.From, chatID)
	if !ok {
		return err
	}

	switch action.Kind {
	case ActionApproveIdea:
		return h.approveIdea(ctx, bot, chatID, localizer, action.ID)
	case ActionSetDate:
		return h.schedulePlan(ctx, bot, chatID, localizer, action)
	case ActionGeneratePost:
		return h.renderPlan(ctx, bot, chatID, localizer, action.ID)
	case ActionApprovePost:
		return h.approvePlan(ctx, bot, chatID, localizer, action.ID)
	case ActionPublishNow:
		return h.publishNow(ctx, bot, chatID, localizer, action.ID)
	}
	return nil
}

// callbackChatID finds where to answer: the chat of the pressed message, else the private chat with the user.
func callbackChatID(query telego.CallbackQuery) int64 {
	if msg, ok := query.Message.(*telego.Message); ok && msg != nil {
		return msg.Chat.ID
	}
	return query.From.ID
}

func (h *MessageHandler) approveIdea(ctx context.Context, bot telegoapi.BotAPI, chatID int64, localizer *i18n.Localizer, ideaID int64) error {
	idea, err := h.engine.ApproveIdea(ctx, ideaID)
	if err != nil {
		return h.replyWorkflowError(ctx, bot, chatID, localizer, err, "MsgErrorGeneral")
	}

	text := locales.GetMessage(localizer, "MsgIdeaApproved", map[string]interface{}{"Topic": idea.Topic}, nil)
	keyboard := tu.InlineKeyboard(tu.InlineKeyboardRow(
		button(locales.GetMessage(localizer, "BtnToday", nil, nil), Action{Kind: ActionSetDate, ID: idea.ID, Day: workflow.Today}),
		button(locales.GetMessage(localizer, "BtnTomorrow", nil, nil), Action{Kind: ActionSetDate, ID: idea.ID, Day: workflow.Tomorrow}),
	))
	return h.sendWithKeyboard(ctx, bot, chatID, text, keyboard)
}

func (h *MessageHandler) schedulePlan(ctx context.Context, bot telegoapi.BotAPI, chatID int64, localizer *i18n.Localizer, action Action) error {
	plan, err := h.engine.SchedulePlan(ctx, action.ID, action.Day)
	if err != nil {
		return h.replyWorkflowError(ctx, bot, chatID, localizer, err, "MsgErrorGeneral")
	}

	text := locales.GetMessage(localizer, "MsgPlanScheduled", map[string]interface{}{
		"Date": h.formatDate(plan.PublicationDate),
	}, nil)
	keyboard := tu.InlineKeyboard(tu.InlineKeyboardRow(
		button(locales.GetMessage(localizer, "BtnWritePost", nil, nil), Action{Kind: ActionGeneratePost, ID: plan.ID}),
	))
	return h.sendWithKeyboard(ctx, bot, chatID, text, keyboard)
}

func (h *MessageHandler) renderPlan(ctx context.Context, bot telegoapi.BotAPI, chatID int64, localizer *i18n.Localizer, planID int64) error {
	_ = h.sendSuccess(ctx, bot, chatID, locales.GetMessage(localizer, "MsgGeneratingPost", nil, nil))

	plan, err := h.engine.RenderPlan(ctx, planID)
	if err != nil {
		return h.replyWorkflowError(ctx, bot, chatID, localizer, err, "MsgPostFailed")
	}

	header := locales.GetMessage(localizer, "MsgPostDraft", map[string]interface{}{"Topic": plan.Topic}, nil)
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			button(locales.GetMessage(localizer, "BtnApprove", nil, nil), Action{Kind: ActionApprovePost, ID: plan.ID}),
			button(locales.GetMessage(localizer, "BtnRegenerate", nil, nil), Action{Kind: ActionGeneratePost, ID: plan.ID}),
		),
		tu.InlineKeyboardRow(
			button(locales.GetMessage(localizer, "BtnPublishNow", nil, nil), Action{Kind: ActionPublishNow, ID: plan.ID}),
		),
	)
	return h.sendWithKeyboard(ctx, bot, chatID, header+"\n\n"+plan.Content, keyboard)
}

func (h *MessageHandler) approvePlan(ctx context.Context, bot telegoapi.BotAPI, chatID int64, localizer *i18n.Localizer, planID int64) error {
	plan, err := h.engine.ApprovePlan(ctx, planID)
	if err != nil {
		return h.replyWorkflowError(ctx, bot, chatID, localizer, err, "MsgErrorGeneral")
	}
	text := locales.GetMessage(localizer, "MsgPlanApproved", map[string]interface{}{
		"Date": h.formatDate(plan.PublicationDate),
	}, nil)
	return h.sendSuccess(ctx, bot, chatID, text)
}

func (h *MessageHandler) publishNow(ctx context.Context, bot telegoapi.BotAPI, chatID int64, localizer *i18n.Localizer, planID int64) error {
	post, err := h.engine.PublishPlan(ctx, planID, true)
	if err != nil {
		return h.replyWorkflowError(ctx, bot, chatID, localizer, err, "MsgPublishFailed")
	}
	log.Printf("[Callback Chat:%d] Plan %d published as message %d", chatID, planID, post.MessageID)
	return h.sendSuccess(ctx, bot, chatID, locales.GetMessage(localizer, "MsgPublished", nil, nil))
}
