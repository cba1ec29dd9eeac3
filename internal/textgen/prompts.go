package textgen

import (
	"context"
	"fmt"
	"strings"

	"contentplan-bot/internal/workflow"
)

const (
	ideasMaxTokens    = 500
	templateMaxTokens = 1000
	reportMaxTokens   = 600
)

// GenerateIdeas asks for ten post ideas on topic and returns the non-empty lines of the answer.
func (c *Client) GenerateIdeas(ctx context.Context, topic string, goals []string) ([]string, error) {
	prompt := fmt.Sprintf("Предложи 10 идей для постов в Telegram-канале на тему '%s'. "+
		"Учти, что цели постов: %s. Формат идей: список с кратким описанием каждой идеи.",
		topic, strings.Join(goals, ", "))

	text, err := c.complete(ctx, "generate_ideas", prompt, ideasMaxTokens)
	if err != nil {
		return nil, err
	}
	return splitLines(text), nil
}

// RenderTemplate drafts a post on topic in the given format.
func (c *Client) RenderTemplate(ctx context.Context, topic, format string) (string, error) {
	if format == "" {
		format = "стандартный"
	}
	prompt := fmt.Sprintf("Создай шаблон для поста в Telegram на тему '%s'. "+
		"Шаблон должен включать: [яркий заголовок], [вводный абзац], [основная часть] и [призыв к действию (CTA)]. "+
		"Формат: %s.", topic, format)

	return c.complete(ctx, "render_template", prompt, templateMaxTokens)
}

// GenerateReport writes a short weekly report from the analytics.
func (c *Client) GenerateReport(ctx context.Context, a workflow.Analytics) (string, error) {
	prompt := fmt.Sprintf("Проанализируй данные аналитики Telegram-канала за неделю: %s. "+
		"Сгенерируй краткий отчет с общими показателями, наиболее популярными темами и рекомендациями для улучшения контента.",
		describeAnalytics(a))

	return c.complete(ctx, "generate_report", prompt, reportMaxTokens)
}

func describeAnalytics(a workflow.Analytics) string {
	topics := "нет"
	if len(a.PopularTopics) > 0 {
		topics = strings.Join(a.PopularTopics, "; ")
	}
	return fmt.Sprintf("опубликовано постов: %d, просмотров: %d, реакций: %d, комментариев: %d, "+
		"среднее просмотров: %.1f, темы: %s",
		a.TotalPosts, a.TotalViews, a.TotalReactions, a.TotalComments, a.AvgViews, topics)
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
