// Package reports builds the weekly channel report.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"contentplan-bot/internal/telemetry"
	"contentplan-bot/internal/workflow"

	sentry "github.com/getsentry/sentry-go"
)

// AnalyticsSource aggregates the recent channel activity.
type AnalyticsSource interface {
	WeeklyAnalytics(ctx context.Context) (workflow.Analytics, error)
}

// Writer turns analytics into prose.
type Writer interface {
	GenerateReport(ctx context.Context, a workflow.Analytics) (string, error)
}

// Report is the outcome of a weekly report request.
type Report struct {
	Analytics workflow.Analytics
	// Text is the generated report. It is empty when there were no posts or generation failed.
	Text string
	// GenerationErr is set when the writer failed and a fallback summary should be shown instead.
	GenerationErr error
}

// Empty reports whether nothing was published during the period.
func (r *Report) Empty() bool {
	return r.Analytics.TotalPosts == 0
}

// Builder assembles weekly reports.
type Builder struct {
	source  AnalyticsSource
	writer  Writer
	metrics *telemetry.Metrics
}

// NewBuilder creates a report builder. metrics may be nil.
func NewBuilder(source AnalyticsSource, writer Writer, metrics *telemetry.Metrics) *Builder {
	return &Builder{source: source, writer: writer, metrics: metrics}
}

// Weekly aggregates the last week and asks the writer for the report text.
// A writer failure is recorded on the report, only store failures are returned.
func (b *Builder) Weekly(ctx context.Context) (*Report, error) {
	a, err := b.source.WeeklyAnalytics(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Analytics: a}
	if report.Empty() {
		return report, nil
	}

	text, err := b.writer.GenerateReport(ctx, a)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("generated report is empty")
	}
	b.metrics.ObserveGeneration("report", err)
	if err != nil {
		log.Printf("[Reports] Report generation failed, falling back to summary: %v", err)
		sentry.CaptureException(fmt.Errorf("weekly report generation: %w", err))
		report.GenerationErr = err
		return report, nil
	}
	report.Text = text
	return report, nil
}
