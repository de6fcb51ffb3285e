package request

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/subjectdesk/subjectdesk/internal/request"

// ledgerMetrics holds the OpenTelemetry instruments of the ledger.
type ledgerMetrics struct {
	submissions   metric.Int64Counter
	confirmations metric.Int64Counter
	purged        metric.Int64Counter
}

func newLedgerMetrics() (*ledgerMetrics, error) {
	meter := otel.Meter(instrumentationName)

	submissions, err := meter.Int64Counter(
		"dsr.ledger.submissions",
		metric.WithDescription("Number of request submissions by type and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	confirmations, err := meter.Int64Counter(
		"dsr.ledger.confirmations",
		metric.WithDescription("Number of confirmation attempts by type and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	purged, err := meter.Int64Counter(
		"dsr.ledger.purged",
		metric.WithDescription("Number of expired pending requests removed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &ledgerMetrics{
		submissions:   submissions,
		confirmations: confirmations,
		purged:        purged,
	}, nil
}

func (m *ledgerMetrics) recordSubmission(ctx context.Context, t Type, err error) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("request.type", string(t)),
		attribute.String("result", resultLabel(err)),
	))
}

func (m *ledgerMetrics) recordConfirmation(ctx context.Context, t Type, outcome Outcome, err error) {
	result := resultLabel(err)
	if err == nil {
		result = string(outcome)
	}
	m.confirmations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("request.type", string(t)),
		attribute.String("result", result),
	))
}

func (m *ledgerMetrics) recordPurge(ctx context.Context, n int) {
	m.purged.Add(ctx, int64(n))
}

// resultLabel maps an error to a low-cardinality metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidType):
		return "invalid_type"
	case errors.Is(err, ErrMissingData):
		return "missing_data"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrIdentityNotFound):
		return "identity_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTokenMismatch):
		return "token_mismatch"
	default:
		return "error"
	}
}
