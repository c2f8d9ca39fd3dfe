package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	observabilityEventName = "observability.event"
	apiEventDomain         = "bookstore"
	eventListBooks         = "bookstore.books.list"
	eventSearchBooks       = "bookstore.books.search"

	attrTotalMS           = "bookstore.api.total_ms"
	attrAuthMS            = "bookstore.api.auth_ms"
	attrFetchMS           = "bookstore.api.fetch_ms"
	attrItemsReturned     = "bookstore.api.items_returned"
	attrPageTokenProvided = "bookstore.api.page_token_provided"
	attrHasNextPage       = "bookstore.api.has_next_page"
	attrErrorStage        = "bookstore.api.error_stage"
)

// severityForStatus maps a response status onto OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

// requestMetrics times the stages of one instrumented request and emits
// them once, as span attributes and as a structured observability event on
// the logger.
type requestMetrics struct {
	logger    *logrus.Logger
	eventName string
	route     string
	span      trace.Span
	start     time.Time

	authDuration      time.Duration
	fetchDuration     time.Duration
	itemsReturned     int
	pageTokenProvided bool
	hasNextPage       bool
	errorStage        string
}

// newRequestMetrics starts the request span. The returned context carries
// the span so downstream calls nest under it.
func newRequestMetrics(ctx context.Context, logger *logrus.Logger, eventName, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer("bookstore/api").Start(ctx, eventName)
	m := &requestMetrics{
		logger:    logger,
		eventName: eventName,
		route:     route,
		span:      span,
		start:     time.Now(),
	}
	return m, spanCtx
}

func (m *requestMetrics) ObserveAuth(d time.Duration)  { m.authDuration = d }
func (m *requestMetrics) ObserveFetch(d time.Duration) { m.fetchDuration = d }
func (m *requestMetrics) SetItemsReturned(n int)       { m.itemsReturned = n }
func (m *requestMetrics) SetPageTokenProvided(v bool)  { m.pageTokenProvided = v }
func (m *requestMetrics) SetHasNextPage(v bool)        { m.hasNextPage = v }
func (m *requestMetrics) SetErrorStage(stage string)   { m.errorStage = stage }

// Log finalizes the span and writes the observability event. Call it
// exactly once per instrumented request.
func (m *requestMetrics) Log(status int, err error) {
	total := time.Since(m.start)
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":          m.route,
		"http.status_code":    status,
		attrTotalMS:           durationMS(total),
		attrAuthMS:            durationMS(m.authDuration),
		attrFetchMS:           durationMS(m.fetchDuration),
		attrItemsReturned:     m.itemsReturned,
		attrPageTokenProvided: m.pageTokenProvided,
		attrHasNextPage:       m.hasNextPage,
	}
	if m.errorStage != "" {
		attrs[attrErrorStage] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	eventAttrs := []attribute.KeyValue{
		attribute.String("event.name", m.eventName),
		attribute.String("event.domain", apiEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
		attribute.Float64(attrTotalMS, durationMS(total)),
		attribute.Float64(attrAuthMS, durationMS(m.authDuration)),
		attribute.Float64(attrFetchMS, durationMS(m.fetchDuration)),
		attribute.Int(attrItemsReturned, m.itemsReturned),
		attribute.Bool(attrPageTokenProvided, m.pageTokenProvided),
		attribute.Bool(attrHasNextPage, m.hasNextPage),
	}
	if m.errorStage != "" {
		eventAttrs = append(eventAttrs, attribute.String(attrErrorStage, m.errorStage))
	}
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	m.span.SetAttributes(
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
	)
	m.span.AddEvent(observabilityEventName, trace.WithAttributes(eventAttrs...))
	if err != nil || status >= http.StatusInternalServerError {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	fields := logrus.Fields{
		"event.name":      m.eventName,
		"event.domain":    apiEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEventName)
	case "WARN":
		entry.Warn(observabilityEventName)
	default:
		entry.Info(observabilityEventName)
	}
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
