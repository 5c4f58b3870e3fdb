// Package executor runs a saved data request against its source, or serves
// the last persisted result, and bounds what goes back to the caller.
package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/observability"
	"github.com/platinummonkey/datarequests/pkg/storage"
)

var (
	// ErrUpstream is matched by every *UpstreamError
	ErrUpstream = errors.New("upstream request failed")

	// ErrNoCachedResult is returned for a no-source execution when nothing was persisted yet
	ErrNoCachedResult = errors.New("no cached result available")
)

// UpstreamError wraps a failed source call. DataRequest is the stored record,
// unchanged by the failure, with its previous result truncated.
type UpstreamError struct {
	DataRequest *models.DataRequest
	Err         error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUpstream, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Source is the external API
type Source interface {
	Run(ctx context.Context, dr *models.DataRequest) (*models.ResponseData, error)
}

// Store is what the executor reads and writes
type Store interface {
	GetDataRequest(ctx context.Context, id int64) (*models.DataRequest, error)
	UpdateResponseData(ctx context.Context, id int64, data *models.ResponseData) error
}

// Request selects the data request and how to serve it
type Request struct {
	DataRequestID int64
	ChartID       int64
	// NoSource never contacts the source; the persisted result or ErrNoCachedResult.
	NoSource bool
	// UseCache serves the persisted result when there is one.
	UseCache bool
}

// Result is what goes back to the caller. DataRequest.ResponseData is
// truncated; the stored copy is complete.
type Result struct {
	DataRequest *models.DataRequest `json:"dataRequest"`
	Cached      bool                `json:"cached"`
	Truncated   bool                `json:"truncated"`
}

// Executor runs data requests
type Executor struct {
	store   Store
	source  Source
	metrics *observability.Metrics
	logger  *observability.Logger
}

// New creates an executor
func New(store Store, source Source, metrics *observability.Metrics, logger *observability.Logger) *Executor {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Executor{
		store:   store,
		source:  source,
		metrics: metrics,
		logger:  logger.WithField("component", "executor"),
	}
}

const (
	outcomeCached   = "cached"
	outcomeNoSource = "no_source_miss"
	outcomeFresh    = "fresh"
	outcomeUpstream = "upstream_error"
	outcomeError    = "error"
)

// Execute runs or serves req. Only ResponseData of the stored record changes,
// and only after a successful source call.
func (e *Executor) Execute(ctx context.Context, req Request) (result *Result, err error) {
	ctx, span := observability.Tracer().Start(ctx, "executor.Execute")
	span.SetAttributes(
		attribute.Int64("data_request.id", req.DataRequestID),
		attribute.Int64("chart.id", req.ChartID),
		attribute.Bool("execute.no_source", req.NoSource),
		attribute.Bool("execute.use_cache", req.UseCache),
	)

	start := time.Now()
	outcome := outcomeError
	defer func() {
		e.metrics.ExecutionsTotal.WithLabelValues(outcome).Inc()
		e.metrics.ExecutionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("execute.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	dr, err := e.store.GetDataRequest(ctx, req.DataRequestID)
	if err != nil {
		return nil, err
	}

	if req.NoSource {
		if !dr.HasResponse() {
			outcome = outcomeNoSource
			return nil, fmt.Errorf("data request %d: %w", dr.ID, ErrNoCachedResult)
		}
		e.metrics.CacheHitsTotal.WithLabelValues("persisted", "response").Inc()
		outcome = outcomeCached
		return e.respond(dr, true), nil
	}

	if req.UseCache {
		if dr.HasResponse() {
			e.metrics.CacheHitsTotal.WithLabelValues("persisted", "response").Inc()
			outcome = outcomeCached
			return e.respond(dr, true), nil
		}
		e.metrics.CacheMissesTotal.WithLabelValues("response").Inc()
	}

	data, runErr := e.source.Run(ctx, dr)
	if runErr != nil {
		outcome = outcomeUpstream
		observability.UpdateLoggerWithTraceContext(ctx, e.logger).
			WithField("data_request_id", dr.ID).
			WithError(runErr).
			Warn("Source request failed")
		return nil, &UpstreamError{DataRequest: e.respond(dr, false).DataRequest, Err: runErr}
	}
	if data == nil {
		data = &models.ResponseData{}
	}

	if err := e.store.UpdateResponseData(ctx, dr.ID, data); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist response data: %w", err)
	}

	outcome = outcomeFresh
	dr.ResponseData = data
	e.metrics.ExecutionItemsReturned.Observe(float64(itemCount(data.Data)))
	return e.respond(dr, false), nil
}

// respond builds the caller's copy with a truncated payload
func (e *Executor) respond(dr *models.DataRequest, cached bool) *Result {
	out := dr.Clone()
	truncated := false
	if out.ResponseData != nil {
		out.ResponseData.Data, truncated = Truncate(out.ResponseData.Data)
	}
	if truncated {
		e.metrics.ExecutionTruncations.Inc()
	}
	return &Result{DataRequest: out, Cached: cached, Truncated: truncated}
}

func itemCount(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Len()
	case reflect.Map:
		n := 0
		for _, k := range rv.MapKeys() {
			if inner := rv.MapIndex(k); inner.Kind() == reflect.Interface && inner.Elem().Kind() == reflect.Slice {
				n += inner.Elem().Len()
			}
		}
		return n
	default:
		return 1
	}
}
