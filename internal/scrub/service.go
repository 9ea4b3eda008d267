// Package scrub runs the full de-identification pipeline: detect, score,
// decide policy, splice identifiers into the text, and persist the vault
// records, receipt, and audit event that make the operation reversible
// and provable.
package scrub

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scrubd/internal/audit"
	"github.com/fyrsmithlabs/scrubd/internal/detect"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/receipt"
	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

const instrumentationName = "github.com/fyrsmithlabs/scrubd/internal/scrub"

// Service provides scrub operations.
type Service interface {
	// Scrub de-identifies text under a requested clearance tier.
	Scrub(ctx context.Context, req *Request) (*Result, error)
}

// Request describes one scrub operation.
type Request struct {
	// Text is the UTF-8 input to scrub.
	Text string

	// Tier is the clearance tier requested for this operation. Labels with
	// a mapped tier keep it regardless; the requested tier applies to
	// unmapped labels.
	Tier policy.Tier

	// Filename optionally records the input's origin in the receipt.
	Filename string
}

// Result is the public outcome of a scrub. It never carries a raw
// detected value; those exist only encrypted in the vault and receipt.
type Result struct {
	OperationID  string          `json:"operation_id"`
	OriginalHash string          `json:"original_hash"`
	ScrubbedText string          `json:"scrubbed_text"`
	Entities     []policy.Entity `json:"entities"`
	ReceiptPath  string          `json:"receipt_path"`
}

// Deps are the collaborators a scrub service needs.
type Deps struct {
	Detectors *detect.Set
	Scorer    *detect.Scorer
	Engine    *policy.Engine
	Vault     *vault.Vault
	Receipts  *receipt.Store
	Audit     *audit.Log
}

// service implements the Service interface.
type service struct {
	deps   Deps
	logger *zap.Logger

	// Telemetry
	tracer        trace.Tracer
	meter         metric.Meter
	scrubCounter  metric.Int64Counter
	entityCounter metric.Int64Counter
}

// NewService creates a new scrub service.
func NewService(deps Deps, logger *zap.Logger) (Service, error) {
	if deps.Detectors == nil {
		return nil, errors.New("detector set is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("policy engine is required")
	}
	if deps.Vault == nil {
		return nil, errors.New("vault is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("receipt store is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("audit log is required")
	}
	if deps.Scorer == nil {
		deps.Scorer = detect.NewScorer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.scrubCounter, err = s.meter.Int64Counter(
		"scrubd.scrub.operations_total",
		metric.WithDescription("Total number of scrub operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create scrub counter", zap.Error(err))
	}

	s.entityCounter, err = s.meter.Int64Counter(
		"scrubd.scrub.entities_total",
		metric.WithDescription("Total number of entities detected"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		s.logger.Warn("failed to create entity counter", zap.Error(err))
	}
}

// Scrub de-identifies text under a requested clearance tier.
func (s *service) Scrub(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "scrub.scrub")
	defer span.End()

	if req == nil {
		return nil, errors.New("request is required")
	}
	tier, err := policy.ParseTier(string(req.Tier))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("clearance_tier", string(tier)),
		attribute.Int("text_bytes", len(req.Text)),
	)

	operationID := uuid.New().String()
	hits := s.deps.Scorer.Score(s.deps.Detectors.Scan(req.Text))

	entities := make([]policy.Entity, 0, len(hits))
	items := make([]vault.Item, 0, len(hits))
	values := make(map[string]string, len(hits))
	placeholders := make(map[string]string, len(hits))

	// Splice right to left so earlier offsets stay valid while later
	// spans are replaced. Scan returns hits sorted by start ascending.
	scrubbed := req.Text
	for i := len(hits) - 1; i >= 0; i-- {
		hit := hits[i]
		decision := s.deps.Engine.Decide(hit.Label, tier)
		id := s.deps.Engine.Identifier(decision.Tier, hit.Label, hit.Value)

		e := policy.Entity{
			Identifier:        id,
			Label:             hit.Label,
			DetectorID:        hit.DetectorID,
			Tier:              decision.Tier,
			Action:            decision.Action,
			Confidence:        hit.Confidence,
			Span:              policy.Span{Start: hit.Start, End: hit.End},
			ConfidenceSources: hit.Sources,
			Explanation:       hit.Explanation,
		}
		if decision.Action == policy.ActionMask {
			e.MaskPreview = policy.MaskPreview(hit.Value)
		}
		entities = append(entities, e)

		if _, seen := values[id]; !seen {
			items = append(items, vault.Item{Identifier: id, Label: hit.Label, Value: hit.Value})
			values[id] = hit.Value
		}
		placeholders[id] = id

		scrubbed = scrubbed[:hit.Start] + id + scrubbed[hit.End:]
	}

	policy.SortEntities(entities)

	// Persist vault, then receipt, then the audit event. A failure at any
	// step removes what came before it; a scrub either has full durable
	// backing or reports an error with nothing on disk.
	if err := s.deps.Vault.PutMany(ctx, operationID, items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to persist vault records: %w", err)
	}

	rcpt, err := s.deps.Receipts.Write(ctx, receipt.Draft{
		OperationID:    operationID,
		OriginalText:   req.Text,
		ScrubbedText:   scrubbed,
		ClearanceTier:  tier,
		Filename:       req.Filename,
		PolicyVersion:  s.deps.Engine.Version(),
		PlaceholderMap: placeholders,
		Entities:       entities,
		Values:         values,
	})
	if err != nil {
		s.rollback(ctx, operationID, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to persist receipt: %w", err)
	}

	payload := audit.EntitySummary(entities)
	payload["original_hash"] = rcpt.Hashes.Original
	payload["scrubbed_hash"] = rcpt.Hashes.Scrubbed
	payload["clearance_tier"] = string(tier)
	payload["policy_version"] = s.deps.Engine.Version()
	if _, err := s.deps.Audit.Append(ctx, audit.Event{
		EventType:   audit.EventScrub,
		OperationID: operationID,
		Payload:     payload,
	}); err != nil {
		s.rollback(ctx, operationID, true)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to record audit event: %w", err)
	}

	// Record metrics
	if s.scrubCounter != nil {
		s.scrubCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("clearance_tier", string(tier)),
		))
	}
	if s.entityCounter != nil {
		s.entityCounter.Add(ctx, int64(len(entities)))
	}

	s.logger.Info("scrubbed text",
		zap.String("operation_id", operationID),
		zap.String("clearance_tier", string(tier)),
		zap.Int("entities", len(entities)),
	)

	span.SetAttributes(
		attribute.String("operation_id", operationID),
		attribute.Int("entities", len(entities)),
	)
	return &Result{
		OperationID:  operationID,
		OriginalHash: rcpt.Hashes.Original,
		ScrubbedText: scrubbed,
		Entities:     entities,
		ReceiptPath:  s.deps.Receipts.Path(operationID),
	}, nil
}

// rollback removes whatever an aborted scrub already persisted.
func (s *service) rollback(ctx context.Context, operationID string, receiptWritten bool) {
	if err := s.deps.Vault.Remove(ctx, operationID); err != nil {
		s.logger.Warn("failed to roll back vault records",
			zap.String("operation_id", operationID), zap.Error(err))
	}
	if receiptWritten {
		if err := s.deps.Receipts.Remove(ctx, operationID); err != nil {
			s.logger.Warn("failed to roll back receipt",
				zap.String("operation_id", operationID), zap.Error(err))
		}
	}
}
