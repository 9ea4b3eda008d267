// Package descrub reconstructs original text from a scrub's receipt or
// vault records. Every reconstruction is access-controlled, rate-limited,
// and audited, including the ones that are denied.
package descrub

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/scrubd/internal/audit"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/receipt"
	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

const instrumentationName = "github.com/fyrsmithlabs/scrubd/internal/descrub"

var (
	// ErrDenied indicates the actor's role may not descrub at all. The
	// denial is recorded in the audit log before this error returns.
	ErrDenied = errors.New("descrub denied")

	// ErrRateLimited indicates the descrub rate cap was hit. Also audited.
	ErrRateLimited = errors.New("descrub rate limited")
)

// Actor identifies who is requesting a reconstruction.
type Actor struct {
	// Name is recorded in the audit trail.
	Name string

	// Role gates access to descrub as a whole.
	Role string

	// Tier is the actor's clearance; entities above it are never revealed.
	Tier policy.Tier
}

// Request describes one reconstruction.
type Request struct {
	// OperationID selects the operation to reconstruct.
	OperationID string

	// ReceiptRef optionally points straight at a receipt file. When empty,
	// the receipt resolves by OperationID.
	ReceiptRef string

	// Text is the scrubbed text to reconstruct. Receipt-based descrubs
	// default to the receipt's own scrubbed text; vault-based descrubs
	// require it.
	Text string

	// IDs allow-lists identifiers to restore. Empty means every entity the
	// actor's clearance permits.
	IDs []string

	// Actor is the requester.
	Actor Actor

	// Justification is the requester's stated reason, recorded verbatim in
	// the audit trail when present.
	Justification string
}

// Result reports the reconstructed text and exactly which identifiers were
// restored versus skipped. Both lists are sorted.
type Result struct {
	OperationID string   `json:"operation_id"`
	Text        string   `json:"text"`
	Restored    []string `json:"restored"`
	Skipped     []string `json:"skipped"`
}

// Config configures the descrub service.
type Config struct {
	// AllowedRoles may request descrubs. Empty falls back to the defaults
	// (admin, auditor); descrub is never open to every role.
	AllowedRoles []string

	// RatePerSecond caps sustained descrub requests; 0 disables the cap.
	RatePerSecond float64

	// Burst is the short-term allowance above the sustained rate.
	Burst int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() *Config {
	return &Config{
		AllowedRoles:  []string{"admin", "auditor"},
		RatePerSecond: 5,
		Burst:         10,
	}
}

// Service provides descrub operations.
type Service interface {
	// FromReceipt restores entities recorded in an operation's receipt.
	FromReceipt(ctx context.Context, req *Request) (*Result, error)

	// FromVault restores identifiers through the operation's vault records
	// in one combined substitution pass.
	FromVault(ctx context.Context, req *Request) (*Result, error)
}

// Deps are the collaborators a descrub service needs.
type Deps struct {
	Receipts *receipt.Store
	Vault    *vault.Vault
	Cipher   vault.Cipher
	Audit    *audit.Log
}

// service implements the Service interface.
type service struct {
	config  *Config
	deps    Deps
	logger  *zap.Logger
	roles   map[string]bool
	limiter *rate.Limiter

	// Telemetry
	tracer         trace.Tracer
	meter          metric.Meter
	descrubCounter metric.Int64Counter
	deniedCounter  metric.Int64Counter
}

// NewService creates a new descrub service.
func NewService(cfg *Config, deps Deps, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if deps.Receipts == nil {
		return nil, errors.New("receipt store is required")
	}
	if deps.Vault == nil {
		return nil, errors.New("vault is required")
	}
	if deps.Cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("audit log is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowed := cfg.AllowedRoles
	if len(allowed) == 0 {
		allowed = DefaultServiceConfig().AllowedRoles
	}
	roles := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		roles[strings.ToLower(r)] = true
	}

	s := &service{
		config: cfg,
		deps:   deps,
		logger: logger,
		roles:  roles,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.descrubCounter, err = s.meter.Int64Counter(
		"scrubd.descrub.operations_total",
		metric.WithDescription("Total number of descrub operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create descrub counter", zap.Error(err))
	}

	s.deniedCounter, err = s.meter.Int64Counter(
		"scrubd.descrub.denied_total",
		metric.WithDescription("Total number of denied descrub requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		s.logger.Warn("failed to create denied counter", zap.Error(err))
	}
}

// FromReceipt restores entities recorded in an operation's receipt.
func (s *service) FromReceipt(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "descrub.from_receipt")
	defer span.End()

	tier, err := s.gate(ctx, req, "receipt")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ref := req.ReceiptRef
	if ref == "" {
		ref = req.OperationID
	}
	rcpt, err := s.deps.Receipts.Read(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}

	span.SetAttributes(
		attribute.String("operation_id", rcpt.OperationID),
		attribute.Int("entities", len(rcpt.Entities)),
	)

	text := req.Text
	if text == "" {
		text = rcpt.ScrubbedText
	}

	requested := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		requested[id] = true
	}

	restored := newIDList()
	skipped := newIDList()
	for _, e := range rcpt.Entities {
		if len(requested) > 0 && !requested[e.Identifier] {
			continue
		}
		if !tier.Covers(e.Tier) {
			skipped.add(e.Identifier)
			continue
		}
		placeholder := rcpt.PlaceholderMap[e.Identifier]
		if placeholder == "" {
			placeholder = e.Identifier
		}
		if !strings.Contains(text, placeholder) {
			skipped.add(e.Identifier)
			continue
		}
		raw, err := s.deps.Cipher.Open(e.OriginalEncrypted)
		if err != nil {
			s.logger.Warn("skipping undecryptable receipt entity",
				zap.String("operation_id", rcpt.OperationID),
				zap.String("identifier", e.Identifier),
				zap.Error(err))
			skipped.add(e.Identifier)
			continue
		}
		// One substitution per entity; duplicate values appear as one
		// entity per occurrence, so each consumes one placeholder.
		text = strings.Replace(text, placeholder, string(raw), 1)
		restored.add(e.Identifier)
	}

	result := &Result{
		OperationID: rcpt.OperationID,
		Text:        text,
		Restored:    restored.sorted(),
		Skipped:     skipped.sorted(),
	}
	if err := s.auditSuccess(ctx, req, result, tier, "receipt"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.descrubCounter != nil {
		s.descrubCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", "receipt"),
		))
	}
	s.logger.Info("descrubbed from receipt",
		zap.String("operation_id", rcpt.OperationID),
		zap.String("actor", req.Actor.Name),
		zap.Int("restored", len(result.Restored)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// FromVault restores identifiers through the operation's vault records in
// one combined substitution pass.
func (s *service) FromVault(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "descrub.from_vault")
	defer span.End()

	tier, err := s.gate(ctx, req, "vault")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.Text == "" {
		return nil, errors.New("text is required for vault-based descrub")
	}

	values, err := s.deps.Vault.GetMap(ctx, req.OperationID, req.IDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read vault records: %w", err)
	}

	span.SetAttributes(
		attribute.String("operation_id", req.OperationID),
		attribute.Int("records", len(values)),
	)

	restored := newIDList()
	skipped := newIDList()

	// Clearance gates on the tier encoded in the identifier itself.
	allowed := make(map[string]string, len(values))
	for id, value := range values {
		if !tier.Covers(policy.IdentifierTier(id)) {
			skipped.add(id)
			continue
		}
		allowed[id] = value
	}
	for _, id := range req.IDs {
		if _, ok := values[id]; !ok {
			skipped.add(id)
		}
	}

	text := req.Text
	if len(allowed) > 0 {
		ids := make([]string, 0, len(allowed))
		for id := range allowed {
			ids = append(ids, id)
		}
		// Longest alternative first so no identifier shadows a longer one.
		sort.Slice(ids, func(i, j int) bool {
			if len(ids[i]) != len(ids[j]) {
				return len(ids[i]) > len(ids[j])
			}
			return ids[i] < ids[j]
		})
		quoted := make([]string, len(ids))
		for i, id := range ids {
			quoted[i] = regexp.QuoteMeta(id)
		}
		re, err := regexp.Compile(strings.Join(quoted, "|"))
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to build substitution pattern: %w", err)
		}
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			restored.add(m)
			return allowed[m]
		})
		for id := range allowed {
			if !restored.has(id) {
				skipped.add(id)
			}
		}
	}

	result := &Result{
		OperationID: req.OperationID,
		Text:        text,
		Restored:    restored.sorted(),
		Skipped:     skipped.sorted(),
	}
	if err := s.auditSuccess(ctx, req, result, tier, "vault"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.descrubCounter != nil {
		s.descrubCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", "vault"),
		))
	}
	s.logger.Info("descrubbed from vault",
		zap.String("operation_id", req.OperationID),
		zap.String("actor", req.Actor.Name),
		zap.Int("restored", len(result.Restored)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// gate validates the request and enforces the role and rate checks shared
// by both descrub modes. Denials are audited before the error returns; a
// denial that cannot be audited is reported as the audit failure instead.
func (s *service) gate(ctx context.Context, req *Request, mode string) (policy.Tier, error) {
	if req == nil {
		return "", errors.New("request is required")
	}
	tier, err := policy.ParseTier(string(req.Actor.Tier))
	if err != nil {
		return "", err
	}
	if !s.roles[strings.ToLower(req.Actor.Role)] {
		reason := fmt.Sprintf("role %q not allowed", req.Actor.Role)
		if err := s.auditDenial(ctx, req, mode, reason); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", ErrDenied, reason)
	}
	if s.limiter != nil && !s.limiter.Allow() {
		if err := s.auditDenial(ctx, req, mode, "rate limit exceeded"); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: try again later", ErrRateLimited)
	}
	return tier, nil
}

func (s *service) auditDenial(ctx context.Context, req *Request, mode, reason string) error {
	if s.deniedCounter != nil {
		s.deniedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", mode),
		))
	}
	s.logger.Warn("descrub denied",
		zap.String("operation_id", req.OperationID),
		zap.String("actor", req.Actor.Name),
		zap.String("actor_role", req.Actor.Role),
		zap.String("reason", reason),
	)

	payload := map[string]any{
		"mode":          mode,
		"actor":         req.Actor.Name,
		"actor_role":    req.Actor.Role,
		"actor_tier":    string(req.Actor.Tier),
		"reason":        reason,
		"ids_requested": len(req.IDs),
	}
	if req.Justification != "" {
		payload["justification"] = req.Justification
	}
	_, err := s.deps.Audit.Append(ctx, audit.Event{
		EventType:   audit.EventAccessDenied,
		OperationID: req.OperationID,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("failed to record denial: %w", err)
	}
	return nil
}

func (s *service) auditSuccess(ctx context.Context, req *Request, result *Result, tier policy.Tier, mode string) error {
	payload := map[string]any{
		"mode":          mode,
		"actor":         req.Actor.Name,
		"actor_role":    req.Actor.Role,
		"actor_tier":    string(tier),
		"ids_requested": len(req.IDs),
		"restored":      len(result.Restored),
		"skipped":       len(result.Skipped),
	}
	if req.Justification != "" {
		payload["justification"] = req.Justification
	}
	_, err := s.deps.Audit.Append(ctx, audit.Event{
		EventType:   audit.EventDescrub,
		OperationID: result.OperationID,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// idList accumulates identifiers once each, reported sorted.
type idList struct {
	seen map[string]bool
}

func newIDList() *idList {
	return &idList{seen: map[string]bool{}}
}

func (l *idList) add(id string)      { l.seen[id] = true }
func (l *idList) has(id string) bool { return l.seen[id] }

func (l *idList) sorted() []string {
	out := make([]string, 0, len(l.seen))
	for id := range l.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
