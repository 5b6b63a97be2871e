// Package ledger exposes the boundary operations of the nugget ledger. Every
// operation passes the identity gate first, then works against the strand
// store, the query cache, the audit log and the subscription hub.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sendmedown/bio-quantum-platform/internal/audit"
	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/cache"
	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/hub"
	"github.com/sendmedown/bio-quantum-platform/internal/metrics"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
	"github.com/sendmedown/bio-quantum-platform/internal/relations"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

// Reply is the successful result of a boundary call.
type Reply[T any] struct {
	RequestID string
	Value     T
}

// Broadcaster delivers a payload to the connections bound to a session.
type Broadcaster interface {
	Broadcast(sessionID string, payload []byte) int
}

// Publisher relays a payload to other service instances.
type Publisher interface {
	PublishUpdate(ctx context.Context, instanceID, sessionID string, payload []byte) error
}

// Options wires a Service. Gate and Store are required; the rest are optional.
type Options struct {
	Gate           auth.Gate
	Store          *store.StrandStore
	Cache          *cache.QueryCache
	Audit          *audit.Log
	Hub            Broadcaster
	Archive        store.Archive
	Relay          Publisher
	InstanceID     string
	ArchiveTimeout time.Duration
	Logger         zerolog.Logger
}

// Service implements the boundary operations.
type Service struct {
	gate           auth.Gate
	store          *store.StrandStore
	cache          *cache.QueryCache
	audit          *audit.Log
	relations      *relations.Index
	hub            Broadcaster
	archive        store.Archive
	relay          Publisher
	instanceID     string
	archiveTimeout time.Duration
	now            func() time.Time
	logger         zerolog.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Audit == nil {
		opts.Audit = audit.New()
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = 2 * time.Second
	}
	return &Service{
		gate:           opts.Gate,
		store:          opts.Store,
		cache:          opts.Cache,
		audit:          opts.Audit,
		relations:      relations.New(opts.Store),
		hub:            opts.Hub,
		archive:        opts.Archive,
		relay:          opts.Relay,
		instanceID:     opts.InstanceID,
		archiveTimeout: opts.ArchiveTimeout,
		now:            time.Now,
		logger:         opts.Logger.With().Str("component", "ledger").Logger(),
	}
}

// Store returns the underlying strand store.
func (s *Service) Store() *store.StrandStore { return s.store }

// Audit returns the audit log.
func (s *Service) Audit() *audit.Log { return s.audit }

// Authorize checks a credential without performing an operation. It backs
// the websocket handshake.
func (s *Service) Authorize(credential string) (*auth.Identity, error) {
	identity, err := s.gate.Authorize(credential)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredential) {
			err = fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		return nil, err
	}
	return identity, nil
}

// guard runs op behind the identity gate and stamps the call with a fresh
// request ID, on success and on failure alike.
func guard[T any](s *Service, credential string, op func(id *auth.Identity, requestID string) (T, error)) (Reply[T], error) {
	requestID := crypto.NewRequestID()

	identity, err := s.Authorize(credential)
	if err != nil {
		metrics.GateRejections.WithLabelValues("api").Inc()
		s.logger.Warn().
			Str("type", "security").
			Str("request_id", requestID).
			Err(err).
			Msg("credential rejected")
		return Reply[T]{}, &CallError{RequestID: requestID, Err: err}
	}

	v, err := op(identity, requestID)
	if err != nil {
		return Reply[T]{}, &CallError{RequestID: requestID, Err: err}
	}
	return Reply[T]{RequestID: requestID, Value: v}, nil
}

// CreateCodon appends a new codon to the session's strand and notifies the
// session's subscribers.
func (s *Service) CreateCodon(ctx context.Context, credential string, req CreateRequest) (Reply[models.Codon], error) {
	return guard(s, credential, func(id *auth.Identity, requestID string) (models.Codon, error) {
		if req.SessionID == "" && req.Context != nil {
			req.SessionID = req.Context.SessionID
		}
		if err := checkRequired(req); err != nil {
			return models.Codon{}, err
		}

		now := s.now().UTC()
		c := models.Codon{
			ID:              crypto.NewCodonID(),
			SessionID:       req.SessionID,
			Content:         req.Content,
			PromptID:        req.PromptID,
			Type:            orDefault(req.Type, models.DefaultCodonType),
			Origin:          orDefault(req.Origin, models.DefaultOrigin),
			RiskLevel:       req.RiskLevel,
			SemanticIndex:   req.SemanticIndex,
			TemporalCluster: orDefault(req.TemporalCluster, now.Format(time.RFC3339)),
			RelatedNuggets:  req.RelatedNuggets,
			Timestamp:       now,
		}
		switch {
		case req.ContextAttribution != nil:
			c.ContextAttribution = *req.ContextAttribution
			if c.ContextAttribution.UserID == "" {
				c.ContextAttribution.UserID = id.UserID
			}
		default:
			c.ContextAttribution = models.ContextAttribution{UserID: orDefault(req.UserID, id.UserID)}
		}

		stored, err := s.store.Append(req.SessionID, c)
		if err != nil {
			return models.Codon{}, err
		}
		metrics.CodonsCreated.Inc()

		s.committed(ctx, models.AuditCreate, stored, id, requestID)
		return stored, nil
	})
}

// SetOutcome attaches an outcome to a codon in the given session, replacing
// any earlier one.
func (s *Service) SetOutcome(ctx context.Context, credential, sessionID, codonID string, outcome map[string]any) (Reply[models.Codon], error) {
	return guard(s, credential, func(id *auth.Identity, requestID string) (models.Codon, error) {
		return s.setOutcome(ctx, id, requestID, sessionID, codonID, outcome)
	})
}

// UpdateOutcome attaches an outcome to a codon addressed by ID alone.
func (s *Service) UpdateOutcome(ctx context.Context, credential, codonID string, outcome map[string]any) (Reply[models.Codon], error) {
	return guard(s, credential, func(id *auth.Identity, requestID string) (models.Codon, error) {
		c, ok := s.store.Find(codonID)
		if !ok {
			return models.Codon{}, ErrCodonNotFound
		}
		return s.setOutcome(ctx, id, requestID, c.SessionID, codonID, outcome)
	})
}

func (s *Service) setOutcome(ctx context.Context, id *auth.Identity, requestID, sessionID, codonID string, outcome map[string]any) (models.Codon, error) {
	if err := checkRequired(outcomeRequest{SessionID: sessionID, NuggetID: codonID, Outcome: outcome}); err != nil {
		return models.Codon{}, err
	}

	updated, err := s.store.SetOutcome(sessionID, codonID, outcome)
	if err != nil {
		return models.Codon{}, err
	}
	metrics.OutcomesSet.Inc()

	s.committed(ctx, models.AuditUpdate, updated, id, requestID)
	return updated, nil
}

// QueryCodons returns the JSON array of codons matching the filters. Results
// are served from the query cache when present; cached results may lag
// behind mutations for up to the cache TTL.
func (s *Service) QueryCodons(ctx context.Context, credential string, f store.Filters) (Reply[json.RawMessage], error) {
	return guard(s, credential, func(_ *auth.Identity, _ string) (json.RawMessage, error) {
		if data, hit := s.cache.Get(ctx, f); hit {
			metrics.Queries.WithLabelValues("hit").Inc()
			return json.RawMessage(data), nil
		}
		metrics.Queries.WithLabelValues("miss").Inc()

		data, err := json.Marshal(s.store.Query(f))
		if err != nil {
			return nil, fmt.Errorf("encode query result: %w", err)
		}
		s.cache.Put(ctx, f, data)
		return json.RawMessage(data), nil
	})
}

// GetTimeline returns the history of a codon.
func (s *Service) GetTimeline(ctx context.Context, credential, codonID string) (Reply[[]models.TimelineEvent], error) {
	return guard(s, credential, func(_ *auth.Identity, _ string) ([]models.TimelineEvent, error) {
		return s.store.Timeline(codonID)
	})
}

// GetRelated returns the codons a codon declares as related.
func (s *Service) GetRelated(ctx context.Context, credential, codonID string) (Reply[[]models.Codon], error) {
	return guard(s, credential, func(_ *auth.Identity, _ string) ([]models.Codon, error) {
		return s.relations.Related(codonID)
	})
}

// GetSession returns one session's strand in commit order.
func (s *Service) GetSession(ctx context.Context, credential, sessionID string) (Reply[[]models.Codon], error) {
	return guard(s, credential, func(_ *auth.Identity, _ string) ([]models.Codon, error) {
		return s.store.Strand(sessionID)
	})
}

// ListAudit returns every audit entry in recording order.
func (s *Service) ListAudit(ctx context.Context, credential string) (Reply[[]models.AuditEntry], error) {
	return guard(s, credential, func(_ *auth.Identity, _ string) ([]models.AuditEntry, error) {
		return s.audit.List(), nil
	})
}

// committed runs the post-commit steps of a mutation. None of them can fail
// the call: the codon is already in the store.
func (s *Service) committed(ctx context.Context, action models.AuditAction, c models.Codon, id *auth.Identity, requestID string) {
	entry := s.audit.Record(action, c.SessionID, c.ID, id.UserID, s.now())

	log := s.logger.With().
		Str("request_id", requestID).
		Str("nugget_id", c.ID).
		Str("session_id", c.SessionID).
		Logger()

	if s.archive != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.archiveTimeout)
		start := time.Now()
		if err := s.archive.SaveCodon(actx, &c); err != nil {
			metrics.ArchiveErrors.WithLabelValues("codon").Inc()
			log.Warn().Err(err).Msg("failed to archive codon")
		}
		if err := s.archive.SaveAudit(actx, &entry); err != nil {
			metrics.ArchiveErrors.WithLabelValues("audit").Inc()
			log.Warn().Err(err).Msg("failed to archive audit entry")
		}
		metrics.ArchiveLatency.Observe(time.Since(start).Seconds())
		cancel()
	}

	payload, err := hub.EncodeUpdate(c, requestID)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode update")
		return
	}

	if s.hub != nil {
		delivered := s.hub.Broadcast(c.SessionID, payload)
		log.Debug().Str("action", string(action)).Int("delivered", delivered).Msg("update broadcast")
	}

	if s.relay != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.archiveTimeout)
		if err := s.relay.PublishUpdate(rctx, s.instanceID, c.SessionID, payload); err != nil {
			log.Warn().Err(err).Msg("failed to relay update")
		}
		cancel()
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
