// Package decisions applies reviewer decisions to staged rows, committing them into the registry
package decisions

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/audit"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/fanout"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Config struct {
	Concurrency int
	// MaxAttempts bounds the optimistic version retries of one decision
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		MaxAttempts: 3,
	}
}

// Result aggregates a decision run. Every decision lands in exactly one of Outcomes or Errors.
type Result struct {
	Processed int                      `json:"processed"`
	Outcomes  []models.DecisionOutcome `json:"outcomes"`
	Errors    []models.DecisionError   `json:"errors"`
}

// Processor applies decisions concurrently. Writes to one existing entity or node are serialized by
// the locker and guarded by the store's version check.
type Processor struct {
	registry  store.RegistryStore
	staging   store.StagingStore
	tx        store.Transactor
	locker    lock.Locker
	projector graph.Projector
	emitter   *audit.Emitter
	validate  *validator.Validate
	logger    ectologger.Logger
	config    Config
}

func NewProcessor(
	registry store.RegistryStore,
	staging store.StagingStore,
	tx store.Transactor,
	locker lock.Locker,
	projector graph.Projector,
	emitter *audit.Emitter,
	logger ectologger.Logger,
	config Config,
) *Processor {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if projector == nil {
		projector = graph.NoopProjector{}
	}
	if emitter == nil {
		emitter = audit.NewEmitter(nil, logger)
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Processor{
		registry:  registry,
		staging:   staging,
		tx:        tx,
		locker:    locker,
		projector: projector,
		emitter:   emitter,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		config:    config,
	}
}

// commit is what one decision wrote, replayed to the graph and audit sink after the transaction
type commit struct {
	staged        *models.StagingNode
	entity        *models.Entity
	entityCreated bool
	entityChanged bool
	node          *models.Node
	nodeCreated   bool
}

func (c *commit) outcome(action models.DecisionAction) models.DecisionOutcome {
	out := models.DecisionOutcome{
		StagingID: c.staged.ID,
		Action:    action,
		Status:    c.staged.Status,
	}
	if c.staged.CommittedEntityID != nil {
		out.EntityID = *c.staged.CommittedEntityID
	}
	if c.staged.CommittedNodeID != nil {
		out.NodeID = *c.staged.CommittedNodeID
	}
	return out
}

// conflictError is a conflict that retrying cannot resolve
type conflictError struct {
	message string
}

func (e *conflictError) Error() string {
	return e.message
}

func (e *conflictError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.message)
}

// Apply runs every decision independently and reports per-decision failures
func (p *Processor) Apply(ctx context.Context, ownerID string, decisions []models.Decision) *Result {
	ctx, span := tracing.StartSpan(ctx, "decisions.Processor.Apply")
	defer span.End()

	res := fanout.Run(ctx, p.config.Concurrency, decisions, func(ctx context.Context, _ int, d models.Decision) (models.DecisionOutcome, error) {
		return p.applyOne(ctx, ownerID, d)
	})

	result := &Result{
		Outcomes: []models.DecisionOutcome{},
		Errors:   []models.DecisionError{},
	}
	for i, d := range decisions {
		switch {
		case !res.Completed[i]:
			metrics.DecisionsTotal.WithLabelValues(string(d.Action), "skipped").Inc()
			result.Errors = append(result.Errors, models.DecisionError{
				StagingID: d.StagingID,
				Kind:      models.ErrorKindInternal,
				Message:   "decision not applied: request ended before it started",
			})
		case res.Errors[i] != nil:
			metrics.DecisionsTotal.WithLabelValues(string(d.Action), "failed").Inc()
			result.Errors = append(result.Errors, models.DecisionError{
				StagingID: d.StagingID,
				Kind:      models.KindOf(res.Errors[i]),
				Message:   res.Errors[i].Error(),
			})
		default:
			metrics.DecisionsTotal.WithLabelValues(string(d.Action), "applied").Inc()
			result.Outcomes = append(result.Outcomes, res.Values[i])
			result.Processed++
		}
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"owner_id":  ownerID,
		"decisions": len(decisions),
		"processed": result.Processed,
		"failed":    len(result.Errors),
	}).Info("Applied decisions")

	return result
}

func (p *Processor) applyOne(ctx context.Context, ownerID string, d models.Decision) (models.DecisionOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "decisions.Processor.applyOne")
	defer span.End()

	if err := p.validate.Struct(d); err != nil {
		return models.DecisionOutcome{}, models.ValidationFailed("invalid decision for staging node %s: %s", d.StagingID, err.Error())
	}

	var (
		c   *commit
		err error
	)
	switch d.Action {
	case models.DecisionReject:
		c, err = p.attempt(ctx, func(ctx context.Context) (*commit, error) {
			return p.reject(ctx, ownerID, d)
		})
	case models.DecisionApproveNew:
		var staged *models.StagingNode
		if staged, err = p.staging.Get(ctx, ownerID, d.StagingID); err != nil {
			break
		}
		err = p.locker.WithLock(ctx, lock.FingerprintKey(ownerID, staged.Fingerprint), func(ctx context.Context) error {
			var lockedErr error
			c, lockedErr = p.attempt(ctx, func(ctx context.Context) (*commit, error) {
				return p.approveNew(ctx, ownerID, d)
			})
			return lockedErr
		})
	case models.DecisionMergeWithEntity:
		err = p.locker.WithLock(ctx, lock.EntityKey(d.TargetEntityID), func(ctx context.Context) error {
			var lockedErr error
			c, lockedErr = p.attempt(ctx, func(ctx context.Context) (*commit, error) {
				return p.mergeWithEntity(ctx, ownerID, d)
			})
			return lockedErr
		})
	case models.DecisionMergeWithNode:
		err = p.locker.WithLock(ctx, lock.NodeKey(d.TargetNodeID), func(ctx context.Context) error {
			var lockedErr error
			c, lockedErr = p.attempt(ctx, func(ctx context.Context) (*commit, error) {
				return p.mergeWithNode(ctx, ownerID, d)
			})
			return lockedErr
		})
	default:
		return models.DecisionOutcome{}, models.ValidationFailed("unknown action %q", d.Action)
	}
	if errors.Is(err, lock.ErrLockNotAcquired) {
		err = models.Conflict("target of staging node %s is busy, try again", d.StagingID)
	}
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"staging_id": d.StagingID,
			"action":     d.Action,
		}).Warn("Failed to apply decision")
		return models.DecisionOutcome{}, err
	}

	p.publish(ctx, d.Action, c)
	return c.outcome(d.Action), nil
}

// attempt runs fn in a transaction, retrying version conflicts up to MaxAttempts times
func (p *Processor) attempt(ctx context.Context, fn func(ctx context.Context) (*commit, error)) (*commit, error) {
	var (
		c   *commit
		err error
	)
	for i := 1; i <= p.config.MaxAttempts; i++ {
		err = p.tx.WithTx(ctx, func(ctx context.Context) error {
			var txErr error
			c, txErr = fn(ctx)
			return txErr
		})
		if err == nil || !retryable(err) {
			return c, err
		}
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"attempt": i,
		}).Debug("Retrying decision after version conflict")
	}
	return nil, err
}

func retryable(err error) bool {
	var permanent *conflictError
	if errors.As(err, &permanent) {
		return false
	}
	return models.KindOf(err) == models.ErrorKindConflict
}

// load reads the staged row and refuses rows that were already decided
func (p *Processor) load(ctx context.Context, ownerID, stagingID string) (*models.StagingNode, error) {
	staged, err := p.staging.Get(ctx, ownerID, stagingID)
	if err != nil {
		return nil, err
	}
	if staged.Status.IsDecided() {
		return nil, &conflictError{message: "staging node " + stagingID + " was already " + string(staged.Status)}
	}
	return staged, nil
}

func (p *Processor) decide(ctx context.Context, staged *models.StagingNode, status models.StagingStatus, entityID, nodeID string) error {
	now := time.Now().UTC()
	actor := appctx.Actor(ctx)
	if actor == "" {
		actor = staged.OwnerID
	}
	staged.Status = status
	staged.DecidedBy = &actor
	staged.DecidedAt = &now
	if entityID != "" {
		staged.CommittedEntityID = &entityID
	}
	if nodeID != "" {
		staged.CommittedNodeID = &nodeID
	}
	return p.staging.Decide(ctx, staged)
}

func (p *Processor) reject(ctx context.Context, ownerID string, d models.Decision) (*commit, error) {
	staged, err := p.load(ctx, ownerID, d.StagingID)
	if err != nil {
		return nil, err
	}
	if err := p.decide(ctx, staged, models.StagingStatusRejected, "", ""); err != nil {
		return nil, err
	}
	return &commit{staged: staged}, nil
}

func (p *Processor) approveNew(ctx context.Context, ownerID string, d models.Decision) (*commit, error) {
	staged, err := p.load(ctx, ownerID, d.StagingID)
	if err != nil {
		return nil, err
	}

	existing, err := p.registry.FindNodeByFingerprint(ctx, ownerID, staged.Fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &conflictError{message: "staging node " + staged.ID + " was already committed as node " + existing.ID}
	}

	entity := newEntity(staged)
	if err := p.registry.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}
	node := newNode(staged, entity)
	if err := p.registry.CreateNode(ctx, node); err != nil {
		return nil, err
	}
	if err := p.decide(ctx, staged, models.StagingStatusApproved, entity.ID, node.ID); err != nil {
		return nil, err
	}

	return &commit{
		staged:        staged,
		entity:        entity,
		entityCreated: true,
		node:          node,
		nodeCreated:   true,
	}, nil
}

func (p *Processor) mergeWithEntity(ctx context.Context, ownerID string, d models.Decision) (*commit, error) {
	staged, err := p.load(ctx, ownerID, d.StagingID)
	if err != nil {
		return nil, err
	}
	entity, err := p.registry.GetEntity(ctx, ownerID, d.TargetEntityID)
	if err != nil {
		return nil, err
	}

	var changed bool
	entity.AlternateNames, changed = foldName(entity.Name, entity.AlternateNames, staged.EntityName)
	if changed {
		if err := p.registry.UpdateEntity(ctx, entity); err != nil {
			return nil, err
		}
	}

	node := newNode(staged, entity)
	// only the first node committed from a row carries its fingerprint
	existing, err := p.registry.FindNodeByFingerprint(ctx, ownerID, staged.Fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		node.SourceFingerprint = ""
	}
	if err := p.registry.CreateNode(ctx, node); err != nil {
		return nil, err
	}
	if err := p.decide(ctx, staged, models.StagingStatusMerged, entity.ID, node.ID); err != nil {
		return nil, err
	}

	return &commit{
		staged:        staged,
		entity:        entity,
		entityChanged: changed,
		node:          node,
		nodeCreated:   true,
	}, nil
}

func (p *Processor) mergeWithNode(ctx context.Context, ownerID string, d models.Decision) (*commit, error) {
	staged, err := p.load(ctx, ownerID, d.StagingID)
	if err != nil {
		return nil, err
	}
	node, err := p.registry.GetNode(ctx, ownerID, d.TargetNodeID)
	if err != nil {
		return nil, err
	}

	mergeIntoNode(node, staged)
	if err := p.registry.UpdateNode(ctx, node); err != nil {
		return nil, err
	}
	if err := p.decide(ctx, staged, models.StagingStatusMerged, node.EntityID, node.ID); err != nil {
		return nil, err
	}

	return &commit{staged: staged, node: node}, nil
}

// publish mirrors a committed decision to the graph and the audit sink. Failures never undo the commit.
func (p *Processor) publish(ctx context.Context, action models.DecisionAction, c *commit) {
	if c.entity != nil && (c.entityCreated || c.entityChanged) {
		if err := p.projector.ProjectEntity(ctx, c.entity); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Entity committed but graph projection failed")
		}
		p.emitter.EntityWritten(ctx, c.entity, c.entityCreated)
	}
	if c.node != nil {
		if err := p.projector.ProjectNode(ctx, c.node); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Node committed but graph projection failed")
		}
		p.emitter.NodeWritten(ctx, c.node, c.nodeCreated)
	}

	p.emitter.StagingDecided(ctx, c.staged, c.outcome(action))
}
