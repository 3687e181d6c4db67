package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrilock/agrilock/internal/idgen"
	"github.com/agrilock/agrilock/internal/logging"
	"github.com/agrilock/agrilock/internal/metrics"
	"github.com/agrilock/agrilock/internal/syncutil"
	"github.com/agrilock/agrilock/internal/traces"
)

// Status is an escrow's lifecycle state. Pending is the only non-terminal
// state; released and expired are final.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReleased Status = "released"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusExpired
}

// Sentinel errors callers branch on.
var (
	ErrNotFound           = errors.New("escrow not found")
	ErrFarmerNotFound     = errors.New("farmer not found")
	ErrInvalidAmount      = errors.New("invalid escrow amount")
	ErrInvalidDuration    = errors.New("invalid escrow duration")
	ErrUnknownPractice    = errors.New("unknown practice type")
	ErrInvalidEvidence    = errors.New("evidence does not satisfy practice criteria")
	ErrInvalidStatus      = errors.New("escrow is not pending")
	ErrDeadlineNotReached = errors.New("verification deadline not reached")
	ErrStateConflict      = errors.New("escrow state changed concurrently")
	ErrEntropyUnavailable = errors.New("secure randomness unavailable")
	ErrOrphanedLock       = errors.New("ledger lock created but local record failed")
)

// Escrow is a conditional aid commitment: funds locked on the ledger for one
// farmer, released when evidence of a sustainable practice checks out, or
// reclaimed after the deadline lapses.
type Escrow struct {
	ID             string     `json:"id"`
	FarmerID       string     `json:"farmerId"`
	AmountDrops    int64      `json:"amountDrops"`
	PracticeType   string     `json:"practiceType"`
	Status         Status     `json:"status"`
	ConditionHash  string     `json:"conditionHash"`
	Fulfillment    string     `json:"-"` // secret preimage, disclosed only to the ledger
	LedgerSequence uint32     `json:"ledgerSequence"`
	FinishAfter    time.Time  `json:"finishAfter"`
	Deadline       time.Time  `json:"deadline"`
	CancelAfter    time.Time  `json:"cancelAfter"`
	Evidence       *Evidence  `json:"evidence,omitempty"`
	ReleaseTxHash  string     `json:"releaseTxHash,omitempty"`
	CancelTxHash   string     `json:"cancelTxHash,omitempty"`
	VerifiedAt     *time.Time `json:"verifiedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Patch carries the fields a single status transition writes. Applied only
// through Store.UpdateIfStatus so the pending check and the write are one
// atomic step.
type Patch struct {
	Status        Status
	Evidence      *Evidence
	ReleaseTxHash string
	CancelTxHash  string
	VerifiedAt    *time.Time
	ResolvedAt    *time.Time
	UpdatedAt     time.Time
}

// Filter narrows List results.
type Filter struct {
	FarmerID string
	Status   Status
	Limit    int
}

// Store persists escrows.
type Store interface {
	Create(ctx context.Context, e *Escrow) error
	Get(ctx context.Context, id string) (*Escrow, error)
	List(ctx context.Context, f Filter) ([]*Escrow, error)
	// UpdateIfStatus applies patch iff the row's status still equals
	// expected, returning false (and no error) when it does not.
	UpdateIfStatus(ctx context.Context, id string, expected Status, patch Patch) (bool, error)
	// ListExpiring returns pending escrows whose deadline is at or before
	// the given instant.
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]*Escrow, error)
	CountByFarmer(ctx context.Context, farmerID string) (int, error)
}

// Ledger is the external value-transfer system holding the locked funds.
// Implemented by xrpl.Adapter; tests substitute mocks.
type Ledger interface {
	CreateLock(ctx context.Context, destination string, drops int64, condition string, finishAfter, cancelAfter time.Time) (uint32, error)
	FinishLock(ctx context.Context, sequence uint32, condition, fulfillment string) (string, error)
	CancelLock(ctx context.Context, sequence uint32) (string, error)
}

// Payee resolves a farmer to a payout destination.
type Payee struct {
	ID            string
	PayoutAddress string
}

// FarmerDirectory looks up escrow beneficiaries. Implemented by
// farmer.Service through a thin adapter in the server wiring.
type FarmerDirectory interface {
	FindPayee(ctx context.Context, farmerID string) (*Payee, error)
}

// Recorder appends to the verification audit trail. Failures are logged but
// never roll back a completed release.
type Recorder interface {
	Record(ctx context.Context, escrowID, method string, outcome string, ev *Evidence, at time.Time) error
}

// CreateRequest are the validated inputs to Create. AmountDrops is already
// in canonical integer drops; decimal parsing happens at the HTTP boundary.
type CreateRequest struct {
	FarmerID     string
	AmountDrops  int64
	PracticeType string
	DeadlineDays int
}

// Service drives the escrow lifecycle. Every effectful operation talks to
// the ledger first and mutates the local record only after the ledger
// confirms, so local state never claims a transfer that did not happen.
type Service struct {
	store   Store
	farmers FarmerDirectory
	ledger  Ledger
	rec     Recorder

	locks        *syncutil.ContextShardedMutex
	finishGrace  time.Duration
	cancelBuffer time.Duration
	now          func() time.Time
}

// NewService wires the escrow engine. finishGrace and cancelBuffer shape the
// time-lock window around the requested deadline.
func NewService(store Store, farmers FarmerDirectory, ledger Ledger, rec Recorder, finishGrace, cancelBuffer time.Duration) *Service {
	return &Service{
		store:        store,
		farmers:      farmers,
		ledger:       ledger,
		rec:          rec,
		locks:        syncutil.NewContextShardedMutex(),
		finishGrace:  finishGrace,
		cancelBuffer: cancelBuffer,
		now:          time.Now,
	}
}

// Create locks funds on the ledger for a farmer and records the escrow.
// All validation happens before any ledger traffic; a ledger failure means
// no local row is written.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Create", traces.FarmerID(req.FarmerID), traces.Practice(req.PracticeType))
	defer span.End()

	if req.AmountDrops <= 0 {
		return nil, fmt.Errorf("%w: %d drops", ErrInvalidAmount, req.AmountDrops)
	}
	if !KnownPractice(req.PracticeType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPractice, req.PracticeType)
	}

	windows, err := ComputeDeadlines(s.now(), req.DeadlineDays, s.finishGrace, s.cancelBuffer)
	if err != nil {
		return nil, err
	}

	payee, err := s.farmers.FindPayee(ctx, req.FarmerID)
	if err != nil {
		return nil, err
	}

	cond, err := NewCondition()
	if err != nil {
		return nil, err
	}

	seq, err := s.ledger.CreateLock(ctx, payee.PayoutAddress, req.AmountDrops, cond.Condition, windows.FinishAfter, windows.CancelAfter)
	if err != nil {
		return nil, fmt.Errorf("lock funds: %w", err)
	}

	now := s.now()
	e := &Escrow{
		ID:             idgen.WithPrefix("esc_"),
		FarmerID:       req.FarmerID,
		AmountDrops:    req.AmountDrops,
		PracticeType:   req.PracticeType,
		Status:         StatusPending,
		ConditionHash:  cond.Condition,
		Fulfillment:    cond.Fulfillment,
		LedgerSequence: seq,
		FinishAfter:    windows.FinishAfter,
		Deadline:       windows.Deadline,
		CancelAfter:    windows.CancelAfter,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, e); err != nil {
		// Funds are locked on the ledger with no local record. Log every
		// detail an operator needs to finish or cancel the lock by hand.
		logging.L(ctx).Error("CRITICAL: orphaned ledger lock",
			slog.String("farmer_id", req.FarmerID),
			slog.String("destination", payee.PayoutAddress),
			slog.Int64("amount_drops", req.AmountDrops),
			slog.Uint64("ledger_sequence", uint64(seq)),
			slog.String("condition", cond.Condition),
			slog.String("fulfillment", cond.Fulfillment),
			slog.Time("cancel_after", windows.CancelAfter),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: sequence %d: %v", ErrOrphanedLock, seq, err)
	}

	metrics.EscrowTransitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	logging.L(ctx).Info("escrow created",
		slog.String("escrow_id", e.ID),
		slog.String("farmer_id", e.FarmerID),
		slog.Int64("amount_drops", e.AmountDrops),
		slog.Uint64("ledger_sequence", uint64(seq)))
	return e, nil
}

// Verify checks evidence against the escrow's practice criteria and, on
// success, discloses the fulfillment to release the locked funds to the
// farmer. The escrow only becomes released after the ledger confirms the
// transfer settled.
func (s *Service) Verify(ctx context.Context, id string, ev Evidence) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Verify", traces.EscrowID(id))
	defer span.End()

	// Optimistic precondition read. A terminal status here is a caller
	// error; a terminal status discovered after taking the lock means we
	// lost a race.
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidStatus, id, e.Status)
	}

	if err := ValidateEvidence(e.PracticeType, ev); err != nil {
		metrics.VerificationsTotal.WithLabelValues(e.PracticeType, "rejected").Inc()
		s.record(ctx, id, ev, "rejected")
		return nil, err
	}

	unlock, err := s.locks.LockContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s already %s", ErrStateConflict, id, e.Status)
	}

	hash, err := s.ledger.FinishLock(ctx, e.LedgerSequence, e.ConditionHash, e.Fulfillment)
	if err != nil {
		// Includes the indeterminate case: status stays pending and the
		// adapter's replay guard makes a later retry safe.
		return nil, fmt.Errorf("release funds: %w", err)
	}

	now := s.now()
	patch := Patch{
		Status:        StatusReleased,
		Evidence:      &ev,
		ReleaseTxHash: hash,
		VerifiedAt:    &now,
		ResolvedAt:    &now,
		UpdatedAt:     now,
	}
	ok, err := s.store.UpdateIfStatus(ctx, id, StatusPending, patch)
	if err != nil {
		logging.L(ctx).Error("CRITICAL: funds released but local update failed",
			slog.String("escrow_id", id), slog.String("tx_hash", hash), slog.String("error", err.Error()))
		return nil, err
	}
	if !ok {
		logging.L(ctx).Error("CRITICAL: funds released but escrow left pending state concurrently",
			slog.String("escrow_id", id), slog.String("tx_hash", hash))
		return nil, fmt.Errorf("%w: %s", ErrStateConflict, id)
	}

	metrics.EscrowTransitionsTotal.WithLabelValues(string(StatusReleased)).Inc()
	metrics.VerificationsTotal.WithLabelValues(e.PracticeType, "released").Inc()
	s.record(ctx, id, ev, "released")

	logging.L(ctx).Info("escrow released",
		slog.String("escrow_id", id),
		slog.String("farmer_id", e.FarmerID),
		slog.Int64("amount_drops", e.AmountDrops),
		slog.String("tx_hash", hash))
	return s.store.Get(ctx, id)
}

// Cancel reclaims an escrow whose verification deadline has lapsed. Refused
// before the deadline without any ledger traffic; after it, the ledger
// cancel must settle before the local record flips to expired.
func (s *Service) Cancel(ctx context.Context, id string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Cancel", traces.EscrowID(id))
	defer span.End()

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidStatus, id, e.Status)
	}
	if s.now().Before(e.Deadline) {
		return nil, fmt.Errorf("%w: deadline %s", ErrDeadlineNotReached, e.Deadline.Format(time.RFC3339))
	}

	unlock, err := s.locks.LockContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s already %s", ErrStateConflict, id, e.Status)
	}

	hash, err := s.ledger.CancelLock(ctx, e.LedgerSequence)
	if err != nil {
		return nil, fmt.Errorf("reclaim funds: %w", err)
	}

	now := s.now()
	patch := Patch{
		Status:       StatusExpired,
		CancelTxHash: hash,
		ResolvedAt:   &now,
		UpdatedAt:    now,
	}
	ok, err := s.store.UpdateIfStatus(ctx, id, StatusPending, patch)
	if err != nil {
		logging.L(ctx).Error("CRITICAL: funds reclaimed but local update failed",
			slog.String("escrow_id", id), slog.String("tx_hash", hash), slog.String("error", err.Error()))
		return nil, err
	}
	if !ok {
		logging.L(ctx).Error("CRITICAL: funds reclaimed but escrow left pending state concurrently",
			slog.String("escrow_id", id), slog.String("tx_hash", hash))
		return nil, fmt.Errorf("%w: %s", ErrStateConflict, id)
	}

	metrics.EscrowTransitionsTotal.WithLabelValues(string(StatusExpired)).Inc()
	logging.L(ctx).Info("escrow expired",
		slog.String("escrow_id", id),
		slog.String("farmer_id", e.FarmerID),
		slog.Int64("amount_drops", e.AmountDrops),
		slog.String("tx_hash", hash))
	return s.store.Get(ctx, id)
}

// Get returns one escrow by ID.
func (s *Service) Get(ctx context.Context, id string) (*Escrow, error) {
	return s.store.Get(ctx, id)
}

// List returns escrows matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*Escrow, error) {
	return s.store.List(ctx, f)
}

// CountByFarmer reports how many escrows reference a farmer, in any status.
// Used to refuse farmer deletion while records point at them; resolved
// escrows still count because their history must stay attributable.
func (s *Service) CountByFarmer(ctx context.Context, farmerID string) (int, error) {
	return s.store.CountByFarmer(ctx, farmerID)
}

// SweepExpired cancels pending escrows whose deadline has lapsed. Returns
// how many were expired; per-escrow failures are logged and skipped so one
// stuck escrow does not block the sweep.
func (s *Service) SweepExpired(ctx context.Context, limit int) int {
	due, err := s.store.ListExpiring(ctx, s.now(), limit)
	if err != nil {
		logging.L(ctx).Error("expiry sweep query failed", slog.String("error", err.Error()))
		return 0
	}

	expired := 0
	for _, e := range due {
		if _, err := s.Cancel(ctx, e.ID); err != nil {
			if errors.Is(err, ErrInvalidStatus) || errors.Is(err, ErrStateConflict) {
				continue // resolved by someone else between query and cancel
			}
			logging.L(ctx).Warn("expiry sweep: cancel failed",
				slog.String("escrow_id", e.ID), slog.String("error", err.Error()))
			continue
		}
		expired++
	}
	return expired
}

func (s *Service) record(ctx context.Context, escrowID string, ev Evidence, outcome string) {
	if s.rec == nil {
		return
	}
	if err := s.rec.Record(ctx, escrowID, ev.Method(), outcome, &ev, s.now()); err != nil {
		logging.L(ctx).Warn("verification log write failed",
			slog.String("escrow_id", escrowID), slog.String("error", err.Error()))
	}
}
