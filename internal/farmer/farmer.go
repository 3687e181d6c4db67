// Package farmer manages the registry of aid recipients: who they are,
// where they farm, and which XRPL address their payouts go to.
package farmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrilock/agrilock/internal/idgen"
	"github.com/agrilock/agrilock/internal/logging"
	"github.com/agrilock/agrilock/internal/validation"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound   = errors.New("farmer not found")
	ErrReferenced = errors.New("farmer is referenced by escrows")
	ErrDuplicate  = errors.New("wallet address already registered")
)

// Farmer is an aid recipient.
type Farmer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	WalletAddress string    `json:"walletAddress"`
	Region        string    `json:"region,omitempty"`
	FarmSizeHa    float64   `json:"farmSizeHa,omitempty"`
	PrimaryCrop   string    `json:"primaryCrop,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store persists farmers.
type Store interface {
	Create(ctx context.Context, f *Farmer) error
	Get(ctx context.Context, id string) (*Farmer, error)
	GetByWallet(ctx context.Context, address string) (*Farmer, error)
	List(ctx context.Context, limit int) ([]*Farmer, error)
	Update(ctx context.Context, f *Farmer) error
	Delete(ctx context.Context, id string) error
}

// EscrowCounter reports how many escrows reference a farmer. Satisfied by
// the escrow service; keeps this package free of a dependency on it.
type EscrowCounter interface {
	CountByFarmer(ctx context.Context, farmerID string) (int, error)
}

// CreateRequest are the inputs to Create.
type CreateRequest struct {
	Name          string
	WalletAddress string
	Region        string
	FarmSizeHa    float64
	PrimaryCrop   string
}

// UpdateRequest carries the mutable fields. The wallet address is not among
// them: pending ledger locks already name it as their destination, so it is
// fixed at registration.
type UpdateRequest struct {
	Name        *string
	Region      *string
	FarmSizeHa  *float64
	PrimaryCrop *string
}

// Service manages the farmer registry.
type Service struct {
	store   Store
	escrows EscrowCounter
	now     func() time.Time
}

// NewService wires the farmer registry. escrows guards deletion and may not
// be nil.
func NewService(store Store, escrows EscrowCounter) *Service {
	return &Service{store: store, escrows: escrows, now: time.Now}
}

// Create registers a farmer after validating the payout address.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Farmer, error) {
	if errs := validation.Validate(
		validation.Required("name", req.Name),
		validation.Required("walletAddress", req.WalletAddress),
		validation.ValidAddress("walletAddress", req.WalletAddress),
	); len(errs) > 0 {
		return nil, errs
	}

	if existing, err := s.store.GetByWallet(ctx, req.WalletAddress); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, req.WalletAddress)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	f := &Farmer{
		ID:            idgen.WithPrefix("frm_"),
		Name:          validation.SanitizeString(req.Name, 200),
		WalletAddress: req.WalletAddress,
		Region:        validation.SanitizeString(req.Region, 200),
		FarmSizeHa:    req.FarmSizeHa,
		PrimaryCrop:   validation.SanitizeString(req.PrimaryCrop, 100),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, f); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("farmer registered",
		slog.String("farmer_id", f.ID), slog.String("wallet", f.WalletAddress))
	return f, nil
}

// Get returns one farmer by ID.
func (s *Service) Get(ctx context.Context, id string) (*Farmer, error) {
	return s.store.Get(ctx, id)
}

// List returns registered farmers.
func (s *Service) List(ctx context.Context, limit int) ([]*Farmer, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.List(ctx, limit)
}

// Update applies the mutable fields of req.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Farmer, error) {
	f, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := validation.SanitizeString(*req.Name, 200)
		if name == "" {
			return nil, validation.ValidationErrors{{Field: "name", Message: "is required"}}
		}
		f.Name = name
	}
	if req.Region != nil {
		f.Region = validation.SanitizeString(*req.Region, 200)
	}
	if req.FarmSizeHa != nil {
		f.FarmSizeHa = *req.FarmSizeHa
	}
	if req.PrimaryCrop != nil {
		f.PrimaryCrop = validation.SanitizeString(*req.PrimaryCrop, 100)
	}
	f.UpdatedAt = s.now()

	if err := s.store.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a farmer. Refused while any escrow references them, in any
// status: deleting the farmer would sever the audit trail.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}

	n, err := s.escrows.CountByFarmer(ctx, id)
	if err != nil {
		return fmt.Errorf("count escrow references: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d escrow(s)", ErrReferenced, n)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logging.L(ctx).Info("farmer deleted", slog.String("farmer_id", id))
	return nil
}
