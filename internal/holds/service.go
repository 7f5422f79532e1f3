package holds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LedgerPort is the slice of the stock ledger the hold manager drives.
// Unreserve clears the idempotency key a movement reserved, so a compensated
// movement can be retried.
type LedgerPort interface {
	Apply(ctx context.Context, input ledger.ApplyInput) (ledger.Transaction, error)
	Unreserve(ctx context.Context, input ledger.ApplyInput) error
}

// RepositoryPort abstracts hold persistence.
type RepositoryPort interface {
	CreateReservation(ctx context.Context, res Reservation) error
	GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error)
	ListReservations(ctx context.Context) ([]Reservation, error)
	// UpdateReservationStatus succeeds only when the stored status still equals
	// from; otherwise it returns shared.ErrIllegalTransition.
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus) error
	DeleteReservation(ctx context.Context, id uuid.UUID) error

	CreateExhibition(ctx context.Context, ex Exhibition) error
	GetExhibition(ctx context.Context, id uuid.UUID) (Exhibition, error)
	ListExhibitions(ctx context.Context) ([]Exhibition, error)
	UpdateExhibitionStatus(ctx context.Context, id uuid.UUID, from, to ExhibitionStatus) error
	DeleteExhibition(ctx context.Context, id uuid.UUID) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages provisional stock holds. Every hold is backed by a HOLD
// ledger entry; every terminal transition restores stock with exactly one
// RELEASE entry.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, audit: audit}
}

// CreateReservation earmarks stock for a customer or activity.
func (s *Service) CreateReservation(ctx context.Context, input CreateReservationInput) (Reservation, error) {
	if input.Quantity <= 0 {
		return Reservation{}, fmt.Errorf("%w: reservation quantity must be positive, got %d", shared.ErrInvalidAmount, input.Quantity)
	}
	if !validReservationKind(input.Kind) {
		return Reservation{}, fmt.Errorf("%w: unknown reservation kind %q", shared.ErrInvalidAmount, input.Kind)
	}

	now := time.Now().UTC()
	res := Reservation{
		ID:          uuid.New(),
		ProductID:   input.ProductID,
		Quantity:    input.Quantity,
		Kind:        input.Kind,
		RelatedID:   input.RelatedID,
		RelatedName: input.RelatedName,
		Status:      ReservationStatusReserved,
		Operator:    input.Operator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	hold := ledger.ApplyInput{
		ProductID:   res.ProductID,
		Type:        ledger.TransactionTypeHold,
		Quantity:    res.Quantity,
		RelatedID:   res.ID,
		RelatedType: "reservation",
		Note:        noteFor("reserved", input.RelatedName),
		Operator:    input.Operator,
	}
	if _, err := s.ledger.Apply(ctx, hold); err != nil {
		return Reservation{}, err
	}

	if err := s.repo.CreateReservation(ctx, res); err != nil {
		if cerr := s.compensate(ctx, hold); cerr != nil {
			return Reservation{}, fmt.Errorf("%w: reservation %s: %v", shared.ErrLedgerDesync, res.ID, cerr)
		}
		return Reservation{}, err
	}

	s.record(ctx, input.Operator, "holds:reserve", "reservation", res.ID.String(), map[string]any{
		"product_id": res.ProductID.String(),
		"quantity":   res.Quantity,
		"kind":       string(res.Kind),
	})
	return res, nil
}

// TransitionReservation moves a reservation along its lifecycle. Transitions
// into a terminal state restore the held stock exactly once; re-entering the
// same terminal state is a no-op.
func (s *Service) TransitionReservation(ctx context.Context, id uuid.UUID, next ReservationStatus, operator string) (Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if res.Status == next && terminalReservation(next) {
		return res, nil
	}
	if !legalReservationTransition(res.Status, next) {
		return Reservation{}, fmt.Errorf("%w: reservation %s -> %s", shared.ErrIllegalTransition, res.Status, next)
	}

	// Every legal move out of reserved is terminal, so restore the hold.
	release := ledger.ApplyInput{
		ProductID:   res.ProductID,
		Type:        ledger.TransactionTypeRelease,
		Quantity:    res.Quantity,
		RelatedID:   res.ID,
		RelatedType: "reservation",
		Note:        noteFor(string(next), res.RelatedName),
		Operator:    operator,
	}
	if _, err := s.ledger.Apply(ctx, release); err != nil {
		return Reservation{}, err
	}

	if err := s.repo.UpdateReservationStatus(ctx, id, res.Status, next); err != nil {
		if cerr := s.compensate(ctx, release); cerr != nil {
			return Reservation{}, fmt.Errorf("%w: reservation %s: %v", shared.ErrLedgerDesync, id, cerr)
		}
		return Reservation{}, err
	}

	res.Status = next
	res.UpdatedAt = time.Now().UTC()
	s.record(ctx, operator, "holds:"+string(next), "reservation", id.String(), map[string]any{
		"product_id": res.ProductID.String(),
		"quantity":   res.Quantity,
	})
	return res, nil
}

// DeleteReservation removes a non-terminal reservation, restoring its stock.
func (s *Service) DeleteReservation(ctx context.Context, id uuid.UUID, operator string) error {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if terminalReservation(res.Status) {
		return fmt.Errorf("%w: reservation already %s", shared.ErrIllegalTransition, res.Status)
	}

	release := ledger.ApplyInput{
		ProductID:   res.ProductID,
		Type:        ledger.TransactionTypeRelease,
		Quantity:    res.Quantity,
		RelatedID:   res.ID,
		RelatedType: "reservation",
		Note:        noteFor("deleted", res.RelatedName),
		Operator:    operator,
	}
	if _, err := s.ledger.Apply(ctx, release); err != nil {
		return err
	}
	if err := s.repo.DeleteReservation(ctx, id); err != nil {
		if cerr := s.compensate(ctx, release); cerr != nil {
			return fmt.Errorf("%w: reservation %s: %v", shared.ErrLedgerDesync, id, cerr)
		}
		return err
	}

	s.record(ctx, operator, "holds:delete", "reservation", id.String(), map[string]any{
		"product_id": res.ProductID.String(),
		"quantity":   res.Quantity,
	})
	return nil
}

// GetReservation returns a single reservation.
func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ListReservations returns all reservations.
func (s *Service) ListReservations(ctx context.Context) ([]Reservation, error) {
	return s.repo.ListReservations(ctx)
}

// CreateExhibition earmarks stock for an event.
func (s *Service) CreateExhibition(ctx context.Context, input CreateExhibitionInput) (Exhibition, error) {
	if input.Quantity <= 0 {
		return Exhibition{}, fmt.Errorf("%w: exhibition quantity must be positive, got %d", shared.ErrInvalidAmount, input.Quantity)
	}
	if strings.TrimSpace(input.EventName) == "" {
		return Exhibition{}, fmt.Errorf("%w: event name required", shared.ErrInvalidAmount)
	}

	now := time.Now().UTC()
	ex := Exhibition{
		ID:        uuid.New(),
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		EventName: strings.TrimSpace(input.EventName),
		EventDate: input.EventDate,
		Location:  input.Location,
		Status:    ExhibitionStatusPlanned,
		Operator:  input.Operator,
		CreatedAt: now,
		UpdatedAt: now,
	}

	hold := ledger.ApplyInput{
		ProductID:   ex.ProductID,
		Type:        ledger.TransactionTypeHold,
		Quantity:    ex.Quantity,
		RelatedID:   ex.ID,
		RelatedType: "exhibition",
		Note:        noteFor("planned", ex.EventName),
		Operator:    input.Operator,
	}
	if _, err := s.ledger.Apply(ctx, hold); err != nil {
		return Exhibition{}, err
	}

	if err := s.repo.CreateExhibition(ctx, ex); err != nil {
		if cerr := s.compensate(ctx, hold); cerr != nil {
			return Exhibition{}, fmt.Errorf("%w: exhibition %s: %v", shared.ErrLedgerDesync, ex.ID, cerr)
		}
		return Exhibition{}, err
	}

	s.record(ctx, input.Operator, "holds:plan", "exhibition", ex.ID.String(), map[string]any{
		"product_id": ex.ProductID.String(),
		"quantity":   ex.Quantity,
		"event":      ex.EventName,
	})
	return ex, nil
}

// TransitionExhibition moves an exhibition along its lifecycle. Only terminal
// transitions touch stock; planned -> active is a plain status change.
func (s *Service) TransitionExhibition(ctx context.Context, id uuid.UUID, next ExhibitionStatus, operator string) (Exhibition, error) {
	ex, err := s.repo.GetExhibition(ctx, id)
	if err != nil {
		return Exhibition{}, err
	}
	if ex.Status == next && terminalExhibition(next) {
		return ex, nil
	}
	if !legalExhibitionTransition(ex.Status, next) {
		return Exhibition{}, fmt.Errorf("%w: exhibition %s -> %s", shared.ErrIllegalTransition, ex.Status, next)
	}

	release := ledger.ApplyInput{
		ProductID:   ex.ProductID,
		Type:        ledger.TransactionTypeRelease,
		Quantity:    ex.Quantity,
		RelatedID:   ex.ID,
		RelatedType: "exhibition",
		Note:        noteFor(string(next), ex.EventName),
		Operator:    operator,
	}
	if terminalExhibition(next) {
		if _, err := s.ledger.Apply(ctx, release); err != nil {
			return Exhibition{}, err
		}
	}

	if err := s.repo.UpdateExhibitionStatus(ctx, id, ex.Status, next); err != nil {
		if terminalExhibition(next) {
			if cerr := s.compensate(ctx, release); cerr != nil {
				return Exhibition{}, fmt.Errorf("%w: exhibition %s: %v", shared.ErrLedgerDesync, id, cerr)
			}
		}
		return Exhibition{}, err
	}

	ex.Status = next
	ex.UpdatedAt = time.Now().UTC()
	s.record(ctx, operator, "holds:"+string(next), "exhibition", id.String(), map[string]any{
		"product_id": ex.ProductID.String(),
		"quantity":   ex.Quantity,
	})
	return ex, nil
}

// DeleteExhibition removes a non-terminal exhibition, restoring its stock.
func (s *Service) DeleteExhibition(ctx context.Context, id uuid.UUID, operator string) error {
	ex, err := s.repo.GetExhibition(ctx, id)
	if err != nil {
		return err
	}
	if terminalExhibition(ex.Status) {
		return fmt.Errorf("%w: exhibition already %s", shared.ErrIllegalTransition, ex.Status)
	}

	release := ledger.ApplyInput{
		ProductID:   ex.ProductID,
		Type:        ledger.TransactionTypeRelease,
		Quantity:    ex.Quantity,
		RelatedID:   ex.ID,
		RelatedType: "exhibition",
		Note:        noteFor("deleted", ex.EventName),
		Operator:    operator,
	}
	if _, err := s.ledger.Apply(ctx, release); err != nil {
		return err
	}
	if err := s.repo.DeleteExhibition(ctx, id); err != nil {
		if cerr := s.compensate(ctx, release); cerr != nil {
			return fmt.Errorf("%w: exhibition %s: %v", shared.ErrLedgerDesync, id, cerr)
		}
		return err
	}

	s.record(ctx, operator, "holds:delete", "exhibition", id.String(), map[string]any{
		"product_id": ex.ProductID.String(),
		"quantity":   ex.Quantity,
	})
	return nil
}

// GetExhibition returns a single exhibition.
func (s *Service) GetExhibition(ctx context.Context, id uuid.UUID) (Exhibition, error) {
	return s.repo.GetExhibition(ctx, id)
}

// ListExhibitions returns all exhibitions.
func (s *Service) ListExhibitions(ctx context.Context) ([]Exhibition, error) {
	return s.repo.ListExhibitions(ctx)
}

// compensate reverses a movement whose owning row failed to persist, then
// clears both idempotency keys. Without the cleanup a retried transition would
// be rejected as a duplicate of the compensated attempt.
func (s *Service) compensate(ctx context.Context, forward ledger.ApplyInput) error {
	inverse := forward
	inverse.Type = ledger.TransactionTypeHold
	if forward.Type == ledger.TransactionTypeHold {
		inverse.Type = ledger.TransactionTypeRelease
	}
	inverse.RelatedType = forward.RelatedType + "-rollback"
	inverse.Note = ""
	if _, err := s.ledger.Apply(ctx, inverse); err != nil {
		return err
	}
	if err := s.ledger.Unreserve(ctx, forward); err != nil {
		return err
	}
	return s.ledger.Unreserve(ctx, inverse)
}

func (s *Service) record(ctx context.Context, operator, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Operator: operator,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}

func noteFor(state, name string) string {
	if name == "" {
		return state
	}
	return fmt.Sprintf("%s: %s", state, name)
}
