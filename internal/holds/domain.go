package holds

import (
	"time"

	"github.com/google/uuid"
)

// ReservationKind enumerates who or what a reservation earmarks stock for.
type ReservationKind string

const (
	ReservationKindCustomer ReservationKind = "customer"
	ReservationKindActivity ReservationKind = "activity"
	ReservationKindProject  ReservationKind = "project"
	ReservationKindEvent    ReservationKind = "event"
)

// ReservationStatus enumerates reservation lifecycle states.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusDelivered ReservationStatus = "delivered"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation provisionally earmarks stock for a customer or activity. The
// earmark lives in the stock ledger as a HOLD entry keyed by the reservation id.
type Reservation struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	Quantity    int64
	Kind        ReservationKind
	RelatedID   string
	RelatedName string
	Status      ReservationStatus
	Operator    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ExhibitionStatus enumerates exhibition allocation lifecycle states.
type ExhibitionStatus string

const (
	ExhibitionStatusPlanned   ExhibitionStatus = "planned"
	ExhibitionStatusActive    ExhibitionStatus = "active"
	ExhibitionStatusCompleted ExhibitionStatus = "completed"
	ExhibitionStatusCancelled ExhibitionStatus = "cancelled"
)

// Exhibition earmarks stock for an event, keyed by event details instead of a
// customer. Same restore-on-terminal-transition rule as reservations.
type Exhibition struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Quantity  int64
	EventName string
	EventDate time.Time
	Location  string
	Status    ExhibitionStatus
	Operator  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateReservationInput describes a new reservation request.
type CreateReservationInput struct {
	ProductID   uuid.UUID
	Quantity    int64
	Kind        ReservationKind
	RelatedID   string
	RelatedName string
	Operator    string
}

// CreateExhibitionInput describes a new exhibition allocation request.
type CreateExhibitionInput struct {
	ProductID uuid.UUID
	Quantity  int64
	EventName string
	EventDate time.Time
	Location  string
	Operator  string
}

func terminalReservation(status ReservationStatus) bool {
	return status == ReservationStatusDelivered || status == ReservationStatusCancelled
}

func terminalExhibition(status ExhibitionStatus) bool {
	return status == ExhibitionStatusCompleted || status == ExhibitionStatusCancelled
}

func validReservationKind(kind ReservationKind) bool {
	switch kind {
	case ReservationKindCustomer, ReservationKindActivity, ReservationKindProject, ReservationKindEvent:
		return true
	}
	return false
}

// legalReservationTransition covers reserved -> delivered|cancelled.
func legalReservationTransition(from, to ReservationStatus) bool {
	return from == ReservationStatusReserved && terminalReservation(to)
}

// legalExhibitionTransition covers planned -> active|completed|cancelled and
// active -> completed|cancelled.
func legalExhibitionTransition(from, to ExhibitionStatus) bool {
	switch from {
	case ExhibitionStatusPlanned:
		return to == ExhibitionStatusActive || terminalExhibition(to)
	case ExhibitionStatusActive:
		return terminalExhibition(to)
	}
	return false
}
