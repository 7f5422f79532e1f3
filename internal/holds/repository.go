package holds

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists holds in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reservationColumns = `id, product_id, quantity, kind, related_id, related_name, status, operator, created_at, updated_at`

// CreateReservation inserts a reservation.
func (r *Repository) CreateReservation(ctx context.Context, res Reservation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO product_reservations (id, product_id, quantity, kind, related_id, related_name, status, operator, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID, res.ProductID, res.Quantity, string(res.Kind), res.RelatedID, res.RelatedName,
		string(res.Status), res.Operator, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("holds: create reservation: %w", err)
	}
	return nil
}

// GetReservation loads a reservation.
func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM product_reservations WHERE id = $1`, id)
	return scanReservation(row)
}

// ListReservations returns reservations, newest first.
func (r *Repository) ListReservations(ctx context.Context) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+` FROM product_reservations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// UpdateReservationStatus performs a guarded status move. A zero row count
// means the stored status no longer matches the expected one.
func (r *Repository) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE product_reservations SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: reservation no longer %s", shared.ErrIllegalTransition, from)
	}
	return nil
}

// DeleteReservation removes a reservation record.
func (r *Repository) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM product_reservations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: reservation", shared.ErrNotFound)
	}
	return nil
}

const exhibitionColumns = `id, product_id, quantity, event_name, event_date, location, status, operator, created_at, updated_at`

// CreateExhibition inserts an exhibition allocation.
func (r *Repository) CreateExhibition(ctx context.Context, ex Exhibition) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO exhibition_stocks (id, product_id, quantity, event_name, event_date, location, status, operator, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ex.ID, ex.ProductID, ex.Quantity, ex.EventName, ex.EventDate, ex.Location,
		string(ex.Status), ex.Operator, ex.CreatedAt, ex.UpdatedAt)
	if err != nil {
		return fmt.Errorf("holds: create exhibition: %w", err)
	}
	return nil
}

// GetExhibition loads an exhibition allocation.
func (r *Repository) GetExhibition(ctx context.Context, id uuid.UUID) (Exhibition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+exhibitionColumns+` FROM exhibition_stocks WHERE id = $1`, id)
	return scanExhibition(row)
}

// ListExhibitions returns exhibition allocations, newest first.
func (r *Repository) ListExhibitions(ctx context.Context) ([]Exhibition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+exhibitionColumns+` FROM exhibition_stocks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exhibitions []Exhibition
	for rows.Next() {
		ex, err := scanExhibition(rows)
		if err != nil {
			return nil, err
		}
		exhibitions = append(exhibitions, ex)
	}
	return exhibitions, rows.Err()
}

// UpdateExhibitionStatus performs a guarded status move.
func (r *Repository) UpdateExhibitionStatus(ctx context.Context, id uuid.UUID, from, to ExhibitionStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE exhibition_stocks SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: exhibition no longer %s", shared.ErrIllegalTransition, from)
	}
	return nil
}

// DeleteExhibition removes an exhibition record.
func (r *Repository) DeleteExhibition(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exhibition_stocks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: exhibition", shared.ErrNotFound)
	}
	return nil
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	var kind, status string
	err := row.Scan(&res.ID, &res.ProductID, &res.Quantity, &kind, &res.RelatedID, &res.RelatedName,
		&status, &res.Operator, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, fmt.Errorf("%w: reservation", shared.ErrNotFound)
		}
		return Reservation{}, err
	}
	res.Kind = ReservationKind(kind)
	res.Status = ReservationStatus(status)
	return res, nil
}

func scanExhibition(row pgx.Row) (Exhibition, error) {
	var ex Exhibition
	var status string
	err := row.Scan(&ex.ID, &ex.ProductID, &ex.Quantity, &ex.EventName, &ex.EventDate, &ex.Location,
		&status, &ex.Operator, &ex.CreatedAt, &ex.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Exhibition{}, fmt.Errorf("%w: exhibition", shared.ErrNotFound)
		}
		return Exhibition{}, err
	}
	ex.Status = ExhibitionStatus(status)
	return ex, nil
}
