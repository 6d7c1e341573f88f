package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tomasrv/tienda-backend/internal/domain/models"
)

var ErrDiscountNotFound = errors.New("discount code not found")

// DiscountStorage is a read-only lookup used at checkout; code
// administration happens elsewhere.
type DiscountStorage interface {
	GetByCode(ctx context.Context, code string) (*models.Discount, error)
}

type discountRepository struct {
	db *sql.DB
}

func NewDiscountRepository(db *sql.DB) DiscountStorage {
	return &discountRepository{db: db}
}

func (r *discountRepository) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	d := &models.Discount{}
	row := r.db.QueryRowContext(ctx,
		"SELECT id, code, kind, value, active FROM discount_codes WHERE code = $1 AND active = TRUE", code)
	if err := row.Scan(&d.ID, &d.Code, &d.Kind, &d.Value, &d.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDiscountNotFound
		}
		return nil, err
	}
	return d, nil
}
