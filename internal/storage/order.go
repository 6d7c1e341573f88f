package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tomasrv/tienda-backend/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage is the source of truth for order and payment state.
type OrderStorage interface {
	// CreateOrder inserts the order and its item snapshots in one transaction.
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	// GetByWebpayToken resolves an order from a gateway token, used when the
	// commit request carries no order id.
	GetByWebpayToken(ctx context.Context, token string) (*models.Order, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) error
	// AttachPaymentToken overwrites any previously issued token; only one
	// payment attempt is active per order at a time.
	AttachPaymentToken(ctx context.Context, orderID, token, sessionID string) error
	// RecordCommitResult finalizes a payment attempt. The write is
	// conditional on the order not being completed yet; it returns false
	// when a concurrent commit already won.
	RecordCommitResult(ctx context.Context, orderID string, approved bool, result json.RawMessage) (bool, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_id, user_id, customer_name, customer_email,
	subtotal, discount_amount, total_amount, status,
	COALESCE(webpay_token, ''), COALESCE(webpay_session_id, ''),
	webpay_result, paid_at, created_at, updated_at`

func (r *orderRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (order_id, user_id, customer_name, customer_email,
		 subtotal, discount_amount, total_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		order.OrderID, order.UserID, order.CustomerName, order.CustomerEmail,
		order.Subtotal, order.DiscountAmount, order.TotalAmount, order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return nil, fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, price, quantity)
			 VALUES ($1, $2, $3, $4, $5)`,
			order.ID, item.ProductID, item.Name, item.Price, item.Quantity,
		)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return nil, fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
			}
			return nil, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, nil
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	return r.scanOrder(ctx, row)
}

func (r *orderRepository) GetByWebpayToken(ctx context.Context, token string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE webpay_token = $1`, token)
	return r.scanOrder(ctx, row)
}

func (r *orderRepository) scanOrder(ctx context.Context, row *sql.Row) (*models.Order, error) {
	order := &models.Order{}
	var result []byte
	err := row.Scan(
		&order.ID, &order.OrderID, &order.UserID, &order.CustomerName, &order.CustomerEmail,
		&order.Subtotal, &order.DiscountAmount, &order.TotalAmount, &order.Status,
		&order.WebpayToken, &order.WebpaySessionID,
		&result, &order.PaidAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	order.WebpayResult = result

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, id int64) ([]models.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, name, price, quantity FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		var result []byte
		err := rows.Scan(
			&order.ID, &order.OrderID, &order.UserID, &order.CustomerName, &order.CustomerEmail,
			&order.Subtotal, &order.DiscountAmount, &order.TotalAmount, &order.Status,
			&order.WebpayToken, &order.WebpaySessionID,
			&result, &order.PaidAt, &order.CreatedAt, &order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		order.WebpayResult = result
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE order_id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) AttachPaymentToken(ctx context.Context, orderID, token, sessionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET webpay_token = $1, webpay_session_id = $2, updated_at = NOW() WHERE order_id = $3`,
		token, sessionID, orderID)
	if err != nil {
		return fmt.Errorf("failed to attach payment token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) RecordCommitResult(ctx context.Context, orderID string, approved bool, result json.RawMessage) (bool, error) {
	status := models.StatusFailed
	if approved {
		status = models.StatusCompleted
	}
	// The status predicate makes two racing commits converge on a single
	// stored result: only the first writer gets a row.
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1,
		 paid_at = CASE WHEN $2 THEN NOW() ELSE paid_at END,
		 webpay_result = $3, updated_at = NOW()
		 WHERE order_id = $4 AND status <> $5`,
		status, approved, []byte(result), orderID, models.StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to record commit result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
