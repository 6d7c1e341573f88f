package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/tomasrv/tienda-backend/internal/domain/models"
	"github.com/tomasrv/tienda-backend/internal/storage"
)

// CustomerInfo is the contact snapshot stored with the order; the
// confirmation email goes to this address, not the account's.
type CustomerInfo struct {
	Name  string
	Email string
}

type OrderService interface {
	CreateOrder(ctx context.Context, userID int64, items []models.OrderItem, discountCode string, customer CustomerInfo) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) error
}

type orderService struct {
	log          *slog.Logger
	orderRepo    storage.OrderStorage
	discountRepo storage.DiscountStorage
}

func NewOrderService(log *slog.Logger, orderRepo storage.OrderStorage, discountRepo storage.DiscountStorage) OrderService {
	return &orderService{
		log:          log,
		orderRepo:    orderRepo,
		discountRepo: discountRepo,
	}
}

// CreateOrder computes totals once at creation; items are immutable
// afterwards. An unknown or inactive discount code is ignored rather than
// rejected, the checkout must not fail over a stale coupon.
func (s *orderService) CreateOrder(ctx context.Context, userID int64, items []models.OrderItem, discountCode string, customer CustomerInfo) (*models.Order, error) {
	const op = "service.OrderService.CreateOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	var subtotal int64
	for _, item := range items {
		if item.Price <= 0 || item.Quantity <= 0 {
			return nil, ErrInvalidItem
		}
		subtotal += item.Price * int64(item.Quantity)
	}

	var discountAmount int64
	if discountCode != "" {
		discount, err := s.discountRepo.GetByCode(ctx, discountCode)
		if err != nil {
			if !errors.Is(err, storage.ErrDiscountNotFound) {
				logger.Error("failed to look up discount code", slog.Any("error", err))
				return nil, fmt.Errorf("%s: failed to look up discount code: %w", op, err)
			}
			logger.Warn("discount code not found, ignoring", slog.String("code", discountCode))
		} else {
			discountAmount = discount.AmountFor(subtotal)
		}
	}

	total := subtotal - discountAmount
	if total < 0 {
		total = 0
	}

	order := &models.Order{
		OrderID:        newOrderID(),
		UserID:         userID,
		CustomerName:   customer.Name,
		CustomerEmail:  customer.Email,
		Items:          items,
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TotalAmount:    total,
		Status:         models.StatusPending,
	}

	created, err := s.orderRepo.CreateOrder(ctx, order)
	if err != nil {
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	logger.Info("order created",
		slog.String("orderID", created.OrderID),
		slog.Int64("total", created.TotalAmount),
	)
	return created, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	order, err := s.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"

	orders, err := s.orderRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	const op = "service.OrderService.UpdateStatus"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", orderID))

	if !status.Valid() {
		return ErrInvalidStatus
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		logger.Error("failed to update status", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("order status updated", slog.String("status", string(status)))
	return nil
}

// newOrderID builds a human-readable order reference, e.g.
// ORD-MB4T2K1Q-7F3A9C. It doubles as the gateway buy-order field, which
// caps it at 26 characters.
func newOrderID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := strconv.FormatInt(rand.Int63n(36*36*36*36*36*36), 36)
	for len(suffix) < 6 {
		suffix = "0" + suffix
	}
	return strings.ToUpper("ORD-" + ts + "-" + suffix)
}
