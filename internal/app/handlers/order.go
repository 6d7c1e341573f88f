package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tomasrv/tienda-backend/internal/auth/jwtmiddleware"
	"github.com/tomasrv/tienda-backend/internal/domain/models"
	"github.com/tomasrv/tienda-backend/internal/service"
)

// CreateOrderRequest is the checkout payload. Item prices are snapshots
// sent by the storefront and validated as positive.
type CreateOrderRequest struct {
	Items []struct {
		ProductID string `json:"product_id" validate:"required"`
		Name      string `json:"name" validate:"required"`
		Price     int64  `json:"price" validate:"required,gt=0"`
		Quantity  int    `json:"quantity" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
	DiscountCode string `json:"discount_code"`
	Customer     struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
	} `json:"customer"`
}

// CreateOrderHandler handles POST /api/transactions.
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items := make([]models.OrderItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, models.OrderItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				Price:     item.Price,
				Quantity:  item.Quantity,
			})
		}

		order, err := orderService.CreateOrder(r.Context(), userID, items, req.DiscountCode, service.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
		})
		if err != nil {
			logger.Error("failed to create order", slog.Any("error", err))
			if errors.Is(err, service.ErrEmptyOrder) || errors.Is(err, service.ErrInvalidItem) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// GetOrderHandler handles GET /api/transactions/{orderID}. Orders are
// only visible to their owner.
func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			http.Error(w, "orderID parameter is required", http.StatusBadRequest)
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		order, err := orderService.GetOrder(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get order", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if order.UserID != userID {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// ListOrdersHandler handles GET /api/transactions.
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orders, err := orderService.ListOrders(r.Context(), userID)
		if err != nil {
			logger.Error("failed to list orders", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if orders == nil {
			orders = []*models.Order{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// UpdateStatusRequest carries the new status for an order.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatusHandler handles PATCH /api/transactions/{orderID}/status.
func UpdateStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateStatusHandler"
		logger := log.With(slog.String("op", op))

		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			http.Error(w, "orderID parameter is required", http.StatusBadRequest)
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		err := orderService.UpdateStatus(r.Context(), orderID, models.OrderStatus(req.Status))
		if err != nil {
			if errors.Is(err, service.ErrInvalidStatus) {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to update status", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"message": "status updated"}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}
