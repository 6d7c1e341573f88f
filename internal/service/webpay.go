package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tomasrv/tienda-backend/internal/domain/models"
	"github.com/tomasrv/tienda-backend/internal/gateway/webpay"
	"github.com/tomasrv/tienda-backend/internal/storage"
)

// PaymentRedirect is what the checkout page needs to hand the browser to
// the gateway: the form URL and the token to POST to it.
type PaymentRedirect struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// CommitOutcome is the reconciled result of a payment commit. Result is
// the raw gateway snapshot; for an already-completed order it is the
// previously stored one.
type CommitOutcome struct {
	OrderID  string
	Approved bool
	Result   json.RawMessage
}

type WebpayService interface {
	// CreatePayment starts a payment attempt for an existing, unpaid order
	// with a positive amount.
	CreatePayment(ctx context.Context, orderID string) (*PaymentRedirect, error)
	// Commit finalizes a payment attempt. orderID is optional; when empty
	// the order is resolved from the token.
	Commit(ctx context.Context, token, orderID string) (*CommitOutcome, error)
}

type webpayService struct {
	log       *slog.Logger
	orderRepo storage.OrderStorage
	gateway   webpay.Client
	notifier  OrderNotifier
	returnURL string
}

// NewWebpayService wires the payment flow. returnURL is the absolute
// backend URL the gateway redirects the browser back to.
func NewWebpayService(log *slog.Logger, orderRepo storage.OrderStorage, gateway webpay.Client, notifier OrderNotifier, returnURL string) WebpayService {
	return &webpayService{
		log:       log,
		orderRepo: orderRepo,
		gateway:   gateway,
		notifier:  notifier,
		returnURL: returnURL,
	}
}

func (s *webpayService) CreatePayment(ctx context.Context, orderID string) (*PaymentRedirect, error) {
	const op = "service.WebpayService.CreatePayment"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", orderID))

	order, err := s.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}

	if order.Status == models.StatusCompleted {
		return nil, ErrAlreadyPaid
	}
	if order.TotalAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	sessionID := "S-" + uuid.NewString()

	resp, err := s.gateway.Create(ctx, order.OrderID, sessionID, order.TotalAmount, s.returnURL)
	if err != nil {
		logger.Error("gateway create failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// A repeated create simply replaces the previous token; one active
	// attempt per order.
	if err := s.orderRepo.AttachPaymentToken(ctx, order.OrderID, resp.Token, sessionID); err != nil {
		logger.Error("failed to store payment token", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to store payment token: %w", op, err)
	}

	logger.Info("payment attempt created", slog.String("sessionID", sessionID))
	return &PaymentRedirect{URL: resp.URL, Token: resp.Token}, nil
}

func (s *webpayService) Commit(ctx context.Context, token, orderID string) (*CommitOutcome, error) {
	const op = "service.WebpayService.Commit"
	logger := s.log.With(slog.String("op", op))

	// Explicit caller intent wins over token matching: a stored token can
	// go stale after a fresh create.
	var (
		order *models.Order
		err   error
	)
	if orderID != "" {
		order, err = s.orderRepo.GetByOrderID(ctx, orderID)
	} else {
		order, err = s.orderRepo.GetByWebpayToken(ctx, token)
	}
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		logger.Error("failed to look up order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to look up order: %w", op, err)
	}
	logger = logger.With(slog.String("orderID", order.OrderID))

	// Idempotency guard: a completed order returns its stored result
	// without touching the gateway, so repeated commits cannot double-credit
	// or resend emails. Failed orders are allowed to retry.
	if order.Status == models.StatusCompleted {
		logger.Info("commit replayed for completed order")
		return &CommitOutcome{
			OrderID:  order.OrderID,
			Approved: order.PaidAt != nil,
			Result:   order.WebpayResult,
		}, nil
	}

	result, err := s.gateway.Commit(ctx, token)
	if err != nil {
		logger.Error("gateway commit failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	approved := result.Approved()
	won, err := s.orderRepo.RecordCommitResult(ctx, order.OrderID, approved, result.Raw)
	if err != nil {
		logger.Error("failed to record commit result", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to record commit result: %w", op, err)
	}
	if !won {
		// A concurrent commit completed the order first; converge on its
		// stored result.
		stored, err := s.orderRepo.GetByOrderID(ctx, order.OrderID)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to reload order: %w", op, err)
		}
		logger.Info("commit lost race, returning stored result")
		return &CommitOutcome{
			OrderID:  stored.OrderID,
			Approved: stored.PaidAt != nil,
			Result:   stored.WebpayResult,
		}, nil
	}

	if approved {
		logger.Info("payment approved",
			slog.Int64("amount", result.Amount),
			slog.String("authorizationCode", result.AuthorizationCode),
		)
		// Best-effort: email failures are logged inside the notifier and
		// never affect the committed payment.
		s.notifier.OrderPaid(ctx, order, result)
	} else {
		logger.Warn("payment rejected", slog.Int("responseCode", result.ResponseCode))
	}

	return &CommitOutcome{
		OrderID:  order.OrderID,
		Approved: approved,
		Result:   result.Raw,
	}, nil
}
