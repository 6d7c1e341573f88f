package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tomasrv/tienda-backend/internal/service"
)

// resultPage is the storefront page the gateway return flow lands on.
const resultPage = "/pages/resultado-pago.html"

type CreatePaymentRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// CreateWebpayHandler handles POST /api/webpay/create.
func CreateWebpayHandler(log *slog.Logger, webpayService service.WebpayService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateWebpayHandler"
		logger := log.With(slog.String("op", op))

		var req CreatePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.OrderID == "" {
			http.Error(w, "order_id is required", http.StatusBadRequest)
			return
		}

		redirect, err := webpayService.CreatePayment(r.Context(), req.OrderID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, service.ErrAlreadyPaid):
				http.Error(w, "order is already paid", http.StatusBadRequest)
			case errors.Is(err, service.ErrInvalidAmount):
				http.Error(w, "order amount must be positive", http.StatusBadRequest)
			default:
				// Gateway details stay in the server log; the client gets a
				// generic message.
				logger.Error("payment creation failed", slog.Any("error", err))
				http.Error(w, "payment gateway error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(redirect); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// ReturnWebpayHandler handles the gateway-initiated return (GET or POST).
// It mutates nothing: it relays the token, or a cancelled/error marker, to
// the frontend result page.
func ReturnWebpayHandler(log *slog.Logger, frontendURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ReturnWebpayHandler"
		logger := log.With(slog.String("op", op))

		if err := r.ParseForm(); err != nil {
			logger.Error("failed to parse return form", slog.Any("error", err))
			http.Redirect(w, r, frontendURL+resultPage+"?status=error", http.StatusFound)
			return
		}

		token := r.Form.Get("token_ws")
		// TBK_TOKEN instead of token_ws means the user aborted on the
		// gateway page.
		aborted := r.Form.Get("TBK_TOKEN")

		target := frontendURL + resultPage
		switch {
		case token != "":
			target += "?token_ws=" + url.QueryEscape(token)
		case aborted != "":
			logger.Info("payment aborted by user")
			target += "?status=cancelled"
		default:
			logger.Info("return without token, treating as cancelled")
			target += "?status=cancelled"
		}

		http.Redirect(w, r, target, http.StatusFound)
	}
}

type CommitPaymentRequest struct {
	TokenWS string `json:"token_ws"`
	OrderID string `json:"order_id"`
}

// CommitWebpayHandler handles POST /api/webpay/commit. The response
// flattens the gateway result fields next to success/message/order_id.
func CommitWebpayHandler(log *slog.Logger, webpayService service.WebpayService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CommitWebpayHandler"
		logger := log.With(slog.String("op", op))

		var req CommitPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.TokenWS == "" {
			http.Error(w, "token_ws is required", http.StatusBadRequest)
			return
		}

		outcome, err := webpayService.Commit(r.Context(), req.TokenWS, req.OrderID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "transaction not found", http.StatusNotFound)
				return
			}
			logger.Error("payment commit failed", slog.Any("error", err))
			http.Error(w, "payment gateway error", http.StatusInternalServerError)
			return
		}

		resp := map[string]interface{}{}
		if len(outcome.Result) > 0 {
			if err := json.Unmarshal(outcome.Result, &resp); err != nil {
				logger.Error("failed to decode stored result", slog.Any("error", err))
				resp = map[string]interface{}{}
			}
		}
		resp["success"] = outcome.Approved
		resp["order_id"] = outcome.OrderID
		if outcome.Approved {
			resp["message"] = "payment approved"
		} else {
			resp["message"] = "payment rejected"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}
