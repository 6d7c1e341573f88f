package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/tomasrv/tienda-backend/internal/app/handlers"
	"github.com/tomasrv/tienda-backend/internal/auth/jwtmiddleware"
	"github.com/tomasrv/tienda-backend/internal/domain/models"
	"github.com/tomasrv/tienda-backend/internal/service"
)

type fakeAuthService struct {
	token string
	err   error
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (string, error) {
	return f.token, f.err
}

type fakeWebpayService struct {
	redirect  *service.PaymentRedirect
	createErr error
	outcome   *service.CommitOutcome
	commitErr error

	gotToken   string
	gotOrderID string
}

func (f *fakeWebpayService) CreatePayment(ctx context.Context, orderID string) (*service.PaymentRedirect, error) {
	f.gotOrderID = orderID
	return f.redirect, f.createErr
}

func (f *fakeWebpayService) Commit(ctx context.Context, token, orderID string) (*service.CommitOutcome, error) {
	f.gotToken = token
	f.gotOrderID = orderID
	return f.outcome, f.commitErr
}

type fakeOrderService struct {
	order *models.Order
	err   error
}

func (f *fakeOrderService) CreateOrder(ctx context.Context, userID int64, items []models.OrderItem, discountCode string, customer service.CustomerInfo) (*models.Order, error) {
	return f.order, f.err
}

func (f *fakeOrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return f.order, f.err
}

func (f *fakeOrderService) ListOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	if f.order == nil {
		return nil, f.err
	}
	return []*models.Order{f.order}, f.err
}

func (f *fakeOrderService) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func withUser(r *http.Request, userID int64) *http.Request {
	ctx := context.WithValue(r.Context(), jwtmiddleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

func TestAuthHandler_Success(t *testing.T) {
	handler := handlers.AuthHandler(testLogger(), &fakeAuthService{token: "test-token"})

	reqBody := `{"email": "ana@example.com", "password": "password123"}`
	req := httptest.NewRequest("POST", "/api/auth", bytes.NewBufferString(reqBody))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Token string `json:"token"`
	}
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "test-token", resp.Token)
}

func TestAuthHandler_ValidationError(t *testing.T) {
	handler := handlers.AuthHandler(testLogger(), &fakeAuthService{})

	reqBody := `{"email": "ana@example.com", "password": "short"}`
	req := httptest.NewRequest("POST", "/api/auth", bytes.NewBufferString(reqBody))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateWebpayHandler_Success(t *testing.T) {
	fake := &fakeWebpayService{redirect: &service.PaymentRedirect{URL: "https://webpay/form", Token: "tok-1"}}
	handler := handlers.CreateWebpayHandler(testLogger(), fake)

	req := httptest.NewRequest("POST", "/api/webpay/create", bytes.NewBufferString(`{"order_id": "ORD-1"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ORD-1", fake.gotOrderID)

	var resp service.PaymentRedirect
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, "https://webpay/form", resp.URL)
}

func TestCreateWebpayHandler_MissingOrderID(t *testing.T) {
	handler := handlers.CreateWebpayHandler(testLogger(), &fakeWebpayService{})

	req := httptest.NewRequest("POST", "/api/webpay/create", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateWebpayHandler_NotFound(t *testing.T) {
	handler := handlers.CreateWebpayHandler(testLogger(), &fakeWebpayService{createErr: service.ErrOrderNotFound})

	req := httptest.NewRequest("POST", "/api/webpay/create", bytes.NewBufferString(`{"order_id": "ORD-X"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateWebpayHandler_AlreadyPaid(t *testing.T) {
	handler := handlers.CreateWebpayHandler(testLogger(), &fakeWebpayService{createErr: service.ErrAlreadyPaid})

	req := httptest.NewRequest("POST", "/api/webpay/create", bytes.NewBufferString(`{"order_id": "ORD-1"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReturnWebpayHandler_WithToken(t *testing.T) {
	handler := handlers.ReturnWebpayHandler(testLogger(), "http://front")

	req := httptest.NewRequest("GET", "/api/webpay/return?token_ws=tok-1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	loc := rr.Header().Get("Location")
	assert.Equal(t, "http://front/pages/resultado-pago.html?token_ws=tok-1", loc)
}

func TestReturnWebpayHandler_NoTokenIsCancelled(t *testing.T) {
	handler := handlers.ReturnWebpayHandler(testLogger(), "http://front")

	req := httptest.NewRequest("POST", "/api/webpay/return", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	loc := rr.Header().Get("Location")
	assert.Contains(t, loc, "status=cancelled")
	assert.NotContains(t, loc, "token_ws")
}

func TestReturnWebpayHandler_AbortedFlow(t *testing.T) {
	handler := handlers.ReturnWebpayHandler(testLogger(), "http://front")

	req := httptest.NewRequest("GET", "/api/webpay/return?TBK_TOKEN=abc&TBK_ORDEN_COMPRA=ORD-1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "status=cancelled")
}

func TestCommitWebpayHandler_Success(t *testing.T) {
	fake := &fakeWebpayService{outcome: &service.CommitOutcome{
		OrderID:  "ORD-1",
		Approved: true,
		Result:   json.RawMessage(`{"response_code":0,"authorization_code":"1213"}`),
	}}
	handler := handlers.CommitWebpayHandler(testLogger(), fake)

	req := httptest.NewRequest("POST", "/api/webpay/commit", bytes.NewBufferString(`{"token_ws": "tok-1"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "tok-1", fake.gotToken)

	var resp map[string]interface{}
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "ORD-1", resp["order_id"])
	assert.Equal(t, "payment approved", resp["message"])
	assert.Equal(t, "1213", resp["authorization_code"])
}

func TestCommitWebpayHandler_MissingToken(t *testing.T) {
	handler := handlers.CommitWebpayHandler(testLogger(), &fakeWebpayService{})

	req := httptest.NewRequest("POST", "/api/webpay/commit", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommitWebpayHandler_NotFound(t *testing.T) {
	handler := handlers.CommitWebpayHandler(testLogger(), &fakeWebpayService{commitErr: service.ErrOrderNotFound})

	req := httptest.NewRequest("POST", "/api/webpay/commit", bytes.NewBufferString(`{"token_ws": "tok-x"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateOrderHandler_Success(t *testing.T) {
	fake := &fakeOrderService{order: &models.Order{OrderID: "ORD-1", Status: models.StatusPending, TotalAmount: 20000}}
	handler := handlers.CreateOrderHandler(testLogger(), fake)

	reqBody := `{
		"items": [{"product_id": "p1", "name": "Polera", "price": 10000, "quantity": 2}],
		"customer": {"name": "Ana", "email": "ana@example.com"}
	}`
	req := httptest.NewRequest("POST", "/api/transactions", bytes.NewBufferString(reqBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp models.Order
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ORD-1", resp.OrderID)
}

func TestCreateOrderHandler_Unauthorized(t *testing.T) {
	handler := handlers.CreateOrderHandler(testLogger(), &fakeOrderService{})

	reqBody := `{
		"items": [{"product_id": "p1", "name": "Polera", "price": 10000, "quantity": 2}],
		"customer": {"name": "Ana", "email": "ana@example.com"}
	}`
	req := httptest.NewRequest("POST", "/api/transactions", bytes.NewBufferString(reqBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateOrderHandler_EmptyItems(t *testing.T) {
	handler := handlers.CreateOrderHandler(testLogger(), &fakeOrderService{})

	reqBody := `{"items": [], "customer": {"name": "Ana", "email": "ana@example.com"}}`
	req := httptest.NewRequest("POST", "/api/transactions", bytes.NewBufferString(reqBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// chiRouterTest routes through chi so URL params resolve.
func chiRouterTest(t *testing.T, method, path, body string, svc service.OrderService, wantCode int) {
	t.Helper()
	router := chi.NewRouter()
	router.Patch("/api/transactions/{orderID}/status", handlers.UpdateStatusHandler(testLogger(), svc))

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, wantCode, rr.Code)
}

func TestUpdateStatusHandler_InvalidStatus(t *testing.T) {
	chiRouterTest(t, "PATCH", "/api/transactions/ORD-1/status", `{"status": "teleported"}`,
		&fakeOrderService{err: service.ErrInvalidStatus}, http.StatusBadRequest)
}

func TestUpdateStatusHandler_NotFound(t *testing.T) {
	chiRouterTest(t, "PATCH", "/api/transactions/ORD-X/status", `{"status": "shipped"}`,
		&fakeOrderService{err: service.ErrOrderNotFound}, http.StatusNotFound)
}
