package webpay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tomasrv/tienda-backend/internal/gateway/webpay"
)

func newTestClient(srv *httptest.Server) webpay.Client {
	return webpay.New(webpay.Config{
		Environment:  webpay.EnvIntegration,
		CommerceCode: "597055555532",
		APIKey:       "test-api-key",
		BaseURL:      srv.URL,
	})
}

func TestCreate_SendsRequestAndDecodes(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rswebpaytransaction/api/webpay/v1.2/transactions", r.URL.Path)
		assert.Equal(t, "597055555532", r.Header.Get("Tbk-Api-Key-Id"))
		assert.Equal(t, "test-api-key", r.Header.Get("Tbk-Api-Key-Secret"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-1","url":"https://webpay/form"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	resp, err := client.Create(context.Background(), "ORD-1", "S-1", 20000, "http://backend/return")
	assert.NoError(t, err)
	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, "https://webpay/form", resp.URL)

	assert.Equal(t, "ORD-1", gotBody["buy_order"])
	assert.Equal(t, "S-1", gotBody["session_id"])
	assert.Equal(t, float64(20000), gotBody["amount"])
	assert.Equal(t, "http://backend/return", gotBody["return_url"])
}

func TestCommit_PreservesRawBody(t *testing.T) {
	body := `{"vci":"TSY","amount":20000,"status":"AUTHORIZED","buy_order":"ORD-1","response_code":0,"authorization_code":"1213","card_detail":{"card_number":"6623"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rswebpaytransaction/api/webpay/v1.2/transactions/tok-1", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	result, err := client.Commit(context.Background(), "tok-1")
	assert.NoError(t, err)
	assert.True(t, result.Approved())
	assert.Equal(t, int64(20000), result.Amount)
	assert.Equal(t, "1213", result.AuthorizationCode)
	assert.Equal(t, "6623", result.CardDetail.CardNumber)
	assert.Equal(t, body, string(result.Raw), "raw snapshot must match the wire bytes exactly")
}

func TestStatus_UsesGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"status":"AUTHORIZED","response_code":0}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	result, err := client.Status(context.Background(), "tok-1")
	assert.NoError(t, err)
	assert.Equal(t, "AUTHORIZED", result.Status)
}

func TestCommit_GatewayErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_message":"transaction already locked"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Commit(context.Background(), "tok-1")
	assert.Error(t, err)

	var gwErr *webpay.Error
	assert.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
	assert.Equal(t, "commit", gwErr.Op)
}

func TestCreate_NetworkErrorWraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse the connection

	client := newTestClient(srv)
	_, err := client.Create(context.Background(), "ORD-1", "S-1", 20000, "http://backend/return")
	assert.Error(t, err)

	var gwErr *webpay.Error
	assert.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "create", gwErr.Op)
	assert.Equal(t, 0, gwErr.StatusCode)
}
