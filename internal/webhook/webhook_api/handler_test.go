package webhook_api_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tickets "petzi-tickets/internal/tickets/service"
	"petzi-tickets/internal/webhook/signature"
	"petzi-tickets/internal/webhook/webhook_api"
)

const testSecret = "petzi-test-secret"

// MockIngester records ingestion calls so tests can assert whether the
// store was touched at all.
type MockIngester struct {
	calls         int
	lastPayload   map[string]interface{}
	lastTimestamp string
	errorToReturn error
}

func (m *MockIngester) IngestWebhook(ctx context.Context, payload map[string]interface{}, signatureTimestamp string) (tickets.IngestResult, error) {
	m.calls++
	m.lastPayload = payload
	m.lastTimestamp = signatureTimestamp
	if m.errorToReturn != nil {
		return tickets.IngestResult{}, m.errorToReturn
	}
	number, _ := payload["number"].(string)
	return tickets.IngestResult{TicketID: number}, nil
}

func newRequest(method string, body []byte, signed bool) *http.Request {
	req := httptest.NewRequest(method, "/webhook/petzi", bytes.NewReader(body))
	if signed {
		req.Header.Set("Petzi-Signature", signature.BuildHeader(testSecret, "1693932000", body))
	}
	return req
}

func TestHandlePetziWebhook_Success(t *testing.T) {
	mock := &MockIngester{}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	body := []byte(`{"event":"ticket_created","number":"T-1"}`)
	rec := httptest.NewRecorder()
	handler.HandlePetziWebhook(rec, newRequest(http.MethodPost, body, true))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	require.Equal(t, 1, mock.calls)
	assert.Equal(t, "ticket_created", mock.lastPayload["event"])
	assert.Equal(t, "1693932000", mock.lastTimestamp)
}

func TestHandlePetziWebhook_WrongMethod(t *testing.T) {
	mock := &MockIngester{}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		handler.HandlePetziWebhook(rec, newRequest(method, nil, false))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
	assert.Zero(t, mock.calls)
}

func TestHandlePetziWebhook_MissingSignature_NoStoreAccess(t *testing.T) {
	mock := &MockIngester{}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	rec := httptest.NewRecorder()
	handler.HandlePetziWebhook(rec, newRequest(http.MethodPost, []byte(`{}`), false))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing signature")
	assert.Zero(t, mock.calls, "a delivery without a signature must never reach the store")
}

func TestHandlePetziWebhook_InvalidSignature(t *testing.T) {
	mock := &MockIngester{}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	body := []byte(`{"event":"ticket_created"}`)
	req := newRequest(http.MethodPost, body, false)
	req.Header.Set("Petzi-Signature", signature.BuildHeader("wrong-secret", "1693932000", body))

	rec := httptest.NewRecorder()
	handler.HandlePetziWebhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid signature")
	assert.Zero(t, mock.calls)
}

func TestHandlePetziWebhook_MalformedSignatureHeader(t *testing.T) {
	mock := &MockIngester{}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	req := newRequest(http.MethodPost, []byte(`{}`), false)
	req.Header.Set("Petzi-Signature", "not-a-signature")

	rec := httptest.NewRecorder()
	handler.HandlePetziWebhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, mock.calls)
}

func TestHandlePetziWebhook_InvalidJSON(t *testing.T) {
	mock := &MockIngester{}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	// Correctly signed, but the body is not JSON: signature verification
	// happens on raw bytes, parsing only afterwards.
	body := []byte(`{"event": `)
	rec := httptest.NewRecorder()
	handler.HandlePetziWebhook(rec, newRequest(http.MethodPost, body, true))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid JSON")
	assert.Zero(t, mock.calls)
}

func TestHandlePetziWebhook_StoreFailure(t *testing.T) {
	mock := &MockIngester{errorToReturn: errors.New("redis unavailable")}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	body := []byte(`{"event":"ticket_created"}`)
	rec := httptest.NewRecorder()
	handler.HandlePetziWebhook(rec, newRequest(http.MethodPost, body, true))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server error")
}

func TestHandlePetziWebhook_RawBodySignature(t *testing.T) {
	mock := &MockIngester{}
	handler := webhook_api.NewHandler(mock, testSecret, nil)

	// Signature computed over a differently serialized form of the same
	// JSON must be rejected: verification uses the wire bytes.
	sent := []byte(`{"a": 1, "b": 2}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/petzi", bytes.NewReader(sent))
	req.Header.Set("Petzi-Signature", signature.BuildHeader(testSecret, "1693932000", []byte(`{"a":1,"b":2}`)))

	rec := httptest.NewRecorder()
	handler.HandlePetziWebhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, mock.calls)
}
