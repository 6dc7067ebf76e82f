package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lexure-intelligence/payment-watchdog/internal/alerts"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandlers() *Handlers {
	return NewHandlers(nil, nil, nil, nil, nil, zap.NewNop())
}

func doRequest(handler gin.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	handler(c)
	return rec
}

func TestExecutePayment_ValidationFailure(t *testing.T) {
	h := newTestHandlers()
	rec := doRequest(h.ExecutePayment, http.MethodPost, "/payments/execute", map[string]interface{}{
		"amount": -5,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require := assert.New(t)
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal("VALIDATION_FAILED", body["error"])
	details := body["details"].(map[string]interface{})
	require.Contains(details, "idempotencyKey")
	require.Contains(details, "providerType")
	require.Contains(details, "amount")
	require.Contains(details, "currencyCode")
}

func TestRefundPayment_ValidationFailure(t *testing.T) {
	h := newTestHandlers()
	rec := doRequest(h.RefundPayment, http.MethodPost, "/payments/refund", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_FAILED", body["error"])
}

func TestRegisterWebhook_MissingFields(t *testing.T) {
	h := newTestHandlers()
	rec := doRequest(h.RegisterWebhook, http.MethodPost, "/risk/webhooks", map[string]interface{}{
		"entityId": "merchant-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveWebhook_MissingQueryParams(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodDelete, "/risk/webhooks", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	h.RemoveWebhook(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListWebhooks_MissingEntityID(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/risk/webhooks", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	h.ListWebhooks(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIsNoPspAvailable(t *testing.T) {
	assert.False(t, isNoPspAvailable(nil))
}

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return gdb, mock
}

func TestListAlerts_ReturnsRecentAlerts(t *testing.T) {
	db, mock := newMockGorm(t)
	rows := sqlmock.NewRows([]string{"alert_id", "entity_id"}).AddRow("alert-1", "merchant-1")
	mock.ExpectQuery(`SELECT \* FROM "risk_alerts"`).WillReturnRows(rows)

	h := NewHandlers(nil, nil, alerts.NewStore(repository.NewAlertRepository(db)), nil, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/risk/alerts?limit=10", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	h.ListAlerts(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "alert-1", out[0]["AlertID"])
}

func TestListAlerts_DefaultsAndCapsLimit(t *testing.T) {
	db, mock := newMockGorm(t)
	mock.ExpectQuery(`SELECT \* FROM "risk_alerts"`).WillReturnRows(sqlmock.NewRows(nil))

	h := NewHandlers(nil, nil, alerts.NewStore(repository.NewAlertRepository(db)), nil, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/risk/alerts?limit=abc", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	h.ListAlerts(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterWebhook_Success(t *testing.T) {
	db, mock := newMockGorm(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "webhook_subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	h := NewHandlers(nil, nil, nil, alerts.NewSubscriptions(repository.NewWebhookRepository(db)), nil, zap.NewNop())
	rec := doRequest(h.RegisterWebhook, http.MethodPost, "/risk/webhooks", map[string]interface{}{
		"entityId":   "merchant-1",
		"webhookUrl": "https://example.com/hook",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}
