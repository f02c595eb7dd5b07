package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"settlement-svc/models"
	"settlement-svc/settlement"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	r := PrometheusRecorder{}

	before := testutil.ToFloat64(payoutAmountTotal.WithLabelValues(string(models.RoleStaff)))
	r.PayoutCreated(models.RoleStaff, 67500)
	r.PayoutCreated(models.RoleStaff, 67500)
	if got := testutil.ToFloat64(payoutAmountTotal.WithLabelValues(string(models.RoleStaff))) - before; got != 135000 {
		t.Errorf("Expected 135000 paise recorded, got %v", got)
	}

	before = testutil.ToFloat64(staffRemainderTotal)
	r.StaffRemainder(1)
	if got := testutil.ToFloat64(staffRemainderTotal) - before; got != 1 {
		t.Errorf("Expected remainder of 1, got %v", got)
	}

	before = testutil.ToFloat64(webhookEventsTotal.WithLabelValues("payment.captured", "duplicate"))
	r.WebhookHandled("payment.captured", settlement.OutcomeDuplicate)
	if got := testutil.ToFloat64(webhookEventsTotal.WithLabelValues("payment.captured", "duplicate")) - before; got != 1 {
		t.Errorf("Expected one duplicate delivery, got %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/metrics", PrometheusHandler())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ping", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), `http_requests_total{endpoint="/ping",method="GET",status="204"}`) {
		t.Error("Expected request counter for /ping")
	}
}
