package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	courierwebhook "github.com/dcastano/repairhub-backend/internal/webhooks/courier"
	"github.com/dcastano/repairhub-backend/pkg/config"
	"github.com/dcastano/repairhub-backend/pkg/enums"
)

type fakeCourierWebhookService struct {
	events []courierwebhook.Event
	err    error
}

func (f *fakeCourierWebhookService) Process(ctx context.Context, event courierwebhook.Event) error {
	f.events = append(f.events, event)
	return f.err
}

func courierTestConfig() config.CouriersConfig {
	return config.CouriersConfig{
		Wheely: config.WheelyConfig{WebhookSecret: "wheely-secret"},
		Shipra: config.ShipraConfig{WebhookSecret: "shipra-secret"},
	}
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func courierTestRouter(svc CourierWebhookService) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/webhooks/couriers/{provider}", CourierWebhook(svc, courierTestConfig(), nil))
	return r
}

func postCourierEvent(router http.Handler, provider, signatureHeader, signature string, payload []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/couriers/"+provider, bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCourierWebhook_WheelyEvent(t *testing.T) {
	service := &fakeCourierWebhookService{}
	router := courierTestRouter(service)

	payload := []byte(`{
		"event_id": "evt-1",
		"order_id": "whl_123",
		"status": "delivered",
		"occurred_at": "2026-04-02T10:30:00Z",
		"location": "Springfield",
		"cash_collected": true
	}`)
	rec := postCourierEvent(router, "wheely", "X-Wheely-Signature", signPayload(payload, "wheely-secret"), payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(service.events) != 1 {
		t.Fatalf("expected one event, got %d", len(service.events))
	}
	event := service.events[0]
	if event.Provider != enums.CourierProviderWheely {
		t.Fatalf("expected wheely provider, got %s", event.Provider)
	}
	if event.ProviderOrderID != "whl_123" || event.RawStatus != "delivered" {
		t.Fatalf("unexpected event fields: %+v", event)
	}
	if !event.CashCollected {
		t.Fatalf("cash_collected must carry through")
	}
	if event.OccurredAt == nil {
		t.Fatalf("occurred_at must be parsed")
	}
}

func TestCourierWebhook_ShipraCodNormalization(t *testing.T) {
	service := &fakeCourierWebhookService{}
	router := courierTestRouter(service)

	payload := []byte(`{
		"id": "evt-9",
		"shipment_id": "shp_77",
		"status": "DELIVERED",
		"cod_amount_cents": 45000
	}`)
	rec := postCourierEvent(router, "shipra", "X-Shipra-Signature", signPayload(payload, "shipra-secret"), payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(service.events) != 1 {
		t.Fatalf("expected one event, got %d", len(service.events))
	}
	event := service.events[0]
	if event.Provider != enums.CourierProviderShipra {
		t.Fatalf("expected shipra provider, got %s", event.Provider)
	}
	if event.EventID != "evt-9" || event.ProviderOrderID != "shp_77" {
		t.Fatalf("unexpected event fields: %+v", event)
	}
	if !event.CashCollected {
		t.Fatalf("positive cod_amount_cents must set CashCollected")
	}
}

func TestCourierWebhook_InvalidSignature(t *testing.T) {
	service := &fakeCourierWebhookService{}
	router := courierTestRouter(service)

	payload := []byte(`{"event_id":"evt-1","order_id":"whl_123","status":"delivered"}`)
	rec := postCourierEvent(router, "wheely", "X-Wheely-Signature", "deadbeef", payload)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	if len(service.events) != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestCourierWebhook_MissingSignature(t *testing.T) {
	service := &fakeCourierWebhookService{}
	router := courierTestRouter(service)

	payload := []byte(`{"event_id":"evt-1","order_id":"whl_123","status":"delivered"}`)
	rec := postCourierEvent(router, "wheely", "X-Wheely-Signature", "", payload)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}
}

func TestCourierWebhook_CrossProviderSignatureRejected(t *testing.T) {
	service := &fakeCourierWebhookService{}
	router := courierTestRouter(service)

	// signed with shipra's secret but delivered to the wheely endpoint
	payload := []byte(`{"event_id":"evt-1","order_id":"whl_123","status":"delivered"}`)
	rec := postCourierEvent(router, "wheely", "X-Wheely-Signature", signPayload(payload, "shipra-secret"), payload)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for cross-provider signature, got %d", rec.Code)
	}
	if len(service.events) != 0 {
		t.Fatalf("service should not be invoked")
	}
}

func TestCourierWebhook_UnknownProvider(t *testing.T) {
	service := &fakeCourierWebhookService{}
	router := courierTestRouter(service)

	payload := []byte(`{}`)
	rec := postCourierEvent(router, "pigeonpost", "X-Wheely-Signature", signPayload(payload, "wheely-secret"), payload)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", rec.Code)
	}
}
