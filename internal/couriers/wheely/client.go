package wheely

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dcastano/repairhub-backend/internal/couriers"
	"github.com/dcastano/repairhub-backend/pkg/config"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
)

// statusMap translates Wheely's order statuses into the internal set.
var statusMap = map[string]enums.DeliveryStatus{
	"new":                enums.DeliveryStatusPending,
	"assigned":           enums.DeliveryStatusAssigned,
	"enroute_pickup":     enums.DeliveryStatusDriverOnWay,
	"arrived":            enums.DeliveryStatusDriverArrived,
	"collected":          enums.DeliveryStatusPickedUp,
	"enroute_dropoff":    enums.DeliveryStatusInTransit,
	"delivered":          enums.DeliveryStatusDelivered,
	"undeliverable":      enums.DeliveryStatusFailed,
	"canceled":           enums.DeliveryStatusCancelled,
	"returned_to_sender": enums.DeliveryStatusReturned,
}

// Client integrates the Wheely same-day courier API. Wheely books a leg
// with a single order call and its drivers confirm cash collection in the
// app, so cash-on-delivery events from it are trusted.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a Wheely client from configuration.
func NewClient(cfg config.WheelyConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("wheely base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("wheely api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Name() enums.CourierProvider {
	return enums.CourierProviderWheely
}

func (c *Client) ConfirmsCashOnDelivery() bool {
	return true
}

func (c *Client) MapStatus(raw string) (enums.DeliveryStatus, bool) {
	status, ok := statusMap[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

type orderRequest struct {
	Reference      string  `json:"reference"`
	PickupAddress  string  `json:"pickup_address"`
	PickupName     string  `json:"pickup_name"`
	PickupPhone    string  `json:"pickup_phone"`
	DropoffAddress string  `json:"dropoff_address"`
	DropoffName    string  `json:"dropoff_name"`
	DropoffPhone   string  `json:"dropoff_phone"`
	PickupAfter    *string `json:"pickup_after,omitempty"`
}

type orderResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	FeeCents     int64  `json:"fee_cents"`
	TrackingCode string `json:"tracking_code"`
}

func (c *Client) Book(ctx context.Context, req couriers.BookingRequest) (*couriers.Booking, error) {
	body := orderRequest{
		Reference:      req.Reference,
		PickupAddress:  req.PickupAddress.OneLine(),
		PickupName:     req.PickupContact.Name,
		PickupPhone:    req.PickupContact.Phone,
		DropoffAddress: req.DropoffAddress.OneLine(),
		DropoffName:    req.DropoffContact.Name,
		DropoffPhone:   req.DropoffContact.Phone,
	}
	if req.ScheduledPickup != nil {
		formatted := req.ScheduledPickup.UTC().Format(time.RFC3339)
		body.PickupAfter = &formatted
	}

	var resp orderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wheely returned an order without an id")
	}

	status, ok := c.MapStatus(resp.Status)
	if !ok {
		status = enums.DeliveryStatusPending
	}
	return &couriers.Booking{
		ProviderOrderID:    resp.ID,
		EstimatedCostCents: resp.FeeCents,
		TrackingReference:  resp.TrackingCode,
		Status:             status,
	}, nil
}

func (c *Client) Cancel(ctx context.Context, providerOrderID string) error {
	path := fmt.Sprintf("/v1/orders/%s/cancel", providerOrderID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode wheely request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build wheely request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call wheely")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("wheely responded %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": string(payload)})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode wheely response")
	}
	return nil
}
