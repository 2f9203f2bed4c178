package shipra

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
	"github.com/dcastano/repairhub-backend/pkg/types"
)

// statusMap translates Shipra's shipment statuses into the internal set.
var statusMap = map[string]enums.DeliveryStatus{
	"CREATED":          enums.DeliveryStatusPending,
	"COURIER_ASSIGNED": enums.DeliveryStatusAssigned,
	"OUT_FOR_PICKUP":   enums.DeliveryStatusDriverOnWay,
	"AT_DOOR":          enums.DeliveryStatusDriverArrived,
	"PICKED_UP":        enums.DeliveryStatusPickedUp,
	"IN_TRANSIT":       enums.DeliveryStatusInTransit,
	"DELIVERED":        enums.DeliveryStatusDelivered,
	"DELIVERY_FAILED":  enums.DeliveryStatusFailed,
	"CANCELLED":        enums.DeliveryStatusCancelled,
	"RETURNED":         enums.DeliveryStatusReturned,
}

// Client integrates the Shipra logistics API. Shipra has no single booking
// call: a leg is arranged as a chain of address, parcel, shipment, rate
// quote and pickup requests, and an error names the step that broke so
// operators can resume against Shipra's dashboard.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a Shipra client from configuration.
func NewClient(cfg config.ShipraConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("shipra base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("shipra api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Name() enums.CourierProvider {
	return enums.CourierProviderShipra
}

// ConfirmsCashOnDelivery is false: Shipra reports cash collected without a
// driver-level confirmation, so those events stay in awaiting state for
// manual review.
func (c *Client) ConfirmsCashOnDelivery() bool {
	return false
}

func (c *Client) MapStatus(raw string) (enums.DeliveryStatus, bool) {
	status, ok := statusMap[strings.ToUpper(strings.TrimSpace(raw))]
	return status, ok
}

type addressRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	Street2  string `json:"street2,omitempty"`
	City     string `json:"city"`
	Region   string `json:"region,omitempty"`
	PostCode string `json:"post_code,omitempty"`
	Country  string `json:"country"`
}

type addressResponse struct {
	ID string `json:"id"`
}

type parcelRequest struct {
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

type parcelResponse struct {
	ID string `json:"id"`
}

type shipmentRequest struct {
	FromAddressID string  `json:"from_address_id"`
	ToAddressID   string  `json:"to_address_id"`
	ParcelID      string  `json:"parcel_id"`
	PickupAfter   *string `json:"pickup_after,omitempty"`
}

type shipmentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	TrackingCode string `json:"tracking_code"`
}

type rate struct {
	ID         string `json:"id"`
	PriceCents int64  `json:"price_cents"`
	Service    string `json:"service"`
}

type ratesResponse struct {
	Rates []rate `json:"rates"`
}

type pickupRequest struct {
	RateID string `json:"rate_id"`
}

func (c *Client) Book(ctx context.Context, req couriers.BookingRequest) (*couriers.Booking, error) {
	fromID, err := c.createAddress(ctx, req.PickupAddress, req.PickupContact)
	if err != nil {
		return nil, stepError(err, "create_pickup_address")
	}
	toID, err := c.createAddress(ctx, req.DropoffAddress, req.DropoffContact)
	if err != nil {
		return nil, stepError(err, "create_dropoff_address")
	}

	var parcel parcelResponse
	err = c.doJSON(ctx, http.MethodPost, "/v2/parcels", parcelRequest{
		Reference:   req.Reference,
		Description: "appliance repair shipment",
	}, &parcel)
	if err != nil {
		return nil, stepError(err, "create_parcel")
	}

	shipmentBody := shipmentRequest{
		FromAddressID: fromID,
		ToAddressID:   toID,
		ParcelID:      parcel.ID,
	}
	if req.ScheduledPickup != nil {
		formatted := req.ScheduledPickup.UTC().Format(time.RFC3339)
		shipmentBody.PickupAfter = &formatted
	}
	var shipment shipmentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/shipments", shipmentBody, &shipment); err != nil {
		return nil, stepError(err, "create_shipment")
	}

	var rates ratesResponse
	ratesPath := fmt.Sprintf("/v2/shipments/%s/rates", shipment.ID)
	if err := c.doJSON(ctx, http.MethodGet, ratesPath, nil, &rates); err != nil {
		return nil, stepError(err, "quote_rates")
	}
	best, err := cheapestRate(rates.Rates)
	if err != nil {
		return nil, stepError(err, "quote_rates")
	}

	pickupPath := fmt.Sprintf("/v2/shipments/%s/pickup", shipment.ID)
	if err := c.doJSON(ctx, http.MethodPost, pickupPath, pickupRequest{RateID: best.ID}, nil); err != nil {
		return nil, stepError(err, "arrange_pickup")
	}

	status, ok := c.MapStatus(shipment.Status)
	if !ok {
		status = enums.DeliveryStatusPending
	}
	return &couriers.Booking{
		ProviderOrderID:    shipment.ID,
		EstimatedCostCents: best.PriceCents,
		TrackingReference:  shipment.TrackingCode,
		Status:             status,
	}, nil
}

func (c *Client) Cancel(ctx context.Context, providerOrderID string) error {
	path := fmt.Sprintf("/v2/shipments/%s/cancel", providerOrderID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return stepError(err, "cancel_shipment")
	}
	return nil
}

func (c *Client) createAddress(ctx context.Context, addr types.Address, contact types.Contact) (string, error) {
	body := addressRequest{
		Name:     contact.Name,
		Phone:    contact.Phone,
		Street:   addr.Line1,
		Street2:  addr.Line2,
		City:     addr.City,
		Region:   addr.Region,
		PostCode: addr.PostalCode,
		Country:  addr.Country,
	}
	var resp addressResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/addresses", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shipra returned an address without an id")
	}
	return resp.ID, nil
}

func cheapestRate(rates []rate) (rate, error) {
	if len(rates) == 0 {
		return rate{}, pkgerrors.New(pkgerrors.CodeDependency, "shipra offered no rates for shipment")
	}
	best := rates[0]
	for _, candidate := range rates[1:] {
		if candidate.PriceCents < best.PriceCents {
			best = candidate
		}
	}
	return best, nil
}

// stepError tags a dependency error with the chain step that failed.
func stepError(err error, step string) error {
	if typed := pkgerrors.As(err); typed != nil {
		details, _ := typed.Details().(map[string]any)
		if details == nil {
			details = map[string]any{}
		}
		details["step"] = step
		return typed.WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shipra "+step).
		WithDetails(map[string]any{"step": step})
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode shipra request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build shipra request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call shipra")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("shipra responded %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": string(payload)})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shipra response")
	}
	return nil
}
