// Package gateway adapts lambda-style wire events to charge calls. It
// owns all wire parsing and serialization; the core client only ever sees
// validated structured requests.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/checkoutops/payclient"
)

// Event is an inbound request envelope with a JSON payment payload.
type Event struct {
	Body string `json:"body"`
}

// Response is the wire reply envelope.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Charger is the slice of the charge client the handler needs.
type Charger interface {
	Charge(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error)
}

// Handler translates events into charge calls and results back into wire
// replies.
type Handler struct {
	client Charger
	logger *slog.Logger
}

// NewHandler creates a handler around a charge client. A nil logger
// falls back to slog.Default().
func NewHandler(client Charger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, logger: logger}
}

type chargePayload struct {
	TransactionID string         `json:"transaction_id"`
	Amount        float64        `json:"amount"`
	Currency      string         `json:"currency"`
	PaymentMethod string         `json:"payment_method"`
	Metadata      map[string]any `json:"metadata"`
}

type chargeResponse struct {
	Status        string  `json:"status"`
	PaymentID     string  `json:"payment_id,omitempty"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Handle processes one payment event. Malformed events get a 400 without
// a charge attempt; charge outcomes map onto conventional status codes.
func (h *Handler) Handle(ctx context.Context, event Event) Response {
	var payload chargePayload
	if err := json.Unmarshal([]byte(event.Body), &payload); err != nil {
		h.logger.Warn("rejecting unparseable payment event", "error", err)
		return errorResponse(http.StatusBadRequest, "Invalid payment payload")
	}

	if payload.Amount == 0 || payload.PaymentMethod == "" {
		return errorResponse(http.StatusBadRequest, "Missing required payment data")
	}
	if payload.Currency == "" {
		payload.Currency = "USD"
	}
	if payload.TransactionID == "" {
		payload.TransactionID = uuid.NewString()
	}

	metadata := payload.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["transaction_id"] = payload.TransactionID

	req := payclient.ChargeRequest{
		Amount:        payload.Amount,
		Currency:      payload.Currency,
		PaymentMethod: payload.PaymentMethod,
		Metadata:      metadata,
	}

	h.logger.Info("processing payment",
		"transaction_id", payload.TransactionID,
		"amount", payload.Amount,
		"currency", payload.Currency)

	result, err := h.client.Charge(ctx, req)
	if err != nil {
		h.logger.Warn("rejecting invalid charge request",
			"transaction_id", payload.TransactionID,
			"error", err)
		return errorResponse(http.StatusBadRequest, "Invalid payment data")
	}

	return h.respond(payload, result)
}

func (h *Handler) respond(payload chargePayload, result payclient.ChargeResult) Response {
	switch result.Outcome {
	case payclient.OutcomeSuccess:
		h.logger.Info("payment successful",
			"transaction_id", payload.TransactionID,
			"payment_id", result.PaymentID)
		body, _ := json.Marshal(chargeResponse{
			Status:        "success",
			PaymentID:     result.PaymentID,
			TransactionID: payload.TransactionID,
			Amount:        payload.Amount,
			Currency:      payload.Currency,
		})
		return Response{StatusCode: http.StatusOK, Body: string(body)}

	case payclient.OutcomeTimeout:
		h.logger.Error("payment timed out",
			"transaction_id", payload.TransactionID,
			"elapsed", result.Elapsed)
		return errorResponse(http.StatusGatewayTimeout, "Payment service timeout")

	default:
		h.logger.Error("payment failed",
			"transaction_id", payload.TransactionID,
			"kind", result.ErrorKind.String(),
			"message", result.Message)
		return errorResponse(failureStatus(result.ErrorKind), "Payment processing failed: "+result.Message)
	}
}

func failureStatus(kind payclient.ErrorKind) int {
	switch kind {
	case payclient.ErrorKindClient:
		return http.StatusBadRequest
	case payclient.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case payclient.ErrorKindCircuitOpen:
		return http.StatusServiceUnavailable
	case payclient.ErrorKindTimeout, payclient.ErrorKindCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func errorResponse(status int, message string) Response {
	body, _ := json.Marshal(chargeResponse{Status: "error", Error: message})
	return Response{StatusCode: status, Body: string(body)}
}
