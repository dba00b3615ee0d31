package payclient

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ChargeRequest describes a single outbound charge. It is treated as
// immutable once constructed; the client never mutates it.
type ChargeRequest struct {
	// Amount is the charge amount in major units. Must be positive.
	Amount float64 `json:"amount"`

	// Currency is the ISO currency code for the charge.
	Currency string `json:"currency"`

	// PaymentMethod identifies the payment instrument to charge.
	PaymentMethod string `json:"payment_method"`

	// Metadata carries opaque key/value pairs passed through to the
	// payment service unchanged.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the request against the charge contract. A validation
// failure is a programming error on the caller's side and is reported
// before any network attempt is made.
func (r ChargeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Amount,
			validation.Required,
			validation.Min(0.0).Exclusive(),
		),
		validation.Field(&r.Currency,
			validation.Required,
			validation.Length(3, 3),
		),
		validation.Field(&r.PaymentMethod,
			validation.Required,
		),
	)
}

// Outcome distinguishes the three terminal shapes of a charge call.
type Outcome int

const (
	// OutcomeSuccess means the payment service accepted the charge.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure means the charge definitively failed; ErrorKind
	// says how.
	OutcomeFailure

	// OutcomeTimeout means every attempt exceeded its deadline. The
	// charge may or may not have been committed remotely; callers are
	// expected to use idempotency keys upstream.
	OutcomeTimeout
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ChargeResult is the typed outcome of a Charge call. Exactly one variant
// is populated: Success carries PaymentID and ProviderResponse, Failure
// carries ErrorKind and Message, Timeout carries Elapsed.
type ChargeResult struct {
	// Outcome tags which variant this result is.
	Outcome Outcome `json:"outcome"`

	// PaymentID is the provider-assigned id of a successful charge.
	PaymentID string `json:"payment_id,omitempty"`

	// ProviderResponse is the decoded provider reply for a successful
	// charge.
	ProviderResponse map[string]any `json:"provider_response,omitempty"`

	// ErrorKind classifies a failure.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Message is a human-readable description of a failure.
	Message string `json:"message,omitempty"`

	// Elapsed is the total wall time the call spent, across all attempts.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Attempts is the number of transport calls actually made.
	Attempts int `json:"attempts"`
}

// Succeeded reports whether the charge completed successfully.
func (r ChargeResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

func successResult(paymentID string, provider map[string]any, attempts int) ChargeResult {
	return ChargeResult{
		Outcome:          OutcomeSuccess,
		PaymentID:        paymentID,
		ProviderResponse: provider,
		Attempts:         attempts,
	}
}

func failureResult(kind ErrorKind, message string, attempts int) ChargeResult {
	return ChargeResult{
		Outcome:   OutcomeFailure,
		ErrorKind: kind,
		Message:   message,
		Attempts:  attempts,
	}
}

func timeoutResult(elapsed time.Duration, attempts int) ChargeResult {
	return ChargeResult{
		Outcome:  OutcomeTimeout,
		Elapsed:  elapsed,
		Attempts: attempts,
	}
}
