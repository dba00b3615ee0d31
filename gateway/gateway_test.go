package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/checkoutops/payclient"
	"github.com/checkoutops/payclient/gateway"
)

type mockCharger struct {
	chargeFunc func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error)
	callCount  atomic.Int32
}

func (m *mockCharger) Charge(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
	m.callCount.Add(1)
	if m.chargeFunc != nil {
		return m.chargeFunc(ctx, req)
	}
	return payclient.ChargeResult{}, nil
}

func decodeBody(resp gateway.Response) map[string]any {
	var body map[string]any
	Expect(json.Unmarshal([]byte(resp.Body), &body)).To(Succeed())
	return body
}

var _ = Describe("Handler", func() {
	var (
		charger *mockCharger
		handler *gateway.Handler
		ctx     context.Context
	)

	BeforeEach(func() {
		charger = &mockCharger{}
		handler = gateway.NewHandler(charger, slog.Default())
		ctx = context.Background()
	})

	event := func(body string) gateway.Event {
		return gateway.Event{Body: body}
	}

	Describe("event validation", func() {
		It("rejects an unparseable body without charging", func() {
			resp := handler.Handle(ctx, event("{not json"))

			Expect(resp.StatusCode).To(Equal(400))
			Expect(decodeBody(resp)["error"]).To(Equal("Invalid payment payload"))
			Expect(charger.callCount.Load()).To(Equal(int32(0)))
		})

		It("rejects a payload without an amount", func() {
			resp := handler.Handle(ctx, event(`{"payment_method":"card_tok_visa"}`))

			Expect(resp.StatusCode).To(Equal(400))
			Expect(decodeBody(resp)["error"]).To(Equal("Missing required payment data"))
			Expect(charger.callCount.Load()).To(Equal(int32(0)))
		})

		It("rejects a payload without a payment method", func() {
			resp := handler.Handle(ctx, event(`{"amount":99.99}`))

			Expect(resp.StatusCode).To(Equal(400))
			Expect(charger.callCount.Load()).To(Equal(int32(0)))
		})

		It("returns 400 when the client rejects the request contract", func() {
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				return payclient.ChargeResult{}, errors.New("currency: the length must be exactly 3")
			}

			resp := handler.Handle(ctx, event(`{"amount":99.99,"currency":"DOLLARS","payment_method":"card_tok_visa"}`))

			Expect(resp.StatusCode).To(Equal(400))
			Expect(decodeBody(resp)["error"]).To(Equal("Invalid payment data"))
		})
	})

	Describe("request shaping", func() {
		It("defaults the currency to USD", func() {
			var captured payclient.ChargeRequest
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				captured = req
				return payclient.ChargeResult{Outcome: payclient.OutcomeSuccess, PaymentID: "pay_abc123"}, nil
			}

			handler.Handle(ctx, event(`{"amount":99.99,"payment_method":"card_tok_visa"}`))

			Expect(captured.Currency).To(Equal("USD"))
		})

		It("generates a transaction id when the payload omits one", func() {
			var captured payclient.ChargeRequest
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				captured = req
				return payclient.ChargeResult{Outcome: payclient.OutcomeSuccess}, nil
			}

			resp := handler.Handle(ctx, event(`{"amount":10,"currency":"USD","payment_method":"card_tok_visa"}`))

			Expect(resp.StatusCode).To(Equal(200))
			Expect(captured.Metadata).To(HaveKey("transaction_id"))
			Expect(captured.Metadata["transaction_id"]).NotTo(BeEmpty())
		})

		It("carries a caller-supplied transaction id through to the metadata", func() {
			var captured payclient.ChargeRequest
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				captured = req
				return payclient.ChargeResult{Outcome: payclient.OutcomeSuccess}, nil
			}

			handler.Handle(ctx, event(`{"transaction_id":"txn_789","amount":10,"currency":"USD","payment_method":"card_tok_visa"}`))

			Expect(captured.Metadata["transaction_id"]).To(Equal("txn_789"))
		})

		It("preserves caller metadata alongside the transaction id", func() {
			var captured payclient.ChargeRequest
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				captured = req
				return payclient.ChargeResult{Outcome: payclient.OutcomeSuccess}, nil
			}

			handler.Handle(ctx, event(`{"amount":10,"payment_method":"card_tok_visa","metadata":{"order_id":"ord_42"}}`))

			Expect(captured.Metadata["order_id"]).To(Equal("ord_42"))
			Expect(captured.Metadata).To(HaveKey("transaction_id"))
		})
	})

	Describe("outcome mapping", func() {
		It("returns a success envelope with the payment id", func() {
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				return payclient.ChargeResult{Outcome: payclient.OutcomeSuccess, PaymentID: "pay_abc123"}, nil
			}

			resp := handler.Handle(ctx, event(`{"transaction_id":"txn_1","amount":99.99,"currency":"EUR","payment_method":"card_tok_visa"}`))

			Expect(resp.StatusCode).To(Equal(200))
			body := decodeBody(resp)
			Expect(body["status"]).To(Equal("success"))
			Expect(body["payment_id"]).To(Equal("pay_abc123"))
			Expect(body["transaction_id"]).To(Equal("txn_1"))
			Expect(body["amount"]).To(Equal(99.99))
			Expect(body["currency"]).To(Equal("EUR"))
		})

		It("maps a timeout outcome to 504", func() {
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				return payclient.ChargeResult{Outcome: payclient.OutcomeTimeout, ErrorKind: payclient.ErrorKindTimeout, Message: "request timed out"}, nil
			}

			resp := handler.Handle(ctx, event(`{"amount":10,"payment_method":"card_tok_visa"}`))

			Expect(resp.StatusCode).To(Equal(504))
			Expect(decodeBody(resp)["error"]).To(Equal("Payment service timeout"))
		})

		DescribeTable("failure kinds map onto status codes",
			func(kind payclient.ErrorKind, want int) {
				charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
					return payclient.ChargeResult{Outcome: payclient.OutcomeFailure, ErrorKind: kind, Message: "failed"}, nil
				}

				resp := handler.Handle(ctx, event(`{"amount":10,"payment_method":"card_tok_visa"}`))
				Expect(resp.StatusCode).To(Equal(want))
			},
			Entry("client error", payclient.ErrorKindClient, 400),
			Entry("rate limited", payclient.ErrorKindRateLimited, 429),
			Entry("circuit open", payclient.ErrorKindCircuitOpen, 503),
			Entry("timeout kind", payclient.ErrorKindTimeout, 504),
			Entry("cancelled", payclient.ErrorKindCancelled, 504),
			Entry("server error", payclient.ErrorKindServer, 502),
			Entry("connection error", payclient.ErrorKindConnection, 502),
			Entry("retries exhausted", payclient.ErrorKindMaxRetriesExceeded, 502),
		)

		It("includes the failure message in the error body", func() {
			charger.chargeFunc = func(ctx context.Context, req payclient.ChargeRequest) (payclient.ChargeResult, error) {
				return payclient.ChargeResult{Outcome: payclient.OutcomeFailure, ErrorKind: payclient.ErrorKindServer, Message: "provider returned 503"}, nil
			}

			resp := handler.Handle(ctx, event(`{"amount":10,"payment_method":"card_tok_visa"}`))

			Expect(decodeBody(resp)["error"]).To(Equal("Payment processing failed: provider returned 503"))
		})
	})
})
