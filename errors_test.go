package payclient_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	payclient "github.com/checkoutops/payclient"
)

var _ = Describe("error classification", func() {
	DescribeTable("ClassifyStatus",
		func(status int, expected payclient.ErrorKind) {
			Expect(payclient.ClassifyStatus(status)).To(Equal(expected))
		},
		Entry("200 ok", 200, payclient.ErrorKindNone),
		Entry("201 created", 201, payclient.ErrorKindNone),
		Entry("400 bad request", 400, payclient.ErrorKindClient),
		Entry("401 unauthorized", 401, payclient.ErrorKindClient),
		Entry("403 forbidden", 403, payclient.ErrorKindClient),
		Entry("404 not found", 404, payclient.ErrorKindClient),
		Entry("429 rate limited", 429, payclient.ErrorKindRateLimited),
		Entry("500 server error", 500, payclient.ErrorKindServer),
		Entry("502 bad gateway", 502, payclient.ErrorKindServer),
		Entry("503 unavailable", 503, payclient.ErrorKindServer),
		Entry("504 gateway timeout", 504, payclient.ErrorKindServer),
		Entry("302 unexpected redirect", 302, payclient.ErrorKindServer),
	)

	DescribeTable("retryability",
		func(kind payclient.ErrorKind, retryable bool) {
			Expect(kind.Retryable()).To(Equal(retryable))
		},
		Entry("timeout", payclient.ErrorKindTimeout, true),
		Entry("connection", payclient.ErrorKindConnection, true),
		Entry("server", payclient.ErrorKindServer, true),
		Entry("rate limited", payclient.ErrorKindRateLimited, true),
		Entry("client", payclient.ErrorKindClient, false),
		Entry("circuit open", payclient.ErrorKindCircuitOpen, false),
		Entry("cancelled", payclient.ErrorKindCancelled, false),
	)

	DescribeTable("breaker accounting",
		func(kind payclient.ErrorKind, counts bool) {
			Expect(kind.TripsBreaker()).To(Equal(counts))
		},
		Entry("timeout counts", payclient.ErrorKindTimeout, true),
		Entry("connection counts", payclient.ErrorKindConnection, true),
		Entry("server counts", payclient.ErrorKindServer, true),
		Entry("client counts", payclient.ErrorKindClient, true),
		Entry("rate limited does not", payclient.ErrorKindRateLimited, false),
		Entry("cancelled does not", payclient.ErrorKindCancelled, false),
	)

	Describe("ClassifyError", func() {
		It("maps deadline errors to timeouts", func() {
			Expect(payclient.ClassifyError(context.DeadlineExceeded)).To(Equal(payclient.ErrorKindTimeout))
		})

		It("maps cancellation to cancelled", func() {
			Expect(payclient.ClassifyError(context.Canceled)).To(Equal(payclient.ErrorKindCancelled))
		})

		It("maps unknown wire errors to connection errors", func() {
			Expect(payclient.ClassifyError(errors.New("broken pipe"))).To(Equal(payclient.ErrorKindConnection))
		})

		It("prefers an existing classification", func() {
			err := payclient.NewChargeError(payclient.ErrorKindRateLimited, 429, errors.New("slow down"))
			Expect(payclient.ClassifyError(err)).To(Equal(payclient.ErrorKindRateLimited))
		})
	})

	Describe("ChargeError", func() {
		It("unwraps to its cause", func() {
			cause := errors.New("boom")
			err := payclient.NewChargeError(payclient.ErrorKindServer, 500, cause)

			Expect(errors.Unwrap(err)).To(Equal(cause))
			Expect(err.Error()).To(Equal("boom"))
			Expect(err.StatusCode()).To(Equal(500))
		})

		It("describes itself without a cause", func() {
			err := payclient.NewChargeError(payclient.ErrorKindServer, 500, nil)
			Expect(err.Error()).To(ContainSubstring("server_error"))
		})
	})
})
