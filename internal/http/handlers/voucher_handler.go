// Voucher HTTP handlers.
//
// This file exposes REST endpoints for voucher gifts:
//   - POST /vouchers/gift              (submit a gift; idempotent by key)
//   - GET  /vouchers/{id}              (read a voucher record)
//   - POST /simulate/process-voucher   (run one delivery message synchronously)
//
// Handlers are transport-thin: they read the raw body, delegate to the
// application services and translate results into the response envelope.
//
// Idempotency:
// The key may come from the body's idempotencyKey or the Idempotency-Key
// header. When the submission service serves a stored voucher, the handler
// sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-voucher-gift/internal/deadletter"
	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/http/middleware"
	"github.com/tbourn/go-voucher-gift/internal/queue"
	"github.com/tbourn/go-voucher-gift/internal/services"
)

//
// Service contracts (context-aware)
//

// VoucherService submits and reads voucher gifts.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type VoucherService interface {
	// Submit validates, persists and enqueues a gift from a raw JSON body.
	Submit(ctx context.Context, body []byte, headerKey string) (*services.SubmitResult, error)
	// Get returns a voucher by id or services.ErrVoucherNotFound.
	Get(ctx context.Context, id string) (*domain.VoucherGift, error)
}

// DeliveryProcessor runs a single delivery message through the consumer.
type DeliveryProcessor interface {
	ProcessMessage(ctx context.Context, m queue.Message) (services.Outcome, error)
}

// StatsSource exposes the delivery consumer's counters.
type StatsSource interface {
	Snapshot() services.DeliveryStats
}

// StatusCounter counts vouchers per status.
type StatusCounter func(ctx context.Context) (map[domain.Status]int64, error)

// CountFunc reports a single total, such as the queue backlog.
type CountFunc func(ctx context.Context) (int64, error)

//
// Handler wiring
//

// Deps are the collaborators the handlers need. DeadLetters and the counters
// may be nil; the corresponding endpoints then report 404 / omit the counts.
type Deps struct {
	Vouchers        VoucherService
	Delivery        DeliveryProcessor
	Stats           StatsSource
	Counts          StatusCounter
	QueueDepth      CountFunc
	DeadLetterCount CountFunc
	DeadLetters     deadletter.Lister
}

// Handlers groups HTTP endpoints for vouchers and delivery. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	vouchers    VoucherService
	delivery    DeliveryProcessor
	stats       StatsSource
	counts      StatusCounter
	queueDepth  CountFunc
	dlqCount    CountFunc
	deadLetters deadletter.Lister
}

// New constructs and returns a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		vouchers:    d.Vouchers,
		delivery:    d.Delivery,
		stats:       d.Stats,
		counts:      d.Counts,
		queueDepth:  d.QueueDepth,
		dlqCount:    d.DeadLetterCount,
		deadLetters: d.DeadLetters,
	}
}

//
// DTOs
//

// GiftVoucherRequest documents the submission payload. The handler reads the
// raw body so the validator can report every violated field at once.
type GiftVoucherRequest struct {
	RecipientEmail   string  `json:"recipientEmail,omitempty" example:"friend@example.com"`
	WalletAddress    string  `json:"walletAddress,omitempty" example:"0x52908400098527886E0F7030069857D2E4169EE7"`
	Amount           float64 `json:"amount" example:"25"`
	Message          string  `json:"message,omitempty" example:"Happy birthday!"`
	IdempotencyKey   string  `json:"idempotencyKey,omitempty" format:"uuid"`
	ConfirmHighValue bool    `json:"confirmHighValue,omitempty"`
}

// GiftVoucherData is the data payload of a successful submission.
type GiftVoucherData struct {
	ID             string        `json:"id" format:"uuid"`
	Status         domain.Status `json:"status" example:"PENDING"`
	IsHighValue    bool          `json:"isHighValue,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty" format:"uuid"`
	Idempotent     bool          `json:"idempotent,omitempty"`
}

// ProcessVoucherResponse is returned by the simulate endpoint.
type ProcessVoucherResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Voucher processed successfully"`
}

// readBody reads the request body, reporting whether it exceeded the
// router's size cap.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return nil, false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read request body")
		return nil, false
	}
	return body, true
}

//
// Handlers
//

// GiftVoucher godoc
// @ID          giftVoucher
// @Summary     Gift a voucher
// @Description Validates the request, records the voucher as PENDING and enqueues it for delivery.
// @Description Supports idempotency via the body idempotencyKey or the Idempotency-Key header (same key → same voucher).
// @Tags        Vouchers
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key (UUID)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.GiftVoucherRequest  true  "Gift payload"
//
// @Success     200  {object}  handlers.SuccessResponse{data=handlers.GiftVoucherData}  "Voucher accepted (or replayed)"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /vouchers/gift [post]
func (h *Handlers) GiftVoucher(c *gin.Context) {
	body, okRead := readBody(c)
	if !okRead {
		return
	}

	headerKey, present := middleware.GetIdempotencyKey(c)
	if !present {
		headerKey = c.GetHeader(middleware.HeaderIdempotencyKey)
	}

	res, err := h.vouchers.Submit(c.Request.Context(), body, headerKey)
	if err != nil {
		if verr, isVal := services.AsValidationError(err); isVal {
			failFields(c, verr)
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("voucher gift submission failed")
		fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, msgSubmitFailed)
		return
	}

	if res.Idempotent {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, GiftVoucherData{
		ID:             res.Voucher.ID,
		Status:         res.Voucher.Status,
		IsHighValue:    res.IsHighValue,
		IdempotencyKey: res.IdempotencyKey,
		Idempotent:     res.Idempotent,
	})
}

// GetVoucher godoc
// @ID          getVoucher
// @Summary     Get a voucher
// @Description Returns the voucher record including its delivery status.
// @Tags        Vouchers
// @Produce     json
// @Param       id   path  string  true  "Voucher ID"  format(uuid)
// @Success     200  {object}  handlers.SuccessResponse{data=domain.VoucherGift}
// @Failure     404  {object}  handlers.ErrorResponse  "Voucher not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /vouchers/{id} [get]
func (h *Handlers) GetVoucher(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "voucher not found")
		return
	}

	v, err := h.vouchers.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrVoucherNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "voucher not found")
		return
	case err != nil:
		middleware.LoggerFrom(c).Error().Err(err).Str("voucher_id", id).Msg("get voucher failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to load voucher")
		return
	}
	ok(c, http.StatusOK, v)
}

// SimulateProcessVoucher godoc
// @ID          simulateProcessVoucher
// @Summary     Process a delivery message synchronously
// @Description Local development aid: runs the body through the delivery consumer as a first delivery attempt.
// @Tags        Delivery
// @Accept      json
// @Produce     json
// @Param       body  body  domain.DeliveryMessage  true  "Delivery message"
// @Success     200  {object}  handlers.ProcessVoucherResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Processing failed"
// @Router      /simulate/process-voucher [post]
func (h *Handlers) SimulateProcessVoucher(c *gin.Context) {
	body, okRead := readBody(c)
	if !okRead {
		return
	}

	msg := queue.Message{
		ID:           "simulated-" + uuid.NewString(),
		Body:         body,
		ReceiveCount: 1,
	}
	outcome, err := h.delivery.ProcessMessage(c.Request.Context(), msg)
	if outcome != services.OutcomeSent && outcome != services.OutcomeSkipped {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("message_id", msg.ID).Str("outcome", string(outcome)).Msg("simulated delivery did not succeed")
		fail(c, http.StatusInternalServerError, ErrCodeProcessingFailed, msgProcessFailed)
		return
	}
	c.JSON(http.StatusOK, ProcessVoucherResponse{Success: true, Message: "Voucher processed successfully"})
}
