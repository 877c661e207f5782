// Delivery HTTP handlers.
//
// Read-only views of the delivery consumer:
//   - GET /delivery/stats          (metrics snapshot + vouchers per status)
//   - GET /delivery/dead-letters   (most recent dead-letter records)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/http/middleware"
	"github.com/tbourn/go-voucher-gift/internal/services"
	"github.com/tbourn/go-voucher-gift/internal/utils"
)

// DeliveryStatsData combines consumer counters with stored voucher counts,
// the queue backlog and the number of dead letters. Totals the backends
// cannot report are omitted.
type DeliveryStatsData struct {
	Consumer    services.DeliveryStats  `json:"consumer"`
	Vouchers    map[domain.Status]int64 `json:"vouchers,omitempty"`
	QueueDepth  *int64                  `json:"queueDepth,omitempty"`
	DeadLetters *int64                  `json:"deadLetters,omitempty"`
}

// clampLimit parses ?limit= with a default of 50 and a cap of 500.
func clampLimit(c *gin.Context) int {
	return utils.ClampLimit(c.Query("limit"), 50, 500)
}

// DeliveryStats godoc
// @ID          deliveryStats
// @Summary     Delivery consumer statistics
// @Tags        Delivery
// @Produce     json
// @Success     200  {object}  handlers.SuccessResponse{data=handlers.DeliveryStatsData}
// @Router      /delivery/stats [get]
func (h *Handlers) DeliveryStats(c *gin.Context) {
	var data DeliveryStatsData
	if h.stats != nil {
		data.Consumer = h.stats.Snapshot()
	}
	if h.counts != nil {
		counts, err := h.counts(c.Request.Context())
		if err != nil {
			// Counters are still useful without the table counts.
			middleware.LoggerFrom(c).Warn().Err(err).Msg("count vouchers by status failed")
		} else {
			data.Vouchers = counts
		}
	}
	data.QueueDepth = optionalCount(c, h.queueDepth, "queue depth")
	data.DeadLetters = optionalCount(c, h.dlqCount, "dead letter count")
	ok(c, http.StatusOK, data)
}

func optionalCount(c *gin.Context, fn CountFunc, what string) *int64 {
	if fn == nil {
		return nil
	}
	n, err := fn(c.Request.Context())
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg(what + " failed")
		return nil
	}
	return &n
}

// ListDeadLetters godoc
// @ID          listDeadLetters
// @Summary     Recent dead letters
// @Description Newest first. Only available when dead letters are stored in the database.
// @Tags        Delivery
// @Produce     json
// @Param       limit  query  int  false  "Max records (1-500)"  default(50)
// @Success     200  {object}  handlers.SuccessResponse{data=[]domain.DeadLetter}
// @Failure     404  {object}  handlers.ErrorResponse  "Dead-letter listing not available"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /delivery/dead-letters [get]
func (h *Handlers) ListDeadLetters(c *gin.Context) {
	if h.deadLetters == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "dead-letter listing not available")
		return
	}
	items, err := h.deadLetters.List(c.Request.Context(), clampLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to list dead letters")
		return
	}
	if items == nil {
		items = []domain.DeadLetter{}
	}
	ok(c, http.StatusOK, items)
}
