package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// ScanQueue accepts reader scans for asynchronous processing.
type ScanQueue interface {
	EnqueueBatch(scans []domain.ScanEvent) (int, error)
}

// ScanHandler is the HTTP side of the reader bridge.
type ScanHandler struct {
	queue ScanQueue
}

func NewScanHandler(queue ScanQueue) *ScanHandler {
	return &ScanHandler{queue: queue}
}

// Ingest queues a batch of scans from a reader. Scans are processed in order
// per card; the response only acknowledges receipt.
//
// @Summary      Ingest reader scans
// @Tags         scans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      scanBatchRequest  true  "Scans"
// @Success      202   {object}  scanAcceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/scans [post]
func (h *ScanHandler) Ingest(c echo.Context) error {
	var req scanBatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	scans := make([]domain.ScanEvent, 0, len(req.Scans))
	for _, s := range req.Scans {
		scans = append(scans, s.toDomain())
	}

	accepted, err := h.queue.EnqueueBatch(scans)
	if err != nil && accepted == 0 {
		return err
	}
	// A partial batch is still acknowledged; the reader resends the rest.
	return c.JSON(http.StatusAccepted, scanAcceptedResponse{Accepted: accepted})
}
