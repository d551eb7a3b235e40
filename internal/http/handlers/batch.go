package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/scriptrunner-backend/internal/http/response"
	"github.com/yungbote/scriptrunner-backend/internal/platform/apierr"
	"github.com/yungbote/scriptrunner-backend/internal/services"
)

type BatchHandler struct {
	batches services.BatchService
}

func NewBatchHandler(batches services.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

func batchID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_batch_id", errors.New("missing batch id"))
		return "", false
	}
	return id, true
}

// POST /api/batches
func (h *BatchHandler) SubmitBatch(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id, prov, err := h.batches.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrBatchRunning) {
			err = apierr.Conflict("batch_running", err)
		}
		response.RespondErr(c, "submit_batch_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"batch_id": id, "provenance": prov})
}

// GET /api/batches
func (h *BatchHandler) ListActive(c *gin.Context) {
	ids, prov, err := h.batches.ListActive(c.Request.Context())
	if err != nil {
		response.RespondErr(c, "list_batches_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"batch_ids": ids, "provenance": prov})
}

// GET /api/batches/stats
func (h *BatchHandler) Stats(c *gin.Context) {
	st, err := h.batches.Stats(c.Request.Context())
	if err != nil {
		response.RespondErr(c, "batch_stats_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"stats": st})
}

// POST /api/batches/sweep
func (h *BatchHandler) Sweep(c *gin.Context) {
	n, prov, err := h.batches.SweepInactive(c.Request.Context())
	if err != nil {
		response.RespondErr(c, "sweep_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"removed": n, "provenance": prov})
}

// GET /api/batches/:id
func (h *BatchHandler) GetBatch(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	doc, prov, err := h.batches.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "get_batch_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"batch": doc, "provenance": prov, "running": h.batches.Running(id)})
}

// POST /api/batches/:id/complete
func (h *BatchHandler) CompleteBatch(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	doc, prov, err := h.batches.Complete(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "complete_batch_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"batch": doc, "provenance": prov})
}

// POST /api/batches/:id/cancel
func (h *BatchHandler) CancelBatch(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	if !h.batches.Cancel(id) {
		response.RespondError(c, http.StatusNotFound, "batch_not_running", errors.New("batch is not running"))
		return
	}
	response.RespondAccepted(c, gin.H{"batch_id": id, "cancelled": true})
}

// DELETE /api/batches/:id
func (h *BatchHandler) DeleteBatch(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	prov, err := h.batches.Delete(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "delete_batch_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"batch_id": id, "deleted": true, "provenance": prov})
}
