package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/process"
)

// OutboxStats reports the delivery backlog for operators.
func (r *Router) OutboxStats(c *gin.Context) {
	backlog, err := r.outboxStore.CountUnpublished(c.Request.Context())
	if err != nil {
		r.logger.Error("outbox_stats_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unpublished": backlog})
}

type processInstancePayload struct {
	ProcessID   string        `json:"process_id"`
	ProcessType string        `json:"process_type"`
	BusinessKey string        `json:"business_key"`
	Status      string        `json:"status"`
	State       process.State `json:"state"`
	LastError   string        `json:"last_error,omitempty"`
	Deadline    *time.Time    `json:"deadline,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func processInstanceResponse(inst *process.Instance) processInstancePayload {
	return processInstancePayload{
		ProcessID:   inst.ProcessID,
		ProcessType: inst.ProcessType,
		BusinessKey: inst.BusinessKey,
		Status:      string(inst.Status),
		State:       inst.State,
		LastError:   inst.LastError,
		Deadline:    inst.Deadline,
		CreatedAt:   inst.CreatedAt,
		UpdatedAt:   inst.UpdatedAt,
	}
}

// GetProcess exposes one workflow instance. FAILED instances surface here;
// the synchronous business response never reflects saga outcomes.
func (r *Router) GetProcess(c *gin.Context) {
	inst, err := r.processStore.FindByProcessID(c.Request.Context(), c.Param("process_id"))
	if err != nil {
		r.logger.Error("get_process_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
		return
	}
	c.JSON(http.StatusOK, processInstanceResponse(inst))
}

// ListProcesses filters instances by type and status for operator triage.
func (r *Router) ListProcesses(c *gin.Context) {
	processType := c.Query("type")
	status := process.Status(c.DefaultQuery("status", string(process.StatusFailed)))
	if processType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type query parameter is required"})
		return
	}

	items, err := r.processStore.ListByStatus(c.Request.Context(), processType, []process.Status{status}, 100)
	if err != nil {
		r.logger.Error("list_processes_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]processInstancePayload, 0, len(items))
	for _, inst := range items {
		out = append(out, processInstanceResponse(inst))
	}
	c.JSON(http.StatusOK, gin.H{"processes": out})
}
