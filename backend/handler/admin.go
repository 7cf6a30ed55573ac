package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/scheduler"
)

// PipelineRunner runs scheduler pipelines on demand.
type PipelineRunner interface {
	Tick(ctx context.Context, pipelines ...scheduler.Pipeline) (scheduler.Report, error)
	Status() scheduler.Status
}

type AdminHandler struct {
	runner PipelineRunner
}

func NewAdminHandler(runner PipelineRunner) *AdminHandler {
	return &AdminHandler{runner: runner}
}

// RunPipeline executes one named pipeline immediately and returns the tick report.
func (h *AdminHandler) RunPipeline(c *gin.Context) {
	p, err := scheduler.ParsePipeline(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A dropped client connection must not abort the pipeline halfway.
	report, err := h.runner.Tick(context.WithoutCancel(c.Request.Context()), p)
	switch {
	case errors.Is(err, scheduler.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler is stopped"})
		return
	case errors.Is(err, scheduler.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "A tick is already running"})
		return
	case err != nil:
		respondError(c, err, "")
		return
	}

	status := http.StatusOK
	if len(report.Failed()) > 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, report)
}

// SchedulerState reports the orchestrator lifecycle state and the running pipeline.
func (h *AdminHandler) SchedulerState(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.Status())
}
