package handler

import (
	"log/slog"
	"net/http"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	store store.Store
}

func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

func (h *HealthHandler) Check(ctx *gin.Context) {
	if _, err := h.store.Read(ctx.Request.Context()); err != nil {
		slog.Error("Health check failed to read store", "error", err)
		ctx.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "degraded", Store: "unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Store: "ok"})
}
