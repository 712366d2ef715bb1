package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/provisioning"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/gin-gonic/gin"
)

const (
	sessionIDHeader = "X-Session-ID"
	socketIDHeader  = "X-Socket-ID"
)

type ProvisioningHandler struct {
	engine *provisioning.Engine
}

func NewProvisioningHandler(engine *provisioning.Engine) *ProvisioningHandler {
	return &ProvisioningHandler{engine: engine}
}

// Install accepts an install request and returns before the remote run
// starts. Progress is delivered on the session event stream.
func (h *ProvisioningHandler) Install(ctx *gin.Context) {
	var req dto.InstallRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	port, ok := parsePort(ctx, req.Port)
	if !ok {
		return
	}

	sessionID := sessionIDFrom(ctx, req.SessionID)
	err := h.engine.SubmitInstall(ctx.Request.Context(), provisioning.InstallRequest{
		Host:         req.IP,
		Port:         port,
		Username:     req.Username,
		AuthKind:     store.AuthKind(req.AuthType),
		Password:     req.Password,
		PrivateKey:   req.PrivateKey,
		Domain:       req.Domain,
		OS:           req.OS,
		LicenseToken: req.LicenseToken,
		SessionID:    sessionID,
	})
	if err != nil {
		h.submitError(ctx, "install", err)
		return
	}

	ctx.JSON(http.StatusAccepted, dto.AcceptedResponse{Status: "accepted", SessionID: sessionID})
}

func (h *ProvisioningHandler) Rebuild(ctx *gin.Context) {
	var req dto.RebuildRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	port, ok := parsePort(ctx, req.Port)
	if !ok {
		return
	}

	sessionID := sessionIDFrom(ctx, req.SessionID)
	err := h.engine.SubmitRebuild(ctx.Request.Context(), provisioning.RebuildRequest{
		Host:            req.IP,
		Port:            port,
		Username:        req.Username,
		CurrentPassword: req.CurrentPassword,
		TargetOS:        req.TargetOS,
		TargetVersion:   req.TargetVersion,
		NewPassword:     req.NewPassword,
		SessionID:       sessionID,
	})
	if err != nil {
		h.submitError(ctx, "rebuild", err)
		return
	}

	ctx.JSON(http.StatusAccepted, dto.AcceptedResponse{Status: "accepted", SessionID: sessionID})
}

func (h *ProvisioningHandler) RebuildTargets(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, dto.RebuildTargetsResponse{Targets: provisioning.RebuildTargets})
}

func (h *ProvisioningHandler) submitError(ctx *gin.Context, kind string, err error) {
	var verr *provisioning.ValidationError
	switch {
	case errors.As(err, &verr):
		slog.Warn("Rejected provisioning request", "kind", kind, "field", verr.Field, "error", verr)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, provisioning.ErrShuttingDown):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down"})
	default:
		slog.Error("Failed to submit provisioning request", "kind", kind, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start " + kind})
	}
}

func sessionIDFrom(ctx *gin.Context, fromBody string) string {
	if id := ctx.GetHeader(sessionIDHeader); id != "" {
		return id
	}
	if id := ctx.GetHeader(socketIDHeader); id != "" {
		return id
	}
	return fromBody
}

func parsePort(ctx *gin.Context, n json.Number) (int, bool) {
	s := n.String()
	if s == "" {
		return 0, true
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid port: " + s, "field": "port"})
		return 0, false
	}
	return port, true
}
