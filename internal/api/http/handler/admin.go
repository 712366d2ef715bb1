package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/auth"
	"github.com/2026musik-code/autoscrip/internal/hostops"
	"github.com/2026musik-code/autoscrip/internal/license"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/secretbox"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	ledger  *license.Ledger
	hostops *hostops.Service
	auth    *auth.Service
}

func NewAdminHandler(ledger *license.Ledger, hostOps *hostops.Service, authService *auth.Service) *AdminHandler {
	return &AdminHandler{
		ledger:  ledger,
		hostops: hostOps,
		auth:    authService,
	}
}

func (h *AdminHandler) Login(ctx *gin.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expiresAt, err := h.auth.Login(req.Secret)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin login is not configured"})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		slog.Warn("Failed admin login", "client_ip", ctx.ClientIP())
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	case err != nil:
		slog.Error("Failed to issue admin token", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
		return
	}

	ctx.JSON(http.StatusOK, dto.LoginResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *AdminHandler) IssueLicense(ctx *gin.Context) {
	var req dto.IssueLicenseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tok, err := h.ledger.Issue(ctx.Request.Context(), req.Months, req.Note)
	if errors.Is(err, license.ErrInvalidMonths) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Failed to issue license token", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue license token"})
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewLicenseResponse(tok))
}

func (h *AdminHandler) ListLicenses(ctx *gin.Context) {
	tokens, err := h.ledger.List(ctx.Request.Context())
	if err != nil {
		slog.Error("Failed to list license tokens", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list license tokens"})
		return
	}

	licenses := make([]dto.LicenseResponse, len(tokens))
	for i, t := range tokens {
		licenses[i] = dto.NewLicenseResponse(t)
	}
	ctx.JSON(http.StatusOK, dto.ListLicensesResponse{Licenses: licenses, Count: len(licenses)})
}

func (h *AdminHandler) Diagnose(ctx *gin.Context) {
	var req dto.DiagnoseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.hostops.Diagnose(ctx.Request.Context(), ctx.Param("id"), hostops.Kind(req.Kind))
	if err != nil {
		hostopsError(ctx, "diagnostic", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.DiagnoseResponse(report))
}

func (h *AdminHandler) ListAccessTokens(ctx *gin.Context) {
	tokens, err := h.hostops.ListAccessTokens(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		hostopsError(ctx, "list access tokens", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.ListAccessTokensResponse{Tokens: tokens, Count: len(tokens)})
}

func (h *AdminHandler) AddAccessToken(ctx *gin.Context) {
	var req dto.AccessTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.hostops.AddAccessToken(ctx.Request.Context(), ctx.Param("id"), req.Token, req.Note); err != nil {
		hostopsError(ctx, "add access token", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "Access token added"})
}

func (h *AdminHandler) RemoveAccessToken(ctx *gin.Context) {
	if err := h.hostops.RemoveAccessToken(ctx.Request.Context(), ctx.Param("id"), ctx.Param("token")); err != nil {
		hostopsError(ctx, "remove access token", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Access token removed"})
}

func hostopsError(ctx *gin.Context, op string, err error) {
	var exitErr *remote.ExitError
	switch {
	case errors.Is(err, hostops.ErrServerNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
	case errors.Is(err, hostops.ErrUnknownDiagnostic):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, hostops.ErrTokenExists):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, hostops.ErrTokenNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, secretbox.ErrDecrypt):
		slog.Error("Stored credentials unusable", "op", op, "server_id", ctx.Param("id"), "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Stored credentials cannot be decrypted"})
	case errors.As(err, &exitErr):
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "output": exitErr.Output})
	case errors.Is(err, remote.ErrConnect), errors.Is(err, remote.ErrExec),
		errors.Is(err, remote.ErrTransfer), errors.Is(err, hostops.ErrInvalidTokenFile):
		slog.Warn("Remote operation failed", "op", op, "server_id", ctx.Param("id"), "error", err)
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		slog.Error("Admin remote operation failed", "op", op, "server_id", ctx.Param("id"), "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op})
	}
}
