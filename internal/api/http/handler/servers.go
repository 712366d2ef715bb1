package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/gin-gonic/gin"
)

var errServerNotFound = errors.New("server not found")

// ServerHandler lists and deletes provisioned server records.
type ServerHandler struct {
	store store.Store
}

func NewServerHandler(st store.Store) *ServerHandler {
	return &ServerHandler{store: st}
}

func (h *ServerHandler) List(ctx *gin.Context) {
	doc, err := h.store.Read(ctx.Request.Context())
	if err != nil {
		slog.Error("Failed to read servers", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read servers"})
		return
	}

	servers := make([]dto.ServerResponse, len(doc.Servers))
	for i, rec := range doc.Servers {
		servers[i] = dto.NewServerResponse(rec)
	}
	ctx.JSON(http.StatusOK, dto.ListServersResponse{Servers: servers, Count: len(servers)})
}

func (h *ServerHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	err := h.store.Mutate(ctx.Request.Context(), func(doc *store.Document) error {
		if !doc.RemoveServer(id) {
			return errServerNotFound
		}
		return nil
	})
	if errors.Is(err, errServerNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to delete server", "server_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete server"})
		return
	}

	slog.Info("Server record deleted", "server_id", id)
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}
