package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/dto"
	"github.com/Nijaek/analytics-dashboard/internal/live"
	"github.com/Nijaek/analytics-dashboard/internal/ticket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tickets are the access control for this endpoint; the dashboard may
	// be served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveStream handles GET /v1/live/:project_id. The connection is authorized
// by a single-use ticket passed as a query parameter; every rejection looks
// the same to the caller.
func (h *Handler) liveStream(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	ticketID := c.Query("ticket")
	if ticketID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
		})
		return
	}

	ticketProject, err := h.tickets.Redeem(c.Request.Context(), ticketID)
	if err != nil {
		if !errors.Is(err, ticket.ErrTicketInvalid) {
			h.log.Error("Failed to redeem live ticket", zap.Error(err))
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error: "internal_error",
			})
			return
		}
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
		})
		return
	}

	if ticketProject != projectID {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed",
			zap.Int64("project_id", projectID),
			zap.Error(err))
		return
	}

	client := live.NewClient(h.hub, projectID, conn, h.log)
	h.hub.Register(client)
	client.Start()

	h.log.Info("Live subscriber connected", zap.Int64("project_id", projectID))
}
