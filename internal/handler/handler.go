package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/dto"
	"github.com/Nijaek/analytics-dashboard/internal/live"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
	"github.com/Nijaek/analytics-dashboard/internal/service"
	"github.com/Nijaek/analytics-dashboard/internal/ticket"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Handler struct {
	ingestService    service.IngestServicer
	analyticsService service.AnalyticsServicer
	tickets          ticket.Issuer
	hub              *live.Hub
	ingestKeys       map[string]int64
	dashboardToken   string
	router           *gin.Engine
	log              *zap.Logger
}

func NewHandler(ingestService service.IngestServicer, analyticsService service.AnalyticsServicer, tickets ticket.Issuer, hub *live.Hub, ingestKeys map[string]int64, dashboardToken string, log *zap.Logger) *Handler {
	h := &Handler{
		ingestService:    ingestService,
		analyticsService: analyticsService,
		tickets:          tickets,
		hub:              hub,
		ingestKeys:       ingestKeys,
		dashboardToken:   dashboardToken,
		router:           gin.Default(),
		log:              log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/v1/events", h.ingestEvents)
	h.router.GET("/v1/live/:project_id", h.liveStream)

	dashboard := h.router.Group("/v1", h.dashboardAuth)
	dashboard.GET("/projects/:project_id/overview", h.getOverview)
	dashboard.GET("/projects/:project_id/timeseries", h.getTimeseries)
	dashboard.GET("/projects/:project_id/top-events", h.getTopEvents)
	dashboard.GET("/projects/:project_id/sessions", h.getSessions)
	dashboard.GET("/projects/:project_id/users", h.getUsers)
	dashboard.POST("/live/ticket", h.issueTicket)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// dashboardAuth requires the dashboard bearer token on read endpoints
func (h *Handler) dashboardAuth(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.dashboardToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
		})
		return
	}
	c.Next()
}

// ingestEvents handles POST /v1/events
func (h *Handler) ingestEvents(c *gin.Context) {
	apiKey := c.GetHeader("X-API-Key")
	projectID, ok := h.ingestKeys[apiKey]
	if apiKey == "" || !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
		})
		return
	}

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid ingest request",
			zap.Int64("project_id", projectID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	accepted, rejected, err := h.ingestService.IngestBatch(c.Request.Context(), projectID, req.Events, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		h.log.Error("Failed to ingest events",
			zap.Int64("project_id", projectID),
			zap.Int("event_count", len(req.Events)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Info("Events accepted",
		zap.Int64("project_id", projectID),
		zap.Int("accepted", accepted),
		zap.Int("rejected", len(rejected)))

	c.JSON(http.StatusAccepted, dto.IngestResponse{
		Accepted: accepted,
		Rejected: len(rejected),
		Errors:   rejected,
	})
}

// getOverview handles GET /v1/projects/:project_id/overview
func (h *Handler) getOverview(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	response, err := h.analyticsService.Overview(c.Request.Context(), projectID, start, end)
	if err != nil {
		h.analyticsError(c, projectID, "overview", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// getTimeseries handles GET /v1/projects/:project_id/timeseries
func (h *Handler) getTimeseries(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	granularity := repository.GranularityHourly
	if end.Sub(start) > 48*time.Hour {
		granularity = repository.GranularityDaily
	}
	switch c.Query("granularity") {
	case "":
	case string(repository.GranularityHourly):
		granularity = repository.GranularityHourly
	case string(repository.GranularityDaily):
		granularity = repository.GranularityDaily
	default:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: "granularity must be hourly or daily",
		})
		return
	}

	response, err := h.analyticsService.Timeseries(c.Request.Context(), projectID, start, end, granularity)
	if err != nil {
		h.analyticsError(c, projectID, "timeseries", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// getTopEvents handles GET /v1/projects/:project_id/top-events
func (h *Handler) getTopEvents(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}
	limit, _, ok := h.pagination(c)
	if !ok {
		return
	}

	response, err := h.analyticsService.TopEvents(c.Request.Context(), projectID, start, end, limit)
	if err != nil {
		h.analyticsError(c, projectID, "top-events", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// getSessions handles GET /v1/projects/:project_id/sessions
func (h *Handler) getSessions(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}
	limit, offset, ok := h.pagination(c)
	if !ok {
		return
	}

	response, err := h.analyticsService.Sessions(c.Request.Context(), projectID, start, end, limit, offset)
	if err != nil {
		h.analyticsError(c, projectID, "sessions", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// getUsers handles GET /v1/projects/:project_id/users
func (h *Handler) getUsers(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}
	limit, offset, ok := h.pagination(c)
	if !ok {
		return
	}

	response, err := h.analyticsService.Users(c.Request.Context(), projectID, start, end, limit, offset)
	if err != nil {
		h.analyticsError(c, projectID, "users", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// issueTicket handles POST /v1/live/ticket
func (h *Handler) issueTicket(c *gin.Context) {
	var req dto.TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ticketID, err := h.tickets.Issue(c.Request.Context(), req.ProjectID)
	if err != nil {
		h.log.Error("Failed to issue live ticket",
			zap.Int64("project_id", req.ProjectID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal_error",
		})
		return
	}

	c.JSON(http.StatusOK, dto.TicketResponse{
		Ticket:    ticketID,
		ExpiresIn: int(ticket.TTL.Seconds()),
	})
}

// projectID parses the :project_id path parameter
func (h *Handler) projectID(c *gin.Context) (int64, bool) {
	projectID, err := strconv.ParseInt(c.Param("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: "project_id must be a positive integer",
		})
		return 0, false
	}
	return projectID, true
}

// timeRange resolves the query window from either a named period or an
// explicit start/end pair
func (h *Handler) timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	startParam := c.Query("start")
	endParam := c.Query("end")

	if startParam != "" || endParam != "" {
		start, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "start is not a valid RFC 3339 timestamp",
			})
			return time.Time{}, time.Time{}, false
		}
		end, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "end is not a valid RFC 3339 timestamp",
			})
			return time.Time{}, time.Time{}, false
		}
		if !end.After(start) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "end must be after start",
			})
			return time.Time{}, time.Time{}, false
		}
		return start.UTC(), end.UTC(), true
	}

	now := time.Now().UTC()
	switch c.DefaultQuery("period", "24h") {
	case "24h":
		return now.Add(-24 * time.Hour), now, true
	case "7d":
		return now.Add(-7 * 24 * time.Hour), now, true
	case "30d":
		return now.Add(-30 * 24 * time.Hour), now, true
	default:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: "period must be one of 24h, 7d, 30d",
		})
		return time.Time{}, time.Time{}, false
	}
}

// pagination parses limit and offset query parameters
func (h *Handler) pagination(c *gin.Context) (int, int, bool) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "limit must be between 1 and 200",
			})
			return 0, 0, false
		}
		limit = parsed
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "offset must be a non-negative integer",
			})
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}

func (h *Handler) analyticsError(c *gin.Context, projectID int64, endpoint string, err error) {
	if errors.Is(err, service.ErrInvalidRange) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}
	h.log.Error("Analytics query failed",
		zap.Int64("project_id", projectID),
		zap.String("endpoint", endpoint),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error: "internal_error",
	})
}
