package notify

import (
	"errors"
	"io"
	"net/http"

	"notifyhub/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for the notify domain.
type Handler struct {
	service *Service
}

// NewHandler creates a new notify handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Notify handles POST /api/service/notify
// Dispatches synchronously. The envelope's success flag reflects the route policy.
func (h *Handler) Notify(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.dispatch(c, &req)
}

// NotifyPath handles GET|POST /api/service/notify/:route_id/:title/:content
// POST may carry a JSON body with push_img_url, push_link_url and context.
func (h *Handler) NotifyPath(c *gin.Context) {
	var extra struct {
		PushImgURL  string         `json:"push_img_url"`
		PushLinkURL string         `json:"push_link_url"`
		Context     map[string]any `json:"context"`
	}
	if c.Request.Method == http.MethodPost && c.Request.Body != nil {
		if err := c.ShouldBindJSON(&extra); err != nil && !errors.Is(err, io.EOF) {
			common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	req := NotifyRequest{
		RouteID:     c.Param("route_id"),
		Title:       c.Param("title"),
		Content:     c.Param("content"),
		PushImgURL:  extra.PushImgURL,
		PushLinkURL: extra.PushLinkURL,
		Context:     extra.Context,
	}
	if req.PushImgURL == "" {
		req.PushImgURL = c.Query("push_img_url")
	}
	if req.PushLinkURL == "" {
		req.PushLinkURL = c.Query("push_link_url")
	}
	h.dispatch(c, &req)
}

func (h *Handler) dispatch(c *gin.Context, req *NotifyRequest) {
	ctx := c.Request.Context()
	result, err := h.service.Notify(ctx, req)
	if err != nil {
		common.Logger(ctx).Warn("notify request rejected", "route_id", req.RouteID, "error", err)
		common.HandleError(c, err)
		return
	}
	common.Result(c, http.StatusOK, result.Delivered, result)
}

// NotifyAsync handles POST /api/service/async/notify
// Enqueues the request for the worker and returns 202 Accepted.
func (h *Handler) NotifyAsync(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		common.Logger(c.Request.Context()).Error("enqueue dispatch failed", "route_id", req.RouteID, "error", err)
		common.HandleError(c, err)
		return
	}
	common.Success(c, http.StatusAccepted, resp)
}

// ListRoutes handles GET /api/service/routes
func (h *Handler) ListRoutes(c *gin.Context) {
	common.Success(c, http.StatusOK, h.service.Routes())
}

// ListChannels handles GET /api/service/channels
func (h *Handler) ListChannels(c *gin.Context) {
	common.Success(c, http.StatusOK, h.service.Channels())
}

// TestChannel handles POST /api/service/channels/:id/test
func (h *Handler) TestChannel(c *gin.Context) {
	result, err := h.service.TestChannel(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.Result(c, http.StatusOK, result.Delivered, result)
}

// RegisterRoutes registers notify routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/notify", h.Notify)
	rg.GET("/notify/:route_id/:title/:content", h.NotifyPath)
	rg.POST("/notify/:route_id/:title/:content", h.NotifyPath)
	rg.POST("/async/notify", h.NotifyAsync)
	rg.GET("/routes", h.ListRoutes)
	rg.GET("/channels", h.ListChannels)
	rg.POST("/channels/:id/test", h.TestChannel)
}
