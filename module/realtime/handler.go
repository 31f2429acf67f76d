package realtime

import (
	"errors"
	"net/http"
	"strconv"

	midsec "Pulse/middleware/security"
	"Pulse/module/realtime/model"
	rt "Pulse/service/realtime"
	"Pulse/tools/errs"
	sec "Pulse/tools/security"

	"github.com/gin-gonic/gin"
)

// Handler is the synchronous request/response fallback: every socket
// operation mirrored over plain HTTP with the same semantics and no live
// push. Clients that cannot hold a persistent connection use this surface.
type Handler struct {
	Registry *rt.Registry
	Tracker  *rt.Tracker
	Router   *rt.Router
}

func NewHandler(registry *rt.Registry, tracker *rt.Tracker, router *rt.Router) *Handler {
	return &Handler{Registry: registry, Tracker: tracker, Router: router}
}

// RegisterRoutes mounts the fallback API behind the auth middleware.
func (h *Handler) RegisterRoutes(r gin.IRouter, verify midsec.Verifier) {
	grp := r.Group("/channels", midsec.Middleware(verify))

	grp.POST("", h.CreateChannel)
	grp.GET("", h.ListChannels)
	grp.GET("/:id", h.GetChannel)

	grp.POST("/:id/join", h.Join)
	grp.POST("/:id/track", h.Join) // alias
	grp.POST("/:id/leave", h.Leave)
	grp.POST("/:id/untrack", h.Leave) // alias
	grp.POST("/:id/heartbeat", h.Heartbeat)
	grp.PUT("/:id/presence", h.UpdateStatus)
	grp.GET("/:id/presence", h.GetPresence)

	grp.POST("/:id/broadcast", h.Broadcast)
	grp.GET("/:id/messages", h.History)
}

func (h *Handler) CreateChannel(c *gin.Context) {
	id, ok := midsec.IdentityFrom(c)
	if !ok {
		fail(c, errs.ErrUnauthorized)
		return
	}
	var in rt.CreateChannelInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, errs.ErrBadRequest.WithDetail("invalid body"))
		return
	}
	ch, err := h.Registry.Create(c.Request.Context(), id.TenantID, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *Handler) GetChannel(c *gin.Context) {
	id, ok := midsec.IdentityFrom(c)
	if !ok {
		fail(c, errs.ErrUnauthorized)
		return
	}
	ch, err := h.Registry.Get(c.Request.Context(), id.TenantID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handler) ListChannels(c *gin.Context) {
	id, ok := midsec.IdentityFrom(c)
	if !ok {
		fail(c, errs.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	typ := model.ChannelType(c.Query("type"))

	chs, err := h.Registry.List(c.Request.Context(), id.TenantID, typ, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": chs, "limit": limit, "offset": offset})
}

type presenceBody struct {
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handler) Join(c *gin.Context) {
	id, channelID, ok := h.scoped(c)
	if !ok {
		return
	}
	var body presenceBody
	_ = c.ShouldBindJSON(&body) // body optional on join

	rec, err := h.Tracker.Join(c.Request.Context(), channelID, id.UserID, body.Metadata)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Leave(c *gin.Context) {
	id, channelID, ok := h.scoped(c)
	if !ok {
		return
	}
	if err := h.Tracker.Leave(c.Request.Context(), channelID, id.UserID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func (h *Handler) Heartbeat(c *gin.Context) {
	id, channelID, ok := h.scoped(c)
	if !ok {
		return
	}
	if err := h.Tracker.Heartbeat(c.Request.Context(), channelID, id.UserID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alive": true})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, channelID, ok := h.scoped(c)
	if !ok {
		return
	}
	var body presenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, errs.ErrBadRequest.WithDetail("invalid body"))
		return
	}
	rec, err := h.Tracker.UpdateStatus(c.Request.Context(), channelID, id.UserID,
		model.PresenceStatus(body.Status), body.Metadata)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetPresence(c *gin.Context) {
	_, channelID, ok := h.scoped(c)
	if !ok {
		return
	}
	recs, err := h.Tracker.GetPresence(c.Request.Context(), channelID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": recs})
}

type broadcastBody struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

func (h *Handler) Broadcast(c *gin.Context) {
	id, channelID, ok := h.scoped(c)
	if !ok {
		return
	}
	var body broadcastBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, errs.ErrBadRequest.WithDetail("invalid body"))
		return
	}
	msg, err := h.Router.Send(c.Request.Context(), rt.SendInput{
		ChannelID: channelID,
		UserID:    id.UserID,
		Event:     body.Event,
		Payload:   body.Payload,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) History(c *gin.Context) {
	_, channelID, ok := h.scoped(c)
	if !ok {
		return
	}
	msgs, err := h.Router.History(c.Request.Context(), channelID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// scoped resolves identity plus a tenant-checked channel id. Cross-tenant
// channels come back not-found so existence never leaks.
func (h *Handler) scoped(c *gin.Context) (id *sec.Identity, channelID string, ok bool) {
	id, found := midsec.IdentityFrom(c)
	if !found {
		fail(c, errs.ErrUnauthorized)
		return nil, "", false
	}
	if id.TenantID == "" {
		fail(c, errs.ErrBadRequest.WithDetail("tenant required"))
		return nil, "", false
	}
	channelID = c.Param("id")
	if _, err := h.Registry.Get(c.Request.Context(), id.TenantID, channelID); err != nil {
		fail(c, err)
		return nil, "", false
	}
	return id, channelID, true
}

func fail(c *gin.Context, err error) {
	var ce *errs.CodeError
	if !errors.As(err, &ce) {
		ce = errs.ErrInternal
	}
	c.AbortWithStatusJSON(ce.Code, ce)
}
