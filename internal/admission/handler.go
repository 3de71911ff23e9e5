package admission

import (
	"io"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"gridsim/internal/logger"
	"gridsim/internal/topic"
	apperrors "gridsim/pkg/errors"
)

// Handler adapts the pipeline to gin. It is installed as the NoRoute handler
// of a topic listener, so every method and path reaches it.
type Handler struct {
	pipeline *Pipeline
	registry *topic.Registry
	fallback topic.Topic
	logger   logger.Logger
}

func NewHandler(pipeline *Pipeline, registry *topic.Registry, fallback topic.Topic, log logger.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		registry: registry,
		fallback: fallback,
		logger:   log,
	}
}

func (h *Handler) Register(engine *gin.Engine) {
	engine.NoRoute(h.Handle)
}

func (h *Handler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	// One byte past the limit is enough to tell an oversized body apart.
	limit := int64(h.pipeline.limits.MaxPayloadBytes) + 1
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit))
	if err != nil {
		if ctx.Err() != nil {
			c.Abort()
			return
		}
		h.logger.WarnwCtx(ctx, "Failed to read request body", "error", err)
		rejection := apperrors.ErrDecodeFailure.WithCause(err)
		c.AbortWithStatusJSON(rejection.Status, apperrors.ToErrorResponse(rejection))
		return
	}

	desc := &RequestDescriptor{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  c.Request.URL.Query(),
		Header: c.Request.Header,
		Body:   body,
		Topic:  h.resolveTopic(c.Request),
	}

	_, reply, err := h.pipeline.Serve(ctx, desc)
	if err != nil {
		h.logger.DebugwCtx(ctx, "Request abandoned", "error", err)
		c.Abort()
		return
	}

	writeReply(c, reply)
}

// resolveTopic picks the topic by the port the connection was accepted on,
// falling back to the listener's own topic.
func (h *Handler) resolveTopic(r *http.Request) topic.Topic {
	addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr)
	if !ok || h.registry == nil {
		return h.fallback
	}
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return h.fallback
	}
	if t, found := h.registry.Lookup(tcp.Port); found {
		return t
	}
	return h.fallback
}

func writeReply(c *gin.Context, reply Reply) {
	switch body := reply.Body.(type) {
	case nil:
		c.Status(reply.Status)
	case string:
		c.String(reply.Status, body)
	default:
		c.JSON(reply.Status, body)
	}
}
