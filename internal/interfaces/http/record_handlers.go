package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/application/readmodel"
	"github.com/ieeeucsd/dashboard-finance/internal/application/service"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/projection"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
)

// IdempotencyKeyHeader lets clients retry a create without duplicating it
const IdempotencyKeyHeader = "Idempotency-Key"

// recordHandlers serves one record collection
type recordHandlers[T entity.Record] struct {
	kind            entity.Kind
	svc             service.RecordService[T]
	view            *readmodel.View[T]
	attachments     service.AttachmentService
	policy          *workflow.RolePolicy
	idempotency     port.IdempotencyStore
	defaultCategory string
	maxUploadBytes  int64
	newRecord       func() T
	newInput        func() recordInput[T]
	logger          Logger
}

func (h *recordHandlers[T]) register(group *gin.RouterGroup) {
	group.POST("", h.create)
	group.GET("", h.list)
	group.GET("/stats", h.stats)
	group.GET("/:id", h.get)
	group.PATCH("/:id", h.patch)
	group.DELETE("/:id", h.remove)
	group.POST("/:id/transitions", h.transition)
	group.GET("/:id/allowed", h.allowed)
	group.POST("/:id/attachments", h.upload)
}

// create handles POST /{collection}
func (h *recordHandlers[T]) create(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)

	in := h.newInput()
	if err := c.ShouldBindJSON(in); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	scope := string(h.kind) + ":" + actor.UserID
	claimed := false
	if key != "" && h.idempotency != nil {
		id, reserved, err := h.idempotency.Reserve(scope, key)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		if !reserved {
			rec, err := h.svc.Get(ctx, actor, id)
			if err != nil {
				respondError(c, h.logger, err)
				return
			}
			respond(c, http.StatusOK, rec)
			return
		}
		claimed = true
	}

	created, err := h.submit(c, actor, in)
	if err != nil {
		if claimed {
			if relErr := h.idempotency.Release(scope, key); relErr != nil {
				h.logger.Error("Failed to release idempotency key", "kind", h.kind, "error", relErr)
			}
		}
		respondError(c, h.logger, err)
		return
	}

	if claimed {
		if err := h.idempotency.Remember(scope, key, created.RecordID()); err != nil {
			h.logger.Error("Failed to remember idempotency key", "kind", h.kind, "record_id", created.RecordID(), "error", err)
		}
	}
	respond(c, http.StatusCreated, created)
}

func (h *recordHandlers[T]) submit(c *gin.Context, actor entity.Actor, in recordInput[T]) (T, error) {
	rec := h.newRecord()
	if err := in.Apply(rec); err != nil {
		var zero T
		return zero, err
	}
	return h.svc.Submit(c.Request.Context(), actor, rec)
}

// list handles GET /{collection}?search=&status=
func (h *recordHandlers[T]) list(c *gin.Context) {
	var filter projection.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		fail(c, http.StatusBadRequest, "invalid query parameters")
		return
	}

	recs, err := h.svc.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, projection.Apply(recs, filter))
}

// stats handles GET /{collection}/stats. Reviewers are served from the read
// model; members get a fold over their own records.
func (h *recordHandlers[T]) stats(c *gin.Context) {
	var filter projection.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		fail(c, http.StatusBadRequest, "invalid query parameters")
		return
	}

	actor := actorFrom(c)
	if h.view != nil && h.policy.IsReviewer(actor.Role) {
		respond(c, http.StatusOK, h.view.Stats(filter))
		return
	}

	recs, err := h.svc.List(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, projection.Compute(recs, filter))
}

// get handles GET /{collection}/:id
func (h *recordHandlers[T]) get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, rec)
}

// patch handles PATCH /{collection}/:id
func (h *recordHandlers[T]) patch(c *gin.Context) {
	in := h.newInput()
	if err := c.ShouldBindJSON(in); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.svc.Edit(c.Request.Context(), actorFrom(c), c.Param("id"), in.Expected(), in.Apply)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, rec)
}

// remove handles DELETE /{collection}/:id
func (h *recordHandlers[T]) remove(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

// transition handles POST /{collection}/:id/transitions
func (h *recordHandlers[T]) transition(c *gin.Context) {
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.svc.Transition(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, rec)
}

// allowed handles GET /{collection}/:id/allowed
func (h *recordHandlers[T]) allowed(c *gin.Context) {
	statuses, err := h.svc.Allowed(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"allowed": statuses})
}

// upload handles multipart POST /{collection}/:id/attachments with a "file"
// part and an optional "category" field
func (h *recordHandlers[T]) upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "file is required")
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	category := c.DefaultPostForm("category", h.defaultCategory)
	att, err := h.attachments.Upload(c.Request.Context(), actorFrom(c), service.UploadRequest{
		Kind:     h.kind,
		RecordID: c.Param("id"),
		Category: category,
		FileName: header.Filename,
		Content:  content,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, att)
}
