package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ieeeucsd/dashboard-finance/internal/application/service"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/export"
)

// Version is reported by the health check
var Version = "dev"

// Handlers serves the endpoints that are not tied to one record collection
type Handlers struct {
	reimbursements service.ReimbursementService
	deposits       service.DepositService
	attachments    service.AttachmentService
	profiles       service.ProfileService
	policy         *workflow.RolePolicy
	exporter       *export.WorkbookWriter
	logger         Logger
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ProfileInput is the body of PUT /profiles/:userId
type ProfileInput struct {
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Role        entity.Role `json:"role,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	respond(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	})
}

// Me handles GET /me
func (h *Handlers) Me(c *gin.Context) {
	profile, err := h.profiles.Me(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"profile":     profile,
		"is_reviewer": h.policy.IsReviewer(profile.Role),
	})
}

// ListProfiles handles GET /profiles
func (h *Handlers) ListProfiles(c *gin.Context) {
	profiles, err := h.profiles.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, profiles)
}

// UpsertProfile handles PUT /profiles/:userId
func (h *Handlers) UpsertProfile(c *gin.Context) {
	var in ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	profile, err := h.profiles.Upsert(c.Request.Context(), actorFrom(c), &entity.Profile{
		UserID:      c.Param("userId"),
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Role:        in.Role,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, profile)
}

// DownloadAttachment handles GET /attachments/:id
func (h *Handlers) DownloadAttachment(c *gin.Context) {
	att, content, err := h.attachments.Download(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", att.FileName))
	c.Data(http.StatusOK, att.MimeType, content)
}

// Export handles GET /reimbursements/export. Reviewers only.
func (h *Handlers) Export(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)
	if !h.policy.IsReviewer(actor.Role) {
		fail(c, http.StatusForbidden, "only reviewers may export the books")
		return
	}

	reimbursements, err := h.reimbursements.List(ctx, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	deposits, err := h.deposits.List(ctx, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, export.Data{Reimbursements: reimbursements, Deposits: deposits}); err != nil {
		respondError(c, h.logger, err)
		return
	}

	filename := fmt.Sprintf("finance-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
