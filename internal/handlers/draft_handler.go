package handlers

import (
	"errors"
	"io"
	"net/http"

	"coursecatalog/internal/service"

	"github.com/gin-gonic/gin"
)

type DraftHandler struct {
	drafts *service.DraftService
}

func NewDraftHandler(drafts *service.DraftService) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

type createDraftRequest struct {
	Link            string `json:"link" binding:"required"`
	Provider        string `json:"provider"`
	CourseName      string `json:"course_name"`
	CourseNameCamel string `json:"courseName"`
}

type promoteDraftRequest struct {
	CourseID      string `json:"course_id"`
	CourseIDCamel string `json:"courseId"`
	Version       int    `json:"version"`
}

// target returns nil when the request names no course.
func (r promoteDraftRequest) target() *service.PromotionTarget {
	id := r.CourseID
	if id == "" {
		id = r.CourseIDCamel
	}
	if id == "" {
		return nil
	}
	return &service.PromotionTarget{CourseID: id, Version: r.Version}
}

// CreateDraft POST /drafts
func (h *DraftHandler) CreateDraft(c *gin.Context) {
	var req createDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	courseName := req.CourseName
	if courseName == "" {
		courseName = req.CourseNameCamel
	}

	draft, err := h.drafts.CreateDraft(c.Request.Context(), req.Link, req.Provider, courseName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, draft)
}

// GetDraft GET /drafts/:id
func (h *DraftHandler) GetDraft(c *gin.Context) {
	draft, err := h.drafts.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// ProcessDraft POST /drafts/:id/process
func (h *DraftHandler) ProcessDraft(c *gin.Context) {
	draft, err := h.drafts.ProcessDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// PromoteDraft POST /drafts/:id/promote
func (h *DraftHandler) PromoteDraft(c *gin.Context) {
	var req promoteDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	course, err := h.drafts.PromoteDraft(c.Request.Context(), c.Param("id"), req.target())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// DeleteDraft DELETE /drafts/:id
func (h *DraftHandler) DeleteDraft(c *gin.Context) {
	if err := h.drafts.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
