package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/service"

	"github.com/gin-gonic/gin"
)

type CourseHandler struct {
	courses *service.CourseService
	export  *service.ExportService
}

func NewCourseHandler(courses *service.CourseService, export *service.ExportService) *CourseHandler {
	return &CourseHandler{courses: courses, export: export}
}

type updateCourseRequest struct {
	Version int `json:"version"`
	models.CoursePatch
}

type enrichCourseRequest struct {
	Link            string `json:"link" binding:"required"`
	Provider        string `json:"provider"`
	CourseName      string `json:"course_name"`
	CourseNameCamel string `json:"courseName"`
}

func (r enrichCourseRequest) courseName() string {
	if r.CourseName != "" {
		return r.CourseName
	}
	return r.CourseNameCamel
}

// paging and search parameters; every other query key is a filter.
var reservedQueryKeys = map[string]bool{
	"search": true, "q": true, "page": true, "page_size": true, "pageSize": true,
}

func queryInt(c *gin.Context, def int, keys ...string) (int, error) {
	for _, key := range keys {
		if raw, ok := c.GetQuery(key); ok && raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return 0, fmt.Errorf("%s must be an integer", key)
			}
			return v, nil
		}
	}
	return def, nil
}

// QueryCourses GET /courses
func (h *CourseHandler) QueryCourses(c *gin.Context) {
	page, err := queryInt(c, 1, "page")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	pageSize, err := queryInt(c, service.DefaultPageSize, "page_size", "pageSize")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	search := c.Query("search")
	if search == "" {
		search = c.Query("q")
	}

	filters := make(map[string][]string)
	for key, values := range c.Request.URL.Query() {
		if !reservedQueryKeys[key] {
			filters[key] = values
		}
	}

	result, err := h.courses.QueryCourses(c.Request.Context(), service.QueryOptions{
		Search:   search,
		Filters:  filters,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListCourses GET /courses/all
func (h *CourseHandler) ListCourses(c *gin.Context) {
	courses, err := h.courses.ListCourses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, courses)
}

// GetCourse GET /courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	course, err := h.courses.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// Revisions GET /courses/:id/revisions
func (h *CourseHandler) Revisions(c *gin.Context) {
	revisions, err := h.courses.Revisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": revisions})
}

// CreateCourse POST /courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var patch models.CoursePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	course, err := h.courses.AddCourse(c.Request.Context(), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// UpdateCourse PUT /courses/:id
func (h *CourseHandler) UpdateCourse(c *gin.Context) {
	var req updateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	course, err := h.courses.UpdateCourse(c.Request.Context(), c.Param("id"), req.CoursePatch, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// EnrichCourse POST /courses/enrich
func (h *CourseHandler) EnrichCourse(c *gin.Context) {
	var req enrichCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	course, err := h.courses.EnrichCourse(c.Request.Context(), req.Link, req.Provider, req.courseName())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, course)
}

// ExportCourses GET /courses/export?format=json|xlsx
func (h *CourseHandler) ExportCourses(c *gin.Context) {
	ctx := c.Request.Context()

	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		data, err := h.export.MirrorDocument(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
	case "xlsx":
		var buf bytes.Buffer
		if err := h.export.WriteWorkbook(ctx, &buf); err != nil {
			respondError(c, err)
			return
		}
		filename := fmt.Sprintf("courses_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		badRequest(c, fmt.Sprintf("unsupported export format %q", format))
	}
}
