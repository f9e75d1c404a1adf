package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the catalog API on the given group.
func RegisterRoutes(api *gin.RouterGroup, courses *CourseHandler, drafts *DraftHandler, system *SystemHandler) {
	api.GET("/health", system.Health)
	api.GET("/system/stats", system.Stats)

	c := api.Group("/courses")
	c.GET("", courses.QueryCourses)
	c.GET("/all", courses.ListCourses)
	c.GET("/export", courses.ExportCourses)
	c.POST("", courses.CreateCourse)
	c.POST("/enrich", courses.EnrichCourse)
	c.GET("/:id", courses.GetCourse)
	c.GET("/:id/revisions", courses.Revisions)
	c.PUT("/:id", courses.UpdateCourse)

	d := api.Group("/drafts")
	d.POST("", drafts.CreateDraft)
	d.GET("/:id", drafts.GetDraft)
	d.POST("/:id/process", drafts.ProcessDraft)
	d.POST("/:id/promote", drafts.PromoteDraft)
	d.DELETE("/:id", drafts.DeleteDraft)
}
