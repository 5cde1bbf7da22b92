package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"makedeal/internal/authz"
	"makedeal/internal/handlers"
	"makedeal/internal/metrics"
	"makedeal/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	jwtSecret []byte,
	pipelineMetrics *metrics.PipelineMetrics,
	pipelineHandler *handlers.PipelineHandler,
	stageHandler *handlers.StageHandler,
	taskHandler *handlers.TaskHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if pipelineMetrics != nil {
		r.GET("/metrics", gin.WrapH(pipelineMetrics.Handler()))
	}

	// ---- protected
	r.Use(middleware.AuthMiddleware(jwtSecret))
	r.Use(middleware.ReadOnlyGuard())

	// PIPELINE
	pipeline := r.Group("/pipeline")
	{
		pipeline.GET("", pipelineHandler.Snapshot)
		pipeline.GET("/board/ws", pipelineHandler.Board)
		pipeline.GET("/wip", pipelineHandler.Occupancy)
		pipeline.GET("/wip/:stage", pipelineHandler.StageOccupancy)
		pipeline.GET("/deals/:id", pipelineHandler.GetDeal)
		pipeline.GET("/deals/:id/transitions", pipelineHandler.ListTransitions)
		pipeline.GET("/deals/:id/transitions/export", pipelineHandler.ExportTransitions)
		pipeline.POST("/deals/:id/transitions/export", pipelineHandler.SaveTransitions)
		pipeline.GET("/reports/:name", pipelineHandler.DownloadReport)
		pipeline.GET("/deals/:id/tasks", taskHandler.DealTasks)
		pipeline.POST("/deals/:id/validate", pipelineHandler.Validate)
		pipeline.POST("/deals/:id/transition",
			middleware.RequireRoles(authz.RoleSales, authz.RoleOperations, authz.RoleManagement, authz.RoleAdmin),
			pipelineHandler.Transition,
		)
	}

	// TASKS
	tasks := r.Group("/tasks")
	{
		tasks.GET("", taskHandler.List)
		tasks.PATCH("/:id/status", taskHandler.UpdateStatus)
	}

	// STAGES (reads for everyone, changes for Admin)
	r.GET("/stages", stageHandler.List)
	stages := r.Group("/stages", middleware.RequireRoles(authz.RoleAdmin))
	{
		stages.POST("", stageHandler.Create)
		stages.PUT("/order", stageHandler.Reorder)
		stages.PUT("/:key", stageHandler.Update)
		stages.DELETE("/:key", stageHandler.Delete)
	}

	return r
}
