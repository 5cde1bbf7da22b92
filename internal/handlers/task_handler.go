package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"makedeal/internal/authz"
	"makedeal/internal/models"
	"makedeal/internal/services"
)

// TaskHandler exposes the follow-up tasks that stage automation creates.
type TaskHandler struct {
	tasks  services.TaskService
	logger *slog.Logger
}

func NewTaskHandler(tasks services.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{tasks: tasks, logger: logger}
}

// List godoc
// @Summary      List tasks
// @Tags         Tasks
// @Produce      json
// @Param        deal_id      query  string  false  "Deal"
// @Param        assignee_id  query  string  false  "Assignee"
// @Param        status       query  string  false  "new|in_progress|done|cancelled"
// @Success      200  {array}  models.Task
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	filter := models.TaskFilter{}
	if v, ok := c.GetQuery("deal_id"); ok {
		et := models.EntityTypeDeal
		filter.EntityID, filter.EntityType = &v, &et
	}
	if v, ok := c.GetQuery("assignee_id"); ok {
		filter.AssigneeID = &v
	}
	if v, ok := c.GetQuery("status"); ok {
		st := models.TaskStatus(v)
		if !isAllowedTaskStatus(st) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filter.Status = &st
	}

	// sales staff only see their own work
	user := currentUser(c)
	if user.RoleID == authz.RoleSales {
		filter.AssigneeID = &user.UserID
	}

	tasks, err := h.tasks.GetAll(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

// DealTasks godoc
// @Summary      Tasks of a deal
// @Tags         Tasks
// @Produce      json
// @Param        id   path  string  true  "Deal ID"
// @Success      200  {array}  models.Task
// @Router       /pipeline/deals/{id}/tasks [get]
func (h *TaskHandler) DealTasks(c *gin.Context) {
	id := c.Param("id")
	et := models.EntityTypeDeal
	tasks, err := h.tasks.GetAll(c.Request.Context(), models.TaskFilter{EntityID: &id, EntityType: &et})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

type taskStatusRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

// UpdateStatus godoc
// @Summary      Move a task through its workflow
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "Task ID"
// @Param        body  body  taskStatusRequest  true  "New status"
// @Success      200  {object}  models.Task
// @Failure      409  {object}  map[string]string
// @Router       /tasks/{id}/status [patch]
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !isAllowedTaskStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	id := c.Param("id")
	current, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	user := currentUser(c)
	if user.RoleID == authz.RoleSales && current.AssigneeID != user.UserID && current.CreatorID != user.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if !isTransitionAllowed(current.Status, req.Status) {
		c.JSON(http.StatusConflict, gin.H{"error": "illegal status transition"})
		return
	}

	updated, err := h.tasks.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("task status changed", "task_id", id, "from", current.Status, "to", req.Status, "user_id", user.UserID)
	c.JSON(http.StatusOK, updated)
}

func isAllowedTaskStatus(s models.TaskStatus) bool {
	switch s {
	case models.StatusNew, models.StatusInProgress, models.StatusDone, models.StatusCancelled:
		return true
	}
	return false
}

func isTransitionAllowed(from, to models.TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case models.StatusNew:
		return to == models.StatusInProgress || to == models.StatusCancelled
	case models.StatusInProgress:
		return to == models.StatusDone || to == models.StatusCancelled
	}
	return false
}
