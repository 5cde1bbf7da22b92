package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"makedeal/internal/models"
	"makedeal/internal/services"
)

type StageHandler struct {
	catalog  *services.StageCatalog
	validate *validator.Validate
	logger   *slog.Logger
}

func NewStageHandler(catalog *services.StageCatalog, logger *slog.Logger) *StageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageHandler{catalog: catalog, validate: validator.New(), logger: logger}
}

// @Summary      Stage catalog
// @Tags         Stages
// @Produce      json
// @Success      200  {array}  models.StageDefinition
// @Router       /stages [get]
func (h *StageHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.GetStages())
}

func (h *StageHandler) bindStage(c *gin.Context) (models.StageDefinition, bool) {
	var stage models.StageDefinition
	if err := c.ShouldBindJSON(&stage); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return stage, false
	}
	if err := h.validate.Struct(stage); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return stage, false
	}
	return stage, true
}

// @Summary      Add a stage
// @Tags         Stages
// @Accept       json
// @Produce      json
// @Param        body  body      models.StageDefinition  true  "Stage"
// @Success      201   {object}  models.StageDefinition
// @Failure      409   {object}  map[string]string
// @Router       /stages [post]
func (h *StageHandler) Create(c *gin.Context) {
	stage, ok := h.bindStage(c)
	if !ok {
		return
	}
	if err := h.catalog.AddStage(c.Request.Context(), stage); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, stage)
}

// @Summary      Update a stage
// @Tags         Stages
// @Accept       json
// @Produce      json
// @Param        key   path      string                  true  "Stage key"
// @Param        body  body      models.StageDefinition  true  "Stage"
// @Success      200   {object}  models.StageDefinition
// @Router       /stages/{key} [put]
func (h *StageHandler) Update(c *gin.Context) {
	stage, ok := h.bindStage(c)
	if !ok {
		return
	}
	if stage.Key != c.Param("key") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stage key cannot be changed"})
		return
	}
	if err := h.catalog.UpdateStage(c.Request.Context(), stage); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stage)
}

type reorderRequest struct {
	Keys []string `json:"keys" binding:"required,min=1"`
}

// @Summary      Reorder stages
// @Tags         Stages
// @Accept       json
// @Produce      json
// @Param        body  body      reorderRequest  true  "Every stage key in the new order"
// @Success      200   {array}   models.StageDefinition
// @Router       /stages/order [put]
func (h *StageHandler) Reorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.catalog.Reorder(c.Request.Context(), req.Keys); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.catalog.GetStages())
}

// @Summary      Remove an unused stage
// @Tags         Stages
// @Param        key  path  string  true  "Stage key"
// @Success      204
// @Failure      409  {object}  map[string]string
// @Router       /stages/{key} [delete]
func (h *StageHandler) Delete(c *gin.Context) {
	if err := h.catalog.RemoveStage(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
