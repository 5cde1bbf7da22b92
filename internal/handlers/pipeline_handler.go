package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"makedeal/internal/authz"
	"makedeal/internal/models"
	"makedeal/internal/pdf"
	"makedeal/internal/services"
)

// BoardServer upgrades board websocket connections.
type BoardServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

type PipelineHandler struct {
	pipeline    *services.PipelineService
	transitions *services.StageTransitionService
	catalog     *services.StageCatalog
	reports     *pdf.ReportGenerator
	board       BoardServer
	logger      *slog.Logger
}

func NewPipelineHandler(
	pipeline *services.PipelineService,
	transitions *services.StageTransitionService,
	catalog *services.StageCatalog,
	reports *pdf.ReportGenerator,
	board BoardServer,
	logger *slog.Logger,
) *PipelineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineHandler{
		pipeline:    pipeline,
		transitions: transitions,
		catalog:     catalog,
		reports:     reports,
		board:       board,
		logger:      logger,
	}
}

type transitionRequest struct {
	ToStage   string `json:"to_stage" binding:"required"`
	FromStage string `json:"from_stage"`
	Reason    string `json:"reason" binding:"max=1000"`
	Override  bool   `json:"override"`
}

type validateRequest struct {
	ToStage  string `json:"to_stage" binding:"required"`
	Override bool   `json:"override"`
}

// loadForWrite returns the deal if the caller may move it: assignees move
// their own deals, elevated roles move any deal.
func (h *PipelineHandler) loadForWrite(c *gin.Context, user services.UserContext) (*models.DealStageState, bool) {
	state, err := h.pipeline.GetDealState(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	if state.AssignedUserID != "" && state.AssignedUserID != user.UserID && !authz.IsElevated(user.RoleID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return state, true
}

// @Summary      Move a deal to another stage
// @Tags         Pipeline
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Deal ID"
// @Param        body  body      transitionRequest  true  "Target stage"
// @Success      200   {object}  services.TransitionResult
// @Failure      409   {object}  transitionErrorBody
// @Failure      422   {object}  transitionErrorBody
// @Router       /pipeline/deals/{id}/transition [post]
func (h *PipelineHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := currentUser(c)
	if _, ok := h.loadForWrite(c, user); !ok {
		return
	}

	res, err := h.transitions.ExecuteTransition(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.ToStage), user,
		services.TransitionOptions{
			Reason:            req.Reason,
			Override:          req.Override,
			ExpectedFromStage: req.FromStage,
		})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Check a move without applying it
// @Tags         Pipeline
// @Accept       json
// @Produce      json
// @Param        id    path      string           true  "Deal ID"
// @Param        body  body      validateRequest  true  "Target stage"
// @Success      200   {object}  services.ValidationResult
// @Router       /pipeline/deals/{id}/validate [post]
func (h *PipelineHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vr, err := h.transitions.Validate(c.Request.Context(), c.Param("id"), req.ToStage, req.Override)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if vr.Warnings == nil {
		vr.Warnings = []string{}
	}
	c.JSON(http.StatusOK, vr)
}

// @Summary      Pipeline board
// @Tags         Pipeline
// @Produce      json
// @Param        stage             query  string  false  "Comma separated stage keys"
// @Param        assigned_user_id  query  string  false  "Assignee"
// @Param        include_closed    query  bool    false  "Include closed deals"
// @Param        stale_only        query  bool    false  "Only stale deals"
// @Success      200  {object}  map[string]interface{}
// @Router       /pipeline [get]
func (h *PipelineHandler) Snapshot(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.pipeline.GetPipelineSnapshot(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stages":        snap.Stages,
		"deals":         snap.Deals,
		"wip_occupancy": snap.WipOccupancy,
		"summaries":     snap.Summaries(),
		"generated_at":  snap.GeneratedAt,
	})
}

func parseFilter(c *gin.Context) (models.PipelineFilter, error) {
	var f models.PipelineFilter
	if raw := c.Query("stage"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				f.StageKeys = append(f.StageKeys, k)
			}
		}
	}
	if v := c.Query("assigned_user_id"); v != "" {
		f.AssignedUserID = v
	}
	var err error
	if f.IncludeClosed, err = boolQuery(c, "include_closed"); err != nil {
		return f, err
	}
	if f.StaleOnly, err = boolQuery(c, "stale_only"); err != nil {
		return f, err
	}
	return f, nil
}

func boolQuery(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

// @Summary      Deal stage state
// @Tags         Pipeline
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {object}  models.DealStageState
// @Failure      404  {object}  map[string]string
// @Router       /pipeline/deals/{id} [get]
func (h *PipelineHandler) GetDeal(c *gin.Context) {
	state, err := h.pipeline.GetDealState(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// @Summary      Stage history of a deal
// @Tags         Pipeline
// @Produce      json
// @Param        id   path      string  true  "Deal ID"
// @Success      200  {array}   models.TransitionRecord
// @Router       /pipeline/deals/{id}/transitions [get]
func (h *PipelineHandler) ListTransitions(c *gin.Context) {
	records, err := h.pipeline.ListTransitions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if records == nil {
		records = []models.TransitionRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// @Summary      Stage history as PDF
// @Tags         Pipeline
// @Produce      application/pdf
// @Param        id   path  string  true  "Deal ID"
// @Success      200
// @Router       /pipeline/deals/{id}/transitions/export [get]
func (h *PipelineHandler) ExportTransitions(c *gin.Context) {
	data, ok := h.historyReport(c)
	if !ok {
		return
	}
	out, err := h.reports.RenderTransitionHistory(data)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="stage_history_%s.pdf"`, data.Deal.DealID))
	c.Data(http.StatusOK, "application/pdf", out)
}

// @Summary      Save stage history as PDF
// @Description  Writes the report to the reports directory and returns its download link.
// @Tags         Pipeline
// @Produce      json
// @Param        id   path  string  true  "Deal ID"
// @Success      201  {object}  map[string]string
// @Router       /pipeline/deals/{id}/transitions/export [post]
func (h *PipelineHandler) SaveTransitions(c *gin.Context) {
	data, ok := h.historyReport(c)
	if !ok {
		return
	}
	path, err := h.reports.SaveTransitionHistory(data)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("history report saved", "deal_id", data.Deal.DealID, "path", path)
	c.JSON(http.StatusCreated, gin.H{"path": path, "url": "/pipeline/reports" + path})
}

// @Summary      Download a saved report
// @Tags         Pipeline
// @Produce      application/pdf
// @Param        name  path  string  true  "Report file name"
// @Success      200
// @Failure      404  {object}  map[string]string
// @Router       /pipeline/reports/{name} [get]
func (h *PipelineHandler) DownloadReport(c *gin.Context) {
	abs, err := h.reports.SavedReport(c.Param("name"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.FileAttachment(abs, filepath.Base(abs))
}

func (h *PipelineHandler) historyReport(c *gin.Context) (pdf.HistoryReport, bool) {
	ctx := c.Request.Context()
	dealID := c.Param("id")
	state, err := h.pipeline.GetDealState(ctx, dealID)
	if err != nil {
		respondError(c, h.logger, err)
		return pdf.HistoryReport{}, false
	}
	records, err := h.pipeline.ListTransitions(ctx, dealID)
	if err != nil {
		respondError(c, h.logger, err)
		return pdf.HistoryReport{}, false
	}
	return pdf.HistoryReport{
		Deal:        *state,
		Records:     records,
		GeneratedAt: time.Now(),
		StageName: func(key string) string {
			if s, err := h.catalog.GetStage(key); err == nil {
				return s.DisplayName
			}
			return ""
		},
	}, true
}

// @Summary      WIP occupancy of every stage
// @Tags         Pipeline
// @Produce      json
// @Success      200  {array}  models.WipSnapshot
// @Router       /pipeline/wip [get]
func (h *PipelineHandler) Occupancy(c *gin.Context) {
	snaps, err := h.pipeline.Occupancy(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}

// @Summary      WIP occupancy of one stage
// @Tags         Pipeline
// @Produce      json
// @Param        stage  path      string  true  "Stage key"
// @Success      200    {object}  models.WipSnapshot
// @Router       /pipeline/wip/{stage} [get]
func (h *PipelineHandler) StageOccupancy(c *gin.Context) {
	snap, err := h.pipeline.StageOccupancy(c.Request.Context(), c.Param("stage"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Board streams transition events over a websocket.
func (h *PipelineHandler) Board(c *gin.Context) {
	if err := h.board.ServeWS(c.Writer, c.Request); err != nil {
		h.logger.Debug("board upgrade failed", "error", err)
	}
}
