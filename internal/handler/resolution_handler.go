package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slotwise/timetable-merge-api/internal/dto"
	"github.com/slotwise/timetable-merge-api/internal/service"
	appErrors "github.com/slotwise/timetable-merge-api/pkg/errors"
	"github.com/slotwise/timetable-merge-api/pkg/response"
)

// ResolutionHandler exposes timetable consolidation endpoints.
type ResolutionHandler struct {
	resolutions *service.ResolutionService
}

// NewResolutionHandler constructs handler.
func NewResolutionHandler(resolutions *service.ResolutionService) *ResolutionHandler {
	return &ResolutionHandler{resolutions: resolutions}
}

// Resolve godoc
// @Summary Consolidate timetable rows into a conflict-minimised grid
// @Tags Resolutions
// @Accept json
// @Produce json
// @Param payload body dto.ResolveRequest true "Rows to consolidate"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /resolutions [post]
func (h *ResolutionHandler) Resolve(c *gin.Context) {
	var req dto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	resp, err := h.resolutions.Resolve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// List godoc
// @Summary List stored resolution runs
// @Tags Resolutions
// @Produce json
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /resolutions [get]
func (h *ResolutionHandler) List(c *gin.Context) {
	var query dto.RunListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}

	runs, pagination, err := h.resolutions.ListRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, &pagination)
}

// Get godoc
// @Summary Load a stored resolution run
// @Tags Resolutions
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resolutions/{id} [get]
func (h *ResolutionHandler) Get(c *gin.Context) {
	resp, err := h.resolutions.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Conflicts godoc
// @Summary List the unavoidable conflicts of a run
// @Tags Resolutions
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resolutions/{id}/conflicts [get]
func (h *ResolutionHandler) Conflicts(c *gin.Context) {
	records, err := h.resolutions.GetConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
