package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finextract/internal/domain"
	"finextract/internal/service"
)

// ExtractionHandler handles extraction endpoints.
type ExtractionHandler struct {
	svc    service.ExtractionService
	logger *zap.Logger
}

// NewExtractionHandler creates a new ExtractionHandler.
func NewExtractionHandler(svc service.ExtractionService, logger *zap.Logger) *ExtractionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionHandler{svc: svc, logger: logger}
}

type createExtractionRequest struct {
	DocumentName     string                 `json:"document_name"`
	Text             string                 `json:"text"`
	ExpectedTotal    *float64               `json:"expected_total"`
	SecondaryRecords []domain.SourceRecords `json:"secondary_records"`
	Overrides        map[string]float64     `json:"overrides"`
}

type fromStorageRequest struct {
	Key           string   `json:"key" binding:"required"`
	DocumentName  string   `json:"document_name"`
	ExpectedTotal *float64 `json:"expected_total"`
}

// Create handles POST /api/v1/extractions
// @Summary      Extract positions from statement text
// @Description  Runs the extraction pipeline over statement text and optional secondary records. Blank text yields an empty result with a warning.
// @Tags         extractions
// @Accept       json
// @Produce      json
// @Param        body body createExtractionRequest true "Statement text and reconciliation inputs"
// @Success      201 {object} APIResponse{data=domain.ExtractionResult}
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Failure      500 {object} APIResponse
// @Security     BearerAuth
// @Router       /extractions [post]
func (h *ExtractionHandler) Create(c *gin.Context) {
	var req createExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	result, err := h.svc.Extract(c.Request.Context(), &service.ExtractRequest{
		DocumentName:     req.DocumentName,
		Text:             req.Text,
		ExpectedTotal:    req.ExpectedTotal,
		SecondarySources: req.SecondaryRecords,
		Overrides:        req.Overrides,
	})
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondCreated(c, result)
}

// FromStorage handles POST /api/v1/extractions/from-storage
// @Summary      Extract an archived statement
// @Description  Downloads statement text from the archive bucket and extracts it
// @Tags         extractions
// @Accept       json
// @Produce      json
// @Param        body body fromStorageRequest true "Object key and document metadata"
// @Success      201 {object} APIResponse{data=domain.ExtractionResult}
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Failure      404 {object} APIResponse
// @Failure      503 {object} APIResponse
// @Security     BearerAuth
// @Router       /extractions/from-storage [post]
func (h *ExtractionHandler) FromStorage(c *gin.Context) {
	var req fromStorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "key is required")
		return
	}

	result, err := h.svc.ExtractFromStorage(c.Request.Context(), &service.ExtractFromStorageRequest{
		Key:           req.Key,
		DocumentName:  req.DocumentName,
		ExpectedTotal: req.ExpectedTotal,
	})
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondCreated(c, result)
}

// List handles GET /api/v1/extractions
// @Summary      List extraction runs
// @Description  Lists persisted runs, newest first
// @Tags         extractions
// @Produce      json
// @Param        offset query int false "Pagination offset" default(0)
// @Param        limit query int false "Pagination limit" default(20)
// @Success      200 {object} APIResponse{data=[]domain.ExtractionRun,meta=PagMeta}
// @Failure      401 {object} APIResponse
// @Failure      500 {object} APIResponse
// @Security     BearerAuth
// @Router       /extractions [get]
func (h *ExtractionHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	runs, total, err := h.svc.ListRuns(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondPaginated(c, runs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// Get handles GET /api/v1/extractions/:id
// @Summary      Get an extraction result
// @Tags         extractions
// @Produce      json
// @Param        id path string true "Run ID"
// @Success      200 {object} APIResponse{data=domain.ExtractionResult}
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Failure      404 {object} APIResponse
// @Security     BearerAuth
// @Router       /extractions/{id} [get]
func (h *ExtractionHandler) Get(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	result, err := h.svc.GetResult(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondOK(c, result)
}

// Export handles GET /api/v1/extractions/:id/export?format=csv|xlsx|json
// @Summary      Export an extraction result
// @Description  Renders a stored result as a CSV, XLSX or JSON attachment
// @Tags         extractions
// @Produce      text/csv
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce      json
// @Param        id path string true "Run ID"
// @Param        format query string false "Export format" Enums(csv, xlsx, json) default(csv)
// @Success      200 {file} file
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Failure      404 {object} APIResponse
// @Security     BearerAuth
// @Router       /extractions/{id}/export [get]
func (h *ExtractionHandler) Export(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	out, err := h.svc.Export(c.Request.Context(), id, domain.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, out.Filename))
	c.Data(http.StatusOK, out.ContentType, out.Data)
}

// Archive handles GET /api/v1/extractions/:id/archive
// @Summary      Get a download link for an archived result
// @Description  Returns a presigned, time-limited URL to the run's result in object storage
// @Tags         extractions
// @Produce      json
// @Param        id path string true "Run ID"
// @Success      200 {object} APIResponse{data=service.ArchiveLink}
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Failure      404 {object} APIResponse
// @Failure      503 {object} APIResponse
// @Security     BearerAuth
// @Router       /extractions/{id}/archive [get]
func (h *ExtractionHandler) Archive(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	link, err := h.svc.ArchiveURL(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondOK(c, link)
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid extraction run ID")
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination extracts offset and limit from query params with defaults.
func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
