package approval

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"iris/internal/constants"
	"iris/internal/logger"
	"iris/pkg/errors"
)

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/rules")
		{
			rules.GET("/:id/approve", h.ListRuleApprovals)
			rules.POST("/:id/approve", h.SubmitApproval)
		}

		approvals := v1.Group("/approvals")
		{
			approvals.GET("", h.ListApprovals)
			approvals.GET("/:id", h.GetApproval)
			approvals.POST("/:id/decide", h.Decide)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// SubmitApproval godoc
// @Summary      Submit a rule for approval
// @Description  Opens a pending approval at level 1 and assigns the first approver.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path      string         true  "Rule ID"
// @Param        request  body      SubmitRequest  true  "Applicant comment and priority"
// @Success      201  {object}  Approval
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id}/approve [post]
func (h *Handler) SubmitApproval(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	req.RuleID = c.Param("id")
	if req.Applicant == "" {
		req.Applicant = requestUser(c)
	}

	a, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListRuleApprovals godoc
// @Summary      List approvals for a rule
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  ListResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/{id}/approve [get]
func (h *Handler) ListRuleApprovals(c *gin.Context) {
	resp, err := h.service.List(c.Request.Context(), ListFilter{RuleID: c.Param("id")})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListApprovals godoc
// @Summary      List approvals
// @Description  Worklist of approvals, optionally filtered by status.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        status     query     string  false  "pending, approved or rejected"
// @Param        page       query     int     false  "Page number"  default(1)
// @Param        page_size  query     int     false  "Page size"    default(20)
// @Success      200  {object}  ListResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Router       /approvals [get]
func (h *Handler) ListApprovals(c *gin.Context) {
	status := Status(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("status", string(status))))
		return
	}

	resp, err := h.service.List(c.Request.Context(), ListFilter{
		Status:   status,
		Page:     parseIntQuery(c.Query("page")),
		PageSize: parseIntQuery(c.Query("page_size")),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetApproval godoc
// @Summary      Get an approval by ID
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Approval ID"
// @Success      200  {object}  Approval
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /approvals/{id} [get]
func (h *Handler) GetApproval(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Decide godoc
// @Summary      Record an approval decision
// @Description  Approves or rejects at the current level. Fails with INVALID_STATE once terminal.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path      string         true  "Approval ID"
// @Param        request  body      DecideRequest  true  "Approver decision"
// @Success      200  {object}  Approval
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Router       /approvals/{id}/decide [post]
func (h *Handler) Decide(c *gin.Context) {
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	a, err := h.service.Decide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func parseIntQuery(value string) int {
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func requestUser(c *gin.Context) string {
	if userID := c.Request.Context().Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return constants.ExecutedBySystem
}
