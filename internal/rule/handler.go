package rule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"iris/internal/logger"
	"iris/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/rules")
		{
			rules.GET("", h.ListRules)
			rules.POST("", h.CreateRule)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.GET("/:id/history", h.GetRuleHistory)
			rules.POST("/:id/rollback", h.Rollback)
		}
	}
}

// ListRules godoc
// @Summary      List rules
// @Description  Get a paginated list of rules, optionally filtered by category and enabled state
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        category   query     string  false  "Filter by category"
// @Param        enabled    query     bool    false  "Filter by enabled state"
// @Param        page       query     int     false  "Page number"  default(1)
// @Param        page_size  query     int     false  "Page size"    default(20)
// @Success      200  {object}  ListRulesResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules [get]
func (h *Handler) ListRules(c *gin.Context) {
	filter := ListFilter{
		Category: Category(c.Query("category")),
		Page:     parseIntQuery(c.Query("page")),
		PageSize: parseIntQuery(c.Query("page_size")),
	}
	if enabledStr := c.Query("enabled"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("enabled", enabledStr)))
			return
		}
		filter.Enabled = &enabled
	}

	rules, err := h.Service.ListRules(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule godoc
// @Summary      Create a rule
// @Description  Create a new rule with conditions and actions; the rule starts at version 1
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        rule  body      CreateRuleRequest  true  "Rule data"
// @Success      201   {object}  MutationResult
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Router       /rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	r, err := h.Service.CreateRule(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, MutationResult{
		ID:        r.ID,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
	})
}

// GetRule godoc
// @Summary      Get a rule by ID
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  Rule
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	r, err := h.Service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// UpdateRule godoc
// @Summary      Update a rule
// @Description  Patch rule fields; bumps the version by one. Pass expected_version for optimistic concurrency.
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Rule ID"
// @Param        rule  body      UpdateRuleRequest  true  "Fields to update"
// @Success      200   {object}  MutationResult
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Router       /rules/{id} [put]
func (h *Handler) UpdateRule(c *gin.Context) {
	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	r, err := h.Service.UpdateRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, MutationResult{
		ID:        r.ID,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	})
}

// DeleteRule godoc
// @Summary      Delete a rule
// @Description  Logically delete a rule. Its version history and execution logs remain readable.
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.Service.DeleteRule(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// GetRuleHistory godoc
// @Summary      Get rule version history
// @Description  List all versions of a rule, newest first. Available after deletion as well.
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {array}   RuleVersion
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id}/history [get]
func (h *Handler) GetRuleHistory(c *gin.Context) {
	versions, err := h.Service.GetRuleHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// Rollback godoc
// @Summary      Roll a rule back to an earlier version
// @Description  Creates a new version whose fields equal the target snapshot. Never renumbers past versions.
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id       path      string           true  "Rule ID"
// @Param        request  body      RollbackRequest  true  "Target version and reason"
// @Success      200  {object}  MutationResult
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id}/rollback [post]
func (h *Handler) Rollback(c *gin.Context) {
	var req RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	r, err := h.Service.Rollback(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, MutationResult{
		ID:                  r.ID,
		Version:             r.Version,
		RolledBackToVersion: req.TargetVersion,
		UpdatedAt:           r.UpdatedAt,
	})
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
