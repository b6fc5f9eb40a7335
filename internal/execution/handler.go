package execution

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"iris/internal/constants"
	"iris/internal/logger"
	"iris/pkg/errors"
)

type Handler struct {
	runner *Runner
	logger logger.Logger
}

func NewHandler(runner *Runner, log logger.Logger) *Handler {
	return &Handler{
		runner: runner,
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/rules")
		{
			rules.GET("/execute", h.LatestExecution)
			rules.POST("/:id/test", h.TestRule)
			rules.POST("/:id/execute", h.ExecuteRule)
			rules.GET("/:id/executions", h.ListExecutions)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// TestRule godoc
// @Summary      Test a rule against one record
// @Description  Evaluates the rule once against the supplied record. No side effects; dispatch runs dry.
// @Tags         executions
// @Accept       json
// @Produce      json
// @Param        id       path      string       true  "Rule ID"
// @Param        request  body      TestRequest  true  "Test record and optional evaluation mode"
// @Success      200  {object}  TestResult
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id}/test [post]
func (h *Handler) TestRule(c *gin.Context) {
	var req TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.runner.Test(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExecuteRule godoc
// @Summary      Execute a rule against the whole population
// @Description  Runs a batch execution and writes one execution log entry.
// @Tags         executions
// @Accept       json
// @Produce      json
// @Param        id       path      string          true   "Rule ID"
// @Param        request  body      ExecuteRequest  false  "Trigger type (defaults to manual)"
// @Success      200  {object}  Log
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id}/execute [post]
func (h *Handler) ExecuteRule(c *gin.Context) {
	var req ExecuteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
			return
		}
	}

	log, err := h.runner.Execute(c.Request.Context(), c.Param("id"), req.TriggerType, executedBy(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

// ListExecutions godoc
// @Summary      List execution logs for a rule
// @Description  Newest first. Logs survive rule deletion.
// @Tags         executions
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {array}   Log
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/{id}/executions [get]
func (h *Handler) ListExecutions(c *gin.Context) {
	logs, err := h.runner.ListLogs(c.Request.Context(), LogFilter{RuleID: c.Param("id")})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// LatestExecution godoc
// @Summary      Latest execution log for a rule in a date range
// @Tags         executions
// @Accept       json
// @Produce      json
// @Param        rule_id     query     string  true   "Rule ID"
// @Param        start_date  query     string  false  "RFC 3339 start of range"
// @Param        end_date    query     string  false  "RFC 3339 end of range"
// @Success      200  {object}  Log
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/execute [get]
func (h *Handler) LatestExecution(c *gin.Context) {
	ruleID := c.Query("rule_id")
	if ruleID == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("reason", "rule_id is required")))
		return
	}

	startDate, err := parseDateQuery(c.Query("start_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("start_date", c.Query("start_date"))))
		return
	}
	endDate, err := parseDateQuery(c.Query("end_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("end_date", c.Query("end_date"))))
		return
	}

	log, err := h.runner.LatestInRange(c.Request.Context(), ruleID, startDate, endDate)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func parseDateQuery(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// Plain dates are accepted too.
		t, err = time.Parse("2006-01-02", value)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func executedBy(c *gin.Context) string {
	if userID := c.Request.Context().Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return constants.ExecutedBySystem
}
