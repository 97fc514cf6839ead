package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mercadia/salesgoals/internal/api/middleware"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/mercadia/salesgoals/internal/service"
	"github.com/shopspring/decimal"
)

type GoalHandler struct {
	ledger service.LedgerService
}

func NewGoalHandler(ledger service.LedgerService) *GoalHandler {
	return &GoalHandler{ledger: ledger}
}

// statusFor переводит доменные ошибки в HTTP статусы
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrDuplicateGoal):
		return http.StatusConflict
	case errors.Is(err, models.ErrGoalNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidPercentage),
		errors.Is(err, models.ErrInvalidPeriod),
		errors.Is(err, models.ErrPeriodNotStarted),
		errors.Is(err, models.ErrSelfCreation),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *GoalHandler) Create(c *gin.Context) {
	var input models.GoalCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	goal, err := h.ledger.AddGoal(c.Request.Context(), middleware.GetActor(c), &input)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, goal)
}

func (h *GoalHandler) List(c *gin.Context) {
	filter := models.GoalFilter{
		UserID: c.Query("user_id"),
		Status: models.GoalStatus(c.Query("status")),
		Search: c.Query("search"),
	}
	filter.Month, _ = strconv.Atoi(c.Query("month"))
	filter.Year, _ = strconv.Atoi(c.Query("year"))

	c.JSON(http.StatusOK, h.ledger.GetFilteredGoals(filter))
}

func (h *GoalHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal ID"})
		return
	}

	goal, err := h.ledger.GetGoalByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "goal not found"})
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (h *GoalHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal ID"})
		return
	}

	var input models.GoalUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	goal, err := h.ledger.UpdateGoal(c.Request.Context(), middleware.GetActor(c), id, &input)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (h *GoalHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal ID"})
		return
	}

	if err := h.ledger.DeleteGoal(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "goal deleted"})
}

type recordSaleInput struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *GoalHandler) RecordSale(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal ID"})
		return
	}

	var input recordSaleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	goal, err := h.ledger.RecordSale(c.Request.Context(), middleware.GetActor(c), id, input.Amount)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (h *GoalHandler) GetByAccessCode(c *gin.Context) {
	code := c.Param("code")
	month, _ := strconv.Atoi(c.Query("month"))
	year, _ := strconv.Atoi(c.Query("year"))

	c.JSON(http.StatusOK, h.ledger.GetGoalsByAccessCode(code, month, year))
}
