package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mercadia/salesgoals/internal/api/middleware"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/mercadia/salesgoals/internal/service"
)

type LifecycleHandler struct {
	lifecycle service.LifecycleService
	auth      service.AuthService
}

func NewLifecycleHandler(lifecycle service.LifecycleService, auth service.AuthService) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle, auth: auth}
}

func (h *LifecycleHandler) CanClose(c *gin.Context) {
	month, year, ok := periodParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"month":     month,
		"year":      year,
		"can_close": h.lifecycle.CanClose(month, year),
	})
}

type closeInput struct {
	Month int `json:"month" binding:"required"`
	Year  int `json:"year" binding:"required"`
}

func (h *LifecycleHandler) CloseMonth(c *gin.Context) {
	var input closeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.lifecycle.CloseMonth(c.Request.Context(), middleware.GetActor(c), input.Month, input.Year)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "month closed"})
}

type reopenInput struct {
	Month    int    `json:"month" binding:"required"`
	Year     int    `json:"year" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// операция, обратная CloseMonth. Повторная проверка пароля происходит
// здесь, через провайдера идентичности; ядро жизненного цикла получает
// только булево подтверждение
func (h *LifecycleHandler) ReopenMonth(c *gin.Context) {
	var input reopenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	confirmed := h.auth.ConfirmReauth(c.Request.Context(), middleware.GetUserID(c), input.Password)

	err := h.lifecycle.ReopenMonth(c.Request.Context(), middleware.GetActor(c), input.Month, input.Year, confirmed)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "month reopened"})
}

// при частичном сбое в ответ попадают id необновленных целей,
// чтобы вызывающий мог повторить ровно их
func respondLifecycleError(c *gin.Context, err error) {
	var partial *models.PartialFailureError
	if errors.As(err, &partial) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      partial.Error(),
			"failed_ids": partial.FailedIDs,
		})
		return
	}
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
