package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/mercadia/salesgoals/internal/service"
)

type ReportHandler struct {
	report service.ReportService
}

func NewReportHandler(report service.ReportService) *ReportHandler {
	return &ReportHandler{report: report}
}

// periodParams reads month/year query params, defaulting to the current
// period when absent.
func periodParams(c *gin.Context) (int, int, bool) {
	now := time.Now()
	month := int(now.Month())
	year := now.Year()

	if m := c.Query("month"); m != "" {
		month, _ = strconv.Atoi(m)
	}
	if y := c.Query("year"); y != "" {
		year, _ = strconv.Atoi(y)
	}
	if !models.ValidPeriod(month, year) {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidPeriod.Error()})
		return 0, 0, false
	}
	return month, year, true
}

func (h *ReportHandler) GetRanking(c *gin.Context) {
	month, year, ok := periodParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.report.GetRanking(month, year))
}

func (h *ReportHandler) GetStats(c *gin.Context) {
	month, year, ok := periodParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.report.GetStats(month, year))
}

func (h *ReportHandler) GetClosingReport(c *gin.Context) {
	month, year, ok := periodParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.report.GetMonthlyClosingReport(month, year))
}
