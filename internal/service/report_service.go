package service

import (
	"math"
	"sort"

	"github.com/mercadia/salesgoals/internal/models"
	"github.com/shopspring/decimal"
)

// ReportService выводит рейтинги, статистику и отчет о закрытии из
// текущей проекции леджера. Все пересчитывается на каждый вызов;
// ничего не кэшируется и не персистится.
type ReportService interface {
	GetRanking(month, year int) []models.SalesRanking
	GetStats(month, year int) models.GoalStats
	GetMonthlyClosingReport(month, year int) []models.ClosingReportRow
}

type reportService struct {
	ledger LedgerService
}

func NewReportService(ledger LedgerService) ReportService {
	return &reportService{ledger: ledger}
}

func (s *reportService) GetRanking(month, year int) []models.SalesRanking {
	goals := s.ledger.GetFilteredGoals(models.GoalFilter{Month: month, Year: year})
	return Ranking(goals, month, year)
}

func (s *reportService) GetStats(month, year int) models.GoalStats {
	goals := s.ledger.GetFilteredGoals(models.GoalFilter{Month: month, Year: year})
	return Stats(goals, month, year)
}

func (s *reportService) GetMonthlyClosingReport(month, year int) []models.ClosingReportRow {
	goals := s.ledger.GetFilteredGoals(models.GoalFilter{Month: month, Year: year})
	rows := make([]models.ClosingReportRow, 0, len(goals))
	for i := range goals {
		g := &goals[i]
		rows = append(rows, models.ClosingReportRow{
			UserID:      g.UserID,
			UserName:    g.UserName,
			Target:      g.TargetAmount,
			Current:     g.CurrentAmount,
			Commission:  Commission(g).Round(2),
			Achievement: Progress(g),
			Status:      g.Status,
			Achieved:    g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount),
		})
	}
	return rows
}

// Progress возвращает достижение в процентах, зажатое в [0, 100].
// На неположительный таргет не делим; он читается как нулевой прогресс
func Progress(g *models.Goal) float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	ratio := g.CurrentAmount.Div(g.TargetAmount).InexactFloat64()
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return round2(ratio * 100)
}

// Commission возвращает заработанную комиссию: currentAmount * pct / 100
func Commission(g *models.Goal) decimal.Decimal {
	pct := decimal.NewFromFloat(g.CommissionPercentage)
	return g.CurrentAmount.Mul(pct).Div(decimal.NewFromInt(100))
}

// Ranking сортирует цели по накопленным продажам по убыванию и ставит
// ранги с единицы. Сортировка стабильная, равные суммы сохраняют
// порядок проекции
func Ranking(goals []models.Goal, month, year int) []models.SalesRanking {
	sorted := make([]models.Goal, len(goals))
	copy(sorted, goals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CurrentAmount.GreaterThan(sorted[j].CurrentAmount)
	})

	rankings := make([]models.SalesRanking, 0, len(sorted))
	for i := range sorted {
		g := &sorted[i]
		rankings = append(rankings, models.SalesRanking{
			UserID:          g.UserID,
			UserName:        g.UserName,
			UserEmail:       g.UserEmail,
			TotalSales:      g.CurrentAmount,
			GoalAchievement: Progress(g),
			Commission:      Commission(g).Round(2),
			Rank:            i + 1,
			Month:           month,
			Year:            year,
		})
	}
	return rankings
}

// Stats агрегирует цели периода: счетчики по статусам, суммы, общий
// процент достижения и лидера рейтинга (nil для пустого периода)
func Stats(goals []models.Goal, month, year int) models.GoalStats {
	stats := models.GoalStats{
		Total:              len(goals),
		TotalTargetAmount:  decimal.Zero,
		TotalCurrentAmount: decimal.Zero,
	}

	for i := range goals {
		g := &goals[i]
		switch g.Status {
		case models.GoalStatusPending:
			stats.Pending++
		case models.GoalStatusActive:
			stats.Active++
		case models.GoalStatusCompleted:
			stats.Completed++
		case models.GoalStatusExpired:
			stats.Expired++
		}
		stats.TotalTargetAmount = stats.TotalTargetAmount.Add(g.TargetAmount)
		stats.TotalCurrentAmount = stats.TotalCurrentAmount.Add(g.CurrentAmount)
	}

	if stats.TotalTargetAmount.IsPositive() {
		stats.AverageAchievement = round2(stats.TotalCurrentAmount.
			Div(stats.TotalTargetAmount).
			Mul(decimal.NewFromInt(100)).
			InexactFloat64())
	}

	if ranking := Ranking(goals, month, year); len(ranking) > 0 {
		stats.TopPerformer = &ranking[0]
	}
	return stats
}

// TotalCommission суммирует комиссии по набору целей. Используется при
// закрытии периода для фиксации итоговой комиссии месяца
func TotalCommission(goals []models.Goal) decimal.Decimal {
	total := decimal.Zero
	for i := range goals {
		total = total.Add(Commission(&goals[i]))
	}
	return total.Round(2)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
