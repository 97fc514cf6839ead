package models

import "github.com/shopspring/decimal"

// SalesRanking - одна строка лидерборда за период. Вычисляется на каждое
// чтение, никогда не персистится
type SalesRanking struct {
	UserID          string          `json:"user_id"`
	UserName        string          `json:"user_name"`
	UserEmail       string          `json:"user_email"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	GoalAchievement float64         `json:"goal_achievement"`
	Commission      decimal.Decimal `json:"commission"`
	Rank            int             `json:"rank"`
	Month           int             `json:"month"`
	Year            int             `json:"year"`
}

// GoalStats - агрегаты по целям периода
type GoalStats struct {
	Total              int             `json:"total"`
	Pending            int             `json:"pending"`
	Active             int             `json:"active"`
	Completed          int             `json:"completed"`
	Expired            int             `json:"expired"`
	TotalTargetAmount  decimal.Decimal `json:"total_target_amount"`
	TotalCurrentAmount decimal.Decimal `json:"total_current_amount"`
	AverageAchievement float64         `json:"average_achievement"`
	TopPerformer       *SalesRanking   `json:"top_performer"`
}

// ClosingReportRow - одна строка отчета о закрытии месяца
type ClosingReportRow struct {
	UserID      string          `json:"user_id"`
	UserName    string          `json:"user_name"`
	Target      decimal.Decimal `json:"target"`
	Current     decimal.Decimal `json:"current"`
	Commission  decimal.Decimal `json:"commission"`
	Achievement float64         `json:"achievement"`
	Status      GoalStatus      `json:"status"`
	Achieved    bool            `json:"achieved"`
}
