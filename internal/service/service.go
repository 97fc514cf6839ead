package service

import (
	"github.com/mercadia/salesgoals/internal/audit"
	"github.com/mercadia/salesgoals/internal/config"
	"github.com/mercadia/salesgoals/internal/repository"
	"go.uber.org/zap"
)

type Services struct {
	Auth      AuthService
	Ledger    LedgerService
	Report    ReportService
	Lifecycle LifecycleService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, logger *zap.Logger, sink audit.Sink) *Services {
	notifier := audit.NewNotifier(sink)

	ledger := NewLedgerService(repos.Goal, notifier, logger)
	report := NewReportService(ledger)
	lifecycle := NewLifecycleService(ledger, notifier, logger, LifecycleOptions{
		SchedulerEnabled:  cfg.SchedulerEnabled,
		SchedulerInterval: cfg.SchedulerInterval,
		CloseWindowMinute: cfg.CloseWindowMinute,
	})

	return &Services{
		Auth:      NewAuthService(repos.User, cfg),
		Ledger:    ledger,
		Report:    report,
		Lifecycle: lifecycle,
	}
}
