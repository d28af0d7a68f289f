package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"BizBooks/internal/serviceiface"
)

type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &CronService{
		config: cfg,
		db:     db,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	cfg := NewDefaultMaintenanceConfig()
	if s.config != nil {
		if v, ok := s.config["stale_sweep_schedule"].(string); ok && v != "" {
			cfg.StaleSweepSchedule = v
		}
		if v, ok := s.config["renumber_schedule"].(string); ok && v != "" {
			cfg.RenumberSchedule = v
		}
		if v, ok := s.config["stale_max_age_minutes"].(int); ok && v > 0 {
			cfg.StaleMaxAge = time.Duration(v) * time.Minute
		}
		if v, ok := s.config["timezone"].(string); ok && v != "" {
			cfg.TimeZone = v
		}
	}

	if err := RunMaintenanceScheduler(cfg, s.db); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %v", err)
	}

	audit("Maintenance scheduler started")
	log.Println("Cron service started — maintenance jobs scheduled")
	return nil
}

func (s *CronService) Stop() error {
	log.Println("Cron service stopped.")
	return nil
}
