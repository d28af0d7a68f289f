package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"BizBooks/internal/config"
	"BizBooks/internal/logger"
)

// MaintenanceConfig drives the two books housekeeping jobs: sweeping import
// batches stuck in `processing`, and the nightly dense renumber covering
// accounts too large for the synchronous post-import pass.
type MaintenanceConfig struct {
	StaleSweepSchedule string
	RenumberSchedule   string
	StaleMaxAge        time.Duration
	TimeZone           string
}

func NewDefaultMaintenanceConfig() *MaintenanceConfig {
	return &MaintenanceConfig{
		StaleSweepSchedule: config.DefaultStaleSweepSchedule,
		RenumberSchedule:   config.DefaultRenumberSchedule,
		StaleMaxAge:        time.Duration(config.StaleBatchMaxAgeMinutes) * time.Minute,
		TimeZone:           "UTC",
	}
}

func audit(msg string) {
	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit(msg)
		return
	}
	log.Println(msg)
}

// RunMaintenanceScheduler registers both jobs on one cron runner.
func RunMaintenanceScheduler(cfg *MaintenanceConfig, db *pgxpool.Pool) error {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	if _, err := c.AddFunc(cfg.StaleSweepSchedule, func() {
		if err := SweepStaleBatches(db, cfg.StaleMaxAge); err != nil {
			audit(fmt.Sprintf("Stale batch sweep failed: %v", err))
		}
	}); err != nil {
		return fmt.Errorf("unable to schedule stale batch sweep: %v", err)
	}

	if _, err := c.AddFunc(cfg.RenumberSchedule, func() {
		if err := RenumberAllAccounts(db); err != nil {
			audit(fmt.Sprintf("Nightly renumber failed: %v", err))
		}
	}); err != nil {
		return fmt.Errorf("unable to schedule nightly renumber: %v", err)
	}

	c.Start()
	return nil
}

// SweepStaleBatches fails imports that died mid-flight. Their partial rows
// stay in place; the batch can still be rolled back by hand.
func SweepStaleBatches(db *pgxpool.Pool, maxAge time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tag, err := db.Exec(ctx, `
		UPDATE import_batches
		SET status = 'failed',
		    error_log = COALESCE(error_log, '{}'::jsonb) || jsonb_build_object('fatal', 'import did not finish and was swept'),
		    updated_at = now()
		WHERE status = 'processing' AND created_at < now() - $1::interval
	`, fmt.Sprintf("%d minutes", int(maxAge.Minutes())))
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		audit(fmt.Sprintf("Stale batch sweep marked %d batch(es) failed", n))
	}
	return nil
}

// RenumberAllAccounts rewrites every account's sequence to a dense 1..N in
// (date, sequence, id) order. One statement covers all accounts.
func RenumberAllAccounts(db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	tag, err := db.Exec(ctx, `
		WITH ordered AS (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY account_id ORDER BY txn_date, sequence, id) AS rn
			FROM transactions
		)
		UPDATE transactions t
		SET sequence = o.rn
		FROM ordered o
		WHERE t.id = o.id AND t.sequence <> o.rn
	`)
	if err != nil {
		return err
	}
	audit(fmt.Sprintf("Nightly renumber updated %d transaction(s)", tag.RowsAffected()))
	return nil
}
