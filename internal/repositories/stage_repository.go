package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"makedeal/internal/models"
)

// StageRepository persists the stage catalog.
type StageRepository interface {
	ListStages(ctx context.Context) ([]models.StageDefinition, error)
	SaveStage(ctx context.Context, stage models.StageDefinition) error
	SaveSortOrders(ctx context.Context, orders map[string]int) error
	DeleteStage(ctx context.Context, key string) error
	// StageReferenced reports whether any deal or history record points at key.
	StageReferenced(ctx context.Context, key string) (bool, error)
}

type stageRepository struct {
	db *sql.DB
}

func NewStageRepository(db *sql.DB) StageRepository {
	return &stageRepository{db: db}
}

func (r *stageRepository) ListStages(ctx context.Context) ([]models.StageDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, display_name, sort_order, wip_limit, warning_days, critical_days,
		       default_probability, is_won_terminal, is_lost_terminal, sales_stage,
		       next_stages, auto_tasks
		FROM pipeline_stages
		ORDER BY sort_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var out []models.StageDefinition
	for rows.Next() {
		var (
			s                      models.StageDefinition
			wip, warning, critical sql.NullInt64
			next                   pq.StringArray
			autoTasks              []byte
		)
		if err := rows.Scan(
			&s.Key, &s.DisplayName, &s.SortOrder, &wip, &warning, &critical,
			&s.DefaultProbability, &s.IsWonTerminal, &s.IsLostTerminal, &s.SalesStage,
			&next, &autoTasks,
		); err != nil {
			return nil, err
		}
		s.WipLimit = nullInt(wip)
		s.WarningDays = nullInt(warning)
		s.CriticalDays = nullInt(critical)
		s.NextStages = []string(next)
		if len(autoTasks) > 0 {
			if err := json.Unmarshal(autoTasks, &s.AutoTasks); err != nil {
				return nil, fmt.Errorf("decode auto tasks for %s: %w", s.Key, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *stageRepository) SaveStage(ctx context.Context, s models.StageDefinition) error {
	autoTasks, err := json.Marshal(s.AutoTasks)
	if err != nil {
		return fmt.Errorf("encode auto tasks: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pipeline_stages (
			key, display_name, sort_order, wip_limit, warning_days, critical_days,
			default_probability, is_won_terminal, is_lost_terminal, sales_stage,
			next_stages, auto_tasks
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (key) DO UPDATE SET
			display_name=EXCLUDED.display_name, sort_order=EXCLUDED.sort_order,
			wip_limit=EXCLUDED.wip_limit, warning_days=EXCLUDED.warning_days,
			critical_days=EXCLUDED.critical_days, default_probability=EXCLUDED.default_probability,
			is_won_terminal=EXCLUDED.is_won_terminal, is_lost_terminal=EXCLUDED.is_lost_terminal,
			sales_stage=EXCLUDED.sales_stage, next_stages=EXCLUDED.next_stages,
			auto_tasks=EXCLUDED.auto_tasks`,
		s.Key, s.DisplayName, s.SortOrder, s.WipLimit, s.WarningDays, s.CriticalDays,
		s.DefaultProbability, s.IsWonTerminal, s.IsLostTerminal, s.SalesStage,
		pq.Array(s.NextStages), autoTasks,
	)
	if err != nil {
		return fmt.Errorf("save stage %s: %w", s.Key, err)
	}
	return nil
}

// SaveSortOrders rewrites sort orders in one transaction; the unique
// constraint on sort_order is deferred until commit.
func (r *stageRepository) SaveSortOrders(ctx context.Context, orders map[string]int) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for key, order := range orders {
		if _, err = tx.ExecContext(ctx,
			`UPDATE pipeline_stages SET sort_order=$1 WHERE key=$2`, order, key); err != nil {
			return fmt.Errorf("reorder stage %s: %w", key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

func (r *stageRepository) DeleteStage(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pipeline_stages WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete stage %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *stageRepository) StageReferenced(ctx context.Context, key string) (bool, error) {
	var referenced bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM deals WHERE pipeline_stage = $1)
		    OR EXISTS (SELECT 1 FROM pipeline_stage_history WHERE from_stage = $1 OR to_stage = $1)`,
		key).Scan(&referenced)
	if err != nil {
		return false, fmt.Errorf("check stage references: %w", err)
	}
	return referenced, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
