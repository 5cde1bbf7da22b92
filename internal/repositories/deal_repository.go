package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"makedeal/internal/models"
)

// DealStageRepository reads and commits the pipeline state of deals.
type DealStageRepository interface {
	Load(ctx context.Context, dealID string) (*models.DealStageState, error)
	List(ctx context.Context, filter models.PipelineFilter) ([]models.DealStageState, error)
	CountInStage(ctx context.Context, stageKey string) (int, error)
	CountByStage(ctx context.Context) (map[string]int, error)
	// CommitTransition writes the new state and its history record in one
	// unit. It fails with ErrVersionConflict when the stored version differs
	// from commit.ExpectedVersion and with *WipGuardError when the guard fails.
	CommitTransition(ctx context.Context, commit models.StageCommit) error
	ListTransitions(ctx context.Context, dealID string) ([]models.TransitionRecord, error)
}

type dealStageRepository struct {
	db *sql.DB
}

func NewDealStageRepository(db *sql.DB) DealStageRepository {
	return &dealStageRepository{db: db}
}

const dealColumns = `id, name, amount, assigned_user_id, pipeline_stage, stage_entered_at,
       probability, probability_overridden, health_score, status, sales_stage,
       last_activity_at, version`

func scanDeal(row interface{ Scan(...any) error }) (models.DealStageState, error) {
	var (
		d            models.DealStageState
		lastActivity sql.NullTime
	)
	err := row.Scan(
		&d.DealID, &d.Name, &d.Amount, &d.AssignedUserID, &d.CurrentStageKey, &d.StageEnteredAt,
		&d.Probability, &d.ProbabilityOverridden, &d.HealthScore, &d.Status, &d.SalesStage,
		&lastActivity, &d.Version,
	)
	if err != nil {
		return d, err
	}
	if lastActivity.Valid {
		t := lastActivity.Time
		d.LastActivityAt = &t
	}
	return d, nil
}

func (r *dealStageRepository) Load(ctx context.Context, dealID string) (*models.DealStageState, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = $1 AND deleted = false`
	d, err := scanDeal(r.db.QueryRowContext(ctx, query, dealID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load deal stage state: %w", err)
	}
	return &d, nil
}

func (r *dealStageRepository) List(ctx context.Context, filter models.PipelineFilter) ([]models.DealStageState, error) {
	baseQuery := `SELECT ` + dealColumns + ` FROM deals`

	conditions := []string{"deleted = false", "pipeline_stage IS NOT NULL"}
	args := []interface{}{}
	argID := 1

	if len(filter.StageKeys) > 0 {
		conditions = append(conditions, fmt.Sprintf("pipeline_stage = ANY($%d)", argID))
		args = append(args, pq.Array(filter.StageKeys))
		argID++
	}
	if filter.AssignedUserID != "" {
		conditions = append(conditions, fmt.Sprintf("assigned_user_id = $%d", argID))
		args = append(args, filter.AssignedUserID)
		argID++
	}
	if !filter.IncludeClosed {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, models.DealOpen)
	}

	baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	baseQuery += " ORDER BY stage_entered_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list deal stage states: %w", err)
	}
	defer rows.Close()

	var out []models.DealStageState
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *dealStageRepository) CountInStage(ctx context.Context, stageKey string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE pipeline_stage = $1 AND deleted = false`, stageKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count deals in stage: %w", err)
	}
	return n, nil
}

func (r *dealStageRepository) CountByStage(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pipeline_stage, COUNT(*) FROM deals
		WHERE deleted = false AND pipeline_stage IS NOT NULL
		GROUP BY pipeline_stage`)
	if err != nil {
		return nil, fmt.Errorf("count deals by stage: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (r *dealStageRepository) CommitTransition(ctx context.Context, commit models.StageCommit) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if g := commit.Guard; g != nil {
		// the stage row lock serializes concurrent moves into the same stage
		var key string
		if err = tx.QueryRowContext(ctx,
			`SELECT key FROM pipeline_stages WHERE key = $1 FOR UPDATE`, g.StageKey).Scan(&key); err != nil {
			return r.commitErr("lock stage", err)
		}
		var count int
		if err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM deals WHERE pipeline_stage = $1 AND deleted = false AND id <> $2`,
			g.StageKey, commit.State.DealID).Scan(&count); err != nil {
			return r.commitErr("recount stage", err)
		}
		if count >= g.Limit {
			err = &WipGuardError{StageKey: g.StageKey, Count: count, Limit: g.Limit}
			return err
		}
	}

	s := commit.State
	res, err := tx.ExecContext(ctx, `
		UPDATE deals SET
			pipeline_stage=$1, stage_entered_at=$2, probability=$3, status=$4,
			sales_stage=$5, health_score=$6, version=version+1, updated_at=NOW()
		WHERE id=$7 AND version=$8 AND deleted = false`,
		s.CurrentStageKey, s.StageEnteredAt, s.Probability, s.Status,
		s.SalesStage, s.HealthScore, s.DealID, commit.ExpectedVersion,
	)
	if err != nil {
		return r.commitErr("update deal", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.commitErr("update deal", err)
	}
	if n == 0 {
		var exists bool
		if err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM deals WHERE id = $1 AND deleted = false)`, s.DealID).Scan(&exists); err != nil {
			return r.commitErr("recheck deal", err)
		}
		if !exists {
			err = ErrNotFound
			return err
		}
		err = ErrVersionConflict
		return err
	}

	rec := commit.Record
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_stage_history (
			id, deal_id, from_stage, to_stage, changed_by, changed_at,
			reason, overrode_warning, regression
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.DealID, rec.FromStageKey, rec.ToStageKey, rec.ChangedBy, rec.ChangedAt,
		rec.Reason, rec.OverrodeWarning, rec.Regression,
	); err != nil {
		return r.commitErr("append history", err)
	}

	if err = tx.Commit(); err != nil {
		return r.commitErr("commit transition", err)
	}
	return nil
}

func (r *dealStageRepository) commitErr(op string, err error) error {
	if isConflict(err) {
		return ErrVersionConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *dealStageRepository) ListTransitions(ctx context.Context, dealID string) ([]models.TransitionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, deal_id, from_stage, to_stage, changed_by, changed_at,
		       reason, overrode_warning, regression
		FROM pipeline_stage_history
		WHERE deal_id = $1 AND archived_at IS NULL
		ORDER BY changed_at ASC, id ASC`, dealID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []models.TransitionRecord
	for rows.Next() {
		var (
			rec    models.TransitionRecord
			from   sql.NullString
			reason sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.DealID, &from, &rec.ToStageKey, &rec.ChangedBy, &rec.ChangedAt,
			&reason, &rec.OverrodeWarning, &rec.Regression,
		); err != nil {
			return nil, err
		}
		if from.Valid {
			rec.FromStageKey = &from.String
		}
		if reason.Valid {
			rec.Reason = &reason.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
