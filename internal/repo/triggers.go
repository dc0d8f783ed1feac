package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"stageline/internal/domain"
)

const triggerColumns = `id,name,enabled,type,stage,days,value_cents,actions,created_at,updated_at`

func scanTrigger(row rowScanner) (domain.Trigger, error) {
	var (
		t                            domain.Trigger
		stage                        sql.NullString
		actionsJSON, created, updated string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Enabled, &t.Type, &stage, &t.Days, &t.ValueCents, &actionsJSON, &created, &updated)
	if err == sql.ErrNoRows {
		return t, domain.ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if stage.Valid {
		t.Stage = stage.String
	}
	if err := json.Unmarshal([]byte(actionsJSON), &t.Actions); err != nil {
		return t, fmt.Errorf("trigger %s: bad actions payload: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) InsertTrigger(ctx context.Context, t domain.Trigger) error {
	actions, err := json.Marshal(t.Actions)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO triggers(`+triggerColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Enabled, t.Type, nullable(t.Stage), t.Days, t.ValueCents,
		string(actions), timeString(t.CreatedAt), timeString(t.UpdatedAt))
	return err
}

func (r Repo) UpdateTrigger(ctx context.Context, t domain.Trigger) error {
	actions, err := json.Marshal(t.Actions)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE triggers SET name=?, enabled=?, type=?, stage=?, days=?, value_cents=?, actions=?, updated_at=? WHERE id=?`,
		t.Name, t.Enabled, t.Type, nullable(t.Stage), t.Days, t.ValueCents,
		string(actions), timeString(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r Repo) GetTrigger(ctx context.Context, id string) (domain.Trigger, error) {
	return scanTrigger(r.DB.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE id=?`, id))
}

func (r Repo) FetchTriggers(ctx context.Context) ([]domain.Trigger, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+triggerColumns+` FROM triggers ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r Repo) DeleteTrigger(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM triggers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
