package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"stageline/internal/domain"
)

const filterColumns = `id,owner_id,name,filters,is_default,created_at,updated_at`

func scanSavedFilter(row rowScanner) (domain.SavedFilter, error) {
	var (
		f                            domain.SavedFilter
		owner                        sql.NullString
		filtersJSON, created, updated string
	)
	err := row.Scan(&f.ID, &owner, &f.Name, &filtersJSON, &f.IsDefault, &created, &updated)
	if err == sql.ErrNoRows {
		return f, domain.ErrNotFound
	}
	if err != nil {
		return f, err
	}
	if owner.Valid {
		f.OwnerID = &owner.String
	}
	if err := json.Unmarshal([]byte(filtersJSON), &f.Filters); err != nil {
		return f, fmt.Errorf("saved filter %s: bad filters payload: %w", f.ID, err)
	}
	if f.CreatedAt, err = parseTime(created); err != nil {
		return f, err
	}
	if f.UpdatedAt, err = parseTime(updated); err != nil {
		return f, err
	}
	return f, nil
}

func ownerArg(owner *string) any {
	if owner == nil {
		return nil
	}
	return *owner
}

func (r Repo) InsertSavedFilter(ctx context.Context, f domain.SavedFilter) error {
	filters, err := json.Marshal(f.Filters)
	if err != nil {
		return err
	}
	if f.IsDefault {
		if err := r.clearDefaultFilter(ctx, f.OwnerID); err != nil {
			return err
		}
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO saved_filters(`+filterColumns+`) VALUES (?,?,?,?,?,?,?)`,
		f.ID, ownerArg(f.OwnerID), f.Name, string(filters), f.IsDefault,
		timeString(f.CreatedAt), timeString(f.UpdatedAt))
	return err
}

// clearDefaultFilter keeps at most one default per owner scope.
func (r Repo) clearDefaultFilter(ctx context.Context, owner *string) error {
	if owner == nil {
		_, err := r.DB.ExecContext(ctx, `UPDATE saved_filters SET is_default=0 WHERE owner_id IS NULL AND is_default=1`)
		return err
	}
	_, err := r.DB.ExecContext(ctx, `UPDATE saved_filters SET is_default=0 WHERE owner_id=? AND is_default=1`, *owner)
	return err
}

func (r Repo) UpdateSavedFilter(ctx context.Context, f domain.SavedFilter) error {
	filters, err := json.Marshal(f.Filters)
	if err != nil {
		return err
	}
	if f.IsDefault {
		if err := r.clearDefaultFilter(ctx, f.OwnerID); err != nil {
			return err
		}
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE saved_filters SET name=?, filters=?, is_default=?, updated_at=? WHERE id=?`,
		f.Name, string(filters), f.IsDefault, timeString(f.UpdatedAt), f.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r Repo) GetSavedFilter(ctx context.Context, id string) (domain.SavedFilter, error) {
	return scanSavedFilter(r.DB.QueryRowContext(ctx, `SELECT `+filterColumns+` FROM saved_filters WHERE id=?`, id))
}

// ListSavedFilters returns shared filters plus, when owner is non-empty,
// that owner's private ones.
func (r Repo) ListSavedFilters(ctx context.Context, owner string) ([]domain.SavedFilter, error) {
	query := `SELECT ` + filterColumns + ` FROM saved_filters WHERE owner_id IS NULL`
	var args []any
	if owner != "" {
		query += ` OR owner_id=?`
		args = append(args, owner)
	}
	query += ` ORDER BY name`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SavedFilter
	for rows.Next() {
		f, err := scanSavedFilter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r Repo) DeleteSavedFilter(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM saved_filters WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
