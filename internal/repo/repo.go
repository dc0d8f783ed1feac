package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stageline/internal/config"
	"stageline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

const projectColumns = `id,title,creator_id,status,due_date,value_cents,tags,has_unread,file_count,assignee_id,last_activity_at,approved_at,completed_at,created_at`

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timeString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeString(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var (
		p                                  domain.Project
		due, approved, completed, assignee sql.NullString
		tagsJSON, activity, createdAt      string
	)
	err := row.Scan(&p.ID, &p.Title, &p.CreatorID, &p.Status, &due, &p.ValueCents,
		&tagsJSON, &p.HasUnread, &p.FileCount, &assignee, &activity, &approved, &completed, &createdAt)
	if err == sql.ErrNoRows {
		return p, domain.ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return p, fmt.Errorf("project %s: bad tags payload: %w", p.ID, err)
		}
	}
	if assignee.Valid {
		p.AssigneeID = assignee.String
	}
	if p.DueDate, err = parseNullTime(due); err != nil {
		return p, err
	}
	if p.ApprovedAt, err = parseNullTime(approved); err != nil {
		return p, err
	}
	if p.CompletedAt, err = parseNullTime(completed); err != nil {
		return p, err
	}
	if p.LastActivityAt, err = parseTime(activity); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	return p, nil
}

func (r Repo) CreateProject(ctx context.Context, p domain.Project) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.CreatorID, p.Status, nullTime(p.DueDate), p.ValueCents,
		string(tags), p.HasUnread, p.FileCount, nullable(p.AssigneeID),
		timeString(p.LastActivityAt), nullTime(p.ApprovedAt), nullTime(p.CompletedAt), timeString(p.CreatedAt))
	return err
}

func (r Repo) FetchProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// FetchProjectsSnapshot returns projects matching the filter, most recently
// active first. Risk-level predicates are derived and resolved by the caller.
func (r Repo) FetchProjectsSnapshot(ctx context.Context, f domain.FilterSet) ([]domain.Project, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Search != "" {
		needle := "%" + f.Search + "%"
		clauses = append(clauses, "(title LIKE ? OR creator_id LIKE ? OR id LIKE ?)")
		args = append(args, needle, needle, needle)
	}
	if len(f.Stages) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Stages))+")")
		for _, s := range f.Stages {
			args = append(args, s)
		}
	}
	if len(f.Creators) > 0 {
		clauses = append(clauses, "creator_id IN ("+placeholders(len(f.Creators))+")")
		for _, c := range f.Creators {
			args = append(args, c)
		}
	}
	if f.DueFrom != nil {
		clauses = append(clauses, "due_date >= ?")
		args = append(args, timeString(*f.DueFrom))
	}
	if f.DueTo != nil {
		clauses = append(clauses, "due_date <= ?")
		args = append(args, timeString(*f.DueTo))
	}
	if f.MinValueCents != nil {
		clauses = append(clauses, "value_cents >= ?")
		args = append(args, *f.MinValueCents)
	}
	if f.MaxValueCents != nil {
		clauses = append(clauses, "value_cents <= ?")
		args = append(args, *f.MaxValueCents)
	}
	if f.HasUnread != nil {
		clauses = append(clauses, "has_unread = ?")
		args = append(args, *f.HasUnread)
	}
	if f.HasFiles != nil {
		if *f.HasFiles {
			clauses = append(clauses, "file_count > 0")
		} else {
			clauses = append(clauses, "file_count = 0")
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM projects %s ORDER BY last_activity_at DESC, id`, projectColumns, where)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// WriteProjectStage conditionally moves a project: the update only applies
// while the stored stage still equals FromStage. A miss on an existing row
// is ErrStageConflict; a missing row is ErrNotFound.
func (r Repo) WriteProjectStage(ctx context.Context, w domain.StageWrite) error {
	fields := []string{"status=?", "last_activity_at=?"}
	args := []any{w.ToStage, timeString(w.ActivityAt)}
	if w.ApprovedAt != nil {
		fields = append(fields, "approved_at=COALESCE(approved_at,?)")
		args = append(args, timeString(*w.ApprovedAt))
	}
	if w.CompletedAt != nil {
		fields = append(fields, "completed_at=COALESCE(completed_at,?)")
		args = append(args, timeString(*w.CompletedAt))
	}
	args = append(args, w.ProjectID, w.FromStage)
	res, err := r.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE projects SET %s WHERE id=? AND status=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var status string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM projects WHERE id=?`, w.ProjectID).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrStageConflict
}

func (r Repo) UpdateDueDate(ctx context.Context, id string, due *time.Time, activityAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET due_date=?, last_activity_at=? WHERE id=?`,
		nullTime(due), timeString(activityAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddTag appends a tag to the project's tag list if not already present.
func (r Repo) AddTag(ctx context.Context, id, tag string, activityAt time.Time) error {
	p, err := r.FetchProject(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range p.Tags {
		if t == tag {
			return nil
		}
	}
	tags, err := json.Marshal(append(p.Tags, tag))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `UPDATE projects SET tags=?, last_activity_at=? WHERE id=?`,
		string(tags), timeString(activityAt), id)
	return err
}

func (r Repo) AssignProject(ctx context.Context, id, userID string, activityAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET assignee_id=?, last_activity_at=? WHERE id=?`,
		nullable(userID), timeString(activityAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r Repo) AppendHistory(ctx context.Context, e domain.StageHistoryEntry) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO stage_history(project_id,from_stage,to_stage,actor,note,created_at) VALUES (?,?,?,?,?,?)`,
		e.ProjectID, e.FromStage, e.ToStage, e.Actor, nullable(e.Note), timeString(e.CreatedAt))
	return err
}

// ListHistory pages newest-first using the row id as cursor; pass zero for
// the first page.
func (r Repo) ListHistory(ctx context.Context, projectID string, cursorID int64, limit int) ([]domain.StageHistoryEntry, error) {
	clauses := []string{"project_id=?"}
	args := []any{projectID}
	if cursorID > 0 {
		clauses = append(clauses, "id < ?")
		args = append(args, cursorID)
	}
	query := `SELECT id,project_id,from_stage,to_stage,actor,COALESCE(note,''),created_at FROM stage_history WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StageHistoryEntry
	for rows.Next() {
		var (
			e         domain.StageHistoryEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.FromStage, &e.ToStage, &e.Actor, &e.Note, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FetchConfig loads the singleton pipeline configuration.
func (r Repo) FetchConfig(ctx context.Context) (*config.Pipeline, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config FROM pipeline_config WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Pipeline
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("bad pipeline config payload: %w", err)
	}
	return &cfg, nil
}

func (r Repo) SaveConfig(ctx context.Context, cfg *config.Pipeline) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO pipeline_config(id,config,updated_at) VALUES (1,?,?)
		 ON CONFLICT(id) DO UPDATE SET config=excluded.config, updated_at=excluded.updated_at`,
		string(payload), timeString(time.Now()))
	return err
}
