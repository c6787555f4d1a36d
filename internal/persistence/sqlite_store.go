package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jkallio/tourguide/pkg/api"
)

// SQLiteStore implements all store interfaces on top of SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ ConfigurationStore = (*SQLiteStore)(nil)

var _ ProgressStore = (*SQLiteStore)(nil)

var _ ChoiceStore = (*SQLiteStore)(nil)

var _ EventStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS configurations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			theme TEXT NOT NULL DEFAULT '{}'
		);
		CREATE TABLE IF NOT EXISTS steps (
			id TEXT PRIMARY KEY,
			config_id TEXT NOT NULL,
			ord INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			tips TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			target_type TEXT NOT NULL DEFAULT 'page',
			target_selector TEXT NOT NULL DEFAULT '',
			is_required INTEGER NOT NULL DEFAULT 0,
			is_branch_point INTEGER NOT NULL DEFAULT 0,
			default_next_step_id TEXT NOT NULL DEFAULT '',
			show_next_button INTEGER NOT NULL DEFAULT 1,
			theme_override TEXT,
			UNIQUE (config_id, ord)
		);
		CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			step_id TEXT NOT NULL,
			ord INTEGER NOT NULL,
			action_type TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}',
			UNIQUE (step_id, ord)
		);
		CREATE TABLE IF NOT EXISTS branches (
			id TEXT PRIMARY KEY,
			step_id TEXT NOT NULL,
			ord INTEGER NOT NULL,
			condition_type TEXT NOT NULL,
			condition_value TEXT NOT NULL DEFAULT '',
			condition_label TEXT NOT NULL DEFAULT '',
			next_step_id TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS progress (
			client_id TEXT NOT NULL,
			config_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			status TEXT NOT NULL,
			completed_at INTEGER,
			skipped_at INTEGER,
			PRIMARY KEY (client_id, config_id, step_id)
		);
		CREATE TABLE IF NOT EXISTS branch_choices (
			client_id TEXT NOT NULL,
			config_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			chosen_at INTEGER NOT NULL,
			PRIMARY KEY (client_id, config_id, step_id)
		);
		CREATE TABLE IF NOT EXISTS tour_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id TEXT NOT NULL,
			config_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			step_index INTEGER NOT NULL DEFAULT -1,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_steps_config ON steps(config_id, ord);
		CREATE INDEX IF NOT EXISTS idx_actions_step ON actions(step_id, ord);
		CREATE INDEX IF NOT EXISTS idx_branches_step ON branches(step_id, ord);
		CREATE INDEX IF NOT EXISTS idx_tour_events_pair ON tour_events(client_id, config_id, id);
	`)
	return err
}

// actionDetail is the JSON shape stored in actions.detail. Queryable fields
// (order, type) have their own columns; everything type-specific lives here.
type actionDetail struct {
	WaitForElement      bool          `json:"wait_for_element,omitempty"`
	ScrollToElement     bool          `json:"scroll_to_element,omitempty"`
	Selector            string        `json:"selector,omitempty"`
	Value               string        `json:"value,omitempty"`
	InputType           string        `json:"input_type,omitempty"`
	DelayMs             int           `json:"delay_ms,omitempty"`
	ScrollBehavior      string        `json:"scroll_behavior,omitempty"`
	ScrollPosition      string        `json:"scroll_position,omitempty"`
	HighlightColor      string        `json:"highlight_color,omitempty"`
	HighlightDurationMs int           `json:"highlight_duration_ms,omitempty"`
	HighlightAnimation  api.Animation `json:"highlight_animation,omitempty"`
	RedirectURL         string        `json:"redirect_url,omitempty"`
	RedirectType        string        `json:"redirect_type,omitempty"`
	RedirectDelayMs     int           `json:"redirect_delay_ms,omitempty"`
	RedirectWaitForLoad bool          `json:"redirect_wait_for_load,omitempty"`
}

func detailOf(a api.Action) actionDetail {
	return actionDetail{
		WaitForElement:      a.WaitForElement,
		ScrollToElement:     a.ScrollToElement,
		Selector:            a.Selector,
		Value:               a.Value,
		InputType:           a.InputType,
		DelayMs:             a.DelayMs,
		ScrollBehavior:      a.ScrollBehavior,
		ScrollPosition:      a.ScrollPosition,
		HighlightColor:      a.HighlightColor,
		HighlightDurationMs: a.HighlightDurationMs,
		HighlightAnimation:  a.HighlightAnimation,
		RedirectURL:         a.RedirectURL,
		RedirectType:        a.RedirectType,
		RedirectDelayMs:     a.RedirectDelayMs,
		RedirectWaitForLoad: a.RedirectWaitForLoad,
	}
}

func (d actionDetail) apply(a *api.Action) {
	a.WaitForElement = d.WaitForElement
	a.ScrollToElement = d.ScrollToElement
	a.Selector = d.Selector
	a.Value = d.Value
	a.InputType = d.InputType
	a.DelayMs = d.DelayMs
	a.ScrollBehavior = d.ScrollBehavior
	a.ScrollPosition = d.ScrollPosition
	a.HighlightColor = d.HighlightColor
	a.HighlightDurationMs = d.HighlightDurationMs
	a.HighlightAnimation = d.HighlightAnimation
	a.RedirectURL = d.RedirectURL
	a.RedirectType = d.RedirectType
	a.RedirectDelayMs = d.RedirectDelayMs
	a.RedirectWaitForLoad = d.RedirectWaitForLoad
}

func (s *SQLiteStore) SaveConfiguration(ctx context.Context, cfg *api.Configuration) error {
	theme, err := json.Marshal(cfg.Theme)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteConfigurationTx(ctx, tx, cfg.ID); err != nil && !errors.Is(err, ErrConfigurationNotFound) {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO configurations (id, name, theme) VALUES (?, ?, ?)`,
		cfg.ID, cfg.Name, string(theme),
	); err != nil {
		return err
	}

	for _, st := range cfg.Steps {
		var override sql.NullString
		if st.Theme != nil {
			b, err := json.Marshal(st.Theme)
			if err != nil {
				return err
			}
			override = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO steps (id, config_id, ord, title, description, instructions, tips, image,
				target_type, target_selector, is_required, is_branch_point,
				default_next_step_id, show_next_button, theme_override)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ID, cfg.ID, st.Order, st.Title, st.Description, st.Instructions, st.Tips, st.Image,
			string(st.TargetType), st.TargetSelector, st.IsRequired, st.IsBranchPoint,
			st.DefaultNextStepID, st.ShowNextButton, override,
		); err != nil {
			return err
		}

		for _, a := range st.Actions {
			detail, err := json.Marshal(detailOf(a))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO actions (id, step_id, ord, action_type, detail) VALUES (?, ?, ?, ?, ?)`,
				a.ID, st.ID, a.Order, string(a.Type), string(detail),
			); err != nil {
				return err
			}
		}

		for _, b := range st.Branches {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO branches (id, step_id, ord, condition_type, condition_value, condition_label, next_step_id)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				b.ID, st.ID, b.Order, string(b.ConditionType), b.ConditionValue, b.ConditionLabel, b.NextStepID,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetConfiguration(ctx context.Context, id string) (*api.Configuration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, theme FROM configurations WHERE id = ?`, id)

	var cfg api.Configuration
	var theme string
	if err := row.Scan(&cfg.ID, &cfg.Name, &theme); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigurationNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(theme), &cfg.Theme); err != nil {
		return nil, fmt.Errorf("decode theme for %s: %w", id, err)
	}

	steps, err := s.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg.Steps = steps
	return &cfg, nil
}

func (s *SQLiteStore) loadSteps(ctx context.Context, configID string) ([]api.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ord, title, description, instructions, tips, image,
			target_type, target_selector, is_required, is_branch_point,
			default_next_step_id, show_next_button, theme_override
		FROM steps WHERE config_id = ? ORDER BY ord`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []api.Step
	for rows.Next() {
		var st api.Step
		var targetType string
		var override sql.NullString
		if err := rows.Scan(&st.ID, &st.Order, &st.Title, &st.Description, &st.Instructions,
			&st.Tips, &st.Image, &targetType, &st.TargetSelector, &st.IsRequired,
			&st.IsBranchPoint, &st.DefaultNextStepID, &st.ShowNextButton, &override,
		); err != nil {
			return nil, err
		}
		st.TargetType = api.TargetType(targetType)
		if override.Valid && override.String != "" {
			var t api.ThemeOverride
			if err := json.Unmarshal([]byte(override.String), &t); err != nil {
				return nil, fmt.Errorf("decode theme override for step %s: %w", st.ID, err)
			}
			st.Theme = &t
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range steps {
		if err := s.loadStepChildren(ctx, &steps[i]); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func (s *SQLiteStore) loadStepChildren(ctx context.Context, st *api.Step) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ord, action_type, detail FROM actions WHERE step_id = ? ORDER BY ord`, st.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a api.Action
		var actionType, detail string
		if err := rows.Scan(&a.ID, &a.Order, &actionType, &detail); err != nil {
			return err
		}
		a.StepID = st.ID
		a.Type = api.ActionType(actionType)
		var d actionDetail
		if err := json.Unmarshal([]byte(detail), &d); err != nil {
			return fmt.Errorf("decode action %s: %w", a.ID, err)
		}
		d.apply(&a)
		st.Actions = append(st.Actions, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	brows, err := s.db.QueryContext(ctx, `
		SELECT id, ord, condition_type, condition_value, condition_label, next_step_id
		FROM branches WHERE step_id = ? ORDER BY ord`, st.ID)
	if err != nil {
		return err
	}
	defer brows.Close()

	for brows.Next() {
		var b api.Branch
		var condType string
		if err := brows.Scan(&b.ID, &b.Order, &condType, &b.ConditionValue, &b.ConditionLabel, &b.NextStepID); err != nil {
			return err
		}
		b.StepID = st.ID
		b.ConditionType = api.ConditionType(condType)
		st.Branches = append(st.Branches, b)
	}
	return brows.Err()
}

func (s *SQLiteStore) ListConfigurations(ctx context.Context) ([]*api.Configuration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM configurations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*api.Configuration, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetConfiguration(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteConfiguration(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteConfigurationTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteConfigurationTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM configurations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConfigurationNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM actions WHERE step_id IN (SELECT id FROM steps WHERE config_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM branches WHERE step_id IN (SELECT id FROM steps WHERE config_id = ?)`, id); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM steps WHERE config_id = ?`, id)
	return err
}

func (s *SQLiteStore) DeleteStep(ctx context.Context, configID, stepID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE id = ? AND config_id = ?`, stepID, configID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStepNotFound
	}

	// Deletion cascades to the step's actions and branches.
	if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE step_id = ?`, stepID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM branches WHERE step_id = ?`, stepID); err != nil {
		return err
	}

	// Renumber the survivors so ordinals stay dense.
	rows, err := tx.QueryContext(ctx, `SELECT id FROM steps WHERE config_id = ? ORDER BY ord`, configID)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if err := renumberTx(ctx, tx, ids); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) ReorderSteps(ctx context.Context, configID string, orderedStepIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM steps WHERE config_id = ?`, configID)
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		existing[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(existing) == 0 {
		return ErrConfigurationNotFound
	}
	if len(orderedStepIDs) != len(existing) {
		return fmt.Errorf("reorder lists %d steps, configuration has %d", len(orderedStepIDs), len(existing))
	}
	for _, id := range orderedStepIDs {
		if !existing[id] {
			return fmt.Errorf("reorder references unknown or duplicate step %q", id)
		}
		delete(existing, id)
	}

	if err := renumberTx(ctx, tx, orderedStepIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// renumberTx rewrites ordinals as 1..n following ids. The steps table has a
// UNIQUE (config_id, ord) constraint, so pass through a disjoint range first.
func renumberTx(ctx context.Context, tx *sql.Tx, ids []string) error {
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE steps SET ord = ? WHERE id = ?`, -(i + 1), id); err != nil {
			return err
		}
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE steps SET ord = ? WHERE id = ?`, i+1, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, entry api.ProgressEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress (client_id, config_id, step_id, status, completed_at, skipped_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, config_id, step_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			skipped_at = excluded.skipped_at`,
		entry.ClientID, entry.ConfigurationID, entry.StepID, string(entry.Status),
		timePtrToUnix(entry.CompletedAt), timePtrToUnix(entry.SkippedAt),
	)
	return err
}

func (s *SQLiteStore) LoadProgress(ctx context.Context, clientID, configID string) (api.ProgressMap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, status, completed_at, skipped_at
		FROM progress WHERE client_id = ? AND config_id = ?`, clientID, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(api.ProgressMap)
	for rows.Next() {
		e := api.ProgressEntry{ClientID: clientID, ConfigurationID: configID}
		var status string
		var completedAt, skippedAt sql.NullInt64
		if err := rows.Scan(&e.StepID, &status, &completedAt, &skippedAt); err != nil {
			return nil, err
		}
		e.Status = api.ProgressStatus(status)
		e.CompletedAt = unixToTimePtr(completedAt)
		e.SkippedAt = unixToTimePtr(skippedAt)
		out[e.StepID] = e
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplaceProgress(ctx context.Context, clientID, configID string, entries api.ProgressMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM progress WHERE client_id = ? AND config_id = ?`, clientID, configID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO progress (client_id, config_id, step_id, status, completed_at, skipped_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			clientID, configID, e.StepID, string(e.Status),
			timePtrToUnix(e.CompletedAt), timePtrToUnix(e.SkippedAt),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ResetProgress(ctx context.Context, clientID, configID string, stepIDs []string) error {
	if len(stepIDs) == 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM progress WHERE client_id = ? AND config_id = ?`, clientID, configID)
		return err
	}
	for _, id := range stepIDs {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM progress WHERE client_id = ? AND config_id = ? AND step_id = ?`,
			clientID, configID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveChoice(ctx context.Context, choice api.BranchChoice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branch_choices (client_id, config_id, step_id, branch_id, chosen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (client_id, config_id, step_id) DO UPDATE SET
			branch_id = excluded.branch_id,
			chosen_at = excluded.chosen_at`,
		choice.ClientID, choice.ConfigurationID, choice.StepID, choice.BranchID,
		choice.ChosenAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) LoadChoices(ctx context.Context, clientID, configID string) (map[string]api.BranchChoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, branch_id, chosen_at
		FROM branch_choices WHERE client_id = ? AND config_id = ?`, clientID, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]api.BranchChoice)
	for rows.Next() {
		c := api.BranchChoice{ClientID: clientID, ConfigurationID: configID}
		var chosenAt int64
		if err := rows.Scan(&c.StepID, &c.BranchID, &chosenAt); err != nil {
			return nil, err
		}
		c.ChosenAt = time.Unix(0, chosenAt)
		out[c.StepID] = c
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteChoices(ctx context.Context, clientID, configID string, stepIDs []string) error {
	if len(stepIDs) == 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM branch_choices WHERE client_id = ? AND config_id = ?`, clientID, configID)
		return err
	}
	for _, id := range stepIDs {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM branch_choices WHERE client_id = ? AND config_id = ? AND step_id = ?`,
			clientID, configID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev api.TourEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tour_events (client_id, config_id, at, type, step_id, step_index, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ClientID, ev.ConfigurationID, at.UnixNano(), string(ev.Type),
		ev.StepID, ev.StepIndex, ev.Detail,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, clientID, configID string) ([]api.TourEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, type, step_id, step_index, detail
		FROM tour_events WHERE client_id = ? AND config_id = ? ORDER BY id`, clientID, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.TourEvent
	for rows.Next() {
		ev := api.TourEvent{ClientID: clientID, ConfigurationID: configID}
		var at int64
		var evType string
		if err := rows.Scan(&at, &evType, &ev.StepID, &ev.StepIndex, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, at)
		ev.Type = api.EventType(evType)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func timePtrToUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func unixToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
