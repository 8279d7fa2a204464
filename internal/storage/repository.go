package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"piano/internal/core"
	"piano/internal/log"

	_ "modernc.org/sqlite"
)

// ProjectionSnapshot is a persisted result of a worker-side balance
// projection, keyed by goal and window.
type ProjectionSnapshot struct {
	ID                int64
	GoalID            string
	FromDate          core.Date
	ToDate            core.Date
	PrincipalCents    int64
	FinalBalanceCents int64
	ComputedAt        time.Time
}

type SQLiteRepository struct {
	db  *sql.DB
	log *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentStorage})
	}

	return &SQLiteRepository{
		db:  db,
		log: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// newID returns a random 128-bit hex identifier.
func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// dateToDB stores the zero date as an empty string so unbounded rule windows
// survive the round trip.
func dateToDB(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func dateFromDB(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func excludedToDB(dates []core.Date) (string, error) {
	if len(dates) == 0 {
		return "[]", nil
	}
	strs := make([]string, len(dates))
	for i, d := range dates {
		strs[i] = d.String()
	}
	b, err := json.Marshal(strs)
	if err != nil {
		return "", fmt.Errorf("marshal excluded dates: %w", err)
	}
	return string(b), nil
}

func excludedFromDB(raw string) ([]core.Date, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, fmt.Errorf("unmarshal excluded dates: %w", err)
	}
	dates := make([]core.Date, 0, len(strs))
	for _, s := range strs {
		d, err := core.ParseDate(s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// CreateRule persists a new rule, assigning an ID and UpdatedAt.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if rule.ID == "" {
		rule.ID = newID()
	}
	rule.UpdatedAt = time.Now().UTC()

	excluded, err := excludedToDB(rule.ExcludedDates)
	if err != nil {
		return core.RecurringRule{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (
			id, scenario_id, kind, category_id, savings_goal_id, amount_cents,
			cadence, day_of_week, day_of_month, month_of_quarter, month_of_year,
			start_date, end_date, excluded_dates, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.ScenarioID, string(rule.Kind), rule.CategoryID, rule.SavingsGoalID,
		rule.AmountCents, string(rule.Cadence),
		rule.Anchor.DayOfWeek, rule.Anchor.DayOfMonth, rule.Anchor.MonthOfQuarter, rule.Anchor.MonthOfYear,
		dateToDB(rule.StartDate), dateToDB(rule.EndDate), excluded,
		rule.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("insert rule: %w", err)
	}

	r.log.InfoContext(ctx, "rule created",
		log.FieldRuleID, rule.ID,
		log.FieldKind, string(rule.Kind),
		log.FieldCadence, string(rule.Cadence),
		log.FieldAmountCents, rule.AmountCents)

	return rule, nil
}

// GetRule retrieves a rule by ID.
func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (core.RecurringRule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, scenario_id, kind, category_id, savings_goal_id, amount_cents,
			cadence, day_of_week, day_of_month, month_of_quarter, month_of_year,
			start_date, end_date, excluded_dates, updated_at
		FROM recurring_rules WHERE id = ?`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringRule{}, fmt.Errorf("rule %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns the rules belonging to one scenario. The empty scenario ID
// selects the baseline set.
func (r *SQLiteRepository) ListRules(ctx context.Context, scenarioID string) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scenario_id, kind, category_id, savings_goal_id, amount_cents,
			cadence, day_of_week, day_of_month, month_of_quarter, month_of_year,
			start_date, end_date, excluded_dates, updated_at
		FROM recurring_rules WHERE scenario_id = ? ORDER BY id`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// UpdateRule overwrites an existing rule and bumps its UpdatedAt.
func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	rule.UpdatedAt = time.Now().UTC()

	excluded, err := excludedToDB(rule.ExcludedDates)
	if err != nil {
		return core.RecurringRule{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_rules SET
			scenario_id = ?, kind = ?, category_id = ?, savings_goal_id = ?,
			amount_cents = ?, cadence = ?, day_of_week = ?, day_of_month = ?,
			month_of_quarter = ?, month_of_year = ?, start_date = ?, end_date = ?,
			excluded_dates = ?, updated_at = ?
		WHERE id = ?`,
		rule.ScenarioID, string(rule.Kind), rule.CategoryID, rule.SavingsGoalID,
		rule.AmountCents, string(rule.Cadence),
		rule.Anchor.DayOfWeek, rule.Anchor.DayOfMonth, rule.Anchor.MonthOfQuarter, rule.Anchor.MonthOfYear,
		dateToDB(rule.StartDate), dateToDB(rule.EndDate), excluded,
		rule.UpdatedAt.Format(time.RFC3339Nano), rule.ID)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("update rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("update rule rows affected: %w", err)
	}
	if affected == 0 {
		return core.RecurringRule{}, fmt.Errorf("rule %s: %w", rule.ID, core.ErrNotFound)
	}

	r.log.InfoContext(ctx, "rule updated", log.FieldRuleID, rule.ID)
	return rule, nil
}

// DeleteRule removes a rule by ID.
func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", id, core.ErrNotFound)
	}

	r.log.InfoContext(ctx, "rule deleted", log.FieldRuleID, id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (core.RecurringRule, error) {
	var (
		rule          core.RecurringRule
		kind, cadence string
		start, end    string
		excluded      string
		updatedAt     string
	)
	err := row.Scan(
		&rule.ID, &rule.ScenarioID, &kind, &rule.CategoryID, &rule.SavingsGoalID,
		&rule.AmountCents, &cadence,
		&rule.Anchor.DayOfWeek, &rule.Anchor.DayOfMonth, &rule.Anchor.MonthOfQuarter, &rule.Anchor.MonthOfYear,
		&start, &end, &excluded, &updatedAt)
	if err != nil {
		return core.RecurringRule{}, err
	}

	rule.Kind = core.RuleKind(kind)
	rule.Cadence = core.Cadence(cadence)

	if rule.StartDate, err = dateFromDB(start); err != nil {
		return core.RecurringRule{}, fmt.Errorf("parse start date: %w", err)
	}
	if rule.EndDate, err = dateFromDB(end); err != nil {
		return core.RecurringRule{}, fmt.Errorf("parse end date: %w", err)
	}
	if rule.ExcludedDates, err = excludedFromDB(excluded); err != nil {
		return core.RecurringRule{}, err
	}
	if rule.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return core.RecurringRule{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return rule, nil
}

// CreateGoal persists a savings goal and its rate schedule in one transaction.
func (r *SQLiteRepository) CreateGoal(ctx context.Context, goal core.SavingsGoal) (core.SavingsGoal, error) {
	if goal.ID == "" {
		goal.ID = newID()
	}
	goal.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO savings_goals (
			id, name, target_amount_cents, deadline, annual_interest_rate,
			compounding, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Name, goal.TargetAmountCents, dateToDB(goal.Deadline),
		goal.AnnualInterestRate, string(goal.Compounding),
		goal.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("insert goal: %w", err)
	}

	if err := replaceRateSchedule(ctx, tx, goal.ID, goal.RateSchedule); err != nil {
		return core.SavingsGoal{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("commit goal: %w", err)
	}

	r.log.InfoContext(ctx, "savings goal created",
		log.FieldGoalID, goal.ID,
		"rate_changes", len(goal.RateSchedule))
	return goal, nil
}

// GetGoal retrieves a goal with its rate schedule sorted ascending.
func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, target_amount_cents, deadline, annual_interest_rate,
			compounding, updated_at
		FROM savings_goals WHERE id = ?`, id)

	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal: %w", err)
	}

	if goal.RateSchedule, err = r.rateSchedule(ctx, id); err != nil {
		return core.SavingsGoal{}, err
	}
	return goal, nil
}

// ListGoals returns every savings goal with its rate schedule.
func (r *SQLiteRepository) ListGoals(ctx context.Context) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, target_amount_cents, deadline, annual_interest_rate,
			compounding, updated_at
		FROM savings_goals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.SavingsGoal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}

	for i := range goals {
		if goals[i].RateSchedule, err = r.rateSchedule(ctx, goals[i].ID); err != nil {
			return nil, err
		}
	}
	return goals, nil
}

// UpdateGoal overwrites a goal and replaces its rate schedule.
func (r *SQLiteRepository) UpdateGoal(ctx context.Context, goal core.SavingsGoal) (core.SavingsGoal, error) {
	goal.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE savings_goals SET
			name = ?, target_amount_cents = ?, deadline = ?,
			annual_interest_rate = ?, compounding = ?, updated_at = ?
		WHERE id = ?`,
		goal.Name, goal.TargetAmountCents, dateToDB(goal.Deadline),
		goal.AnnualInterestRate, string(goal.Compounding),
		goal.UpdatedAt.Format(time.RFC3339Nano), goal.ID)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal rows affected: %w", err)
	}
	if affected == 0 {
		return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", goal.ID, core.ErrNotFound)
	}

	if err := replaceRateSchedule(ctx, tx, goal.ID, goal.RateSchedule); err != nil {
		return core.SavingsGoal{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("commit goal: %w", err)
	}

	r.log.InfoContext(ctx, "savings goal updated", log.FieldGoalID, goal.ID)
	return goal, nil
}

// DeleteGoal removes a goal and its rate schedule.
func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interest_rate_changes WHERE goal_id = ?`, id); err != nil {
		return fmt.Errorf("delete rate schedule: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM savings_goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete goal rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	r.log.InfoContext(ctx, "savings goal deleted", log.FieldGoalID, id)
	return nil
}

func scanGoal(row rowScanner) (core.SavingsGoal, error) {
	var (
		goal        core.SavingsGoal
		deadline    string
		compounding string
		updatedAt   string
	)
	err := row.Scan(&goal.ID, &goal.Name, &goal.TargetAmountCents, &deadline,
		&goal.AnnualInterestRate, &compounding, &updatedAt)
	if err != nil {
		return core.SavingsGoal{}, err
	}

	goal.Compounding = core.CompoundingFrequency(compounding)
	if goal.Deadline, err = dateFromDB(deadline); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("parse deadline: %w", err)
	}
	if goal.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return goal, nil
}

func (r *SQLiteRepository) rateSchedule(ctx context.Context, goalID string) ([]core.RateChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT effective_date, annual_rate FROM interest_rate_changes
		WHERE goal_id = ? ORDER BY effective_date`, goalID)
	if err != nil {
		return nil, fmt.Errorf("get rate schedule: %w", err)
	}
	defer rows.Close()

	var schedule []core.RateChange
	for rows.Next() {
		var (
			rc      core.RateChange
			rawDate string
		)
		if err := rows.Scan(&rawDate, &rc.AnnualRate); err != nil {
			return nil, fmt.Errorf("scan rate change: %w", err)
		}
		if rc.EffectiveDate, err = core.ParseDate(rawDate); err != nil {
			return nil, fmt.Errorf("parse rate change date: %w", err)
		}
		schedule = append(schedule, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate schedule: %w", err)
	}
	return schedule, nil
}

// replaceRateSchedule rewrites a goal's rate schedule in ascending effective
// date order, matching what readers get back from the ORDER BY.
func replaceRateSchedule(ctx context.Context, tx *sql.Tx, goalID string, schedule []core.RateChange) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM interest_rate_changes WHERE goal_id = ?`, goalID); err != nil {
		return fmt.Errorf("clear rate schedule: %w", err)
	}
	sort.Slice(schedule, func(i, j int) bool {
		return schedule[i].EffectiveDate.Before(schedule[j].EffectiveDate)
	})
	for _, rc := range schedule {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO interest_rate_changes (goal_id, effective_date, annual_rate)
			VALUES (?, ?, ?)`, goalID, rc.EffectiveDate.String(), rc.AnnualRate)
		if err != nil {
			return fmt.Errorf("insert rate change: %w", err)
		}
	}
	return nil
}

// SaveProjectionSnapshot stores a worker-computed balance projection.
func (r *SQLiteRepository) SaveProjectionSnapshot(ctx context.Context, snap ProjectionSnapshot) (ProjectionSnapshot, error) {
	snap.ComputedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO projection_snapshots (
			goal_id, from_date, to_date, principal_cents, final_balance_cents, computed_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.GoalID, snap.FromDate.String(), snap.ToDate.String(),
		snap.PrincipalCents, snap.FinalBalanceCents,
		snap.ComputedAt.Format(time.RFC3339Nano))
	if err != nil {
		return ProjectionSnapshot{}, fmt.Errorf("insert projection snapshot: %w", err)
	}
	if snap.ID, err = res.LastInsertId(); err != nil {
		return ProjectionSnapshot{}, fmt.Errorf("projection snapshot id: %w", err)
	}

	r.log.InfoContext(ctx, "projection snapshot saved",
		log.FieldGoalID, snap.GoalID,
		log.FieldAmountCents, snap.FinalBalanceCents)
	return snap, nil
}

// LatestProjectionSnapshot returns the most recent snapshot for a goal.
func (r *SQLiteRepository) LatestProjectionSnapshot(ctx context.Context, goalID string) (ProjectionSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, goal_id, from_date, to_date, principal_cents, final_balance_cents, computed_at
		FROM projection_snapshots WHERE goal_id = ?
		ORDER BY computed_at DESC, id DESC LIMIT 1`, goalID)

	var (
		snap       ProjectionSnapshot
		from, to   string
		computedAt string
	)
	err := row.Scan(&snap.ID, &snap.GoalID, &from, &to,
		&snap.PrincipalCents, &snap.FinalBalanceCents, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectionSnapshot{}, fmt.Errorf("projection snapshot for goal %s: %w", goalID, core.ErrNotFound)
	}
	if err != nil {
		return ProjectionSnapshot{}, fmt.Errorf("get projection snapshot: %w", err)
	}

	if snap.FromDate, err = core.ParseDate(from); err != nil {
		return ProjectionSnapshot{}, fmt.Errorf("parse snapshot from date: %w", err)
	}
	if snap.ToDate, err = core.ParseDate(to); err != nil {
		return ProjectionSnapshot{}, fmt.Errorf("parse snapshot to date: %w", err)
	}
	if snap.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt); err != nil {
		return ProjectionSnapshot{}, fmt.Errorf("parse snapshot computed_at: %w", err)
	}
	return snap, nil
}
