package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FirstNode is where every fresh run starts.
const FirstNode = "q1"

type PostgresRepository struct {
	q db.Querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{q: pool}
}

func (r *PostgresRepository) WithQuerier(q db.Querier) Repository {
	return &PostgresRepository{q: q}
}

const scenarioColumns = `id, workspace_id, name, mode, is_default, max_questions, handover_user_id, planner_prompt, questions, created_at, updated_at`

func scanScenario(row pgx.Row) (Scenario, error) {
	var s Scenario
	var questions []byte
	err := row.Scan(&s.ID, &s.WorkspaceID, &s.Name, &s.Mode, &s.IsDefault, &s.MaxQuestions,
		&s.HandoverUserID, &s.PlannerPrompt, &questions, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Scenario{}, err
	}
	if err := json.Unmarshal(questions, &s.Questions); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario questions: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) CreateScenario(ctx context.Context, params ScenarioParams) (Scenario, error) {
	questions, err := json.Marshal(params.Questions)
	if err != nil {
		return Scenario{}, fmt.Errorf("encode scenario questions: %w", err)
	}

	query := `
		INSERT INTO autopilot_scenarios (workspace_id, name, mode, max_questions, handover_user_id, planner_prompt, questions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + scenarioColumns

	s, err := scanScenario(r.q.QueryRow(ctx, query,
		params.WorkspaceID, params.Name, params.Mode, params.MaxQuestions,
		params.HandoverUserID, params.PlannerPrompt, questions))
	if err != nil {
		return Scenario{}, fmt.Errorf("create scenario: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetScenario(ctx context.Context, workspaceID, id uuid.UUID) (Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM autopilot_scenarios WHERE id = $1 AND workspace_id = $2`

	s, err := scanScenario(r.q.QueryRow(ctx, query, id, workspaceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Scenario{}, apperr.NotFound("scenario not found")
		}
		return Scenario{}, fmt.Errorf("get scenario: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListScenarios(ctx context.Context, workspaceID uuid.UUID) ([]Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM autopilot_scenarios WHERE workspace_id = $1 ORDER BY created_at ASC`

	rows, err := r.q.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []Scenario
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (r *PostgresRepository) UpdateScenario(ctx context.Context, workspaceID, id uuid.UUID, params ScenarioParams) (Scenario, error) {
	questions, err := json.Marshal(params.Questions)
	if err != nil {
		return Scenario{}, fmt.Errorf("encode scenario questions: %w", err)
	}

	query := `
		UPDATE autopilot_scenarios
		SET name = $3, mode = $4, max_questions = $5, handover_user_id = $6, planner_prompt = $7, questions = $8, updated_at = now()
		WHERE id = $1 AND workspace_id = $2
		RETURNING ` + scenarioColumns

	s, err := scanScenario(r.q.QueryRow(ctx, query,
		id, workspaceID, params.Name, params.Mode, params.MaxQuestions,
		params.HandoverUserID, params.PlannerPrompt, questions))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Scenario{}, apperr.NotFound("scenario not found")
		}
		return Scenario{}, fmt.Errorf("update scenario: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) DeleteScenario(ctx context.Context, workspaceID, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM autopilot_scenarios WHERE id = $1 AND workspace_id = $2 AND is_default = FALSE`, id, workspaceID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperr.Conflict("scenario is still referenced by runs")
		}
		return fmt.Errorf("delete scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("scenario not found or is the default")
	}
	return nil
}

func (r *PostgresRepository) SetDefaultScenario(ctx context.Context, workspaceID, id uuid.UUID) error {
	if _, err := r.q.Exec(ctx,
		`UPDATE autopilot_scenarios SET is_default = FALSE, updated_at = now() WHERE workspace_id = $1 AND is_default = TRUE`,
		workspaceID); err != nil {
		return fmt.Errorf("unset default scenario: %w", err)
	}

	tag, err := r.q.Exec(ctx,
		`UPDATE autopilot_scenarios SET is_default = TRUE, updated_at = now() WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID)
	if err != nil {
		return fmt.Errorf("set default scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("scenario not found")
	}
	return nil
}

// builtinQuestions is the seed script for workspaces without a scenario.
var builtinQuestions = []Question{
	{
		Key:      "q1",
		Prompt:   "Thanks for reaching out! What budget did you have in mind?",
		Slot:     "budget",
		Keywords: []string{"euro", "eur", "budget", "k", "€"},
	},
	{
		Key:      "q2",
		Prompt:   "Got it. When would you like to get started?",
		Slot:     "timeline",
		Keywords: []string{"week", "month", "asap", "soon", "january", "february", "march", "april", "may", "june", "july", "august", "september", "october", "november", "december"},
	},
}

func (r *PostgresRepository) EnsureDefaultScenario(ctx context.Context, workspaceID uuid.UUID) (Scenario, error) {
	selectDefault := `SELECT ` + scenarioColumns + ` FROM autopilot_scenarios WHERE workspace_id = $1 AND is_default = TRUE`

	s, err := scanScenario(r.q.QueryRow(ctx, selectDefault, workspaceID))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Scenario{}, fmt.Errorf("get default scenario: %w", err)
	}

	questions, err := json.Marshal(builtinQuestions)
	if err != nil {
		return Scenario{}, fmt.Errorf("encode builtin questions: %w", err)
	}
	insert := `
		INSERT INTO autopilot_scenarios (workspace_id, name, mode, is_default, max_questions, questions)
		VALUES ($1, 'Default qualification', $2, TRUE, $3, $4)
		ON CONFLICT (workspace_id) WHERE is_default DO NOTHING`
	if _, err := r.q.Exec(ctx, insert, workspaceID, ModeRules, len(builtinQuestions), questions); err != nil {
		return Scenario{}, fmt.Errorf("seed default scenario: %w", err)
	}

	s, err = scanScenario(r.q.QueryRow(ctx, selectDefault, workspaceID))
	if err != nil {
		return Scenario{}, fmt.Errorf("get default scenario: %w", err)
	}
	return s, nil
}

const runColumns = `id, lead_id, workspace_id, scenario_id, status, node, question_index, answers, last_inbound_at, created_at, updated_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	var answers []byte
	err := row.Scan(&run.ID, &run.LeadID, &run.WorkspaceID, &run.ScenarioID, &run.Status,
		&run.Node, &run.QuestionIndex, &answers, &run.LastInboundAt, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal(answers, &run.Answers); err != nil {
		return Run{}, fmt.Errorf("decode run answers: %w", err)
	}
	return run, nil
}

func (r *PostgresRepository) CreateRun(ctx context.Context, leadID, workspaceID, scenarioID uuid.UUID) (Run, error) {
	query := `
		INSERT INTO autopilot_runs (lead_id, workspace_id, scenario_id, status, node)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + runColumns

	run, err := scanRun(r.q.QueryRow(ctx, query, leadID, workspaceID, scenarioID, RunActive, FirstNode))
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (r *PostgresRepository) GetRunByLead(ctx context.Context, leadID uuid.UUID) (Run, error) {
	query := `SELECT ` + runColumns + ` FROM autopilot_runs WHERE lead_id = $1`

	run, err := scanRun(r.q.QueryRow(ctx, query, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, apperr.NotFound("autopilot run not found")
		}
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *PostgresRepository) AdvanceRun(ctx context.Context, runID uuid.UUID, expectedIndex int, upd RunUpdate) (bool, error) {
	answers, err := json.Marshal(upd.Answers)
	if err != nil {
		return false, fmt.Errorf("encode run answers: %w", err)
	}

	query := `
		UPDATE autopilot_runs
		SET node = $3, question_index = $4, answers = $5, status = $6, last_inbound_at = now(), updated_at = now()
		WHERE id = $1 AND question_index = $2 AND status = $7`

	tag, err := r.q.Exec(ctx, query, runID, expectedIndex,
		upd.Node, upd.QuestionIndex, answers, upd.Status, RunActive)
	if err != nil {
		return false, fmt.Errorf("advance run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) ResetRun(ctx context.Context, leadID, scenarioID uuid.UUID) (Run, error) {
	query := `
		UPDATE autopilot_runs
		SET scenario_id = $2, status = $3, node = $4, question_index = 0, answers = '{}'::jsonb, updated_at = now()
		WHERE lead_id = $1
		RETURNING ` + runColumns

	run, err := scanRun(r.q.QueryRow(ctx, query, leadID, scenarioID, RunActive, FirstNode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, apperr.NotFound("autopilot run not found")
		}
		return Run{}, fmt.Errorf("reset run: %w", err)
	}
	return run, nil
}

func (r *PostgresRepository) ResetWorkspaceRuns(ctx context.Context, workspaceID, scenarioID uuid.UUID) ([]RunSwitch, error) {
	return r.resetRuns(ctx, `prev.id = run.id AND run.workspace_id = $1`, workspaceID, scenarioID)
}

func (r *PostgresRepository) ResetScenarioRuns(ctx context.Context, workspaceID, scenarioID uuid.UUID) ([]RunSwitch, error) {
	return r.resetRuns(ctx, `prev.id = run.id AND run.workspace_id = $1 AND run.scenario_id = $2`, workspaceID, scenarioID)
}

// resetRuns rewinds the matched runs to the first node of scenarioID. The
// self-join exposes the pre-update scenario_id for the audit trail.
func (r *PostgresRepository) resetRuns(ctx context.Context, where string, workspaceID, scenarioID uuid.UUID) ([]RunSwitch, error) {
	query := `
		UPDATE autopilot_runs AS run
		SET scenario_id = $2, status = $3, node = $4, question_index = 0, answers = '{}'::jsonb, updated_at = now()
		FROM autopilot_runs AS prev
		WHERE ` + where + `
		RETURNING run.id, run.lead_id, run.workspace_id, run.scenario_id, run.status, run.node,
		          run.question_index, run.answers, run.last_inbound_at, run.created_at, run.updated_at,
		          prev.scenario_id`

	rows, err := r.q.Query(ctx, query, workspaceID, scenarioID, RunActive, FirstNode)
	if err != nil {
		return nil, fmt.Errorf("reset runs: %w", err)
	}
	defer rows.Close()

	var switched []RunSwitch
	for rows.Next() {
		var sw RunSwitch
		var answers []byte
		if err := rows.Scan(&sw.Run.ID, &sw.Run.LeadID, &sw.Run.WorkspaceID, &sw.Run.ScenarioID,
			&sw.Run.Status, &sw.Run.Node, &sw.Run.QuestionIndex, &answers,
			&sw.Run.LastInboundAt, &sw.Run.CreatedAt, &sw.Run.UpdatedAt, &sw.FromScenarioID); err != nil {
			return nil, fmt.Errorf("scan reset run: %w", err)
		}
		if err := json.Unmarshal(answers, &sw.Run.Answers); err != nil {
			return nil, fmt.Errorf("decode run answers: %w", err)
		}
		switched = append(switched, sw)
	}
	return switched, rows.Err()
}
