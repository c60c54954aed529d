package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-radar/internal/db"
	"github.com/sells-group/contract-radar/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const evaluationColumns = `id, opportunity_id, company_id, fit_score, win_probability, recommendation,
	strengths, weaknesses, reasoning, risk_factors, naics_match, set_aside_match,
	geographic_match, contract_value_match, model_version, profile_version_at_evaluation,
	user_saved, user_notes, created_at, updated_at`

// preparedStatements lists queries to prepare on each new connection for the
// hot staleness and re-score paths.
var preparedStatements = map[string]string{
	"get_profile": `SELECT id, name, address, legal_structure, naics_codes, set_aside_codes, capabilities,
		contract_value_min, contract_value_max, geographic_preferences, certifications,
		version, created_at, updated_at FROM company_profiles WHERE id = $1`,
	"get_evaluation":  `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`,
	"list_stale":      `SELECT ` + evaluationColumns + ` FROM evaluations WHERE company_id = $1 AND profile_version_at_evaluation < $2`,
	"list_by_company": `SELECT ` + evaluationColumns + ` FROM evaluations WHERE company_id = $1 ORDER BY updated_at DESC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the opportunity importer).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS company_profiles (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                   TEXT NOT NULL,
	address                TEXT NOT NULL DEFAULT '',
	legal_structure        TEXT NOT NULL DEFAULT '',
	naics_codes            TEXT[] NOT NULL DEFAULT '{}',
	set_aside_codes        TEXT[] NOT NULL DEFAULT '{}',
	capabilities           TEXT NOT NULL DEFAULT '',
	contract_value_min     BIGINT NOT NULL DEFAULT 0,
	contract_value_max     BIGINT NOT NULL DEFAULT 0,
	geographic_preferences TEXT[] NOT NULL DEFAULT '{}',
	certifications         TEXT[] NOT NULL DEFAULT '{}',
	version                BIGINT NOT NULL DEFAULT 1 CHECK (version >= 1),
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS opportunities (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	notice_id            TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL,
	agency               TEXT NOT NULL DEFAULT '',
	naics_code           TEXT NOT NULL DEFAULT '',
	set_aside            TEXT NOT NULL DEFAULT '',
	value_min            BIGINT NOT NULL DEFAULT 0,
	value_max            BIGINT NOT NULL DEFAULT 0,
	place_of_performance TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	posted_at            TIMESTAMPTZ,
	deadline             TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_opportunities_notice_id
	ON opportunities(notice_id) WHERE notice_id <> '';

CREATE TABLE IF NOT EXISTS evaluations (
	id                            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	opportunity_id                TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	company_id                    TEXT NOT NULL REFERENCES company_profiles(id) ON DELETE CASCADE,
	fit_score                     INT NOT NULL DEFAULT 0,
	win_probability               INT NOT NULL DEFAULT 0,
	recommendation                TEXT NOT NULL DEFAULT 'RESEARCH',
	strengths                     TEXT[] NOT NULL DEFAULT '{}',
	weaknesses                    TEXT[] NOT NULL DEFAULT '{}',
	reasoning                     TEXT NOT NULL DEFAULT '',
	risk_factors                  TEXT[] NOT NULL DEFAULT '{}',
	naics_match                   INT NOT NULL DEFAULT 0,
	set_aside_match               INT NOT NULL DEFAULT 0,
	geographic_match              INT NOT NULL DEFAULT 0,
	contract_value_match          INT NOT NULL DEFAULT 0,
	model_version                 TEXT NOT NULL DEFAULT '',
	profile_version_at_evaluation BIGINT NOT NULL,
	user_saved                    TEXT NOT NULL DEFAULT '',
	user_notes                    TEXT NOT NULL DEFAULT '',
	created_at                    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (opportunity_id, company_id)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_company_id ON evaluations(company_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_company_version
	ON evaluations(company_id, profile_version_at_evaluation);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateProfile inserts a new company profile at version 1.
func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.CompanyProfile) (*model.CompanyProfile, error) {
	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	cp.Version = 1
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_profiles
			(id, name, address, legal_structure, naics_codes, set_aside_codes, capabilities,
			 contract_value_min, contract_value_max, geographic_preferences, certifications,
			 version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		cp.ID, cp.Name, cp.Address, cp.LegalStructure, cp.NAICSCodes, cp.SetAsideCodes,
		cp.Capabilities, cp.ContractValueMin, cp.ContractValueMax, cp.GeographicPreferences,
		cp.Certifications, cp.Version, cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert profile")
	}
	return &cp, nil
}

// GetProfile loads a company profile by id.
func (s *PostgresStore) GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, address, legal_structure, naics_codes, set_aside_codes, capabilities,
		contract_value_min, contract_value_max, geographic_preferences, certifications,
		version, created_at, updated_at FROM company_profiles WHERE id = $1`, companyID)

	var p model.CompanyProfile
	err := row.Scan(
		&p.ID, &p.Name, &p.Address, &p.LegalStructure, &p.NAICSCodes, &p.SetAsideCodes,
		&p.Capabilities, &p.ContractValueMin, &p.ContractValueMax, &p.GeographicPreferences,
		&p.Certifications, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "company_profile", ID: companyID}
		}
		return nil, eris.Wrapf(err, "postgres: get profile %s", companyID)
	}
	return &p, nil
}

// UpdateProfile writes a patched profile guarded by the optimistic version
// check described on the Store interface.
func (s *PostgresStore) UpdateProfile(ctx context.Context, p *model.CompanyProfile, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE company_profiles SET
			name = $2, address = $3, legal_structure = $4, naics_codes = $5,
			set_aside_codes = $6, capabilities = $7, contract_value_min = $8,
			contract_value_max = $9, geographic_preferences = $10, certifications = $11,
			version = $12, updated_at = $13
		WHERE id = $1 AND version = $14`,
		p.ID, p.Name, p.Address, p.LegalStructure, p.NAICSCodes, p.SetAsideCodes,
		p.Capabilities, p.ContractValueMin, p.ContractValueMax, p.GeographicPreferences,
		p.Certifications, p.Version, p.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update profile %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return &model.ConflictError{Kind: "company_profile", ID: p.ID, Reason: "profile changed concurrently"}
	}
	return nil
}

// CreateOpportunity inserts a new opportunity.
func (s *PostgresStore) CreateOpportunity(ctx context.Context, o *model.Opportunity) (*model.Opportunity, error) {
	op := *o
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	op.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities
			(id, notice_id, title, agency, naics_code, set_aside, value_min, value_max,
			 place_of_performance, description, posted_at, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		op.ID, op.NoticeID, op.Title, op.Agency, op.NAICSCode, op.SetAside,
		op.ValueMin, op.ValueMax, op.PlaceOfPerformance, op.Description,
		op.PostedAt, op.Deadline, op.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert opportunity")
	}
	return &op, nil
}

// GetOpportunity loads an opportunity by id.
func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, notice_id, title, agency, naics_code, set_aside,
		value_min, value_max, place_of_performance, description, posted_at, deadline, created_at
		FROM opportunities WHERE id = $1`, id)

	var o model.Opportunity
	err := row.Scan(
		&o.ID, &o.NoticeID, &o.Title, &o.Agency, &o.NAICSCode, &o.SetAside,
		&o.ValueMin, &o.ValueMax, &o.PlaceOfPerformance, &o.Description,
		&o.PostedAt, &o.Deadline, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "opportunity", ID: id}
		}
		return nil, eris.Wrapf(err, "postgres: get opportunity %s", id)
	}
	return &o, nil
}

// ImportOpportunities bulk-upserts opportunities keyed by notice_id.
func (s *PostgresStore) ImportOpportunities(ctx context.Context, opps []model.Opportunity) (int64, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(opps))
	for i := range opps {
		o := &opps[i]
		id := o.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, o.NoticeID, o.Title, o.Agency, o.NAICSCode, o.SetAside,
			o.ValueMin, o.ValueMax, o.PlaceOfPerformance, o.Description,
			o.PostedAt, o.Deadline, now,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "opportunities",
		Columns: []string{
			"id", "notice_id", "title", "agency", "naics_code", "set_aside",
			"value_min", "value_max", "place_of_performance", "description",
			"posted_at", "deadline", "created_at",
		},
		ConflictKeys: []string{"notice_id"},
		UpdateCols: []string{
			"title", "agency", "naics_code", "set_aside", "value_min", "value_max",
			"place_of_performance", "description", "posted_at", "deadline",
		},
	}, rows)
}

// CreateEvaluation inserts the first evaluation for a pair.
func (s *PostgresStore) CreateEvaluation(ctx context.Context, e *model.Evaluation) (*model.Evaluation, error) {
	ev := *e
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluations
			(id, opportunity_id, company_id, fit_score, win_probability, recommendation,
			 strengths, weaknesses, reasoning, risk_factors, naics_match, set_aside_match,
			 geographic_match, contract_value_match, model_version, profile_version_at_evaluation,
			 user_saved, user_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		ev.ID, ev.OpportunityID, ev.CompanyID, ev.FitScore, ev.WinProbability,
		string(ev.Recommendation), ev.Strengths, ev.Weaknesses, ev.Reasoning, ev.RiskFactors,
		ev.NAICSMatch, ev.SetAsideMatch, ev.GeographicMatch, ev.ContractValueMatch,
		ev.ModelVersion, ev.ProfileVersionAtEvaluation, string(ev.UserSaved), ev.UserNotes,
		ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, &model.ConflictError{
				Kind: "evaluation", ID: ev.OpportunityID + "/" + ev.CompanyID,
				Reason: "evaluation already exists for pair",
			}
		}
		return nil, eris.Wrap(err, "postgres: insert evaluation")
	}
	return &ev, nil
}

// GetEvaluation loads an evaluation by id.
func (s *PostgresStore) GetEvaluation(ctx context.Context, id string) (*model.Evaluation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1`, id)
	ev, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "evaluation", ID: id}
		}
		return nil, eris.Wrapf(err, "postgres: get evaluation %s", id)
	}
	return ev, nil
}

// GetEvaluationByPair loads the live evaluation for an (opportunity, company) pair.
func (s *PostgresStore) GetEvaluationByPair(ctx context.Context, opportunityID, companyID string) (*model.Evaluation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE opportunity_id = $1 AND company_id = $2`,
		opportunityID, companyID)
	ev, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "evaluation", ID: opportunityID + "/" + companyID}
		}
		return nil, eris.Wrap(err, "postgres: get evaluation by pair")
	}
	return ev, nil
}

// ListEvaluations returns all live evaluations for a company.
func (s *PostgresStore) ListEvaluations(ctx context.Context, companyID string) ([]model.Evaluation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE company_id = $1 ORDER BY updated_at DESC`,
		companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list evaluations for %s", companyID)
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

// ListStaleEvaluations returns evaluations stamped below currentVersion.
func (s *PostgresStore) ListStaleEvaluations(ctx context.Context, companyID string, currentVersion int64) ([]model.Evaluation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE company_id = $1 AND profile_version_at_evaluation < $2`,
		companyID, currentVersion)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stale evaluations for %s", companyID)
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

// UpdateEvaluationScores replaces scored fields and the version stamp,
// leaving user_saved and user_notes alone.
func (s *PostgresStore) UpdateEvaluationScores(ctx context.Context, e *model.Evaluation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE evaluations SET
			fit_score = $2, win_probability = $3, recommendation = $4, strengths = $5,
			weaknesses = $6, reasoning = $7, risk_factors = $8, naics_match = $9,
			set_aside_match = $10, geographic_match = $11, contract_value_match = $12,
			model_version = $13, profile_version_at_evaluation = $14, updated_at = $15
		WHERE id = $1`,
		e.ID, e.FitScore, e.WinProbability, string(e.Recommendation), e.Strengths,
		e.Weaknesses, e.Reasoning, e.RiskFactors, e.NAICSMatch, e.SetAsideMatch,
		e.GeographicMatch, e.ContractValueMatch, e.ModelVersion,
		e.ProfileVersionAtEvaluation, e.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update evaluation scores %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "evaluation", ID: e.ID}
	}
	return nil
}

// UpdateUserFields patches user-owned fields only and returns the updated row.
func (s *PostgresStore) UpdateUserFields(ctx context.Context, evaluationID string, patch model.UserFieldsPatch) (*model.Evaluation, error) {
	if patch.IsZero() {
		return nil, &model.ValidationError{Reason: "empty user fields patch"}
	}

	set := []string{"updated_at = now()"}
	args := []any{evaluationID}
	argNum := 2
	if patch.UserSaved != nil {
		set = append(set, fmt.Sprintf("user_saved = $%d", argNum))
		args = append(args, *patch.UserSaved)
		argNum++
	}
	if patch.UserNotes != nil {
		set = append(set, fmt.Sprintf("user_notes = $%d", argNum))
		args = append(args, *patch.UserNotes)
		argNum++
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE evaluations SET `+strings.Join(set, ", ")+` WHERE id = $1 RETURNING `+evaluationColumns,
		args...)
	ev, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "evaluation", ID: evaluationID}
		}
		return nil, eris.Wrapf(err, "postgres: update user fields %s", evaluationID)
	}
	return ev, nil
}

// scanEvaluation scans one evaluation row.
func scanEvaluation(row pgx.Row) (*model.Evaluation, error) {
	var ev model.Evaluation
	var rec, saved string
	err := row.Scan(
		&ev.ID, &ev.OpportunityID, &ev.CompanyID, &ev.FitScore, &ev.WinProbability, &rec,
		&ev.Strengths, &ev.Weaknesses, &ev.Reasoning, &ev.RiskFactors,
		&ev.NAICSMatch, &ev.SetAsideMatch, &ev.GeographicMatch, &ev.ContractValueMatch,
		&ev.ModelVersion, &ev.ProfileVersionAtEvaluation,
		&saved, &ev.UserNotes, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Recommendation = model.Recommendation(rec)
	ev.UserSaved = model.SavedStatus(saved)
	return &ev, nil
}

// scanEvaluations scans all rows from a query.
func scanEvaluations(rows pgx.Rows) ([]model.Evaluation, error) {
	var evals []model.Evaluation
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan evaluation")
		}
		evals = append(evals, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate evaluations")
	}
	return evals, nil
}
