package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contract-radar/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// single-user setups; string lists are stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS company_profiles (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL,
	address                TEXT NOT NULL DEFAULT '',
	legal_structure        TEXT NOT NULL DEFAULT '',
	naics_codes            TEXT NOT NULL DEFAULT '[]',
	set_aside_codes        TEXT NOT NULL DEFAULT '[]',
	capabilities           TEXT NOT NULL DEFAULT '',
	contract_value_min     INTEGER NOT NULL DEFAULT 0,
	contract_value_max     INTEGER NOT NULL DEFAULT 0,
	geographic_preferences TEXT NOT NULL DEFAULT '[]',
	certifications         TEXT NOT NULL DEFAULT '[]',
	version                INTEGER NOT NULL DEFAULT 1 CHECK (version >= 1),
	created_at             DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS opportunities (
	id                   TEXT PRIMARY KEY,
	notice_id            TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL,
	agency               TEXT NOT NULL DEFAULT '',
	naics_code           TEXT NOT NULL DEFAULT '',
	set_aside            TEXT NOT NULL DEFAULT '',
	value_min            INTEGER NOT NULL DEFAULT 0,
	value_max            INTEGER NOT NULL DEFAULT 0,
	place_of_performance TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	posted_at            DATETIME,
	deadline             DATETIME,
	created_at           DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_opportunities_notice_id
	ON opportunities(notice_id) WHERE notice_id <> '';

CREATE TABLE IF NOT EXISTS evaluations (
	id                            TEXT PRIMARY KEY,
	opportunity_id                TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	company_id                    TEXT NOT NULL REFERENCES company_profiles(id) ON DELETE CASCADE,
	fit_score                     INTEGER NOT NULL DEFAULT 0,
	win_probability               INTEGER NOT NULL DEFAULT 0,
	recommendation                TEXT NOT NULL DEFAULT 'RESEARCH',
	strengths                     TEXT NOT NULL DEFAULT '[]',
	weaknesses                    TEXT NOT NULL DEFAULT '[]',
	reasoning                     TEXT NOT NULL DEFAULT '',
	risk_factors                  TEXT NOT NULL DEFAULT '[]',
	naics_match                   INTEGER NOT NULL DEFAULT 0,
	set_aside_match               INTEGER NOT NULL DEFAULT 0,
	geographic_match              INTEGER NOT NULL DEFAULT 0,
	contract_value_match          INTEGER NOT NULL DEFAULT 0,
	model_version                 TEXT NOT NULL DEFAULT '',
	profile_version_at_evaluation INTEGER NOT NULL,
	user_saved                    TEXT NOT NULL DEFAULT '',
	user_notes                    TEXT NOT NULL DEFAULT '',
	created_at                    DATETIME NOT NULL,
	updated_at                    DATETIME NOT NULL,
	UNIQUE (opportunity_id, company_id)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_company_id ON evaluations(company_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_company_version
	ON evaluations(company_id, profile_version_at_evaluation);
`

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalList(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	if len(v) == 0 {
		return nil
	}
	return v
}

// CreateProfile inserts a new company profile at version 1.
func (s *SQLiteStore) CreateProfile(ctx context.Context, p *model.CompanyProfile) (*model.CompanyProfile, error) {
	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	cp.Version = 1
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_profiles
			(id, name, address, legal_structure, naics_codes, set_aside_codes, capabilities,
			 contract_value_min, contract_value_max, geographic_preferences, certifications,
			 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.Name, cp.Address, cp.LegalStructure,
		marshalList(cp.NAICSCodes), marshalList(cp.SetAsideCodes), cp.Capabilities,
		cp.ContractValueMin, cp.ContractValueMax,
		marshalList(cp.GeographicPreferences), marshalList(cp.Certifications),
		cp.Version, cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert profile")
	}
	return &cp, nil
}

// GetProfile loads a company profile by id.
func (s *SQLiteStore) GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, address, legal_structure, naics_codes,
		set_aside_codes, capabilities, contract_value_min, contract_value_max,
		geographic_preferences, certifications, version, created_at, updated_at
		FROM company_profiles WHERE id = ?`, companyID)

	var p model.CompanyProfile
	var naics, setAsides, geo, certs string
	err := row.Scan(
		&p.ID, &p.Name, &p.Address, &p.LegalStructure, &naics, &setAsides,
		&p.Capabilities, &p.ContractValueMin, &p.ContractValueMax, &geo, &certs,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "company_profile", ID: companyID}
		}
		return nil, eris.Wrapf(err, "sqlite: get profile %s", companyID)
	}
	p.NAICSCodes = unmarshalList(naics)
	p.SetAsideCodes = unmarshalList(setAsides)
	p.GeographicPreferences = unmarshalList(geo)
	p.Certifications = unmarshalList(certs)
	return &p, nil
}

// UpdateProfile writes a patched profile guarded by the optimistic version check.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, p *model.CompanyProfile, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE company_profiles SET
			name = ?, address = ?, legal_structure = ?, naics_codes = ?,
			set_aside_codes = ?, capabilities = ?, contract_value_min = ?,
			contract_value_max = ?, geographic_preferences = ?, certifications = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Name, p.Address, p.LegalStructure, marshalList(p.NAICSCodes),
		marshalList(p.SetAsideCodes), p.Capabilities, p.ContractValueMin,
		p.ContractValueMax, marshalList(p.GeographicPreferences), marshalList(p.Certifications),
		p.Version, p.UpdatedAt, p.ID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update profile %s", p.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &model.ConflictError{Kind: "company_profile", ID: p.ID, Reason: "profile changed concurrently"}
	}
	return nil
}

// CreateOpportunity inserts a new opportunity.
func (s *SQLiteStore) CreateOpportunity(ctx context.Context, o *model.Opportunity) (*model.Opportunity, error) {
	op := *o
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	op.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opportunities
			(id, notice_id, title, agency, naics_code, set_aside, value_min, value_max,
			 place_of_performance, description, posted_at, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.NoticeID, op.Title, op.Agency, op.NAICSCode, op.SetAside,
		op.ValueMin, op.ValueMax, op.PlaceOfPerformance, op.Description,
		nullTime(op.PostedAt), nullTime(op.Deadline), op.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert opportunity")
	}
	return &op, nil
}

// GetOpportunity loads an opportunity by id.
func (s *SQLiteStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, notice_id, title, agency, naics_code, set_aside,
		value_min, value_max, place_of_performance, description, posted_at, deadline, created_at
		FROM opportunities WHERE id = ?`, id)

	var o model.Opportunity
	var posted, deadline sql.NullTime
	err := row.Scan(
		&o.ID, &o.NoticeID, &o.Title, &o.Agency, &o.NAICSCode, &o.SetAside,
		&o.ValueMin, &o.ValueMax, &o.PlaceOfPerformance, &o.Description,
		&posted, &deadline, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "opportunity", ID: id}
		}
		return nil, eris.Wrapf(err, "sqlite: get opportunity %s", id)
	}
	if posted.Valid {
		o.PostedAt = &posted.Time
	}
	if deadline.Valid {
		o.Deadline = &deadline.Time
	}
	return &o, nil
}

// ImportOpportunities upserts opportunities keyed by notice_id, one statement
// per row inside a transaction.
func (s *SQLiteStore) ImportOpportunities(ctx context.Context, opps []model.Opportunity) (int64, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var written int64
	for i := range opps {
		o := &opps[i]
		id := o.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO opportunities
				(id, notice_id, title, agency, naics_code, set_aside, value_min, value_max,
				 place_of_performance, description, posted_at, deadline, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(notice_id) WHERE notice_id <> '' DO UPDATE SET
				title = excluded.title, agency = excluded.agency,
				naics_code = excluded.naics_code, set_aside = excluded.set_aside,
				value_min = excluded.value_min, value_max = excluded.value_max,
				place_of_performance = excluded.place_of_performance,
				description = excluded.description, posted_at = excluded.posted_at,
				deadline = excluded.deadline`,
			id, o.NoticeID, o.Title, o.Agency, o.NAICSCode, o.SetAside,
			o.ValueMin, o.ValueMax, o.PlaceOfPerformance, o.Description,
			nullTime(o.PostedAt), nullTime(o.Deadline), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import opportunity %s", o.NoticeID)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import tx")
	}
	return written, nil
}

// CreateEvaluation inserts the first evaluation for a pair.
func (s *SQLiteStore) CreateEvaluation(ctx context.Context, e *model.Evaluation) (*model.Evaluation, error) {
	ev := *e
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations
			(id, opportunity_id, company_id, fit_score, win_probability, recommendation,
			 strengths, weaknesses, reasoning, risk_factors, naics_match, set_aside_match,
			 geographic_match, contract_value_match, model_version, profile_version_at_evaluation,
			 user_saved, user_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OpportunityID, ev.CompanyID, ev.FitScore, ev.WinProbability,
		string(ev.Recommendation), marshalList(ev.Strengths), marshalList(ev.Weaknesses),
		ev.Reasoning, marshalList(ev.RiskFactors), ev.NAICSMatch, ev.SetAsideMatch,
		ev.GeographicMatch, ev.ContractValueMatch, ev.ModelVersion,
		ev.ProfileVersionAtEvaluation, string(ev.UserSaved), ev.UserNotes,
		ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &model.ConflictError{
				Kind: "evaluation", ID: ev.OpportunityID + "/" + ev.CompanyID,
				Reason: "evaluation already exists for pair",
			}
		}
		return nil, eris.Wrap(err, "sqlite: insert evaluation")
	}
	return &ev, nil
}

const sqliteEvaluationColumns = `id, opportunity_id, company_id, fit_score, win_probability, recommendation,
	strengths, weaknesses, reasoning, risk_factors, naics_match, set_aside_match,
	geographic_match, contract_value_match, model_version, profile_version_at_evaluation,
	user_saved, user_notes, created_at, updated_at`

// GetEvaluation loads an evaluation by id.
func (s *SQLiteStore) GetEvaluation(ctx context.Context, id string) (*model.Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteEvaluationColumns+` FROM evaluations WHERE id = ?`, id)
	ev, err := scanSQLiteEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "evaluation", ID: id}
		}
		return nil, eris.Wrapf(err, "sqlite: get evaluation %s", id)
	}
	return ev, nil
}

// GetEvaluationByPair loads the live evaluation for an (opportunity, company) pair.
func (s *SQLiteStore) GetEvaluationByPair(ctx context.Context, opportunityID, companyID string) (*model.Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteEvaluationColumns+` FROM evaluations WHERE opportunity_id = ? AND company_id = ?`,
		opportunityID, companyID)
	ev, err := scanSQLiteEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &model.NotFoundError{Kind: "evaluation", ID: opportunityID + "/" + companyID}
		}
		return nil, eris.Wrap(err, "sqlite: get evaluation by pair")
	}
	return ev, nil
}

// ListEvaluations returns all live evaluations for a company.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, companyID string) ([]model.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEvaluationColumns+` FROM evaluations WHERE company_id = ? ORDER BY updated_at DESC`,
		companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list evaluations for %s", companyID)
	}
	defer rows.Close()
	return scanSQLiteEvaluations(rows)
}

// ListStaleEvaluations returns evaluations stamped below currentVersion.
func (s *SQLiteStore) ListStaleEvaluations(ctx context.Context, companyID string, currentVersion int64) ([]model.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEvaluationColumns+` FROM evaluations WHERE company_id = ? AND profile_version_at_evaluation < ?`,
		companyID, currentVersion)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list stale evaluations for %s", companyID)
	}
	defer rows.Close()
	return scanSQLiteEvaluations(rows)
}

// UpdateEvaluationScores replaces scored fields and the version stamp only.
func (s *SQLiteStore) UpdateEvaluationScores(ctx context.Context, e *model.Evaluation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evaluations SET
			fit_score = ?, win_probability = ?, recommendation = ?, strengths = ?,
			weaknesses = ?, reasoning = ?, risk_factors = ?, naics_match = ?,
			set_aside_match = ?, geographic_match = ?, contract_value_match = ?,
			model_version = ?, profile_version_at_evaluation = ?, updated_at = ?
		WHERE id = ?`,
		e.FitScore, e.WinProbability, string(e.Recommendation), marshalList(e.Strengths),
		marshalList(e.Weaknesses), e.Reasoning, marshalList(e.RiskFactors), e.NAICSMatch,
		e.SetAsideMatch, e.GeographicMatch, e.ContractValueMatch, e.ModelVersion,
		e.ProfileVersionAtEvaluation, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update evaluation scores %s", e.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &model.NotFoundError{Kind: "evaluation", ID: e.ID}
	}
	return nil
}

// UpdateUserFields patches user-owned fields only and returns the updated row.
func (s *SQLiteStore) UpdateUserFields(ctx context.Context, evaluationID string, patch model.UserFieldsPatch) (*model.Evaluation, error) {
	if patch.IsZero() {
		return nil, &model.ValidationError{Reason: "empty user fields patch"}
	}

	set := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.UserSaved != nil {
		set = append(set, "user_saved = ?")
		args = append(args, *patch.UserSaved)
	}
	if patch.UserNotes != nil {
		set = append(set, "user_notes = ?")
		args = append(args, *patch.UserNotes)
	}
	args = append(args, evaluationID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE evaluations SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update user fields %s", evaluationID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, &model.NotFoundError{Kind: "evaluation", ID: evaluationID}
	}
	return s.GetEvaluation(ctx, evaluationID)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvaluation(row sqliteRowScanner) (*model.Evaluation, error) {
	var ev model.Evaluation
	var rec, saved, strengths, weaknesses, risks string
	err := row.Scan(
		&ev.ID, &ev.OpportunityID, &ev.CompanyID, &ev.FitScore, &ev.WinProbability, &rec,
		&strengths, &weaknesses, &ev.Reasoning, &risks,
		&ev.NAICSMatch, &ev.SetAsideMatch, &ev.GeographicMatch, &ev.ContractValueMatch,
		&ev.ModelVersion, &ev.ProfileVersionAtEvaluation,
		&saved, &ev.UserNotes, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Recommendation = model.Recommendation(rec)
	ev.UserSaved = model.SavedStatus(saved)
	ev.Strengths = unmarshalList(strengths)
	ev.Weaknesses = unmarshalList(weaknesses)
	ev.RiskFactors = unmarshalList(risks)
	return &ev, nil
}

func scanSQLiteEvaluations(rows *sql.Rows) ([]model.Evaluation, error) {
	var evals []model.Evaluation
	for rows.Next() {
		ev, err := scanSQLiteEvaluation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evaluation")
		}
		evals = append(evals, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate evaluations")
	}
	return evals, nil
}
