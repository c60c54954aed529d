package store

import (
	"context"

	"github.com/sells-group/contract-radar/internal/model"
)

// Store defines the persistence interface for profiles, opportunities, and
// evaluations. Two implementations exist: PostgresStore for deployments and
// SQLiteStore for local single-user setups.
type Store interface {
	// Company profiles
	CreateProfile(ctx context.Context, p *model.CompanyProfile) (*model.CompanyProfile, error)
	GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error)
	// UpdateProfile writes the patched profile guarded by an optimistic
	// version check: the write applies only if the stored row still carries
	// expectedVersion. This keeps a field change and its version bump in a
	// single atomic statement.
	UpdateProfile(ctx context.Context, p *model.CompanyProfile, expectedVersion int64) error

	// Opportunities
	CreateOpportunity(ctx context.Context, o *model.Opportunity) (*model.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)
	// ImportOpportunities bulk-upserts opportunities keyed by notice_id and
	// returns the number of rows written.
	ImportOpportunities(ctx context.Context, opps []model.Opportunity) (int64, error)

	// Evaluations
	CreateEvaluation(ctx context.Context, e *model.Evaluation) (*model.Evaluation, error)
	GetEvaluation(ctx context.Context, id string) (*model.Evaluation, error)
	GetEvaluationByPair(ctx context.Context, opportunityID, companyID string) (*model.Evaluation, error)
	ListEvaluations(ctx context.Context, companyID string) ([]model.Evaluation, error)
	// ListStaleEvaluations selects evaluations stamped below currentVersion.
	// Callers pass a version snapshot so one bulk run works off a consistent
	// selection even if the profile is edited mid-run.
	ListStaleEvaluations(ctx context.Context, companyID string, currentVersion int64) ([]model.Evaluation, error)
	// UpdateEvaluationScores replaces scored fields and the version stamp.
	// It must never touch user_saved or user_notes.
	UpdateEvaluationScores(ctx context.Context, e *model.Evaluation) error
	// UpdateUserFields patches user-owned fields only. It must never touch
	// scored fields or the version stamp.
	UpdateUserFields(ctx context.Context, evaluationID string, patch model.UserFieldsPatch) (*model.Evaluation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
