// Package profile owns the company profile version counter. The version bumps
// by exactly one when an update changes a scoring-relevant field, and never
// otherwise. The bump is the sole signal staleness checks consume.
package profile

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-radar/internal/model"
)

// Store is the narrow persistence surface the tracker needs.
type Store interface {
	GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error)
	// UpdateProfile persists the patched profile. expectedVersion is the
	// version the profile was loaded at; the store must apply the write only
	// if the row still carries that version, so a field update and its bump
	// are never observably separated.
	UpdateProfile(ctx context.Context, p *model.CompanyProfile, expectedVersion int64) error
}

// Tracker applies profile patches and maintains the version counter.
type Tracker struct {
	store Store
}

// NewTracker creates a Tracker over the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// ApplyUpdate applies the patch to the company's profile. If any
// scoring-relevant field changes value, the version is incremented by exactly
// one and persisted atomically with the field changes. Returns the updated
// profile and whether the version was bumped.
func (t *Tracker) ApplyUpdate(ctx context.Context, companyID string, patch model.ProfilePatch) (*model.CompanyProfile, bool, error) {
	if patch.IsZero() {
		return nil, false, &model.ValidationError{Reason: "empty profile patch"}
	}

	p, err := t.store.GetProfile(ctx, companyID)
	if err != nil {
		return nil, false, err
	}

	expectedVersion := p.Version
	bumped := applyPatch(p, patch)
	if bumped {
		p.Version++
	}
	p.UpdatedAt = time.Now().UTC()

	if err := t.store.UpdateProfile(ctx, p, expectedVersion); err != nil {
		return nil, false, eris.Wrap(err, "profile: persist update")
	}

	zap.L().Info("profile updated",
		zap.String("company_id", companyID),
		zap.Bool("version_bumped", bumped),
		zap.Int64("version", p.Version),
	)
	return p, bumped, nil
}

// applyPatch copies patch fields onto the profile and reports whether any
// scoring-relevant field actually changed value. Code lists are compared as
// sets: reordering NAICS codes is not a scoring change.
func applyPatch(p *model.CompanyProfile, patch model.ProfilePatch) bool {
	// Non-scoring display fields never affect the version.
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Address != nil {
		p.Address = *patch.Address
	}
	if patch.LegalStructure != nil {
		p.LegalStructure = *patch.LegalStructure
	}

	changed := false

	if patch.NAICSCodes != nil && !sameStringSet(p.NAICSCodes, *patch.NAICSCodes) {
		changed = true
	}
	if patch.NAICSCodes != nil {
		p.NAICSCodes = *patch.NAICSCodes
	}

	if patch.SetAsideCodes != nil && !sameStringSet(p.SetAsideCodes, *patch.SetAsideCodes) {
		changed = true
	}
	if patch.SetAsideCodes != nil {
		p.SetAsideCodes = *patch.SetAsideCodes
	}

	if patch.Capabilities != nil && strings.TrimSpace(*patch.Capabilities) != strings.TrimSpace(p.Capabilities) {
		changed = true
	}
	if patch.Capabilities != nil {
		p.Capabilities = *patch.Capabilities
	}

	if patch.ContractValueMin != nil && *patch.ContractValueMin != p.ContractValueMin {
		p.ContractValueMin = *patch.ContractValueMin
		changed = true
	}
	if patch.ContractValueMax != nil && *patch.ContractValueMax != p.ContractValueMax {
		p.ContractValueMax = *patch.ContractValueMax
		changed = true
	}

	if patch.GeographicPreferences != nil && !sameStringSet(p.GeographicPreferences, *patch.GeographicPreferences) {
		changed = true
	}
	if patch.GeographicPreferences != nil {
		p.GeographicPreferences = *patch.GeographicPreferences
	}

	if patch.Certifications != nil && !sameStringSet(p.Certifications, *patch.Certifications) {
		changed = true
	}
	if patch.Certifications != nil {
		p.Certifications = *patch.Certifications
	}

	return changed
}

// sameStringSet compares two string slices ignoring order and duplicates.
func sameStringSet(a, b []string) bool {
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	as = slices.Compact(as)
	bs = slices.Compact(bs)
	return slices.Equal(as, bs)
}
