package model

import "time"

// CompanyProfile is the company's capability statement used for opportunity
// evaluation. Version increases by exactly one on every update that changes a
// scoring-relevant field; non-scoring edits (display fields) leave it alone.
type CompanyProfile struct {
	ID             string `json:"id" yaml:"id,omitempty"`
	Name           string `json:"name" yaml:"name"`
	Address        string `json:"address,omitempty" yaml:"address,omitempty"`
	LegalStructure string `json:"legal_structure,omitempty" yaml:"legal_structure,omitempty"`

	// Scoring-relevant fields. Changing any of these invalidates prior
	// evaluations (they become stale against the bumped version).
	NAICSCodes            []string `json:"naics_codes" yaml:"naics_codes"`
	SetAsideCodes         []string `json:"set_aside_codes" yaml:"set_aside_codes"`
	Capabilities          string   `json:"capabilities" yaml:"capabilities"`
	ContractValueMin      int64    `json:"contract_value_min" yaml:"contract_value_min,omitempty"`
	ContractValueMax      int64    `json:"contract_value_max" yaml:"contract_value_max,omitempty"`
	GeographicPreferences []string `json:"geographic_preferences" yaml:"geographic_preferences,omitempty"`
	Certifications        []string `json:"certifications" yaml:"certifications,omitempty"`

	Version   int64     `json:"version" yaml:"version,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at,omitempty"`
}

// ProfilePatch is a partial update to a CompanyProfile. Nil fields are left
// untouched.
type ProfilePatch struct {
	Name           *string `json:"name,omitempty" yaml:"name,omitempty"`
	Address        *string `json:"address,omitempty" yaml:"address,omitempty"`
	LegalStructure *string `json:"legal_structure,omitempty" yaml:"legal_structure,omitempty"`

	NAICSCodes            *[]string `json:"naics_codes,omitempty" yaml:"naics_codes,omitempty"`
	SetAsideCodes         *[]string `json:"set_aside_codes,omitempty" yaml:"set_aside_codes,omitempty"`
	Capabilities          *string   `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	ContractValueMin      *int64    `json:"contract_value_min,omitempty" yaml:"contract_value_min,omitempty"`
	ContractValueMax      *int64    `json:"contract_value_max,omitempty" yaml:"contract_value_max,omitempty"`
	GeographicPreferences *[]string `json:"geographic_preferences,omitempty" yaml:"geographic_preferences,omitempty"`
	Certifications        *[]string `json:"certifications,omitempty" yaml:"certifications,omitempty"`
}

// IsZero reports whether the patch touches nothing.
func (p ProfilePatch) IsZero() bool {
	return p.Name == nil && p.Address == nil && p.LegalStructure == nil &&
		p.NAICSCodes == nil && p.SetAsideCodes == nil && p.Capabilities == nil &&
		p.ContractValueMin == nil && p.ContractValueMax == nil &&
		p.GeographicPreferences == nil && p.Certifications == nil
}
