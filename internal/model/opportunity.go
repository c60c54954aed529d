package model

import "time"

// Opportunity is a government contract opportunity under consideration.
type Opportunity struct {
	ID                 string     `json:"id"`
	NoticeID           string     `json:"notice_id,omitempty"`
	Title              string     `json:"title"`
	Agency             string     `json:"agency,omitempty"`
	NAICSCode          string     `json:"naics_code"`
	SetAside           string     `json:"set_aside,omitempty"`
	ValueMin           int64      `json:"value_min,omitempty"`
	ValueMax           int64      `json:"value_max,omitempty"`
	PlaceOfPerformance string     `json:"place_of_performance,omitempty"`
	Description        string     `json:"description,omitempty"`
	PostedAt           *time.Time `json:"posted_at,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
