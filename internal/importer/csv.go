// Package importer parses opportunity CSV exports (SAM.gov-style column
// layouts) into the store.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/internal/store"
)

// column aliases accepted in the header row, all matched case-insensitively.
var columnAliases = map[string][]string{
	"notice_id":            {"notice_id", "noticeid", "solicitation_number"},
	"title":                {"title", "opportunity_title"},
	"agency":               {"agency", "department", "department/ind.agency"},
	"naics_code":           {"naics_code", "naics", "naicscode"},
	"set_aside":            {"set_aside", "setaside", "set-aside", "typeofsetaside"},
	"value_min":            {"value_min", "min_value"},
	"value_max":            {"value_max", "max_value", "award_ceiling"},
	"place_of_performance": {"place_of_performance", "pop_state", "popstate"},
	"description":          {"description", "synopsis"},
	"posted_at":            {"posted_at", "posted_date", "posteddate"},
	"deadline":             {"deadline", "response_deadline", "responsedeadline"},
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
}

// ParseCSV reads opportunities from r. charset names any encoding the HTML
// index knows ("utf-8", "iso-8859-1", "windows-1252", ...); rows with an
// empty title are skipped and counted.
func ParseCSV(r io.Reader, charset string) ([]model.Opportunity, error) {
	if charset != "" && !strings.EqualFold(charset, "utf-8") {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "import: unsupported charset %q", charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "import: read header")
	}

	cols := mapColumns(header)
	if _, ok := cols["title"]; !ok {
		return nil, eris.New("import: no title column in header")
	}

	var (
		opps    []model.Opportunity
		skipped int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "import: read row")
		}

		o := parseRow(rec, cols)
		if o.Title == "" {
			skipped++
			continue
		}
		opps = append(opps, o)
	}

	if skipped > 0 {
		zap.L().Warn("skipped rows without a title", zap.Int("skipped", skipped))
	}
	return opps, nil
}

// Import parses the CSV and bulk-upserts the rows keyed by notice_id.
func Import(ctx context.Context, st store.Store, r io.Reader, charset string) (int64, error) {
	opps, err := ParseCSV(r, charset)
	if err != nil {
		return 0, err
	}
	if len(opps) == 0 {
		return 0, nil
	}

	n, err := st.ImportOpportunities(ctx, opps)
	if err != nil {
		return 0, eris.Wrap(err, "import: upsert opportunities")
	}

	zap.L().Info("opportunities imported",
		zap.Int("parsed", len(opps)),
		zap.Int64("written", n),
	)
	return n, nil
}

// mapColumns resolves header names to canonical field keys.
func mapColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		for key, aliases := range columnAliases {
			for _, a := range aliases {
				if name == a {
					if _, seen := cols[key]; !seen {
						cols[key] = i
					}
				}
			}
		}
	}
	return cols
}

func parseRow(rec []string, cols map[string]int) model.Opportunity {
	field := func(key string) string {
		i, ok := cols[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	return model.Opportunity{
		NoticeID:           field("notice_id"),
		Title:              field("title"),
		Agency:             field("agency"),
		NAICSCode:          field("naics_code"),
		SetAside:           field("set_aside"),
		ValueMin:           parseDollars(field("value_min")),
		ValueMax:           parseDollars(field("value_max")),
		PlaceOfPerformance: field("place_of_performance"),
		Description:        field("description"),
		PostedAt:           parseDate(field("posted_at")),
		Deadline:           parseDate(field("deadline")),
	}
}

// parseDollars reads an integer dollar amount, tolerating "$1,500,000" style
// formatting. Unparseable values become 0.
func parseDollars(s string) int64 {
	if s == "" {
		return 0
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if dot := strings.Index(s, "."); dot >= 0 {
		s = s[:dot]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
