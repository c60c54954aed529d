package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-radar/internal/store"
)

const sampleCSV = `notice_id,title,agency,naics_code,set_aside,value_min,value_max,place_of_performance,posted_date,response_deadline
n-100,Cloud Modernization BPA,GSA,541511,SBA,"$1,000,000","$5,000,000",VA,2026-08-01,2026-10-01
n-101,Helpdesk IDIQ,VA,541512,,,"2,500,000",Remote,2026-08-15,
,Untitled Support Services,DOI,541519,,,,,,
n-102,,GSA,541511,,,,,,
`

func TestParseCSV(t *testing.T) {
	opps, err := ParseCSV(strings.NewReader(sampleCSV), "utf-8")
	require.NoError(t, err)
	require.Len(t, opps, 3, "the titleless row is skipped")

	first := opps[0]
	assert.Equal(t, "n-100", first.NoticeID)
	assert.Equal(t, "Cloud Modernization BPA", first.Title)
	assert.Equal(t, "GSA", first.Agency)
	assert.Equal(t, "541511", first.NAICSCode)
	assert.Equal(t, "SBA", first.SetAside)
	assert.EqualValues(t, 1_000_000, first.ValueMin)
	assert.EqualValues(t, 5_000_000, first.ValueMax)
	assert.Equal(t, "VA", first.PlaceOfPerformance)
	require.NotNil(t, first.PostedAt)
	assert.Equal(t, "2026-08-01", first.PostedAt.Format("2006-01-02"))
	require.NotNil(t, first.Deadline)

	second := opps[1]
	assert.EqualValues(t, 0, second.ValueMin)
	assert.EqualValues(t, 2_500_000, second.ValueMax)
	assert.Nil(t, second.Deadline)

	// Missing notice_id is allowed; the row still imports.
	assert.Equal(t, "", opps[2].NoticeID)
	assert.Equal(t, "Untitled Support Services", opps[2].Title)
}

func TestParseCSV_AliasHeaders(t *testing.T) {
	csv := "NoticeId,Opportunity_Title,Department,NAICS,Award_Ceiling\nn-1,Alpha,DOD,541511,900000\n"
	opps, err := ParseCSV(strings.NewReader(csv), "")
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "n-1", opps[0].NoticeID)
	assert.Equal(t, "DOD", opps[0].Agency)
	assert.EqualValues(t, 900_000, opps[0].ValueMax)
}

func TestParseCSV_Latin1(t *testing.T) {
	// "Montréal" with é encoded as 0xE9.
	raw := []byte("notice_id,title,place_of_performance\nn-1,Qu\xe9bec Bridge Study,Montr\xe9al\n")

	opps, err := ParseCSV(strings.NewReader(string(raw)), "iso-8859-1")
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "Québec Bridge Study", opps[0].Title)
	assert.Equal(t, "Montréal", opps[0].PlaceOfPerformance)
}

func TestParseCSV_UnknownCharset(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("title\nx\n"), "klingon-8")
	require.Error(t, err)
}

func TestParseCSV_NoTitleColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("notice_id,agency\nn-1,GSA\n"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no title column")
}

func TestParseDollars(t *testing.T) {
	assert.EqualValues(t, 1_500_000, parseDollars("$1,500,000"))
	assert.EqualValues(t, 2_000, parseDollars("2000.50"))
	assert.EqualValues(t, 0, parseDollars(""))
	assert.EqualValues(t, 0, parseDollars("TBD"))
}

func TestImport_UpsertsIntoStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	n, err := Import(ctx, st, strings.NewReader(sampleCSV), "utf-8")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// Re-import is an upsert, not a duplication.
	n, err = Import(ctx, st, strings.NewReader(sampleCSV), "utf-8")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
