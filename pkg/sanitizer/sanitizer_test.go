package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/csvparse"
	"github.com/Ramsey-B/fern/pkg/models"
)

const header = "node_name,website,entity_name,node_category,direction,notes,connect_targets,protocols_supported,data_types_supported"

func TestSanitizeRow_Cloudbeds(t *testing.T) {
	text := header + "\n" +
		`Cloudbeds,https://cloudbeds.com,Cloudbeds Inc,PMS,Supply,"cloud PMS, 5000 hotels","cloudbeds-cm","PushAPI|PullAPI","Availability|Rates"`

	parsed, err := csvparse.Parse(text)
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 1)

	row := SanitizeRow(parsed.Rows[0])

	assert.Equal(t, "Cloudbeds", row.EntityName)
	assert.Equal(t, "Cloudbeds", row.NodeName)
	assert.Equal(t, "cloudbeds.com", row.Website)
	assert.Equal(t, models.NodeCategoryPMS, row.Category)
	assert.Equal(t, models.DirectionSupply, row.Direction)
	assert.Equal(t, []string{"cloudbeds-cm"}, row.ConnectTargets)
	assert.Equal(t, []models.Protocol{models.ProtocolPushAPI, models.ProtocolPullAPI}, row.Protocols)
	assert.Equal(t, []models.DataType{models.DataTypeAvailability, models.DataTypeRates}, row.DataTypes)
	assert.Contains(t, row.Tags, "5000 hotels")
	assert.Contains(t, row.Tags, "pms")
	assert.Equal(t, 2, row.RowNumber)
	assert.Equal(t, "Cloudbeds Inc", row.Raw[csvparse.ColumnEntityName])
}

func TestSanitizeEntityName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Cloudbeds Inc", "Cloudbeds"},
		{"SITEMINDER PTY LTD", "Siteminder"},
		{"Booking.com", "Booking"},
		{"www.hotelbeds.com", "Hotelbeds"},
		{"  mews   systems  gmbh ", "Mews Systems"},
		{"Co", "Co"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeEntityName(tt.input))
		})
	}
}

func TestSanitizeNodeName(t *testing.T) {
	assert.Equal(t, "Opera PMS", SanitizeNodeName("Opera PMS"))
	assert.Equal(t, "SynXis CRS", SanitizeNodeName("SynXis CRS Ltd"))
	assert.Equal(t, "channel API", SanitizeNodeName("channel  API"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d"}, SplitList("a, b;c | d"))
	assert.Empty(t, SplitList(""))
	assert.Empty(t, SplitList(" ; | , "))
}

func TestParseEnums(t *testing.T) {
	t.Run("ProtocolsDropUnknownTokens", func(t *testing.T) {
		got := ParseProtocols("REST|Telepathy|OTA XML;rest|REST")
		assert.Equal(t, []models.Protocol{models.ProtocolREST, models.ProtocolOTAXML}, got)
	})

	t.Run("DataTypesDropUnknownTokens", func(t *testing.T) {
		got := ParseDataTypes("Guest Profiles, Weather ,Rates")
		assert.Equal(t, []models.DataType{models.DataTypeGuestProfiles, models.DataTypeRates}, got)
	})
}

func TestExtractTags(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		want  []string
	}{
		{name: "keywords", notes: "Channel Manager with REST api", want: []string{"channel manager", "rest", "api"}},
		{name: "counts", notes: "Used by 1,200 properties and 35000 rooms", want: []string{"1200 properties", "35000 rooms"}},
		{name: "connectivity", notes: "Connected to Booking.com, integrates with Opera and Mews", want: []string{"connected to booking.com", "integrates with opera"}},
		{name: "deduplicated", notes: "PMS pms PMS", want: []string{"pms"}},
		{name: "empty", notes: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTags(tt.notes))
		})
	}
}

func TestConfidenceScore(t *testing.T) {
	base := models.SanitizedRow{EntityName: "Cloudbeds", Website: "cloudbeds.com"}

	tests := []struct {
		name          string
		row           models.SanitizedRow
		hasDuplicates bool
		want          float64
	}{
		{name: "clamped to one", row: base, want: 1.0},
		{name: "duplicates penalised", row: base, hasDuplicates: true, want: 0.9},
		{name: "short multibyte entity", row: models.SanitizedRow{EntityName: "Öz", Website: "x"}, hasDuplicates: true, want: 0.7},
		{name: "multibyte entity", row: models.SanitizedRow{EntityName: "Ōkura", Website: "x"}, hasDuplicates: true, want: 0.8},
		{name: "unknown entity", row: models.SanitizedRow{EntityName: "Unknown Vendor", Website: "x"}, hasDuplicates: true, want: 0.7},
		{
			name:          "tag bonus capped at four",
			row:           models.SanitizedRow{EntityName: "Abc", Website: "abc", Tags: []string{"a", "b", "c", "d", "e", "f"}},
			hasDuplicates: true,
			want:          0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ConfidenceScore(tt.row, tt.hasDuplicates), 1e-9)
		})
	}
}
