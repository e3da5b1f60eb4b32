package decisions

import (
	"regexp"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cloudbeds", "cloudbeds"},
		{"Channel Manager", "channel-manager"},
		{"  Guesty, Inc. ", "guesty-inc"},
		{"Mews--Systems", "mews-systems"},
		{"***", "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func TestNodeID(t *testing.T) {
	id := NodeID("SiteMinder", models.NodeCategoryChannelManager)
	assert.Regexp(t, regexp.MustCompile(`^siteminder-channel-manager-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NodeID("SiteMinder", models.NodeCategoryChannelManager))
}

func TestFoldName(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		names   pq.StringArray
		add     string
		want    pq.StringArray
		changed bool
	}{
		{name: "adds new", primary: "Cloudbeds", names: pq.StringArray{}, add: "Cloudbeds Inc", want: pq.StringArray{"Cloudbeds Inc"}, changed: true},
		{name: "skips primary", primary: "Cloudbeds", names: pq.StringArray{}, add: " cloudbeds ", want: pq.StringArray{}},
		{name: "skips existing", primary: "Cloudbeds", names: pq.StringArray{"CB"}, add: "cb", want: pq.StringArray{"CB"}},
		{name: "skips empty", primary: "Cloudbeds", names: nil, add: "  ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := foldName(tt.primary, tt.names, tt.add)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestMergeIntoNode(t *testing.T) {
	node := &models.Node{
		Name:           "Cloudbeds PMS",
		Aliases:        pq.StringArray{"CB PMS"},
		Notes:          "Serves 2000 hotels",
		Tags:           pq.StringArray{"2000-hotels"},
		ConnectTargets: pq.StringArray{"Booking.com"},
		Protocols:      pq.StringArray{"REST"},
		DataTypes:      pq.StringArray{"Rates"},
	}
	staged := &models.StagingNode{
		NodeName:       "Cloudbeds Property Management",
		Notes:          "Also resells payments",
		Tags:           pq.StringArray{"2000-hotels", "payments"},
		ConnectTargets: pq.StringArray{"Booking.com", "Expedia"},
		Protocols:      pq.StringArray{"REST", "Webhook"},
		DataTypes:      pq.StringArray{"Availability"},
		Website:        "cloudbeds.com",
	}

	mergeIntoNode(node, staged)

	assert.Equal(t, pq.StringArray{"CB PMS", "Cloudbeds Property Management"}, node.Aliases)
	assert.Equal(t, "Serves 2000 hotels\nAlso resells payments", node.Notes)
	assert.Equal(t, pq.StringArray{"2000-hotels", "payments"}, node.Tags)
	assert.Equal(t, pq.StringArray{"Booking.com", "Expedia"}, node.ConnectTargets)
	assert.Equal(t, pq.StringArray{"REST", "Webhook"}, node.Protocols)
	assert.Equal(t, pq.StringArray{"Rates", "Availability"}, node.DataTypes)
	assert.Equal(t, "cloudbeds.com", node.Website)

	mergeIntoNode(node, staged)
	assert.Len(t, node.Aliases, 2)
	assert.Equal(t, "Serves 2000 hotels\nAlso resells payments", node.Notes)
}
