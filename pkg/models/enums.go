package models

// NodeCategory is the closed set of connectivity node kinds
type NodeCategory string

const (
	NodeCategoryPMS                 NodeCategory = "PMS"
	NodeCategoryCRS                 NodeCategory = "CRS"
	NodeCategoryChannelManager      NodeCategory = "Channel Manager"
	NodeCategoryBookingEngine       NodeCategory = "Booking Engine"
	NodeCategoryOTA                 NodeCategory = "OTA"
	NodeCategoryGDS                 NodeCategory = "GDS"
	NodeCategoryRMS                 NodeCategory = "RMS"
	NodeCategoryWholesaler          NodeCategory = "Wholesaler"
	NodeCategoryBedbank             NodeCategory = "Bedbank"
	NodeCategoryMetasearch          NodeCategory = "Metasearch"
	NodeCategoryPaymentGateway      NodeCategory = "Payment Gateway"
	NodeCategoryIntegrationPlatform NodeCategory = "Integration Platform"
	NodeCategoryOther               NodeCategory = "Other"
)

// NodeCategories lists every valid category
var NodeCategories = []NodeCategory{
	NodeCategoryPMS,
	NodeCategoryCRS,
	NodeCategoryChannelManager,
	NodeCategoryBookingEngine,
	NodeCategoryOTA,
	NodeCategoryGDS,
	NodeCategoryRMS,
	NodeCategoryWholesaler,
	NodeCategoryBedbank,
	NodeCategoryMetasearch,
	NodeCategoryPaymentGateway,
	NodeCategoryIntegrationPlatform,
	NodeCategoryOther,
}

// IsValid reports whether c is a member of the category enum. Comparison is case-sensitive.
func (c NodeCategory) IsValid() bool {
	return contains(NodeCategories, c)
}

// Direction describes which way data flows through a node
type Direction string

const (
	DirectionSupply        Direction = "Supply"
	DirectionDemand        Direction = "Demand"
	DirectionBidirectional Direction = "Bidirectional"
	DirectionInternal      Direction = "Internal"
)

// Directions lists every valid direction
var Directions = []Direction{
	DirectionSupply,
	DirectionDemand,
	DirectionBidirectional,
	DirectionInternal,
}

func (d Direction) IsValid() bool {
	return contains(Directions, d)
}

// Protocol is an integration protocol a node supports
type Protocol string

const (
	ProtocolPushAPI Protocol = "PushAPI"
	ProtocolPullAPI Protocol = "PullAPI"
	ProtocolREST    Protocol = "REST"
	ProtocolSOAP    Protocol = "SOAP"
	ProtocolXML     Protocol = "XML"
	ProtocolJSON    Protocol = "JSON"
	ProtocolGraphQL Protocol = "GraphQL"
	ProtocolWebhook Protocol = "Webhook"
	ProtocolSFTP    Protocol = "SFTP"
	ProtocolEDI     Protocol = "EDI"
	ProtocolOTAXML  Protocol = "OTA XML"
)

var Protocols = []Protocol{
	ProtocolPushAPI,
	ProtocolPullAPI,
	ProtocolREST,
	ProtocolSOAP,
	ProtocolXML,
	ProtocolJSON,
	ProtocolGraphQL,
	ProtocolWebhook,
	ProtocolSFTP,
	ProtocolEDI,
	ProtocolOTAXML,
}

func (p Protocol) IsValid() bool {
	return contains(Protocols, p)
}

// DataType is a kind of data a node exchanges
type DataType string

const (
	DataTypeAvailability  DataType = "Availability"
	DataTypeRates         DataType = "Rates"
	DataTypeInventory     DataType = "Inventory"
	DataTypeReservations  DataType = "Reservations"
	DataTypeContent       DataType = "Content"
	DataTypeRestrictions  DataType = "Restrictions"
	DataTypeGuestProfiles DataType = "Guest Profiles"
	DataTypePayments      DataType = "Payments"
	DataTypeReviews       DataType = "Reviews"
	DataTypeReports       DataType = "Reports"
)

var DataTypes = []DataType{
	DataTypeAvailability,
	DataTypeRates,
	DataTypeInventory,
	DataTypeReservations,
	DataTypeContent,
	DataTypeRestrictions,
	DataTypeGuestProfiles,
	DataTypePayments,
	DataTypeReviews,
	DataTypeReports,
}

func (d DataType) IsValid() bool {
	return contains(DataTypes, d)
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
