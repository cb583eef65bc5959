package domain

// Area is an organizational unit that can own a ticket.
type Area string

const (
	AreaLogistics           Area = "logistics"
	AreaWarehouse           Area = "warehouse"
	AreaVisualCommunication Area = "visual_communication"
	AreaRental              Area = "rental"
	AreaPurchases           Area = "purchases"
	AreaProduction          Area = "production"
	AreaCommercial          Area = "commercial"
	AreaOperations          Area = "operations"
	AreaFinancial           Area = "financial"
	AreaProjects            Area = "projects"
	AreaLogotype            Area = "logotype"
	AreaTechnicalDetailing  Area = "technical_detailing"
	AreaSubRental           Area = "sub_rental"
)

// Valid reports whether a is a known area.
func (a Area) Valid() bool {
	switch a {
	case AreaLogistics, AreaWarehouse, AreaVisualCommunication, AreaRental, AreaPurchases,
		AreaProduction, AreaCommercial, AreaOperations, AreaFinancial, AreaProjects,
		AreaLogotype, AreaTechnicalDetailing, AreaSubRental:
		return true
	default:
		return false
	}
}
