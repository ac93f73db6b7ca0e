package models

// StructuredAddress is a carrier-compliant address. PostalCode is kept in the
// "01310-100" form; State is two uppercase letters or empty when unknown.
type StructuredAddress struct {
	Street        string `json:"street"`
	Number        string `json:"number"`
	Complement    string `json:"complement,omitempty"`
	Neighborhood  string `json:"neighborhood"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postal_code"`
	RecipientName string `json:"recipient_name,omitempty"`
	Document      string `json:"document,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Sentinel city values produced when the city could not be parsed.
const (
	CityUnknown      = "unknown"
	CityManualReview = "manual-review"
)

func (a StructuredAddress) HasDiscreteFields() bool {
	return a.Street != "" || a.Number != "" || a.Neighborhood != "" || a.City != ""
}
