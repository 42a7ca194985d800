package types

import "strings"

// AddressSnapshot is the denormalized copy of a shipping address frozen onto
// an order at checkout. It is stored as jsonb and never re-linked to the
// source address row.
type AddressSnapshot struct {
	Recipient  string  `json:"recipient"`
	Phone      *string `json:"phone,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	Region     string  `json:"region"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// IsZero reports whether no address fields were populated.
func (a AddressSnapshot) IsZero() bool {
	return strings.TrimSpace(a.Line1) == "" && strings.TrimSpace(a.City) == ""
}
