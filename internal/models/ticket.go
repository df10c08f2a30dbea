package models

import (
	"math"
	"time"
)

// Ticket is the flat document persisted for every ticket webhook we receive.
// Every field except CreatedAt is optional: the provider payload evolves and
// the normalizer degrades anything it cannot parse to the zero value instead
// of rejecting the delivery.
type Ticket struct {
	// Event info
	EventType string `json:"eventType,omitempty"` // ticket_created / ticket_updated
	EventID   string `json:"eventId,omitempty"`
	EventName string `json:"eventName,omitempty"`

	// Ticket info
	TicketNumber       string `json:"ticketNumber,omitempty"`
	TicketType         string `json:"ticketType,omitempty"`
	TicketCategory     string `json:"ticketCategory,omitempty"`
	TicketTitle        string `json:"ticketTitle,omitempty"`
	CancellationReason string `json:"cancellationReason,omitempty"`
	GeneratedAt        string `json:"generatedAt,omitempty"` // provider timestamp, kept opaque

	// Primary session (first of the payload list)
	SessionName   string `json:"sessionName,omitempty"`
	SessionDate   string `json:"sessionDate,omitempty"` // "YYYY-MM-DD"
	SessionTime   string `json:"sessionTime,omitempty"` // "HH:MM:SS"
	SessionDoors  string `json:"sessionDoors,omitempty"`
	VenueName     string `json:"venueName,omitempty"`
	VenueStreet   string `json:"venueStreet,omitempty"`
	VenueCity     string `json:"venueCity,omitempty"`
	VenuePostcode string `json:"venuePostcode,omitempty"`

	// Price. PriceAmount stays nil when the raw amount is unparseable;
	// PriceAmountRaw always keeps the original string for audit.
	PriceAmount    *float64 `json:"priceAmount"`
	PriceAmountRaw string   `json:"priceAmountRaw,omitempty"`
	PriceCurrency  string   `json:"priceCurrency,omitempty"`

	// Buyer
	BuyerRole      string `json:"buyerRole,omitempty"`
	BuyerFirstName string `json:"buyerFirstName,omitempty"`
	BuyerLastName  string `json:"buyerLastName,omitempty"`
	BuyerEmail     string `json:"buyerEmail,omitempty"`
	BuyerPostcode  string `json:"buyerPostcode,omitempty"`

	// Technical
	RawPayload map[string]interface{} `json:"rawPayload,omitempty"` // verbatim inbound payload
	CreatedAt  time.Time              `json:"createdAt"`            // ingestion time, set by the writer
}

// HasPrice reports whether the ticket carries a usable amount/currency pair
// for revenue aggregation. Non-finite amounts do not count: they cannot be
// accumulated or re-encoded as JSON.
func (t Ticket) HasPrice() bool {
	return t.PriceAmount != nil &&
		!math.IsInf(*t.PriceAmount, 0) && !math.IsNaN(*t.PriceAmount) &&
		t.PriceCurrency != ""
}

// HasSessionIdentity reports whether at least one of the session identity
// fields is known, i.e. the ticket can be attributed to a session occurrence.
func (t Ticket) HasSessionIdentity() bool {
	return t.SessionDate != "" || t.SessionTime != "" || t.VenueName != ""
}
