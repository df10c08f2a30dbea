package models

// CurrencyAmount accumulates revenue for one currency. Currencies are kept
// exactly as the provider sent them (after trimming), so "CHF" and "chf"
// are two separate entries.
type CurrencyAmount struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// SessionAggregate is the per-occurrence rollup inside an event aggregate.
// Occurrence identity is the exact (Date, Time, LocationName) triple, empty
// fields matching empty fields. There is no fuzzier notion of identity.
type SessionAggregate struct {
	Date              string           `json:"date,omitempty"`
	Time              string           `json:"time,omitempty"`
	LocationName      string           `json:"locationName,omitempty"`
	TicketsCount      int64            `json:"ticketsCount"`
	RevenueByCurrency []CurrencyAmount `json:"revenueByCurrency,omitempty"`
}

// EventAggregate is the rolling per-event summary maintained by the
// aggregator. It is created lazily on the first ticket for an event and only
// ever grows; replaying the same ticket ingestions in any order yields the
// same aggregate because every update is a pure accumulation.
type EventAggregate struct {
	EventID           string             `json:"eventId"`
	EventName         string             `json:"eventName,omitempty"`
	TicketsCount      int64              `json:"ticketsCount"`
	RevenueByCurrency []CurrencyAmount   `json:"revenueByCurrency,omitempty"`
	Sessions          []SessionAggregate `json:"sessions,omitempty"`
}

// MatchesSession reports whether the sub-aggregate is the occurrence the
// given identity triple refers to.
func (s SessionAggregate) MatchesSession(date, time, locationName string) bool {
	return s.Date == date && s.Time == time && s.LocationName == locationName
}
