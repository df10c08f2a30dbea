// Package normalize maps the loosely structured Petzi webhook payload into
// the flat ticket document. The provider schema drifts over time, so every
// field access goes through a null-coalescing accessor: anything missing,
// null or of an unexpected type degrades to the zero value instead of
// failing the whole delivery.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"petzi-tickets/internal/models"
)

// legacyAmountPattern extracts the first numeric substring from the legacy
// string price format ("25.00", "25.00 CHF", ...).
var legacyAmountPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// legacyCurrency is assumed for string-form prices: the old format carried
// no currency field and Petzi is a Swiss provider.
const legacyCurrency = "CHF"

// BuildTicket converts a parsed webhook payload into the canonical flat
// ticket record. now becomes the ingestion timestamp (CreatedAt). The input
// payload is retained verbatim in RawPayload for audit.
func BuildTicket(payload map[string]interface{}, now time.Time) models.Ticket {
	details := getMap(payload, "details")
	ticket := getMap(details, "ticket")
	buyer := getMap(details, "buyer")

	doc := models.Ticket{
		EventType: getString(payload, "event"), // no enum validation, new values pass through
		EventID:   getStringOrNumber(ticket, "eventId"),
		EventName: getString(ticket, "event"),

		TicketNumber:       getString(ticket, "number"),
		TicketType:         getString(ticket, "type"),
		TicketCategory:     getString(ticket, "category"),
		TicketTitle:        getString(ticket, "title"),
		CancellationReason: getString(ticket, "cancellationReason"),
		GeneratedAt:        getString(ticket, "generatedAt"),

		BuyerRole:      getString(buyer, "role"),
		BuyerFirstName: getString(buyer, "firstName"),
		BuyerLastName:  getString(buyer, "lastName"),
		BuyerEmail:     getString(buyer, "email"),
		BuyerPostcode:  getString(buyer, "postcode"),

		RawPayload: payload,
		CreatedAt:  now,
	}

	// Only the first session occurrence is projected into the flat record;
	// the rest of the list stays available in RawPayload.
	if session := firstSession(ticket); session != nil {
		doc.SessionName = getString(session, "name")
		doc.SessionDate = getString(session, "date")
		doc.SessionTime = getString(session, "time")
		doc.SessionDoors = getString(session, "doors")

		location := getMap(session, "location")
		doc.VenueName = getString(location, "name")
		doc.VenueStreet = getString(location, "street")
		doc.VenueCity = getString(location, "city")
		doc.VenuePostcode = getString(location, "postcode")
	}

	doc.PriceAmount, doc.PriceAmountRaw, doc.PriceCurrency = normalizePrice(ticket["price"])

	return doc
}

// normalizePrice handles the two historical price shapes:
//
//   - object form {"amount": "24.00", "currency": "CHF"}
//   - legacy string form "25.00" (currency field did not exist yet)
//
// Anything else leaves all three fields empty. An unparseable or non-finite
// amount in the object form still preserves the raw string: ParseFloat
// accepts "inf" and "nan", which no downstream JSON encoding can carry.
func normalizePrice(price interface{}) (amount *float64, raw string, currency string) {
	switch value := price.(type) {
	case map[string]interface{}:
		raw = getString(value, "amount")
		currency = getString(value, "currency")
		if raw != "" {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && isFinite(parsed) {
				amount = &parsed
			}
		}
	case string:
		raw = value
		if match := legacyAmountPattern.FindString(value); match != "" {
			if parsed, err := strconv.ParseFloat(match, 64); err == nil {
				amount = &parsed
				currency = legacyCurrency
			}
		}
	}
	return amount, raw, currency
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// firstSession returns the first element of ticket.sessions when it is a
// non-empty list of objects, nil otherwise.
func firstSession(ticket map[string]interface{}) map[string]interface{} {
	sessions, ok := ticket["sessions"].([]interface{})
	if !ok || len(sessions) == 0 {
		return nil
	}
	session, ok := sessions[0].(map[string]interface{})
	if !ok {
		return nil
	}
	return session
}

func getMap(parent map[string]interface{}, key string) map[string]interface{} {
	if parent == nil {
		return nil
	}
	child, _ := parent[key].(map[string]interface{})
	return child
}

func getString(parent map[string]interface{}, key string) string {
	if parent == nil {
		return ""
	}
	value, _ := parent[key].(string)
	return value
}

// getStringOrNumber coerces string or JSON number values to a string.
// Integral numbers render without a decimal part so an eventId of 54694
// stays "54694".
func getStringOrNumber(parent map[string]interface{}, key string) string {
	if parent == nil {
		return ""
	}
	switch value := parent[key].(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return ""
	}
}
