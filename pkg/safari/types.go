package safari

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// AmountCents is an integer currency in cents.
type AmountCents int64

// Int64 exposes the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Amount is the price breakdown of a reservation.
type Amount struct {
	BaseCents      AmountCents
	SurchargeCents AmountCents
	TotalCents     AmountCents
}

// SafariDate is a calendar day in YYYY-MM-DD form.
type SafariDate struct {
	value string
}

// NewSafariDate validates and normalizes a date.
func NewSafariDate(raw string) (SafariDate, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SafariDate{}, validationError("empty date")
	}
	parsed, err := time.Parse(safariDateLayout, trimmed)
	if err != nil {
		return SafariDate{}, validationError("date %q must be YYYY-MM-DD", raw)
	}
	return SafariDate{value: parsed.Format(safariDateLayout)}, nil
}

// SafariDateOf returns the calendar day of t in t's location.
func SafariDateOf(t time.Time) SafariDate {
	return SafariDate{value: t.Format(safariDateLayout)}
}

// String returns the normalized date.
func (date SafariDate) String() string {
	return date.value
}

// IsZero reports whether the date is unset.
func (date SafariDate) IsZero() bool {
	return date.value == ""
}

// TimeSlot names one configured window within a day, e.g. "10:00 - 12:00".
type TimeSlot struct {
	value string
}

// NewTimeSlot validates and normalizes a slot name.
func NewTimeSlot(raw string) (TimeSlot, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TimeSlot{}, validationError("empty slot")
	}
	return TimeSlot{value: trimmed}, nil
}

// String returns the slot name.
func (slot TimeSlot) String() string {
	return slot.value
}

// ReservationID identifies a reservation.
type ReservationID struct {
	value string
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, validationError("empty reservation id")
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// RunID identifies a vehicle run.
type RunID struct {
	value string
}

// NewRunID validates and normalizes a run id.
func NewRunID(raw string) (RunID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RunID{}, validationError("empty run id")
	}
	return RunID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RunID) String() string {
	return id.value
}

// VehicleID identifies a vehicle.
type VehicleID struct {
	value string
}

// NewVehicleID validates and normalizes a vehicle id.
func NewVehicleID(raw string) (VehicleID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return VehicleID{}, validationError("empty vehicle id")
	}
	return VehicleID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id VehicleID) String() string {
	return id.value
}

// IsZero reports whether the identifier is unset.
func (id VehicleID) IsZero() bool {
	return id.value == ""
}

// DriverID identifies a driver.
type DriverID struct {
	value string
}

// NewDriverID validates and normalizes a driver id.
func NewDriverID(raw string) (DriverID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DriverID{}, validationError("empty driver id")
	}
	return DriverID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id DriverID) String() string {
	return id.value
}

// IsZero reports whether no driver is set.
func (id DriverID) IsZero() bool {
	return id.value == ""
}

// Token is the per-date group number of a reservation.
type Token int64

// NewToken validates a token value.
func NewToken(raw int64) (Token, error) {
	if raw <= 0 {
		return 0, validationError("token must be greater than zero")
	}
	return Token(raw), nil
}

// ParseToken parses the decimal form of a token.
func ParseToken(raw string) (Token, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, validationError("token %q is not a number", raw)
	}
	return NewToken(value)
}

// String returns the decimal form of the token.
func (token Token) String() string {
	return strconv.FormatInt(int64(token), 10)
}

// SubToken identifies one seat of a reservation.
type SubToken struct {
	Token     Token
	SeatIndex int
}

// String renders the seat as token plus letter suffix: 7a, 7b, ..., 7z, 7aa.
func (subToken SubToken) String() string {
	return subToken.Token.String() + seatLetters(subToken.SeatIndex)
}

func seatLetters(index int) string {
	if index < 0 {
		return ""
	}
	base := len(subTokenAlphabet)
	var builder []byte
	for value := index + 1; value > 0; value = (value - 1) / base {
		builder = append([]byte{subTokenAlphabet[(value-1)%base]}, builder...)
	}
	return string(builder)
}

// PartySize is the number of adults and children in one reservation.
type PartySize struct {
	Adults   int
	Children int
}

// NewPartySize validates head counts.
func NewPartySize(adults int, children int) (PartySize, error) {
	if adults < 0 || children < 0 {
		return PartySize{}, validationError("adults %d and children %d must not be negative", adults, children)
	}
	if adults+children < 1 {
		return PartySize{}, validationError("party must include at least one person")
	}
	return PartySize{Adults: adults, Children: children}, nil
}

// Total returns the number of seats the party occupies.
func (party PartySize) Total() int {
	return party.Adults + party.Children
}

// Visitor holds contact details of the person who booked.
type Visitor struct {
	Name  string
	Phone string
	Email string
}

// MetadataJSON stores arbitrary payment metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, validationError("metadata must be valid json")
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// PaymentMeta is the external payment confirmation attached to a reservation.
type PaymentMeta struct {
	Method      string
	Reference   string
	Metadata    MetadataJSON
	ConfirmedAt time.Time
}

// NewPaymentMeta validates the payment method and reference.
func NewPaymentMeta(method string, reference string, metadata MetadataJSON) (PaymentMeta, error) {
	normalizedMethod := strings.ToLower(strings.TrimSpace(method))
	if normalizedMethod == "" {
		normalizedMethod = "cash"
	}
	return PaymentMeta{
		Method:    normalizedMethod,
		Reference: strings.TrimSpace(reference),
		Metadata:  metadata,
	}, nil
}
