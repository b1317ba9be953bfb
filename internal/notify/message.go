package notify

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
)

// ArchivedMessage is the wire form of an archived reservation.
type ArchivedMessage struct {
	ReservationID string    `json:"reservation_id"`
	Token         int64     `json:"token"`
	SubTokens     []string  `json:"sub_tokens"`
	Date          string    `json:"date"`
	Slot          string    `json:"slot"`
	Adults        int       `json:"adults"`
	Children      int       `json:"children"`
	VisitorName   string    `json:"visitor_name,omitempty"`
	VisitorPhone  string    `json:"visitor_phone,omitempty"`
	VisitorEmail  string    `json:"visitor_email,omitempty"`
	TotalCents    int64     `json:"total_cents"`
	Reason        string    `json:"reason"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// NewArchivedMessage converts a domain record into its wire form.
func NewArchivedMessage(record safari.ArchivedReservation) ArchivedMessage {
	subTokens := make([]string, 0, record.Party.Total())
	for seatIndex := 0; seatIndex < record.Party.Total(); seatIndex++ {
		subTokens = append(subTokens, safari.SubToken{Token: record.Token, SeatIndex: seatIndex}.String())
	}
	return ArchivedMessage{
		ReservationID: record.ReservationID.String(),
		Token:         int64(record.Token),
		SubTokens:     subTokens,
		Date:          record.Date.String(),
		Slot:          record.Slot.String(),
		Adults:        record.Party.Adults,
		Children:      record.Party.Children,
		VisitorName:   record.Visitor.Name,
		VisitorPhone:  record.Visitor.Phone,
		VisitorEmail:  record.Visitor.Email,
		TotalCents:    record.Amount.TotalCents.Int64(),
		Reason:        record.Reason,
		ArchivedAt:    record.ArchivedAt.UTC(),
	}
}

func encodeArchived(record safari.ArchivedReservation) ([]byte, error) {
	return json.Marshal(NewArchivedMessage(record))
}
