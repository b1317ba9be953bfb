package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
)

type visitorRequest struct {
	Name  string `json:"name" binding:"max=255"`
	Phone string `json:"phone" binding:"omitempty,len=10,numeric"`
	Email string `json:"email" binding:"omitempty,email"`
}

type holdRequest struct {
	Date     string         `json:"date" binding:"required,safaridate"`
	Slot     string         `json:"slot" binding:"required"`
	Adults   int            `json:"adults" binding:"min=0"`
	Children int            `json:"children" binding:"min=0"`
	Visitor  visitorRequest `json:"visitor"`
}

type confirmRequest struct {
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	Metadata  json.RawMessage `json:"metadata"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

type assignRequest struct {
	VehicleID string `json:"vehicle_id" binding:"required"`
}

type vehicleRequest struct {
	Number           string   `json:"number" binding:"required"`
	Owner            string   `json:"owner"`
	Capacity         int      `json:"capacity" binding:"min=0"`
	Active           *bool    `json:"active"`
	UnavailableDates []string `json:"unavailable_dates" binding:"dive,safaridate"`
}

type driverRequest struct {
	Name             string   `json:"name" binding:"required"`
	Phone            string   `json:"phone" binding:"omitempty,len=10,numeric"`
	Active           *bool    `json:"active"`
	UnavailableDates []string `json:"unavailable_dates" binding:"dive,safaridate"`
}

type setDriverRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
}

type moveRequest struct {
	Forced bool `json:"forced"`
}

type gateStartRequest struct {
	PlasticIn *int `json:"plastic_in" binding:"required,min=0"`
}

type gateCompleteRequest struct {
	PlasticOut *int `json:"plastic_out" binding:"required,min=0"`
}

type dateQuery struct {
	Date string `form:"date" binding:"required,safaridate"`
}

type availabilityQuery struct {
	Date string `form:"date" binding:"required,safaridate"`
	Slot string `form:"slot" binding:"required"`
}

type slotsQuery struct {
	Date  string `form:"date" binding:"required,safaridate"`
	Seats int    `form:"seats" binding:"min=0"`
}

type gateLogQuery struct {
	Date   string `form:"date" binding:"required,safaridate"`
	Bucket string `form:"bucket"`
}

type amountPayload struct {
	BaseCents      int64 `json:"base_cents"`
	SurchargeCents int64 `json:"surcharge_cents"`
	TotalCents     int64 `json:"total_cents"`
}

type visitorPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type paymentPayload struct {
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	Metadata    json.RawMessage `json:"metadata"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

type reservationPayload struct {
	ReservationID string          `json:"reservation_id"`
	Token         int64           `json:"token"`
	Date          string          `json:"date"`
	Slot          string          `json:"slot"`
	Adults        int             `json:"adults"`
	Children      int             `json:"children"`
	Seats         int             `json:"seats"`
	Visitor       visitorPayload  `json:"visitor"`
	Amount        amountPayload   `json:"amount"`
	Status        string          `json:"status"`
	HoldExpiresAt time.Time       `json:"hold_expires_at"`
	Payment       *paymentPayload `json:"payment,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type archivedPayload struct {
	ReservationID string         `json:"reservation_id"`
	Token         int64          `json:"token"`
	Date          string         `json:"date"`
	Slot          string         `json:"slot"`
	Seats         int            `json:"seats"`
	Visitor       visitorPayload `json:"visitor"`
	Amount        amountPayload  `json:"amount"`
	Reason        string         `json:"reason"`
	ArchivedAt    time.Time      `json:"archived_at"`
}

type passengerPayload struct {
	ReservationID string `json:"reservation_id"`
	Token         int64  `json:"token"`
	SubToken      string `json:"sub_token"`
	Name          string `json:"name"`
	Contact       string `json:"contact"`
}

type runPayload struct {
	RunID          string             `json:"run_id"`
	Date           string             `json:"date"`
	VehicleID      string             `json:"vehicle_id"`
	RunNumber      int                `json:"run_number"`
	Capacity       int                `json:"capacity"`
	SeatsFilled    int                `json:"seats_filled"`
	SeatsAvailable int                `json:"seats_available"`
	Passengers     []passengerPayload `json:"passengers"`
	DriverID       string             `json:"driver_id,omitempty"`
	FillStatus     string             `json:"fill_status"`
	GateStatus     string             `json:"gate_status"`
	PlasticIn      *int               `json:"plastic_in,omitempty"`
	PlasticOut     *int               `json:"plastic_out,omitempty"`
	GateInAt       *time.Time         `json:"gate_in_at,omitempty"`
	GateOutAt      *time.Time         `json:"gate_out_at,omitempty"`
}

type vehiclePayload struct {
	VehicleID        string   `json:"vehicle_id"`
	Number           string   `json:"number"`
	Owner            string   `json:"owner"`
	Capacity         int      `json:"capacity"`
	Active           bool     `json:"active"`
	UnavailableDates []string `json:"unavailable_dates"`
}

type availableVehiclePayload struct {
	Vehicle        vehiclePayload `json:"vehicle"`
	OpenRunID      string         `json:"open_run_id,omitempty"`
	RunNumber      int            `json:"run_number"`
	SeatsFilled    int            `json:"seats_filled"`
	SeatsAvailable int            `json:"seats_available"`
}

type driverPayload struct {
	DriverID         string   `json:"driver_id"`
	Name             string   `json:"name"`
	Phone            string   `json:"phone"`
	Active           bool     `json:"active"`
	UnavailableDates []string `json:"unavailable_dates"`
}

type slotPayload struct {
	Slot      string `json:"slot"`
	Limit     int    `json:"limit"`
	Available int    `json:"available"`
	Fits      bool   `json:"fits"`
}

type tokenCountPayload struct {
	Token   int64 `json:"token"`
	Persons int   `json:"persons"`
}

type gateLogGroupPayload struct {
	VehicleID    string              `json:"vehicle_id"`
	DriverID     string              `json:"driver_id"`
	RunID        string              `json:"run_id"`
	RunNumber    int                 `json:"run_number"`
	Action       string              `json:"action"`
	BucketStart  time.Time           `json:"bucket_start"`
	Tokens       []tokenCountPayload `json:"tokens"`
	TotalPersons int                 `json:"total_persons"`
}

func newAmountPayload(amount safari.Amount) amountPayload {
	return amountPayload{
		BaseCents:      amount.BaseCents.Int64(),
		SurchargeCents: amount.SurchargeCents.Int64(),
		TotalCents:     amount.TotalCents.Int64(),
	}
}

func newVisitorPayload(visitor safari.Visitor) visitorPayload {
	return visitorPayload{Name: visitor.Name, Phone: visitor.Phone, Email: visitor.Email}
}

func newReservationPayload(reservation safari.Reservation) reservationPayload {
	payload := reservationPayload{
		ReservationID: reservation.ID.String(),
		Token:         int64(reservation.Token),
		Date:          reservation.Date.String(),
		Slot:          reservation.Slot.String(),
		Adults:        reservation.Party.Adults,
		Children:      reservation.Party.Children,
		Seats:         reservation.Party.Total(),
		Visitor:       newVisitorPayload(reservation.Visitor),
		Amount:        newAmountPayload(reservation.Amount),
		Status:        reservation.Status.String(),
		HoldExpiresAt: reservation.HoldExpiresAt.UTC(),
		CreatedAt:     reservation.CreatedAt.UTC(),
	}
	if !reservation.Payment.ConfirmedAt.IsZero() {
		confirmedAt := reservation.Payment.ConfirmedAt.UTC()
		payload.Payment = &paymentPayload{
			Method:      reservation.Payment.Method,
			Reference:   reservation.Payment.Reference,
			Metadata:    json.RawMessage(reservation.Payment.Metadata.String()),
			ConfirmedAt: &confirmedAt,
		}
	}
	return payload
}

func newReservationPayloads(reservations []safari.Reservation) []reservationPayload {
	payloads := make([]reservationPayload, 0, len(reservations))
	for _, reservation := range reservations {
		payloads = append(payloads, newReservationPayload(reservation))
	}
	return payloads
}

func newArchivedPayloads(records []safari.ArchivedReservation) []archivedPayload {
	payloads := make([]archivedPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, archivedPayload{
			ReservationID: record.ReservationID.String(),
			Token:         int64(record.Token),
			Date:          record.Date.String(),
			Slot:          record.Slot.String(),
			Seats:         record.Party.Total(),
			Visitor:       newVisitorPayload(record.Visitor),
			Amount:        newAmountPayload(record.Amount),
			Reason:        record.Reason,
			ArchivedAt:    record.ArchivedAt.UTC(),
		})
	}
	return payloads
}

func newRunPayload(run safari.VehicleRun) runPayload {
	passengers := make([]passengerPayload, 0, len(run.Passengers))
	for _, passenger := range run.Passengers {
		passengers = append(passengers, passengerPayload{
			ReservationID: passenger.ReservationID.String(),
			Token:         int64(passenger.Token),
			SubToken:      passenger.SubToken().String(),
			Name:          passenger.Name,
			Contact:       passenger.Contact,
		})
	}
	return runPayload{
		RunID:          run.ID.String(),
		Date:           run.Date.String(),
		VehicleID:      run.VehicleID.String(),
		RunNumber:      run.RunNumber,
		Capacity:       run.Capacity,
		SeatsFilled:    run.SeatsFilled(),
		SeatsAvailable: run.SeatsAvailable(),
		Passengers:     passengers,
		DriverID:       run.DriverID.String(),
		FillStatus:     run.FillStatus.String(),
		GateStatus:     run.GateStatus.String(),
		PlasticIn:      run.PlasticIn,
		PlasticOut:     run.PlasticOut,
		GateInAt:       run.GateInAt,
		GateOutAt:      run.GateOutAt,
	}
}

func newRunPayloads(runs []safari.VehicleRun) []runPayload {
	payloads := make([]runPayload, 0, len(runs))
	for _, run := range runs {
		payloads = append(payloads, newRunPayload(run))
	}
	return payloads
}

func newVehiclePayload(vehicle safari.Vehicle) vehiclePayload {
	return vehiclePayload{
		VehicleID:        vehicle.ID.String(),
		Number:           vehicle.Number,
		Owner:            vehicle.Owner,
		Capacity:         vehicle.Capacity,
		Active:           vehicle.Active,
		UnavailableDates: dateStrings(vehicle.UnavailableDates),
	}
}

func newDriverPayload(driver safari.Driver) driverPayload {
	return driverPayload{
		DriverID:         driver.ID.String(),
		Name:             driver.Name,
		Phone:            driver.Phone,
		Active:           driver.Active,
		UnavailableDates: dateStrings(driver.UnavailableDates),
	}
}

func newAvailableVehiclePayloads(entries []safari.AvailableVehicle) []availableVehiclePayload {
	payloads := make([]availableVehiclePayload, 0, len(entries))
	for _, entry := range entries {
		payload := availableVehiclePayload{
			Vehicle:        newVehiclePayload(entry.Vehicle),
			RunNumber:      entry.RunNumber,
			SeatsFilled:    entry.SeatsFilled,
			SeatsAvailable: entry.SeatsAvailable,
		}
		if entry.OpenRunID != nil {
			payload.OpenRunID = entry.OpenRunID.String()
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func newGateLogGroupPayloads(groups []safari.GateLogGroup) []gateLogGroupPayload {
	payloads := make([]gateLogGroupPayload, 0, len(groups))
	for _, group := range groups {
		tokens := make([]tokenCountPayload, 0, len(group.Tokens))
		for _, tokenCount := range group.Tokens {
			tokens = append(tokens, tokenCountPayload{Token: int64(tokenCount.Token), Persons: tokenCount.Persons})
		}
		payloads = append(payloads, gateLogGroupPayload{
			VehicleID:    group.VehicleID.String(),
			DriverID:     group.DriverID.String(),
			RunID:        group.RunID.String(),
			RunNumber:    group.RunNumber,
			Action:       group.Action.String(),
			BucketStart:  group.BucketStart.UTC(),
			Tokens:       tokens,
			TotalPersons: group.TotalPersons,
		})
	}
	return payloads
}

func dateStrings(dates []safari.SafariDate) []string {
	values := make([]string, 0, len(dates))
	for _, date := range dates {
		values = append(values, date.String())
	}
	return values
}

func parseDates(values []string) ([]safari.SafariDate, error) {
	dates := make([]safari.SafariDate, 0, len(values))
	for _, value := range values {
		date, err := safari.NewSafariDate(value)
		if err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	return dates, nil
}
