package safari

import (
	"fmt"
	"time"
)

// Reservation is one visitor group's seat hold for a (date, slot).
type Reservation struct {
	ID            ReservationID
	Token         Token
	Date          SafariDate
	Slot          TimeSlot
	Party         PartySize
	Visitor       Visitor
	Amount        Amount
	HoldExpiresAt time.Time
	Status        ReservationStatus
	Payment       PaymentMeta
	CreatedAt     time.Time
}

// HoldExpired reports whether a held reservation is past its hold window at now.
func (reservation Reservation) HoldExpired(now time.Time) bool {
	return reservation.Status == ReservationStatusHeld && !reservation.HoldExpiresAt.After(now)
}

// OccupiesSeatsAt reports whether the reservation counts against capacity at now.
func (reservation Reservation) OccupiesSeatsAt(now time.Time) bool {
	if reservation.Status == ReservationStatusHeld {
		return reservation.HoldExpiresAt.After(now)
	}
	return reservation.Status.OccupiesSeats()
}

// ArchivedReservation is the snapshot kept when a reservation leaves the ledger.
type ArchivedReservation struct {
	ReservationID ReservationID
	Token         Token
	Date          SafariDate
	Slot          TimeSlot
	Party         PartySize
	Visitor       Visitor
	Amount        Amount
	Reason        string
	ArchivedAt    time.Time
}

func newArchivedReservation(reservation Reservation, reason string, archivedAt time.Time) ArchivedReservation {
	return ArchivedReservation{
		ReservationID: reservation.ID,
		Token:         reservation.Token,
		Date:          reservation.Date,
		Slot:          reservation.Slot,
		Party:         reservation.Party,
		Visitor:       reservation.Visitor,
		Amount:        reservation.Amount,
		Reason:        reason,
		ArchivedAt:    archivedAt,
	}
}

// Passenger occupies one seat of a run.
type Passenger struct {
	ReservationID ReservationID
	Token         Token
	SeatIndex     int
	Name          string
	Contact       string
}

// SubToken derives the display identifier of the seat.
func (passenger Passenger) SubToken() SubToken {
	return SubToken{Token: passenger.Token, SeatIndex: passenger.SeatIndex}
}

// VehicleRun is one vehicle's trip on a date.
type VehicleRun struct {
	ID         RunID
	Date       SafariDate
	VehicleID  VehicleID
	RunNumber  int
	Capacity   int
	Passengers []Passenger
	DriverID   DriverID
	FillStatus FillStatus
	GateStatus GateStatus
	PlasticIn  *int
	PlasticOut *int
	GateInAt   *time.Time
	GateOutAt  *time.Time
	Version    int64
	CreatedAt  time.Time
}

// SeatsFilled returns the number of occupied seats.
func (run VehicleRun) SeatsFilled() int {
	return len(run.Passengers)
}

// SeatsAvailable returns the number of free seats.
func (run VehicleRun) SeatsAvailable() int {
	available := run.Capacity - len(run.Passengers)
	if available < 0 {
		return 0
	}
	return available
}

// IsOpen reports whether the run can still receive or lose seats.
func (run VehicleRun) IsOpen() bool {
	return run.FillStatus != FillStatusMoved
}

// LocksResources reports whether the run keeps its vehicle and driver busy.
func (run VehicleRun) LocksResources() bool {
	active := run.FillStatus == FillStatusMoved || run.GateStatus == GateStatusStarted
	return active && run.GateStatus != GateStatusCompleted
}

// PlasticMatch reports whether the counts recorded at the gate agree. The
// second value is false until both counts are known.
func (run VehicleRun) PlasticMatch() (bool, bool) {
	if run.PlasticIn == nil || run.PlasticOut == nil {
		return false, false
	}
	return *run.PlasticIn == *run.PlasticOut, true
}

// PassengerCount returns the number of seats the run holds for a reservation.
func (run VehicleRun) PassengerCount(reservationID ReservationID) int {
	count := 0
	for _, passenger := range run.Passengers {
		if passenger.ReservationID == reservationID {
			count++
		}
	}
	return count
}

// TokenCounts lists the distinct tokens in the run with their seat counts,
// ordered by first appearance.
func (run VehicleRun) TokenCounts() []TokenCount {
	var counts []TokenCount
	positions := make(map[Token]int)
	for _, passenger := range run.Passengers {
		position, seen := positions[passenger.Token]
		if !seen {
			positions[passenger.Token] = len(counts)
			counts = append(counts, TokenCount{Token: passenger.Token, ReservationID: passenger.ReservationID, Persons: 1})
			continue
		}
		counts[position].Persons++
	}
	return counts
}

// TokenCount pairs a reservation token with a number of persons.
type TokenCount struct {
	Token         Token
	ReservationID ReservationID
	Persons       int
}

func (run VehicleRun) withFillStatusFromSeats() (VehicleRun, error) {
	if len(run.Passengers) >= run.Capacity {
		return run.withFillStatus(FillStatusReady)
	}
	return run.withFillStatus(FillStatusWaiting)
}

// withFillStatus moves the run to next if the fill lifecycle allows it.
func (run VehicleRun) withFillStatus(next FillStatus) (VehicleRun, error) {
	if run.FillStatus == next {
		return run, nil
	}
	if !run.FillStatus.CanTransitionTo(next) {
		return run, fmt.Errorf("%w: run %s cannot move from %s to %s", ErrInvalidTransition, run.ID, run.FillStatus, next)
	}
	run.FillStatus = next
	return run, nil
}

// Vehicle is a registered safari vehicle.
type Vehicle struct {
	ID               VehicleID
	Number           string
	Owner            string
	Capacity         int
	Active           bool
	UnavailableDates []SafariDate
}

// AvailableOn reports whether the vehicle may be used on date.
func (vehicle Vehicle) AvailableOn(date SafariDate) bool {
	return vehicle.Active && !containsDate(vehicle.UnavailableDates, date)
}

// Driver is a registered driver.
type Driver struct {
	ID               DriverID
	Name             string
	Phone            string
	Active           bool
	UnavailableDates []SafariDate
}

// AvailableOn reports whether the driver may be assigned on date.
func (driver Driver) AvailableOn(date SafariDate) bool {
	return driver.Active && !containsDate(driver.UnavailableDates, date)
}

// GateLog records one reservation token leaving with a run.
type GateLog struct {
	ID           string
	Date         SafariDate
	VehicleID    VehicleID
	DriverID     DriverID
	RunID        RunID
	RunNumber    int
	Token        Token
	PersonsCount int
	Action       GateAction
	CreatedAt    time.Time
}

// AssignmentResult reports the outcome of one seat assignment call.
type AssignmentResult struct {
	RunID         RunID
	SeatsAssigned int
	Remaining     int
}

// GateCompletion is returned when a run returns through the gate.
type GateCompletion struct {
	Run          VehicleRun
	PlasticMatch bool
}

// AvailableVehicle is one entry of the vehicle selection list.
type AvailableVehicle struct {
	Vehicle        Vehicle
	OpenRunID      *RunID
	RunNumber      int
	SeatsFilled    int
	SeatsAvailable int
}

// SlotSeats reports remaining seats of one slot.
type SlotSeats struct {
	Slot      TimeSlot
	Limit     int
	Available int
	Fits      bool
}

func containsDate(dates []SafariDate, date SafariDate) bool {
	for _, candidate := range dates {
		if candidate == date {
			return true
		}
	}
	return false
}
