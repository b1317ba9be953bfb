package safari

import (
	"errors"
	"testing"
	"time"
)

func TestSubTokenLetters(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		seatIndex int
		want      string
	}{
		{seatIndex: 0, want: "7a"},
		{seatIndex: 1, want: "7b"},
		{seatIndex: 25, want: "7z"},
		{seatIndex: 26, want: "7aa"},
		{seatIndex: 27, want: "7ab"},
		{seatIndex: 701, want: "7zz"},
		{seatIndex: 702, want: "7aaa"},
	}
	for _, testCase := range testCases {
		got := SubToken{Token: 7, SeatIndex: testCase.seatIndex}.String()
		if got != testCase.want {
			test.Fatalf(errorMismatchMessage, testCase.want, got)
		}
	}
}

func TestNewSafariDateValidation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "2025-01-01", want: "2025-01-01"},
		{raw: " 2025-12-31 ", want: "2025-12-31"},
		{raw: "", wantErr: true},
		{raw: "01/01/2025", wantErr: true},
		{raw: "2025-02-30", wantErr: true},
	}
	for _, testCase := range testCases {
		date, err := NewSafariDate(testCase.raw)
		if testCase.wantErr {
			if !errors.Is(err, ErrValidation) {
				test.Fatalf("%q: "+errorMismatchMessage, testCase.raw, ErrValidation, err)
			}
			continue
		}
		if err != nil {
			test.Fatalf("%q: unexpected error %v", testCase.raw, err)
		}
		if date.String() != testCase.want {
			test.Fatalf(errorMismatchMessage, testCase.want, date.String())
		}
	}
}

func TestNewPartySizeValidation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		adults   int
		children int
		wantErr  bool
	}{
		{adults: 1, children: 0},
		{adults: 0, children: 1},
		{adults: 0, children: 0, wantErr: true},
		{adults: -1, children: 3, wantErr: true},
	}
	for _, testCase := range testCases {
		party, err := NewPartySize(testCase.adults, testCase.children)
		if testCase.wantErr != (err != nil) {
			test.Fatalf("%d/%d: unexpected error state %v", testCase.adults, testCase.children, err)
		}
		if err == nil && party.Total() != testCase.adults+testCase.children {
			test.Fatalf("unexpected total %d", party.Total())
		}
	}
}

func TestParseToken(test *testing.T) {
	test.Parallel()
	token, err := ParseToken(" 42 ")
	if err != nil || token != 42 {
		test.Fatalf("expected 42, got %d (%v)", token, err)
	}
	for _, raw := range []string{"", "abc", "0", "-3"} {
		if _, err := ParseToken(raw); !errors.Is(err, ErrValidation) {
			test.Fatalf("%q: "+errorMismatchMessage, raw, ErrValidation, err)
		}
	}
}

func TestReservationStatusTransitions(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		from ReservationStatus
		to   ReservationStatus
		want bool
	}{
		{from: ReservationStatusHeld, to: ReservationStatusConfirmed, want: true},
		{from: ReservationStatusHeld, to: ReservationStatusExpired, want: true},
		{from: ReservationStatusHeld, to: ReservationStatusCompleted, want: false},
		{from: ReservationStatusConfirmed, to: ReservationStatusCompleted, want: true},
		{from: ReservationStatusConfirmed, to: ReservationStatusHeld, want: false},
		{from: ReservationStatusExpired, to: ReservationStatusConfirmed, want: false},
		{from: ReservationStatusCompleted, to: ReservationStatusCancelled, want: false},
	}
	for _, testCase := range testCases {
		if got := testCase.from.CanTransitionTo(testCase.to); got != testCase.want {
			test.Fatalf("%s->%s: "+errorMismatchMessage, testCase.from, testCase.to, testCase.want, got)
		}
	}
	if _, err := ParseReservationStatus("paid"); !errors.Is(err, ErrValidation) {
		test.Fatalf(errorMismatchMessage, ErrValidation, err)
	}
}

func TestGateStatusNext(test *testing.T) {
	test.Parallel()
	next, ok := GateStatusPending.Next()
	if !ok || next != GateStatusStarted {
		test.Fatalf("expected started, got %s", next)
	}
	next, ok = GateStatusStarted.Next()
	if !ok || next != GateStatusCompleted {
		test.Fatalf("expected completed, got %s", next)
	}
	if _, ok := GateStatusCompleted.Next(); ok {
		test.Fatalf("completed must be terminal")
	}
}

func TestVehicleRunLocksResources(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name       string
		fillStatus FillStatus
		gateStatus GateStatus
		want       bool
	}{
		{name: "waiting", fillStatus: FillStatusWaiting, gateStatus: GateStatusPending, want: false},
		{name: "ready", fillStatus: FillStatusReady, gateStatus: GateStatusPending, want: false},
		{name: "moved", fillStatus: FillStatusMoved, gateStatus: GateStatusPending, want: true},
		{name: "started", fillStatus: FillStatusMoved, gateStatus: GateStatusStarted, want: true},
		{name: "completed", fillStatus: FillStatusMoved, gateStatus: GateStatusCompleted, want: false},
	}
	for _, testCase := range testCases {
		run := VehicleRun{FillStatus: testCase.fillStatus, GateStatus: testCase.gateStatus}
		if got := run.LocksResources(); got != testCase.want {
			test.Fatalf("%s: "+errorMismatchMessage, testCase.name, testCase.want, got)
		}
	}
}

func TestVehicleRunFillStatusTransitions(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name       string
		fillStatus FillStatus
		passengers int
		next       FillStatus
		wantErr    error
		want       FillStatus
	}{
		{name: "waiting fills up", fillStatus: FillStatusWaiting, passengers: 2, want: FillStatusReady},
		{name: "ready drops back", fillStatus: FillStatusReady, passengers: 1, want: FillStatusWaiting},
		{name: "waiting stays", fillStatus: FillStatusWaiting, passengers: 1, want: FillStatusWaiting},
		{name: "moved cannot reopen", fillStatus: FillStatusMoved, passengers: 1, wantErr: ErrInvalidTransition, want: FillStatusMoved},
		{name: "waiting moves", fillStatus: FillStatusWaiting, passengers: 1, next: FillStatusMoved, want: FillStatusMoved},
	}
	for _, testCase := range testCases {
		run := VehicleRun{Capacity: 2, FillStatus: testCase.fillStatus, Passengers: make([]Passenger, testCase.passengers)}
		var updated VehicleRun
		var err error
		if testCase.next == "" {
			updated, err = run.withFillStatusFromSeats()
		} else {
			updated, err = run.withFillStatus(testCase.next)
		}
		if testCase.wantErr == nil && err != nil {
			test.Fatalf("%s: unexpected error: %v", testCase.name, err)
		}
		if testCase.wantErr != nil && !errors.Is(err, testCase.wantErr) {
			test.Fatalf("%s: "+errorMismatchMessage, testCase.name, testCase.wantErr, err)
		}
		if updated.FillStatus != testCase.want {
			test.Fatalf("%s: "+errorMismatchMessage, testCase.name, testCase.want, updated.FillStatus)
		}
	}
}

func TestReservationOccupiesSeatsAt(test *testing.T) {
	test.Parallel()
	now := time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)
	testCases := []struct {
		name        string
		reservation Reservation
		want        bool
	}{
		{name: "live hold", reservation: Reservation{Status: ReservationStatusHeld, HoldExpiresAt: now.Add(time.Minute)}, want: true},
		{name: "hold ending now", reservation: Reservation{Status: ReservationStatusHeld, HoldExpiresAt: now}, want: false},
		{name: "confirmed", reservation: Reservation{Status: ReservationStatusConfirmed}, want: true},
		{name: "completed", reservation: Reservation{Status: ReservationStatusCompleted}, want: true},
		{name: "expired", reservation: Reservation{Status: ReservationStatusExpired}, want: false},
		{name: "cancelled", reservation: Reservation{Status: ReservationStatusCancelled}, want: false},
	}
	for _, testCase := range testCases {
		if got := testCase.reservation.OccupiesSeatsAt(now); got != testCase.want {
			test.Fatalf("%s: "+errorMismatchMessage, testCase.name, testCase.want, got)
		}
	}
}

func TestMetadataJSONValidation(test *testing.T) {
	test.Parallel()
	metadata, err := NewMetadataJSON("  ")
	if err != nil || metadata.String() != "{}" {
		test.Fatalf("expected empty object, got %q (%v)", metadata.String(), err)
	}
	if _, err := NewMetadataJSON("{broken"); !errors.Is(err, ErrValidation) {
		test.Fatalf(errorMismatchMessage, ErrValidation, err)
	}
}
