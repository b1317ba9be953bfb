package safari

import (
	"fmt"
	"strings"
)

// ReservationStatus enumerates the reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusCompleted ReservationStatus = "completed"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusHeld:      {ReservationStatusConfirmed, ReservationStatusExpired, ReservationStatusCancelled},
	ReservationStatusConfirmed: {ReservationStatusCompleted, ReservationStatusCancelled},
	ReservationStatusExpired:   nil,
	ReservationStatusCancelled: nil,
	ReservationStatusCompleted: nil,
}

// ParseReservationStatus validates the raw status value.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	status := ReservationStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := reservationTransitions[status]; !ok {
		return "", fmt.Errorf("%w: unknown reservation status %q", ErrValidation, raw)
	}
	return status, nil
}

// CanTransitionTo reports whether next is a legal successor of status.
func (status ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, candidate := range reservationTransitions[status] {
		if candidate == next {
			return true
		}
	}
	return false
}

// OccupiesSeats reports whether a reservation in this status counts against
// slot capacity. Held reservations additionally need an unexpired hold.
func (status ReservationStatus) OccupiesSeats() bool {
	switch status {
	case ReservationStatusHeld, ReservationStatusConfirmed, ReservationStatusCompleted:
		return true
	default:
		return false
	}
}

func (status ReservationStatus) String() string {
	return string(status)
}

// FillStatus tracks seat occupancy of a run before it leaves for the gate.
type FillStatus string

const (
	FillStatusWaiting FillStatus = "waiting"
	FillStatusReady   FillStatus = "ready"
	FillStatusMoved   FillStatus = "moved"
)

var fillTransitions = map[FillStatus][]FillStatus{
	FillStatusWaiting: {FillStatusReady, FillStatusMoved},
	FillStatusReady:   {FillStatusWaiting, FillStatusMoved},
	FillStatusMoved:   nil,
}

// ParseFillStatus validates the raw fill status value.
func ParseFillStatus(raw string) (FillStatus, error) {
	status := FillStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := fillTransitions[status]; !ok {
		return "", fmt.Errorf("%w: unknown fill status %q", ErrValidation, raw)
	}
	return status, nil
}

// CanTransitionTo reports whether next is a legal successor of status.
func (status FillStatus) CanTransitionTo(next FillStatus) bool {
	for _, candidate := range fillTransitions[status] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (status FillStatus) String() string {
	return string(status)
}

// GateStatus tracks a run through the gate.
type GateStatus string

const (
	GateStatusPending   GateStatus = "pending"
	GateStatusStarted   GateStatus = "started"
	GateStatusCompleted GateStatus = "completed"
)

var gateTransitions = map[GateStatus]GateStatus{
	GateStatusPending: GateStatusStarted,
	GateStatusStarted: GateStatusCompleted,
}

// ParseGateStatus validates the raw gate status value.
func ParseGateStatus(raw string) (GateStatus, error) {
	status := GateStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case GateStatusPending, GateStatusStarted, GateStatusCompleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown gate status %q", ErrValidation, raw)
	}
}

// Next returns the only legal successor, if any.
func (status GateStatus) Next() (GateStatus, bool) {
	next, ok := gateTransitions[status]
	return next, ok
}

func (status GateStatus) String() string {
	return string(status)
}

// GateAction distinguishes a full departure from an operator override.
type GateAction string

const (
	GateActionNormal GateAction = "normal"
	GateActionForced GateAction = "forced"
)

// ParseGateAction validates the raw action value.
func ParseGateAction(raw string) (GateAction, error) {
	action := GateAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case GateActionNormal, GateActionForced:
		return action, nil
	default:
		return "", fmt.Errorf("%w: unknown gate action %q", ErrValidation, raw)
	}
}

func (action GateAction) String() string {
	return string(action)
}
