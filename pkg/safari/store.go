package safari

import (
	"context"
	"time"
)

// Store is the persistence boundary of the service. Implementations return
// errors wrapping ErrNotFound for missing rows and ErrConflict for lost
// compare-and-set races, unique violations and serialization failures.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error)
	GetReservationByToken(ctx context.Context, date SafariDate, token Token) (Reservation, error)
	ListReservations(ctx context.Context, date SafariDate) ([]Reservation, error)
	// ListExpiredHolds returns held reservations whose hold ended at or before
	// now. A zero date matches every date.
	ListExpiredHolds(ctx context.Context, date SafariDate, now time.Time) ([]Reservation, error)
	// MaxToken returns the largest token issued for date in any status, or 0.
	MaxToken(ctx context.Context, date SafariDate) (Token, error)
	// SumOccupiedSeats sums party sizes of confirmed and completed reservations
	// plus held reservations whose hold ends after now.
	SumOccupiedSeats(ctx context.Context, date SafariDate, slot TimeSlot, now time.Time) (int, error)
	TransitionReservation(ctx context.Context, change StatusChange) error
	// ArchiveReservation stores the snapshot once per reservation id and
	// reports whether a new row was written.
	ArchiveReservation(ctx context.Context, record ArchivedReservation) (bool, error)
	ListArchived(ctx context.Context, date SafariDate) ([]ArchivedReservation, error)

	SaveVehicle(ctx context.Context, vehicle Vehicle) error
	GetVehicle(ctx context.Context, vehicleID VehicleID) (Vehicle, error)
	ListVehicles(ctx context.Context) ([]Vehicle, error)
	SaveDriver(ctx context.Context, driver Driver) error
	GetDriver(ctx context.Context, driverID DriverID) (Driver, error)
	ListDrivers(ctx context.Context) ([]Driver, error)

	CreateRun(ctx context.Context, run VehicleRun) error
	GetRun(ctx context.Context, runID RunID) (VehicleRun, error)
	ListRuns(ctx context.Context, date SafariDate) ([]VehicleRun, error)
	// UpdateRun replaces the run when its stored version equals run.Version
	// and bumps the version.
	UpdateRun(ctx context.Context, run VehicleRun) error

	AppendGateLogs(ctx context.Context, logs []GateLog) error
	ListGateLogs(ctx context.Context, date SafariDate) ([]GateLog, error)
}

// StatusChange is a compare-and-set reservation status update. The write only
// applies while the stored status equals From and the optional hold guards hold.
type StatusChange struct {
	ReservationID ReservationID
	From          ReservationStatus
	To            ReservationStatus
	// ExpiredAsOf requires hold_expires_at <= *ExpiredAsOf.
	ExpiredAsOf *time.Time
	// ActiveAsOf requires hold_expires_at > *ActiveAsOf.
	ActiveAsOf *time.Time
	Payment    *PaymentMeta
	ChangedAt  time.Time
}

// DateLocker serializes mutations of one safari date.
type DateLocker interface {
	Lock(ctx context.Context, date SafariDate) (unlock func(), err error)
}
