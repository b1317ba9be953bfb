package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testDateValue = "2025-03-14"
	testSlotValue = "10:00 - 12:00"
)

func TestStoreRoundTripsReservations(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

	held := newReservation(test, "res-1", 1, 3, safari.ReservationStatusHeld, now.Add(15*time.Minute))
	held.Visitor = safari.Visitor{Name: "Asha", Phone: "9876543210", Email: "asha@example.com"}
	require.NoError(test, store.CreateReservation(ctx, held))

	loaded, err := store.GetReservation(ctx, held.ID)
	require.NoError(test, err)
	require.Equal(test, held.Token, loaded.Token)
	require.Equal(test, held.Party, loaded.Party)
	require.Equal(test, held.Visitor, loaded.Visitor)
	require.Equal(test, held.Amount, loaded.Amount)
	require.Equal(test, safari.ReservationStatusHeld, loaded.Status)
	require.True(test, held.HoldExpiresAt.Equal(loaded.HoldExpiresAt))
	require.Equal(test, "{}", loaded.Payment.Metadata.String())

	byToken, err := store.GetReservationByToken(ctx, held.Date, held.Token)
	require.NoError(test, err)
	require.Equal(test, held.ID, byToken.ID)

	maxToken, err := store.MaxToken(ctx, held.Date)
	require.NoError(test, err)
	require.Equal(test, safari.Token(1), maxToken)

	duplicate := newReservation(test, "res-2", 1, 2, safari.ReservationStatusHeld, now.Add(15*time.Minute))
	err = store.CreateReservation(ctx, duplicate)
	require.ErrorIs(test, err, safari.ErrConflict)

	_, err = store.GetReservation(ctx, mustReservationID(test, "missing"))
	require.ErrorIs(test, err, safari.ErrNotFound)
}

func TestStoreSumsOccupiedSeats(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

	require.NoError(test, store.CreateReservation(ctx, newReservation(test, "active-hold", 1, 4, safari.ReservationStatusHeld, now.Add(time.Minute))))
	require.NoError(test, store.CreateReservation(ctx, newReservation(test, "stale-hold", 2, 5, safari.ReservationStatusHeld, now.Add(-time.Minute))))
	require.NoError(test, store.CreateReservation(ctx, newReservation(test, "confirmed", 3, 6, safari.ReservationStatusConfirmed, now.Add(-time.Hour))))
	require.NoError(test, store.CreateReservation(ctx, newReservation(test, "cancelled", 4, 7, safari.ReservationStatusCancelled, now.Add(time.Hour))))

	occupied, err := store.SumOccupiedSeats(ctx, mustDate(test), mustSlot(test), now)
	require.NoError(test, err)
	require.Equal(test, 10, occupied)

	expired, err := store.ListExpiredHolds(ctx, safari.SafariDate{}, now)
	require.NoError(test, err)
	require.Len(test, expired, 1)
	require.Equal(test, "stale-hold", expired[0].ID.String())
}

func TestStoreTransitionsWithCompareAndSwap(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	reservation := newReservation(test, "res-1", 1, 2, safari.ReservationStatusHeld, now.Add(time.Minute))
	require.NoError(test, store.CreateReservation(ctx, reservation))

	metadata, err := safari.NewMetadataJSON(`{"receipt":"r-1"}`)
	require.NoError(test, err)
	payment, err := safari.NewPaymentMeta("UPI", "txn-7", metadata)
	require.NoError(test, err)
	payment.ConfirmedAt = now

	expiredAsOf := now
	err = store.TransitionReservation(ctx, safari.StatusChange{
		ReservationID: reservation.ID,
		From:          safari.ReservationStatusHeld,
		To:            safari.ReservationStatusExpired,
		ExpiredAsOf:   &expiredAsOf,
		ChangedAt:     now,
	})
	require.ErrorIs(test, err, safari.ErrConflict)

	activeAsOf := now
	require.NoError(test, store.TransitionReservation(ctx, safari.StatusChange{
		ReservationID: reservation.ID,
		From:          safari.ReservationStatusHeld,
		To:            safari.ReservationStatusConfirmed,
		ActiveAsOf:    &activeAsOf,
		Payment:       &payment,
		ChangedAt:     now,
	}))
	err = store.TransitionReservation(ctx, safari.StatusChange{
		ReservationID: reservation.ID,
		From:          safari.ReservationStatusHeld,
		To:            safari.ReservationStatusCancelled,
		ChangedAt:     now,
	})
	require.ErrorIs(test, err, safari.ErrConflict)

	loaded, err := store.GetReservation(ctx, reservation.ID)
	require.NoError(test, err)
	require.Equal(test, safari.ReservationStatusConfirmed, loaded.Status)
	require.Equal(test, "upi", loaded.Payment.Method)
	require.Equal(test, "txn-7", loaded.Payment.Reference)
	require.JSONEq(test, `{"receipt":"r-1"}`, loaded.Payment.Metadata.String())
	require.True(test, now.Equal(loaded.Payment.ConfirmedAt))
}

func TestStoreArchivesOncePerReservation(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	reservation := newReservation(test, "res-1", 1, 2, safari.ReservationStatusExpired, now)
	record := safari.ArchivedReservation{
		ReservationID: reservation.ID,
		Token:         reservation.Token,
		Date:          reservation.Date,
		Slot:          reservation.Slot,
		Party:         reservation.Party,
		Amount:        reservation.Amount,
		Reason:        "hold timeout",
		ArchivedAt:    now,
	}

	created, err := store.ArchiveReservation(ctx, record)
	require.NoError(test, err)
	require.True(test, created)
	created, err = store.ArchiveReservation(ctx, record)
	require.NoError(test, err)
	require.False(test, created)

	archived, err := store.ListArchived(ctx, reservation.Date)
	require.NoError(test, err)
	require.Len(test, archived, 1)
	require.Equal(test, "hold timeout", archived[0].Reason)
}

func TestStoreUpdatesRunsByVersion(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	vehicleID, err := safari.NewVehicleID("vehicle-1")
	require.NoError(test, err)
	runID, err := safari.NewRunID("run-1")
	require.NoError(test, err)
	reservationID := mustReservationID(test, "res-1")

	run := safari.VehicleRun{
		ID:        runID,
		Date:      mustDate(test),
		VehicleID: vehicleID,
		RunNumber: 1,
		Capacity:  6,
		Passengers: []safari.Passenger{
			{ReservationID: reservationID, Token: 7, SeatIndex: 0, Name: "Asha"},
			{ReservationID: reservationID, Token: 7, SeatIndex: 1, Name: "Asha"},
		},
		FillStatus: safari.FillStatusWaiting,
		GateStatus: safari.GateStatusPending,
		CreatedAt:  now,
	}
	require.NoError(test, store.CreateRun(ctx, run))
	duplicate := run
	duplicate.ID, err = safari.NewRunID("run-2")
	require.NoError(test, err)
	require.ErrorIs(test, store.CreateRun(ctx, duplicate), safari.ErrConflict)

	loaded, err := store.GetRun(ctx, runID)
	require.NoError(test, err)
	require.Len(test, loaded.Passengers, 2)
	require.Equal(test, "7b", loaded.Passengers[1].SubToken().String())
	require.True(test, loaded.DriverID.IsZero())

	driverID, err := safari.NewDriverID("driver-1")
	require.NoError(test, err)
	plasticIn := 2
	gateInAt := now.Add(time.Hour)
	loaded.DriverID = driverID
	loaded.FillStatus = safari.FillStatusMoved
	loaded.GateStatus = safari.GateStatusStarted
	loaded.PlasticIn = &plasticIn
	loaded.GateInAt = &gateInAt
	require.NoError(test, store.UpdateRun(ctx, loaded))
	require.ErrorIs(test, store.UpdateRun(ctx, loaded), safari.ErrConflict)

	updated, err := store.GetRun(ctx, runID)
	require.NoError(test, err)
	require.Equal(test, loaded.Version+1, updated.Version)
	require.Equal(test, driverID, updated.DriverID)
	require.Equal(test, safari.GateStatusStarted, updated.GateStatus)
	require.Equal(test, 2, *updated.PlasticIn)
	require.True(test, gateInAt.Equal(*updated.GateInAt))
}

func TestStoreSavesRegistryAndGateLogs(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	date := mustDate(test)
	vehicleID, err := safari.NewVehicleID("vehicle-1")
	require.NoError(test, err)
	driverID, err := safari.NewDriverID("driver-1")
	require.NoError(test, err)
	runID, err := safari.NewRunID("run-1")
	require.NoError(test, err)

	vehicle := safari.Vehicle{ID: vehicleID, Number: "KA-01", Capacity: 6, Active: true}
	require.NoError(test, store.SaveVehicle(ctx, vehicle))
	vehicle.Capacity = 8
	vehicle.UnavailableDates = []safari.SafariDate{date}
	require.NoError(test, store.SaveVehicle(ctx, vehicle))
	loadedVehicle, err := store.GetVehicle(ctx, vehicleID)
	require.NoError(test, err)
	require.Equal(test, 8, loadedVehicle.Capacity)
	require.False(test, loadedVehicle.AvailableOn(date))

	require.NoError(test, store.SaveDriver(ctx, safari.Driver{ID: driverID, Name: "Ravi", Active: true}))
	drivers, err := store.ListDrivers(ctx)
	require.NoError(test, err)
	require.Len(test, drivers, 1)
	require.Empty(test, drivers[0].UnavailableDates)

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	logs := []safari.GateLog{
		{ID: "log-1", Date: date, VehicleID: vehicleID, DriverID: driverID, RunID: runID, RunNumber: 1, Token: 3, PersonsCount: 2, Action: safari.GateActionNormal, CreatedAt: now},
		{ID: "log-2", Date: date, VehicleID: vehicleID, DriverID: driverID, RunID: runID, RunNumber: 1, Token: 1, PersonsCount: 4, Action: safari.GateActionNormal, CreatedAt: now},
	}
	require.NoError(test, store.AppendGateLogs(ctx, logs))
	loadedLogs, err := store.ListGateLogs(ctx, date)
	require.NoError(test, err)
	require.Len(test, loadedLogs, 2)
	require.Equal(test, safari.Token(3), loadedLogs[0].Token)
	require.Equal(test, safari.Token(1), loadedLogs[1].Token)
}

func TestStoreRollsBackFailedTransactions(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	errAbort := errors.New("abort")

	err := store.WithTx(ctx, func(ctx context.Context, txStore safari.Store) error {
		if err := txStore.CreateReservation(ctx, newReservation(test, "res-1", 1, 2, safari.ReservationStatusHeld, now)); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(test, err, errAbort)

	reservations, err := store.ListReservations(ctx, mustDate(test))
	require.NoError(test, err)
	require.Empty(test, reservations)
}

func TestServiceEndToEndOnSQLite(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	service, err := safari.NewService(store, clock)
	require.NoError(test, err)

	party, err := safari.NewPartySize(6, 2)
	require.NoError(test, err)
	hold, err := service.CreateHold(ctx, safari.HoldRequest{Date: mustDate(test), Slot: mustSlot(test), Party: party})
	require.NoError(test, err)
	require.Equal(test, safari.Token(1), hold.Token)

	payment, err := safari.NewPaymentMeta("cash", "", safari.MetadataJSON{})
	require.NoError(test, err)
	confirmed, err := service.Confirm(ctx, hold.ID, payment)
	require.NoError(test, err)
	require.Equal(test, safari.ReservationStatusConfirmed, confirmed.Status)

	first, err := service.SaveVehicle(ctx, safari.Vehicle{Number: "KA-01", Capacity: 6, Active: true})
	require.NoError(test, err)
	second, err := service.SaveVehicle(ctx, safari.Vehicle{Number: "KA-02", Capacity: 6, Active: true})
	require.NoError(test, err)
	firstAssignment, err := service.AssignSeats(ctx, hold.ID, first.ID)
	require.NoError(test, err)
	require.Equal(test, 6, firstAssignment.SeatsAssigned)
	secondAssignment, err := service.AssignSeats(ctx, hold.ID, second.ID)
	require.NoError(test, err)
	require.Equal(test, 2, secondAssignment.SeatsAssigned)
	require.Zero(test, secondAssignment.Remaining)

	runIDs := []safari.RunID{firstAssignment.RunID, secondAssignment.RunID}
	for index, runID := range runIDs {
		driver, err := service.SaveDriver(ctx, safari.Driver{Name: []string{"Ravi", "Meena"}[index], Active: true})
		require.NoError(test, err)
		_, err = service.SetDriver(ctx, runID, driver.ID)
		require.NoError(test, err)
		_, err = service.MoveToGate(ctx, runID, true)
		require.NoError(test, err)
		_, err = service.GateStart(ctx, runID, 3)
		require.NoError(test, err)
	}
	for _, runID := range runIDs {
		completion, err := service.GateComplete(ctx, runID, 3)
		require.NoError(test, err)
		require.True(test, completion.PlasticMatch)
	}

	completed, err := service.GetReservation(ctx, hold.ID)
	require.NoError(test, err)
	require.Equal(test, safari.ReservationStatusCompleted, completed.Status)

	logs, err := service.ListGateLogs(ctx, mustDate(test))
	require.NoError(test, err)
	require.Len(test, logs, 2)
	require.Empty(test, service.PendingReconcileDates())
}

func newTestStore(test *testing.T) *Store {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(test.TempDir()+"/safari.db"), &gorm.Config{})
	require.NoError(test, err)
	sqlDB, err := db.DB()
	require.NoError(test, err)
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(test, AutoMigrate(db))
	return New(db)
}

func newReservation(test *testing.T, id string, token int64, seats int, status safari.ReservationStatus, holdExpiresAt time.Time) safari.Reservation {
	test.Helper()
	party, err := safari.NewPartySize(seats, 0)
	require.NoError(test, err)
	parsedToken, err := safari.NewToken(token)
	require.NoError(test, err)
	return safari.Reservation{
		ID:            mustReservationID(test, id),
		Token:         parsedToken,
		Date:          mustDate(test),
		Slot:          mustSlot(test),
		Party:         party,
		Amount:        safari.DefaultConfig().Quote(party),
		HoldExpiresAt: holdExpiresAt,
		Status:        status,
		CreatedAt:     holdExpiresAt.Add(-15 * time.Minute),
	}
}

func mustReservationID(test *testing.T, raw string) safari.ReservationID {
	test.Helper()
	id, err := safari.NewReservationID(raw)
	require.NoError(test, err)
	return id
}

func mustDate(test *testing.T) safari.SafariDate {
	test.Helper()
	date, err := safari.NewSafariDate(testDateValue)
	require.NoError(test, err)
	return date
}

func mustSlot(test *testing.T) safari.TimeSlot {
	test.Helper()
	slot, err := safari.NewTimeSlot(testSlotValue)
	require.NoError(test, err)
	return slot
}
