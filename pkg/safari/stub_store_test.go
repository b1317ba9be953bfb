package safari

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

const (
	testDateValue        = "2025-01-01"
	testSlotValue        = "10:00 - 12:00"
	otherSlotValue       = "12:00 - 14:00"
	errorMismatchMessage = "expected %v, got %v"
)

var errStoreFailure = errors.New("store error")

// memoryStore is an in-memory Store whose transactions roll back on error.
type memoryStore struct {
	txMutex   sync.Mutex
	dataMutex sync.Mutex

	reservations map[ReservationID]Reservation
	archived     map[ReservationID]ArchivedReservation
	archiveOrder []ReservationID
	vehicles     map[VehicleID]Vehicle
	drivers      map[DriverID]Driver
	runs         map[RunID]VehicleRun
	runOrder     []RunID
	gateLogs     []GateLog

	createConflicts     int
	reservationLookupErr error
}

type memorySnapshot struct {
	reservations map[ReservationID]Reservation
	archived     map[ReservationID]ArchivedReservation
	archiveOrder []ReservationID
	vehicles     map[VehicleID]Vehicle
	drivers      map[DriverID]Driver
	runs         map[RunID]VehicleRun
	runOrder     []RunID
	gateLogs     []GateLog
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		reservations: make(map[ReservationID]Reservation),
		archived:     make(map[ReservationID]ArchivedReservation),
		vehicles:     make(map[VehicleID]Vehicle),
		drivers:      make(map[DriverID]Driver),
		runs:         make(map[RunID]VehicleRun),
	}
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMutex.Lock()
	defer store.txMutex.Unlock()
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		return err
	}
	return nil
}

func (store *memoryStore) snapshot() memorySnapshot {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	snapshot := memorySnapshot{
		reservations: make(map[ReservationID]Reservation, len(store.reservations)),
		archived:     make(map[ReservationID]ArchivedReservation, len(store.archived)),
		archiveOrder: append([]ReservationID(nil), store.archiveOrder...),
		vehicles:     make(map[VehicleID]Vehicle, len(store.vehicles)),
		drivers:      make(map[DriverID]Driver, len(store.drivers)),
		runs:         make(map[RunID]VehicleRun, len(store.runs)),
		runOrder:     append([]RunID(nil), store.runOrder...),
		gateLogs:     append([]GateLog(nil), store.gateLogs...),
	}
	for key, value := range store.reservations {
		snapshot.reservations[key] = value
	}
	for key, value := range store.archived {
		snapshot.archived[key] = value
	}
	for key, value := range store.vehicles {
		snapshot.vehicles[key] = value
	}
	for key, value := range store.drivers {
		snapshot.drivers[key] = value
	}
	for key, value := range store.runs {
		snapshot.runs[key] = cloneRun(value)
	}
	return snapshot
}

func (store *memoryStore) restore(snapshot memorySnapshot) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.reservations = snapshot.reservations
	store.archived = snapshot.archived
	store.archiveOrder = snapshot.archiveOrder
	store.vehicles = snapshot.vehicles
	store.drivers = snapshot.drivers
	store.runs = snapshot.runs
	store.runOrder = snapshot.runOrder
	store.gateLogs = snapshot.gateLogs
}

func cloneRun(run VehicleRun) VehicleRun {
	run.Passengers = append([]Passenger(nil), run.Passengers...)
	return run
}

func (store *memoryStore) CreateReservation(ctx context.Context, reservation Reservation) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if store.createConflicts > 0 {
		store.createConflicts--
		return fmt.Errorf("%w: injected", ErrConflict)
	}
	for _, existing := range store.reservations {
		if existing.Date == reservation.Date && existing.Token == reservation.Token {
			return fmt.Errorf("%w: duplicate token %d", ErrConflict, reservation.Token)
		}
	}
	store.reservations[reservation.ID] = reservation
	return nil
}

func (store *memoryStore) GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if store.reservationLookupErr != nil {
		return Reservation{}, store.reservationLookupErr
	}
	reservation, ok := store.reservations[reservationID]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
	}
	return reservation, nil
}

func (store *memoryStore) GetReservationByToken(ctx context.Context, date SafariDate, token Token) (Reservation, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, reservation := range store.reservations {
		if reservation.Date == date && reservation.Token == token {
			return reservation, nil
		}
	}
	return Reservation{}, fmt.Errorf("%w: token %d on %s", ErrNotFound, token, date)
}

func (store *memoryStore) ListReservations(ctx context.Context, date SafariDate) ([]Reservation, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var reservations []Reservation
	for _, reservation := range store.reservations {
		if reservation.Date == date {
			reservations = append(reservations, reservation)
		}
	}
	sort.Slice(reservations, func(left, right int) bool {
		return reservations[left].Token < reservations[right].Token
	})
	return reservations, nil
}

func (store *memoryStore) ListExpiredHolds(ctx context.Context, date SafariDate, now time.Time) ([]Reservation, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var holds []Reservation
	for _, reservation := range store.reservations {
		if !date.IsZero() && reservation.Date != date {
			continue
		}
		if reservation.HoldExpired(now) {
			holds = append(holds, reservation)
		}
	}
	sort.Slice(holds, func(left, right int) bool {
		return holds[left].Token < holds[right].Token
	})
	return holds, nil
}

func (store *memoryStore) MaxToken(ctx context.Context, date SafariDate) (Token, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var maxToken Token
	for _, reservation := range store.reservations {
		if reservation.Date == date && reservation.Token > maxToken {
			maxToken = reservation.Token
		}
	}
	return maxToken, nil
}

func (store *memoryStore) SumOccupiedSeats(ctx context.Context, date SafariDate, slot TimeSlot, now time.Time) (int, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	total := 0
	for _, reservation := range store.reservations {
		if reservation.Date == date && reservation.Slot == slot && reservation.OccupiesSeatsAt(now) {
			total += reservation.Party.Total()
		}
	}
	return total, nil
}

func (store *memoryStore) TransitionReservation(ctx context.Context, change StatusChange) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	reservation, ok := store.reservations[change.ReservationID]
	if !ok {
		return fmt.Errorf("%w: reservation %s", ErrNotFound, change.ReservationID)
	}
	if reservation.Status != change.From {
		return fmt.Errorf("%w: reservation %s is %s", ErrConflict, reservation.ID, reservation.Status)
	}
	if change.ExpiredAsOf != nil && reservation.HoldExpiresAt.After(*change.ExpiredAsOf) {
		return fmt.Errorf("%w: reservation %s hold still active", ErrConflict, reservation.ID)
	}
	if change.ActiveAsOf != nil && !reservation.HoldExpiresAt.After(*change.ActiveAsOf) {
		return fmt.Errorf("%w: reservation %s hold lapsed", ErrConflict, reservation.ID)
	}
	reservation.Status = change.To
	if change.Payment != nil {
		reservation.Payment = *change.Payment
	}
	store.reservations[reservation.ID] = reservation
	return nil
}

func (store *memoryStore) ArchiveReservation(ctx context.Context, record ArchivedReservation) (bool, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if _, exists := store.archived[record.ReservationID]; exists {
		return false, nil
	}
	store.archived[record.ReservationID] = record
	store.archiveOrder = append(store.archiveOrder, record.ReservationID)
	return true, nil
}

func (store *memoryStore) ListArchived(ctx context.Context, date SafariDate) ([]ArchivedReservation, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var records []ArchivedReservation
	for _, reservationID := range store.archiveOrder {
		record := store.archived[reservationID]
		if record.Date == date {
			records = append(records, record)
		}
	}
	return records, nil
}

func (store *memoryStore) SaveVehicle(ctx context.Context, vehicle Vehicle) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.vehicles[vehicle.ID] = vehicle
	return nil
}

func (store *memoryStore) GetVehicle(ctx context.Context, vehicleID VehicleID) (Vehicle, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	vehicle, ok := store.vehicles[vehicleID]
	if !ok {
		return Vehicle{}, fmt.Errorf("%w: vehicle %s", ErrNotFound, vehicleID)
	}
	return vehicle, nil
}

func (store *memoryStore) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	vehicles := make([]Vehicle, 0, len(store.vehicles))
	for _, vehicle := range store.vehicles {
		vehicles = append(vehicles, vehicle)
	}
	sort.Slice(vehicles, func(left, right int) bool {
		return vehicles[left].Number < vehicles[right].Number
	})
	return vehicles, nil
}

func (store *memoryStore) SaveDriver(ctx context.Context, driver Driver) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.drivers[driver.ID] = driver
	return nil
}

func (store *memoryStore) GetDriver(ctx context.Context, driverID DriverID) (Driver, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	driver, ok := store.drivers[driverID]
	if !ok {
		return Driver{}, fmt.Errorf("%w: driver %s", ErrNotFound, driverID)
	}
	return driver, nil
}

func (store *memoryStore) ListDrivers(ctx context.Context) ([]Driver, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	drivers := make([]Driver, 0, len(store.drivers))
	for _, driver := range store.drivers {
		drivers = append(drivers, driver)
	}
	sort.Slice(drivers, func(left, right int) bool {
		return drivers[left].Name < drivers[right].Name
	})
	return drivers, nil
}

func (store *memoryStore) CreateRun(ctx context.Context, run VehicleRun) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if _, exists := store.runs[run.ID]; exists {
		return fmt.Errorf("%w: run %s exists", ErrConflict, run.ID)
	}
	store.runs[run.ID] = cloneRun(run)
	store.runOrder = append(store.runOrder, run.ID)
	return nil
}

func (store *memoryStore) GetRun(ctx context.Context, runID RunID) (VehicleRun, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	run, ok := store.runs[runID]
	if !ok {
		return VehicleRun{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return cloneRun(run), nil
}

func (store *memoryStore) ListRuns(ctx context.Context, date SafariDate) ([]VehicleRun, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var runs []VehicleRun
	for _, runID := range store.runOrder {
		run := store.runs[runID]
		if run.Date == date {
			runs = append(runs, cloneRun(run))
		}
	}
	return runs, nil
}

func (store *memoryStore) UpdateRun(ctx context.Context, run VehicleRun) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	stored, ok := store.runs[run.ID]
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, run.ID)
	}
	if stored.Version != run.Version {
		return fmt.Errorf("%w: run %s version %d, stored %d", ErrConflict, run.ID, run.Version, stored.Version)
	}
	updated := cloneRun(run)
	updated.Version++
	store.runs[run.ID] = updated
	return nil
}

func (store *memoryStore) AppendGateLogs(ctx context.Context, logs []GateLog) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.gateLogs = append(store.gateLogs, logs...)
	return nil
}

func (store *memoryStore) ListGateLogs(ctx context.Context, date SafariDate) ([]GateLog, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var logs []GateLog
	for _, entry := range store.gateLogs {
		if entry.Date == date {
			logs = append(logs, entry)
		}
	}
	return logs, nil
}

func (store *memoryStore) setReservationLookupErr(err error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.reservationLookupErr = err
}

func (store *memoryStore) mustReservation(test *testing.T, reservationID ReservationID) Reservation {
	test.Helper()
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	reservation, ok := store.reservations[reservationID]
	if !ok {
		test.Fatalf("reservation %s not stored", reservationID)
	}
	return reservation
}

func (store *memoryStore) mustRun(test *testing.T, runID RunID) VehicleRun {
	test.Helper()
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	run, ok := store.runs[runID]
	if !ok {
		test.Fatalf("run %s not stored", runID)
	}
	return cloneRun(run)
}

func (store *memoryStore) archiveCount() int {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	return len(store.archived)
}

// testClock is a settable clock shared by a service and its test.
type testClock struct {
	mutex   sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)}
}

func (clock *testClock) now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *testClock) advance(duration time.Duration) time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
	return clock.current
}

type recordingNotifier struct {
	mutex   sync.Mutex
	records []ArchivedReservation
}

func (notifier *recordingNotifier) NotifyArchived(_ context.Context, record ArchivedReservation) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.records = append(notifier.records, record)
}

func (notifier *recordingNotifier) count() int {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return len(notifier.records)
}

func sequentialIDs() func() string {
	var mutex sync.Mutex
	next := 0
	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		next++
		return fmt.Sprintf("id-%d", next)
	}
}

func mustNewService(test *testing.T, store Store, clock *testClock, options ...ServiceOption) *Service {
	test.Helper()
	allOptions := append([]ServiceOption{WithIDGenerator(sequentialIDs())}, options...)
	service, err := NewService(store, clock.now, allOptions...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustDate(test *testing.T, raw string) SafariDate {
	test.Helper()
	date, err := NewSafariDate(raw)
	if err != nil {
		test.Fatalf("date %q: %v", raw, err)
	}
	return date
}

func mustSlot(test *testing.T, raw string) TimeSlot {
	test.Helper()
	slot, err := NewTimeSlot(raw)
	if err != nil {
		test.Fatalf("slot %q: %v", raw, err)
	}
	return slot
}

func mustParty(test *testing.T, adults int, children int) PartySize {
	test.Helper()
	party, err := NewPartySize(adults, children)
	if err != nil {
		test.Fatalf("party %d/%d: %v", adults, children, err)
	}
	return party
}

func mustHold(test *testing.T, service *Service, seats int) Reservation {
	test.Helper()
	reservation, err := service.CreateHold(context.Background(), HoldRequest{
		Date:    mustDate(test, testDateValue),
		Slot:    mustSlot(test, testSlotValue),
		Party:   mustParty(test, seats, 0),
		Visitor: Visitor{Name: "Visitor", Phone: "9876543210"},
	})
	if err != nil {
		test.Fatalf("create hold of %d: %v", seats, err)
	}
	return reservation
}

func mustConfirmedReservation(test *testing.T, service *Service, seats int) Reservation {
	test.Helper()
	reservation := mustHold(test, service, seats)
	confirmed, err := service.Confirm(context.Background(), reservation.ID, PaymentMeta{Method: "cash"})
	if err != nil {
		test.Fatalf("confirm %s: %v", reservation.ID, err)
	}
	return confirmed
}

func mustVehicle(test *testing.T, service *Service, number string, capacity int) Vehicle {
	test.Helper()
	vehicle, err := service.SaveVehicle(context.Background(), Vehicle{Number: number, Capacity: capacity, Active: true})
	if err != nil {
		test.Fatalf("save vehicle %s: %v", number, err)
	}
	return vehicle
}

func mustDriver(test *testing.T, service *Service, name string) Driver {
	test.Helper()
	driver, err := service.SaveDriver(context.Background(), Driver{Name: name, Active: true})
	if err != nil {
		test.Fatalf("save driver %s: %v", name, err)
	}
	return driver
}

func mustAssign(test *testing.T, service *Service, reservation Reservation, vehicle Vehicle) AssignmentResult {
	test.Helper()
	result, err := service.AssignSeats(context.Background(), reservation.ID, vehicle.ID)
	if err != nil {
		test.Fatalf("assign %s to %s: %v", reservation.ID, vehicle.Number, err)
	}
	return result
}

// mustDepartedRun fills vehicle with a confirmed reservation and moves it to the gate.
func mustDepartedRun(test *testing.T, service *Service, vehicle Vehicle, seats int) (Reservation, VehicleRun) {
	test.Helper()
	reservation := mustConfirmedReservation(test, service, seats)
	result := mustAssign(test, service, reservation, vehicle)
	driver := mustDriver(test, service, "Driver "+vehicle.Number)
	if _, err := service.SetDriver(context.Background(), result.RunID, driver.ID); err != nil {
		test.Fatalf("set driver: %v", err)
	}
	run, err := service.MoveToGate(context.Background(), result.RunID, true)
	if err != nil {
		test.Fatalf("move to gate: %v", err)
	}
	return reservation, run
}
