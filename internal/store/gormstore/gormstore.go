package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON       = "{}"
	errorOperationStore       = "store"
	errorSubjectReservation   = "reservation"
	errorSubjectArchive       = "archive"
	errorSubjectVehicle       = "vehicle"
	errorSubjectDriver        = "driver"
	errorSubjectRun           = "run"
	errorSubjectGateLog       = "gate_log"
	errorSubjectCapacity      = "capacity"
	errorSubjectTransaction   = "transaction"
	errorCodeCreate           = "create"
	errorCodeDuplicate        = "duplicate"
	errorCodeGet              = "get"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeMaxToken         = "max_token"
	errorCodeSave             = "save"
	errorCodeSumOccupied      = "sum_occupied"
	errorCodeUpdate           = "update"
	errorCodeUpdateStatus     = "update_status"
	errorCodeStale            = "stale"
	errorCodeCommit           = "commit"
	occupiedSeatsSQLSelection = "coalesce(sum(adults + children),0) as total"
)

// Option configures a Store.
type Option func(*Store)

// WithSerializableTransactions runs every WithTx at serializable isolation.
func WithSerializableTransactions() Option {
	return func(store *Store) {
		store.txOptions = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
}

// Store implements safari.Store using GORM.
type Store struct {
	db        *gorm.DB
	txOptions *sql.TxOptions
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// AutoMigrate creates or updates every table the store uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore safari.Store) error) error {
	transactionFn := func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, txOptions: store.txOptions})
	}
	var err error
	if store.txOptions != nil {
		err = store.db.WithContext(ctx).Transaction(transactionFn, store.txOptions)
	} else {
		err = store.db.WithContext(ctx).Transaction(transactionFn)
	}
	if err != nil && isConflict(err) && !errors.Is(err, safari.ErrConflict) {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, fmt.Errorf("%w: %v", safari.ErrConflict, err))
	}
	return err
}

func (store *Store) CreateReservation(ctx context.Context, reservation safari.Reservation) error {
	model := reservationModel(reservation)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isConflict(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, fmt.Errorf("%w: token %d on %s", safari.ErrConflict, reservation.Token, reservation.Date))
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetReservation(ctx context.Context, reservationID safari.ReservationID) (safari.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_id = ?", reservationID.String()).
		Take(&model).Error
	if err != nil {
		return safari.Reservation{}, wrapLookupError(errorSubjectReservation, fmt.Sprintf("reservation %s", reservationID), err)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return safari.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) GetReservationByToken(ctx context.Context, date safari.SafariDate, token safari.Token) (safari.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).
		Where("safari_date = ? AND token = ?", date.String(), int64(token)).
		Take(&model).Error
	if err != nil {
		return safari.Reservation{}, wrapLookupError(errorSubjectReservation, fmt.Sprintf("token %d on %s", token, date), err)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return safari.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) ListReservations(ctx context.Context, date safari.SafariDate) ([]safari.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("safari_date = ?", date.String()).
		Order("token ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) ListExpiredHolds(ctx context.Context, date safari.SafariDate, now time.Time) ([]safari.Reservation, error) {
	query := store.db.WithContext(ctx).
		Where("status = ? AND hold_expires_at <= ?", safari.ReservationStatusHeld.String(), now.UTC())
	if !date.IsZero() {
		query = query.Where("safari_date = ?", date.String())
	}
	var rows []Reservation
	if err := query.Order("safari_date ASC, token ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) MaxToken(ctx context.Context, date safari.SafariDate) (safari.Token, error) {
	var result sqlSum
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Select("coalesce(max(token),0) as total").
		Where("safari_date = ?", date.String()).
		Scan(&result).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeMaxToken, err)
	}
	return safari.Token(result.Total), nil
}

func (store *Store) SumOccupiedSeats(ctx context.Context, date safari.SafariDate, slot safari.TimeSlot, now time.Time) (int, error) {
	var result sqlSum
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Select(occupiedSeatsSQLSelection).
		Where("safari_date = ? AND slot = ?", date.String(), slot.String()).
		Where(
			"((status IN ?) OR (status = ? AND hold_expires_at > ?))",
			[]string{safari.ReservationStatusConfirmed.String(), safari.ReservationStatusCompleted.String()},
			safari.ReservationStatusHeld.String(),
			now.UTC(),
		).
		Scan(&result).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectCapacity, errorCodeSumOccupied, err)
	}
	return int(result.Total), nil
}

func (store *Store) TransitionReservation(ctx context.Context, change safari.StatusChange) error {
	changedAt := change.ChangedAt.UTC()
	if change.ChangedAt.IsZero() {
		changedAt = time.Now().UTC()
	}
	updates := map[string]any{
		"status":     change.To.String(),
		"updated_at": changedAt,
	}
	if change.Payment != nil {
		confirmedAt := change.Payment.ConfirmedAt.UTC()
		updates["payment_method"] = change.Payment.Method
		updates["payment_reference"] = change.Payment.Reference
		updates["payment_metadata"] = datatypesJSON(change.Payment.Metadata.String())
		updates["confirmed_at"] = &confirmedAt
	}
	query := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND status = ?", change.ReservationID.String(), change.From.String())
	if change.ExpiredAsOf != nil {
		query = query.Where("hold_expires_at <= ?", change.ExpiredAsOf.UTC())
	}
	if change.ActiveAsOf != nil {
		query = query.Where("hold_expires_at > ?", change.ActiveAsOf.UTC())
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeStale, fmt.Errorf("%w: reservation %s is no longer %s", safari.ErrConflict, change.ReservationID, change.From))
	}
	return nil
}

func (store *Store) ArchiveReservation(ctx context.Context, record safari.ArchivedReservation) (bool, error) {
	model := archivedReservationModel(record)
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectArchive, errorCodeCreate, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) ListArchived(ctx context.Context, date safari.SafariDate) ([]safari.ArchivedReservation, error) {
	var rows []ArchivedReservation
	err := store.db.WithContext(ctx).
		Where("safari_date = ?", date.String()).
		Order("archived_at ASC, token ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectArchive, errorCodeList, err)
	}
	records := make([]safari.ArchivedReservation, 0, len(rows))
	for _, row := range rows {
		record, err := mapArchivedReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectArchive, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (store *Store) SaveVehicle(ctx context.Context, vehicle safari.Vehicle) error {
	model := vehicleModel(vehicle)
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vehicle_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"number", "owner", "capacity", "active", "unavailable_dates", "updated_at"}),
		}).
		Create(&model).Error
	if isConflict(err) {
		return wrapStoreError(errorSubjectVehicle, errorCodeDuplicate, fmt.Errorf("%w: vehicle number %s", safari.ErrConflict, vehicle.Number))
	}
	if err != nil {
		return wrapStoreError(errorSubjectVehicle, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetVehicle(ctx context.Context, vehicleID safari.VehicleID) (safari.Vehicle, error) {
	var model Vehicle
	err := store.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID.String()).Take(&model).Error
	if err != nil {
		return safari.Vehicle{}, wrapLookupError(errorSubjectVehicle, fmt.Sprintf("vehicle %s", vehicleID), err)
	}
	vehicle, err := mapVehicle(model)
	if err != nil {
		return safari.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeInvalid, err)
	}
	return vehicle, nil
}

func (store *Store) ListVehicles(ctx context.Context) ([]safari.Vehicle, error) {
	var rows []Vehicle
	if err := store.db.WithContext(ctx).Order("number ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectVehicle, errorCodeList, err)
	}
	vehicles := make([]safari.Vehicle, 0, len(rows))
	for _, row := range rows {
		vehicle, err := mapVehicle(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectVehicle, errorCodeInvalid, err)
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles, nil
}

func (store *Store) SaveDriver(ctx context.Context, driver safari.Driver) error {
	model := driverModel(driver)
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "driver_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "phone", "active", "unavailable_dates", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectDriver, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetDriver(ctx context.Context, driverID safari.DriverID) (safari.Driver, error) {
	var model Driver
	err := store.db.WithContext(ctx).Where("driver_id = ?", driverID.String()).Take(&model).Error
	if err != nil {
		return safari.Driver{}, wrapLookupError(errorSubjectDriver, fmt.Sprintf("driver %s", driverID), err)
	}
	driver, err := mapDriver(model)
	if err != nil {
		return safari.Driver{}, wrapStoreError(errorSubjectDriver, errorCodeInvalid, err)
	}
	return driver, nil
}

func (store *Store) ListDrivers(ctx context.Context) ([]safari.Driver, error) {
	var rows []Driver
	if err := store.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectDriver, errorCodeList, err)
	}
	drivers := make([]safari.Driver, 0, len(rows))
	for _, row := range rows {
		driver, err := mapDriver(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectDriver, errorCodeInvalid, err)
		}
		drivers = append(drivers, driver)
	}
	return drivers, nil
}

func (store *Store) CreateRun(ctx context.Context, run safari.VehicleRun) error {
	model := vehicleRunModel(run)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isConflict(err) {
		return wrapStoreError(errorSubjectRun, errorCodeDuplicate, fmt.Errorf("%w: vehicle %s run %d on %s", safari.ErrConflict, run.VehicleID, run.RunNumber, run.Date))
	}
	if err != nil {
		return wrapStoreError(errorSubjectRun, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetRun(ctx context.Context, runID safari.RunID) (safari.VehicleRun, error) {
	var model VehicleRun
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("run_id = ?", runID.String()).
		Take(&model).Error
	if err != nil {
		return safari.VehicleRun{}, wrapLookupError(errorSubjectRun, fmt.Sprintf("run %s", runID), err)
	}
	run, err := mapVehicleRun(model)
	if err != nil {
		return safari.VehicleRun{}, wrapStoreError(errorSubjectRun, errorCodeInvalid, err)
	}
	return run, nil
}

func (store *Store) ListRuns(ctx context.Context, date safari.SafariDate) ([]safari.VehicleRun, error) {
	var rows []VehicleRun
	err := store.db.WithContext(ctx).
		Where("safari_date = ?", date.String()).
		Order("created_at ASC, run_number ASC, run_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRun, errorCodeList, err)
	}
	runs := make([]safari.VehicleRun, 0, len(rows))
	for _, row := range rows {
		run, err := mapVehicleRun(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRun, errorCodeInvalid, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (store *Store) UpdateRun(ctx context.Context, run safari.VehicleRun) error {
	model := vehicleRunModel(run)
	result := store.db.WithContext(ctx).
		Model(&VehicleRun{}).
		Where("run_id = ? AND version = ?", run.ID.String(), run.Version).
		Updates(map[string]any{
			"seats_filled": model.SeatsFilled,
			"passengers":   model.Passengers,
			"driver_id":    model.DriverID,
			"fill_status":  model.FillStatus,
			"gate_status":  model.GateStatus,
			"plastic_in":   model.PlasticIn,
			"plastic_out":  model.PlasticOut,
			"gate_in_at":   model.GateInAt,
			"gate_out_at":  model.GateOutAt,
			"version":      run.Version + 1,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRun, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRun, errorCodeStale, fmt.Errorf("%w: run %s changed since version %d", safari.ErrConflict, run.ID, run.Version))
	}
	return nil
}

func (store *Store) AppendGateLogs(ctx context.Context, logs []safari.GateLog) error {
	if len(logs) == 0 {
		return nil
	}
	rows := make([]GateLog, 0, len(logs))
	for position, entry := range logs {
		rows = append(rows, gateLogModel(entry, position))
	}
	if err := store.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return wrapStoreError(errorSubjectGateLog, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) ListGateLogs(ctx context.Context, date safari.SafariDate) ([]safari.GateLog, error) {
	var rows []GateLog
	err := store.db.WithContext(ctx).
		Where("safari_date = ?", date.String()).
		Order("created_at ASC, run_id ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectGateLog, errorCodeList, err)
	}
	logs := make([]safari.GateLog, 0, len(rows))
	for _, row := range rows {
		entry, err := mapGateLog(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectGateLog, errorCodeInvalid, err)
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return safari.WrapError(errorOperationStore, subject, code, err)
}

func wrapLookupError(subject string, description string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(subject, errorCodeGet, fmt.Errorf("%w: %s", safari.ErrNotFound, description))
	}
	return wrapStoreError(subject, errorCodeGet, err)
}

type sqlSum struct {
	Total int64
}
