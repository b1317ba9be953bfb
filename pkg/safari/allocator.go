package safari

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// AssignSeats places as many unassigned seats of a confirmed reservation as
// fit into the vehicle's open run. Remaining reports seats still waiting for
// another vehicle.
func (service *Service) AssignSeats(ctx context.Context, reservationID ReservationID, vehicleID VehicleID) (AssignmentResult, error) {
	var result AssignmentResult
	var reservation Reservation
	var archived []ArchivedReservation
	staleHold := false
	current, operationError := service.store.GetReservation(ctx, reservationID)
	if operationError == nil {
		reservation = current
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			result = AssignmentResult{}
			archived = nil
			staleHold = false
			loaded, err := transactionStore.GetReservation(ctx, reservationID)
			if err != nil {
				return err
			}
			reservation = loaded
			now := service.nowFn()
			if loaded.HoldExpired(now) {
				_, archived, err = service.expireReservations(ctx, transactionStore, []Reservation{loaded}, now, archiveReasonHoldTimeout)
				if err != nil {
					return err
				}
				staleHold = true
				return nil
			}
			if loaded.Status == ReservationStatusExpired || loaded.Status == ReservationStatusCancelled {
				return fmt.Errorf("%w: reservation %s token %d on %s is %s", ErrAlreadyExpired, loaded.ID, loaded.Token, loaded.Date, loaded.Status)
			}
			if loaded.Status != ReservationStatusConfirmed {
				return fmt.Errorf("%w: reservation %s token %d on %s is %s", ErrNotConfirmed, loaded.ID, loaded.Token, loaded.Date, loaded.Status)
			}
			vehicle, err := transactionStore.GetVehicle(ctx, vehicleID)
			if err != nil {
				return err
			}
			if !vehicle.AvailableOn(loaded.Date) {
				return fmt.Errorf("%w: vehicle %s is not available on %s", ErrUnavailable, vehicle.Number, loaded.Date)
			}
			runs, err := transactionStore.ListRuns(ctx, loaded.Date)
			if err != nil {
				return err
			}
			alreadyAssigned := assignedSeats(runs, loaded.ID)
			remainingToAssign := loaded.Party.Total() - alreadyAssigned
			if remainingToAssign <= 0 {
				return fmt.Errorf("%w: token %d on %s has all %d seats assigned", ErrFullyAssigned, loaded.Token, loaded.Date, loaded.Party.Total())
			}
			target, isNew, err := service.openRunFor(vehicle, loaded.Date, runs, now)
			if err != nil {
				return err
			}
			availableInRun := target.SeatsAvailable()
			if availableInRun == 0 {
				return fmt.Errorf("%w: vehicle %s run %d on %s has %d of %d seats filled", ErrVehicleFull, vehicle.Number, target.RunNumber, target.Date, target.SeatsFilled(), target.Capacity)
			}
			seatsToAssign := min(availableInRun, remainingToAssign)
			for _, seatIndex := range freeSeatIndices(runs, loaded.ID, seatsToAssign) {
				target.Passengers = append(target.Passengers, Passenger{
					ReservationID: loaded.ID,
					Token:         loaded.Token,
					SeatIndex:     seatIndex,
					Name:          loaded.Visitor.Name,
					Contact:       loaded.Visitor.Phone,
				})
			}
			target, err = target.withFillStatusFromSeats()
			if err != nil {
				return err
			}
			if isNew {
				err = transactionStore.CreateRun(ctx, target)
			} else {
				err = transactionStore.UpdateRun(ctx, target)
			}
			if err != nil {
				return err
			}
			result = AssignmentResult{
				RunID:         target.ID,
				SeatsAssigned: seatsToAssign,
				Remaining:     remainingToAssign - seatsToAssign,
			}
			return nil
		})
	}
	if operationError == nil {
		service.notifyArchived(ctx, archived)
		if staleHold {
			operationError = fmt.Errorf("%w: reservation %s token %d on %s", ErrAlreadyExpired, reservation.ID, reservation.Token, reservation.Date)
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationAssignSeats,
		ReservationID: reservationID,
		Token:         reservation.Token,
		Date:          reservation.Date,
		Slot:          reservation.Slot,
		RunID:         result.RunID,
		Seats:         result.SeatsAssigned,
		Error:         operationError,
	})
	if operationError != nil {
		return AssignmentResult{}, operationError
	}
	return result, nil
}

// openRunFor returns the vehicle's run that still accepts seats, or a new one.
func (service *Service) openRunFor(vehicle Vehicle, date SafariDate, runs []VehicleRun, now time.Time) (VehicleRun, bool, error) {
	lastRunNumber := 0
	for _, run := range runs {
		if run.VehicleID != vehicle.ID {
			continue
		}
		if run.LocksResources() {
			return VehicleRun{}, false, fmt.Errorf("%w: vehicle %s run %d on %s is %s/%s", ErrRunLocked, vehicle.Number, run.RunNumber, date, run.FillStatus, run.GateStatus)
		}
		if run.IsOpen() {
			return run, false, nil
		}
		lastRunNumber = max(lastRunNumber, run.RunNumber)
	}
	runID, err := NewRunID(service.newID())
	if err != nil {
		return VehicleRun{}, false, err
	}
	capacity := vehicle.Capacity
	if capacity < 1 {
		capacity = service.config.DefaultVehicleCapacity
	}
	return VehicleRun{
		ID:         runID,
		Date:       date,
		VehicleID:  vehicle.ID,
		RunNumber:  lastRunNumber + 1,
		Capacity:   capacity,
		FillStatus: FillStatusWaiting,
		GateStatus: GateStatusPending,
		CreatedAt:  now,
	}, true, nil
}

// freeSeatIndices picks the lowest seat indices the reservation does not use
// on any run of the date.
func freeSeatIndices(runs []VehicleRun, reservationID ReservationID, count int) []int {
	used := make(map[int]struct{})
	for _, run := range runs {
		for _, passenger := range run.Passengers {
			if passenger.ReservationID == reservationID {
				used[passenger.SeatIndex] = struct{}{}
			}
		}
	}
	indices := make([]int, 0, count)
	for candidate := 0; len(indices) < count; candidate++ {
		if _, taken := used[candidate]; taken {
			continue
		}
		indices = append(indices, candidate)
	}
	return indices
}

// UnassignReservation removes every seat of token from a run that has not left.
func (service *Service) UnassignReservation(ctx context.Context, runID RunID, token Token) (VehicleRun, error) {
	var updated VehicleRun
	removed := 0
	current, operationError := service.store.GetRun(ctx, runID)
	if operationError == nil {
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			removed = 0
			run, err := transactionStore.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			if !run.IsOpen() {
				return fmt.Errorf("%w: run %s is %s", ErrRunLocked, run.ID, run.FillStatus)
			}
			kept := make([]Passenger, 0, len(run.Passengers))
			for _, passenger := range run.Passengers {
				if passenger.Token == token {
					removed++
					continue
				}
				kept = append(kept, passenger)
			}
			if removed == 0 {
				return fmt.Errorf("%w: token %d has no seats on run %s", ErrNotFound, token, run.ID)
			}
			run.Passengers = kept
			run, err = run.withFillStatusFromSeats()
			if err != nil {
				return err
			}
			if err := transactionStore.UpdateRun(ctx, run); err != nil {
				return err
			}
			run.Version++
			updated = run
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationUnassign,
		Token:     token,
		Date:      current.Date,
		RunID:     runID,
		Seats:     removed,
		Error:     operationError,
	})
	if operationError != nil {
		return VehicleRun{}, operationError
	}
	return updated, nil
}

// SetDriver assigns a driver to a run that has not left.
func (service *Service) SetDriver(ctx context.Context, runID RunID, driverID DriverID) (VehicleRun, error) {
	var updated VehicleRun
	current, operationError := service.store.GetRun(ctx, runID)
	if operationError == nil {
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			run, err := transactionStore.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			if !run.IsOpen() {
				return fmt.Errorf("%w: run %s is %s", ErrRunLocked, run.ID, run.FillStatus)
			}
			driver, err := transactionStore.GetDriver(ctx, driverID)
			if err != nil {
				return err
			}
			if !driver.AvailableOn(run.Date) {
				return fmt.Errorf("%w: driver %s is not available on %s", ErrUnavailable, driver.Name, run.Date)
			}
			runs, err := transactionStore.ListRuns(ctx, run.Date)
			if err != nil {
				return err
			}
			if busy, ok := driverBusyRun(runs, driverID, run.ID); ok {
				return fmt.Errorf("%w: driver %s is on run %s on %s", ErrRunLocked, driver.Name, busy.ID, run.Date)
			}
			run.DriverID = driverID
			if err := transactionStore.UpdateRun(ctx, run); err != nil {
				return err
			}
			run.Version++
			updated = run
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationSetDriver,
		Date:      current.Date,
		RunID:     runID,
		Error:     operationError,
	})
	if operationError != nil {
		return VehicleRun{}, operationError
	}
	return updated, nil
}

// MoveToGate sends a run to the gate. Without forced the run must be full;
// forced lets a partially filled run leave.
func (service *Service) MoveToGate(ctx context.Context, runID RunID, forced bool) (VehicleRun, error) {
	var moved VehicleRun
	current, operationError := service.store.GetRun(ctx, runID)
	if operationError == nil {
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			run, err := transactionStore.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			if run.FillStatus == FillStatusMoved {
				return fmt.Errorf("%w: run %s already moved", ErrAlreadyInState, run.ID)
			}
			if run.DriverID.IsZero() {
				return fmt.Errorf("%w: run %s on %s", ErrMissingDriver, run.ID, run.Date)
			}
			if !forced && run.FillStatus != FillStatusReady {
				return fmt.Errorf("%w: run %s has %d of %d seats filled", ErrNotReady, run.ID, run.SeatsFilled(), run.Capacity)
			}
			if forced && run.SeatsFilled() == 0 {
				return fmt.Errorf("%w: run %s has no passengers", ErrNotReady, run.ID)
			}
			runs, err := transactionStore.ListRuns(ctx, run.Date)
			if err != nil {
				return err
			}
			if busy, ok := driverBusyRun(runs, run.DriverID, run.ID); ok {
				return fmt.Errorf("%w: driver %s is on run %s on %s", ErrRunLocked, run.DriverID, busy.ID, run.Date)
			}
			run, err = run.withFillStatus(FillStatusMoved)
			if err != nil {
				return err
			}
			if err := transactionStore.UpdateRun(ctx, run); err != nil {
				return err
			}
			run.Version++
			action := GateActionNormal
			if forced {
				action = GateActionForced
			}
			now := service.nowFn()
			tokenCounts := run.TokenCounts()
			logs := make([]GateLog, 0, len(tokenCounts))
			for _, tokenCount := range tokenCounts {
				logs = append(logs, GateLog{
					ID:           service.newID(),
					Date:         run.Date,
					VehicleID:    run.VehicleID,
					DriverID:     run.DriverID,
					RunID:        run.ID,
					RunNumber:    run.RunNumber,
					Token:        tokenCount.Token,
					PersonsCount: tokenCount.Persons,
					Action:       action,
					CreatedAt:    now,
				})
			}
			if err := transactionStore.AppendGateLogs(ctx, logs); err != nil {
				return err
			}
			moved = run
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationMoveToGate,
		Date:      current.Date,
		RunID:     runID,
		Seats:     moved.SeatsFilled(),
		Error:     operationError,
	})
	if operationError != nil {
		return VehicleRun{}, operationError
	}
	return moved, nil
}

// ListAvailableVehicles returns the vehicles that can take seats on date.
// Partially filled runs come first, most free seats first, then vehicles
// without an occupied run.
func (service *Service) ListAvailableVehicles(ctx context.Context, date SafariDate) ([]AvailableVehicle, error) {
	vehicles, err := service.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := service.store.ListRuns(ctx, date)
	if err != nil {
		return nil, err
	}
	runsByVehicle := make(map[VehicleID][]VehicleRun)
	for _, run := range runs {
		runsByVehicle[run.VehicleID] = append(runsByVehicle[run.VehicleID], run)
	}
	var partial []AvailableVehicle
	var fresh []AvailableVehicle
	for _, vehicle := range vehicles {
		if !vehicle.AvailableOn(date) {
			continue
		}
		entry, ok := service.availability(vehicle, runsByVehicle[vehicle.ID])
		if !ok {
			continue
		}
		if entry.SeatsFilled > 0 {
			partial = append(partial, entry)
			continue
		}
		fresh = append(fresh, entry)
	}
	sort.SliceStable(partial, func(left, right int) bool {
		if partial[left].SeatsAvailable != partial[right].SeatsAvailable {
			return partial[left].SeatsAvailable > partial[right].SeatsAvailable
		}
		return partial[left].Vehicle.Number < partial[right].Vehicle.Number
	})
	sort.SliceStable(fresh, func(left, right int) bool {
		return fresh[left].Vehicle.Number < fresh[right].Vehicle.Number
	})
	return append(partial, fresh...), nil
}

func (service *Service) availability(vehicle Vehicle, runs []VehicleRun) (AvailableVehicle, bool) {
	capacity := vehicle.Capacity
	if capacity < 1 {
		capacity = service.config.DefaultVehicleCapacity
	}
	lastRunNumber := 0
	for _, run := range runs {
		if run.LocksResources() {
			return AvailableVehicle{}, false
		}
		lastRunNumber = max(lastRunNumber, run.RunNumber)
	}
	for _, run := range runs {
		if !run.IsOpen() {
			continue
		}
		if run.SeatsAvailable() == 0 {
			return AvailableVehicle{}, false
		}
		runID := run.ID
		return AvailableVehicle{
			Vehicle:        vehicle,
			OpenRunID:      &runID,
			RunNumber:      run.RunNumber,
			SeatsFilled:    run.SeatsFilled(),
			SeatsAvailable: run.SeatsAvailable(),
		}, true
	}
	return AvailableVehicle{
		Vehicle:        vehicle,
		RunNumber:      lastRunNumber + 1,
		SeatsAvailable: capacity,
	}, true
}

// ListAvailableDrivers returns active drivers not busy with a departed run on date.
func (service *Service) ListAvailableDrivers(ctx context.Context, date SafariDate) ([]Driver, error) {
	drivers, err := service.store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := service.store.ListRuns(ctx, date)
	if err != nil {
		return nil, err
	}
	available := make([]Driver, 0, len(drivers))
	for _, driver := range drivers {
		if !driver.AvailableOn(date) {
			continue
		}
		if _, busy := driverBusyRun(runs, driver.ID, RunID{}); busy {
			continue
		}
		available = append(available, driver)
	}
	return available, nil
}

func driverBusyRun(runs []VehicleRun, driverID DriverID, exclude RunID) (VehicleRun, bool) {
	for _, run := range runs {
		if run.ID == exclude || run.DriverID != driverID {
			continue
		}
		if run.LocksResources() {
			return run, true
		}
	}
	return VehicleRun{}, false
}
