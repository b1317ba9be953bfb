package safari

import (
	"context"
	"fmt"
)

// GateStart records a moved run entering the gate with its plastic count.
func (service *Service) GateStart(ctx context.Context, runID RunID, plasticIn int) (VehicleRun, error) {
	var started VehicleRun
	var operationError error
	var current VehicleRun
	if plasticIn < 0 {
		operationError = validationError("plastic-in count %d must not be negative", plasticIn)
	} else {
		current, operationError = service.store.GetRun(ctx, runID)
	}
	if operationError == nil {
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			run, err := transactionStore.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			if err := checkGateTransition(run, GateStatusStarted); err != nil {
				return err
			}
			if run.FillStatus != FillStatusMoved {
				return fmt.Errorf("%w: run %s has not moved to the gate", ErrInvalidTransition, run.ID)
			}
			now := service.nowFn()
			count := plasticIn
			run.GateStatus = GateStatusStarted
			run.PlasticIn = &count
			run.GateInAt = &now
			if err := transactionStore.UpdateRun(ctx, run); err != nil {
				return err
			}
			run.Version++
			started = run
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationGateStart,
		Date:      current.Date,
		RunID:     runID,
		Seats:     started.SeatsFilled(),
		Error:     operationError,
	})
	if operationError != nil {
		return VehicleRun{}, operationError
	}
	return started, nil
}

// GateComplete records a started run leaving the gate. Reservation completion
// is reconciled afterwards; a reconciliation failure does not fail the call.
func (service *Service) GateComplete(ctx context.Context, runID RunID, plasticOut int) (GateCompletion, error) {
	var completed VehicleRun
	var operationError error
	var current VehicleRun
	if plasticOut < 0 {
		operationError = validationError("plastic-out count %d must not be negative", plasticOut)
	} else {
		current, operationError = service.store.GetRun(ctx, runID)
	}
	if operationError == nil {
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			run, err := transactionStore.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			if err := checkGateTransition(run, GateStatusCompleted); err != nil {
				return err
			}
			now := service.nowFn()
			count := plasticOut
			run.GateStatus = GateStatusCompleted
			run.PlasticOut = &count
			run.GateOutAt = &now
			if err := transactionStore.UpdateRun(ctx, run); err != nil {
				return err
			}
			run.Version++
			completed = run
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationGateComplete,
		Date:      current.Date,
		RunID:     runID,
		Seats:     completed.SeatsFilled(),
		Error:     operationError,
	})
	if operationError != nil {
		return GateCompletion{}, operationError
	}
	if _, err := service.reconcile(ctx, completed.Date, &completed.ID); err != nil {
		service.markPendingReconcile(completed.Date)
	}
	plasticMatch, _ := completed.PlasticMatch()
	return GateCompletion{Run: completed, PlasticMatch: plasticMatch}, nil
}

func checkGateTransition(run VehicleRun, target GateStatus) error {
	if run.GateStatus == target {
		return fmt.Errorf("%w: run %s gate is already %s", ErrAlreadyInState, run.ID, target)
	}
	next, ok := run.GateStatus.Next()
	if !ok || next != target {
		return fmt.Errorf("%w: run %s gate cannot go from %s to %s", ErrInvalidTransition, run.ID, run.GateStatus, target)
	}
	return nil
}
