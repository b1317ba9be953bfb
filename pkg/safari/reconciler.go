package safari

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ReconcileDate completes every confirmed reservation of date whose seats have
// all returned through the gate. It returns the reservations it completed.
func (service *Service) ReconcileDate(ctx context.Context, date SafariDate) ([]Reservation, error) {
	completed, err := service.reconcile(ctx, date, nil)
	if err != nil {
		service.markPendingReconcile(date)
		return nil, err
	}
	service.clearPendingReconcile(date)
	return completed, nil
}

// ReconcilePending retries the dates whose reconciliation failed earlier,
// plus the current date. The pending set is in memory, so the current date is
// always rechecked to pick up completions missed before a restart.
func (service *Service) ReconcilePending(ctx context.Context) error {
	dates := service.PendingReconcileDates()
	today := SafariDateOf(service.nowFn())
	if !containsDate(dates, today) {
		dates = append(dates, today)
	}
	sort.Slice(dates, func(left, right int) bool {
		return dates[left].String() < dates[right].String()
	})
	var reconcileErrors []error
	for _, date := range dates {
		if _, err := service.ReconcileDate(ctx, date); err != nil {
			reconcileErrors = append(reconcileErrors, err)
		}
	}
	return errors.Join(reconcileErrors...)
}

// reconcile counts completed seats per reservation across every completed run
// of date. When onlyRun is set only reservations riding that run are checked.
func (service *Service) reconcile(ctx context.Context, date SafariDate, onlyRun *RunID) ([]Reservation, error) {
	var completed []Reservation
	operationError := service.withinDate(ctx, date, func(ctx context.Context, transactionStore Store) error {
		completed = nil
		runs, err := transactionStore.ListRuns(ctx, date)
		if err != nil {
			return err
		}
		completedSeats := make(map[ReservationID]int)
		var candidates []ReservationID
		seen := make(map[ReservationID]struct{})
		for _, run := range runs {
			if run.GateStatus != GateStatusCompleted {
				continue
			}
			for _, passenger := range run.Passengers {
				completedSeats[passenger.ReservationID]++
			}
			if onlyRun != nil && run.ID != *onlyRun {
				continue
			}
			for _, tokenCount := range run.TokenCounts() {
				if _, ok := seen[tokenCount.ReservationID]; ok {
					continue
				}
				seen[tokenCount.ReservationID] = struct{}{}
				candidates = append(candidates, tokenCount.ReservationID)
			}
		}
		now := service.nowFn()
		for _, reservationID := range candidates {
			reservation, err := transactionStore.GetReservation(ctx, reservationID)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", date, err)
			}
			if reservation.Status != ReservationStatusConfirmed {
				continue
			}
			if completedSeats[reservationID] < reservation.Party.Total() {
				continue
			}
			if err := transitionReservation(ctx, transactionStore, StatusChange{
				ReservationID: reservation.ID,
				From:          ReservationStatusConfirmed,
				To:            ReservationStatusCompleted,
				ChangedAt:     now,
			}); err != nil {
				return err
			}
			reservation.Status = ReservationStatusCompleted
			completed = append(completed, reservation)
		}
		return nil
	})
	if operationError != nil {
		entry := OperationLog{Operation: operationReconcile, Date: date, Error: operationError}
		if onlyRun != nil {
			entry.RunID = *onlyRun
		}
		service.logOperation(ctx, entry)
		return nil, operationError
	}
	for _, reservation := range completed {
		service.logOperation(ctx, OperationLog{
			Operation:     operationReconcile,
			ReservationID: reservation.ID,
			Token:         reservation.Token,
			Date:          reservation.Date,
			Slot:          reservation.Slot,
			Seats:         reservation.Party.Total(),
		})
	}
	return completed, nil
}
