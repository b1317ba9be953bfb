package safari

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// HoldRequest describes a new seat hold.
type HoldRequest struct {
	Date    SafariDate
	Slot    TimeSlot
	Party   PartySize
	Visitor Visitor
}

// CreateHold reserves seats for a party on (date, slot) for the hold window.
func (service *Service) CreateHold(ctx context.Context, request HoldRequest) (Reservation, error) {
	var created Reservation
	var archived []ArchivedReservation
	operationError := service.validateHold(request)
	if operationError == nil {
		operationError = service.withinDate(ctx, request.Date, func(ctx context.Context, transactionStore Store) error {
			archived = nil
			now := service.nowFn()
			_, expiredRecords, err := service.expireHolds(ctx, transactionStore, request.Date, now)
			if err != nil {
				return err
			}
			archived = expiredRecords
			limit, err := service.checkSlot(request.Slot)
			if err != nil {
				return err
			}
			used, err := transactionStore.SumOccupiedSeats(ctx, request.Date, request.Slot, now)
			if err != nil {
				return err
			}
			remaining := limit - used
			if remaining < request.Party.Total() {
				return fmt.Errorf("%w: date %s slot %q requested %d seats, %d remaining", ErrCapacityExceeded, request.Date, request.Slot, request.Party.Total(), max(remaining, 0))
			}
			maxToken, err := transactionStore.MaxToken(ctx, request.Date)
			if err != nil {
				return err
			}
			reservationID, err := NewReservationID(service.newID())
			if err != nil {
				return err
			}
			created = Reservation{
				ID:            reservationID,
				Token:         maxToken + 1,
				Date:          request.Date,
				Slot:          request.Slot,
				Party:         request.Party,
				Visitor:       normalizeVisitor(request.Visitor),
				Amount:        service.config.Quote(request.Party),
				HoldExpiresAt: now.Add(service.config.HoldDuration),
				Status:        ReservationStatusHeld,
				CreatedAt:     now,
			}
			return transactionStore.CreateReservation(ctx, created)
		})
	}
	if operationError == nil {
		service.notifyArchived(ctx, archived)
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationCreateHold,
		ReservationID: created.ID,
		Token:         created.Token,
		Date:          request.Date,
		Slot:          request.Slot,
		Seats:         request.Party.Total(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return created, nil
}

// Confirm marks a held reservation as paid. Confirming a confirmed or
// completed reservation returns it unchanged.
func (service *Service) Confirm(ctx context.Context, reservationID ReservationID, payment PaymentMeta) (Reservation, error) {
	var confirmed Reservation
	var archived []ArchivedReservation
	staleHold := false
	current, operationError := service.store.GetReservation(ctx, reservationID)
	if operationError == nil {
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			archived = nil
			staleHold = false
			reservation, err := transactionStore.GetReservation(ctx, reservationID)
			if err != nil {
				return err
			}
			switch reservation.Status {
			case ReservationStatusConfirmed, ReservationStatusCompleted:
				confirmed = reservation
				return nil
			case ReservationStatusExpired, ReservationStatusCancelled:
				confirmed = reservation
				return fmt.Errorf("%w: reservation %s token %d on %s is %s", ErrAlreadyExpired, reservation.ID, reservation.Token, reservation.Date, reservation.Status)
			}
			now := service.nowFn()
			if reservation.HoldExpired(now) {
				confirmed = reservation
				expired, records, err := service.expireReservations(ctx, transactionStore, []Reservation{reservation}, now, archiveReasonHoldTimeout)
				if err != nil {
					return err
				}
				archived = records
				staleHold = true
				if len(expired) > 0 {
					confirmed = expired[0]
				}
				return nil
			}
			payment.ConfirmedAt = now
			if err := transitionReservation(ctx, transactionStore, StatusChange{
				ReservationID: reservation.ID,
				From:          ReservationStatusHeld,
				To:            ReservationStatusConfirmed,
				ActiveAsOf:    &now,
				Payment:       &payment,
				ChangedAt:     now,
			}); err != nil {
				return err
			}
			reservation.Status = ReservationStatusConfirmed
			reservation.Payment = payment
			confirmed = reservation
			return nil
		})
	}
	if operationError == nil {
		service.notifyArchived(ctx, archived)
		if staleHold {
			operationError = fmt.Errorf("%w: reservation %s token %d on %s hold ended at %s", ErrAlreadyExpired, confirmed.ID, confirmed.Token, confirmed.Date, confirmed.HoldExpiresAt.UTC().Format(time.RFC3339))
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationConfirm,
		ReservationID: reservationID,
		Token:         confirmed.Token,
		Date:          confirmed.Date,
		Slot:          confirmed.Slot,
		Seats:         confirmed.Party.Total(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return confirmed, nil
}

// Cancel releases a held reservation, or a confirmed one with no seats assigned.
func (service *Service) Cancel(ctx context.Context, reservationID ReservationID, reason string) (Reservation, error) {
	var cancelled Reservation
	var archived []ArchivedReservation
	staleHold := false
	archiveReason := strings.TrimSpace(reason)
	if archiveReason == "" {
		archiveReason = archiveReasonCancelled
	}
	current, operationError := service.store.GetReservation(ctx, reservationID)
	if operationError == nil {
		operationError = service.withinDate(ctx, current.Date, func(ctx context.Context, transactionStore Store) error {
			archived = nil
			staleHold = false
			reservation, err := transactionStore.GetReservation(ctx, reservationID)
			if err != nil {
				return err
			}
			cancelled = reservation
			switch reservation.Status {
			case ReservationStatusExpired, ReservationStatusCancelled:
				return fmt.Errorf("%w: reservation %s token %d on %s is %s", ErrAlreadyExpired, reservation.ID, reservation.Token, reservation.Date, reservation.Status)
			case ReservationStatusConfirmed:
				runs, err := transactionStore.ListRuns(ctx, reservation.Date)
				if err != nil {
					return err
				}
				if assigned := assignedSeats(runs, reservation.ID); assigned > 0 {
					return fmt.Errorf("%w: reservation %s token %d on %s has %d assigned seats", ErrInvalidTransition, reservation.ID, reservation.Token, reservation.Date, assigned)
				}
			}
			now := service.nowFn()
			if reservation.HoldExpired(now) {
				expired, records, err := service.expireReservations(ctx, transactionStore, []Reservation{reservation}, now, archiveReasonHoldTimeout)
				if err != nil {
					return err
				}
				archived = records
				staleHold = true
				if len(expired) > 0 {
					cancelled = expired[0]
				}
				return nil
			}
			if err := transitionReservation(ctx, transactionStore, StatusChange{
				ReservationID: reservation.ID,
				From:          reservation.Status,
				To:            ReservationStatusCancelled,
				ChangedAt:     now,
			}); err != nil {
				return err
			}
			reservation.Status = ReservationStatusCancelled
			cancelled = reservation
			record := newArchivedReservation(reservation, archiveReason, now)
			written, err := transactionStore.ArchiveReservation(ctx, record)
			if err != nil {
				return err
			}
			if written {
				archived = append(archived, record)
			}
			return nil
		})
	}
	if operationError == nil {
		service.notifyArchived(ctx, archived)
		if staleHold {
			operationError = fmt.Errorf("%w: reservation %s token %d on %s hold ended at %s", ErrAlreadyExpired, cancelled.ID, cancelled.Token, cancelled.Date, cancelled.HoldExpiresAt.UTC().Format(time.RFC3339))
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationCancel,
		ReservationID: reservationID,
		Token:         cancelled.Token,
		Date:          cancelled.Date,
		Slot:          cancelled.Slot,
		Seats:         cancelled.Party.Total(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return cancelled, nil
}

// SweepExpired expires every held reservation whose hold ended at or before now
// and returns the reservations it transitioned. Running it again with the same
// now changes nothing.
func (service *Service) SweepExpired(ctx context.Context, now time.Time) ([]Reservation, error) {
	candidates, err := service.store.ListExpiredHolds(ctx, SafariDate{}, now)
	if err != nil {
		return nil, err
	}
	dates := make([]SafariDate, 0)
	seenDates := make(map[SafariDate]struct{})
	for _, candidate := range candidates {
		if _, seen := seenDates[candidate.Date]; seen {
			continue
		}
		seenDates[candidate.Date] = struct{}{}
		dates = append(dates, candidate.Date)
	}
	sort.Slice(dates, func(left, right int) bool {
		return dates[left].String() < dates[right].String()
	})
	var transitioned []Reservation
	var sweepErrors []error
	for _, date := range dates {
		var expired []Reservation
		var archived []ArchivedReservation
		dateError := service.withinDate(ctx, date, func(ctx context.Context, transactionStore Store) error {
			var err error
			expired, archived, err = service.expireHolds(ctx, transactionStore, date, now)
			return err
		})
		if dateError != nil {
			service.logOperation(ctx, OperationLog{Operation: operationExpire, Date: date, Error: dateError})
			sweepErrors = append(sweepErrors, dateError)
			continue
		}
		service.notifyArchived(ctx, archived)
		for _, reservation := range expired {
			service.logOperation(ctx, OperationLog{
				Operation:     operationExpire,
				ReservationID: reservation.ID,
				Token:         reservation.Token,
				Date:          reservation.Date,
				Slot:          reservation.Slot,
				Seats:         reservation.Party.Total(),
			})
		}
		transitioned = append(transitioned, expired...)
	}
	return transitioned, errors.Join(sweepErrors...)
}

// AvailableSeats returns the seats still free on (date, slot), never negative.
func (service *Service) AvailableSeats(ctx context.Context, date SafariDate, slot TimeSlot) (int, error) {
	limit, err := service.checkSlot(slot)
	if err != nil {
		return 0, err
	}
	var used int
	var archived []ArchivedReservation
	err = service.withinDate(ctx, date, func(ctx context.Context, transactionStore Store) error {
		now := service.nowFn()
		var err error
		_, archived, err = service.expireHolds(ctx, transactionStore, date, now)
		if err != nil {
			return err
		}
		used, err = transactionStore.SumOccupiedSeats(ctx, date, slot, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	service.notifyArchived(ctx, archived)
	return max(limit-used, 0), nil
}

// SlotAvailability reports every configured slot of date and whether
// seatsNeeded still fit into it.
func (service *Service) SlotAvailability(ctx context.Context, date SafariDate, seatsNeeded int) ([]SlotSeats, error) {
	if seatsNeeded < 0 {
		return nil, validationError("seats needed %d must not be negative", seatsNeeded)
	}
	var overview []SlotSeats
	var archived []ArchivedReservation
	err := service.withinDate(ctx, date, func(ctx context.Context, transactionStore Store) error {
		overview = overview[:0]
		now := service.nowFn()
		var err error
		_, archived, err = service.expireHolds(ctx, transactionStore, date, now)
		if err != nil {
			return err
		}
		for _, slotConfig := range service.config.Slots {
			slot, err := NewTimeSlot(slotConfig.Name)
			if err != nil {
				return err
			}
			used, err := transactionStore.SumOccupiedSeats(ctx, date, slot, now)
			if err != nil {
				return err
			}
			available := max(slotConfig.Limit-used, 0)
			overview = append(overview, SlotSeats{
				Slot:      slot,
				Limit:     slotConfig.Limit,
				Available: available,
				Fits:      available >= seatsNeeded,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	service.notifyArchived(ctx, archived)
	return overview, nil
}

// GetReservation loads a reservation, expiring it first when its hold lapsed.
func (service *Service) GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	return service.lazyExpire(ctx, reservation)
}

// GetReservationByToken loads a reservation by its per-date token.
func (service *Service) GetReservationByToken(ctx context.Context, date SafariDate, token Token) (Reservation, error) {
	reservation, err := service.store.GetReservationByToken(ctx, date, token)
	if err != nil {
		return Reservation{}, err
	}
	return service.lazyExpire(ctx, reservation)
}

// ListReservations returns every reservation of date ordered by token.
func (service *Service) ListReservations(ctx context.Context, date SafariDate) ([]Reservation, error) {
	var archived []ArchivedReservation
	var reservations []Reservation
	err := service.withinDate(ctx, date, func(ctx context.Context, transactionStore Store) error {
		var err error
		_, archived, err = service.expireHolds(ctx, transactionStore, date, service.nowFn())
		if err != nil {
			return err
		}
		reservations, err = transactionStore.ListReservations(ctx, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	service.notifyArchived(ctx, archived)
	return reservations, nil
}

// ListArchived returns the expired and cancelled snapshots of date.
func (service *Service) ListArchived(ctx context.Context, date SafariDate) ([]ArchivedReservation, error) {
	return service.store.ListArchived(ctx, date)
}

func (service *Service) lazyExpire(ctx context.Context, reservation Reservation) (Reservation, error) {
	if !reservation.HoldExpired(service.nowFn()) {
		return reservation, nil
	}
	var current Reservation
	var archived []ArchivedReservation
	err := service.withinDate(ctx, reservation.Date, func(ctx context.Context, transactionStore Store) error {
		archived = nil
		loaded, err := transactionStore.GetReservation(ctx, reservation.ID)
		if err != nil {
			return err
		}
		current = loaded
		now := service.nowFn()
		if !loaded.HoldExpired(now) {
			return nil
		}
		expired, records, err := service.expireReservations(ctx, transactionStore, []Reservation{loaded}, now, archiveReasonHoldTimeout)
		if err != nil {
			return err
		}
		archived = records
		if len(expired) > 0 {
			current = expired[0]
		}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	service.notifyArchived(ctx, archived)
	return current, nil
}

func (service *Service) expireHolds(ctx context.Context, transactionStore Store, date SafariDate, now time.Time) ([]Reservation, []ArchivedReservation, error) {
	holds, err := transactionStore.ListExpiredHolds(ctx, date, now)
	if err != nil {
		return nil, nil, err
	}
	return service.expireReservations(ctx, transactionStore, holds, now, archiveReasonHoldTimeout)
}

// expireReservations moves each still-held, lapsed reservation to expired and
// archives it. Reservations that changed underneath are skipped.
func (service *Service) expireReservations(ctx context.Context, transactionStore Store, holds []Reservation, now time.Time, reason string) ([]Reservation, []ArchivedReservation, error) {
	var expired []Reservation
	var archived []ArchivedReservation
	for _, hold := range holds {
		asOf := now
		err := transitionReservation(ctx, transactionStore, StatusChange{
			ReservationID: hold.ID,
			From:          ReservationStatusHeld,
			To:            ReservationStatusExpired,
			ExpiredAsOf:   &asOf,
			ChangedAt:     now,
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		hold.Status = ReservationStatusExpired
		expired = append(expired, hold)
		record := newArchivedReservation(hold, reason, now)
		written, err := transactionStore.ArchiveReservation(ctx, record)
		if err != nil {
			return nil, nil, err
		}
		if written {
			archived = append(archived, record)
		}
	}
	return expired, archived, nil
}

// transitionReservation applies change when the lifecycle allows From -> To.
func transitionReservation(ctx context.Context, transactionStore Store, change StatusChange) error {
	if !change.From.CanTransitionTo(change.To) {
		return fmt.Errorf("%w: reservation %s cannot move from %s to %s", ErrInvalidTransition, change.ReservationID, change.From, change.To)
	}
	return transactionStore.TransitionReservation(ctx, change)
}

func (service *Service) validateHold(request HoldRequest) error {
	if request.Date.IsZero() {
		return validationError("date is required")
	}
	if _, err := NewPartySize(request.Party.Adults, request.Party.Children); err != nil {
		return err
	}
	_, err := service.checkSlot(request.Slot)
	return err
}

func normalizeVisitor(visitor Visitor) Visitor {
	return Visitor{
		Name:  strings.TrimSpace(visitor.Name),
		Phone: strings.TrimSpace(visitor.Phone),
		Email: strings.ToLower(strings.TrimSpace(visitor.Email)),
	}
}

func assignedSeats(runs []VehicleRun, reservationID ReservationID) int {
	total := 0
	for _, run := range runs {
		total += run.PassengerCount(reservationID)
	}
	return total
}
