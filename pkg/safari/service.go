package safari

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service contains the reservation, allocation and gate logic over a Store.
type Service struct {
	store    Store
	nowFn    func() time.Time
	config   Config
	logger   OperationLogger
	notifier ArchiveNotifier
	locker   DateLocker
	newID    func() string

	pendingMutex     sync.Mutex
	pendingReconcile map[SafariDate]struct{}
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:            store,
		nowFn:            now,
		config:           DefaultConfig(),
		newID:            uuid.NewString,
		pendingReconcile: make(map[SafariDate]struct{}),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if err := service.config.Validate(); err != nil {
		return nil, err
	}
	if service.locker == nil {
		service.locker = newProcessDateLocker()
	}
	if service.newID == nil {
		return nil, fmt.Errorf("%w: id generator is nil", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Config returns the effective configuration.
func (service *Service) Config() Config {
	return service.config
}

// withinDate runs fn in a store transaction while holding the date lock,
// retrying the whole transaction on write conflicts.
func (service *Service) withinDate(ctx context.Context, date SafariDate, fn func(ctx context.Context, txStore Store) error) error {
	unlock, err := service.locker.Lock(ctx, date)
	if err != nil {
		return WrapError("service", "date_lock", "acquire", err)
	}
	defer unlock()
	attempts := service.config.MaxTransactionAttempts
	var lastError error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastError = service.store.WithTx(ctx, fn)
		if lastError == nil || !errors.Is(lastError, ErrConflict) {
			return lastError
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: date %s gave up after %d attempts: %s", ErrConflict, date, attempts, lastError.Error())
}

func (service *Service) checkSlot(slot TimeSlot) (int, error) {
	limit, ok := service.config.slotLimit(slot)
	if !ok {
		return 0, validationError("unknown slot %q", slot)
	}
	return limit, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) notifyArchived(ctx context.Context, records []ArchivedReservation) {
	if service.notifier == nil {
		return
	}
	for _, record := range records {
		service.notifier.NotifyArchived(ctx, record)
	}
}

func (service *Service) markPendingReconcile(date SafariDate) {
	service.pendingMutex.Lock()
	defer service.pendingMutex.Unlock()
	service.pendingReconcile[date] = struct{}{}
}

func (service *Service) clearPendingReconcile(date SafariDate) {
	service.pendingMutex.Lock()
	defer service.pendingMutex.Unlock()
	delete(service.pendingReconcile, date)
}

// PendingReconcileDates lists dates whose reconciliation failed and awaits a retry.
func (service *Service) PendingReconcileDates() []SafariDate {
	service.pendingMutex.Lock()
	defer service.pendingMutex.Unlock()
	dates := make([]SafariDate, 0, len(service.pendingReconcile))
	for date := range service.pendingReconcile {
		dates = append(dates, date)
	}
	return dates
}

// processDateLocker is the default DateLocker: one buffered channel per date.
type processDateLocker struct {
	mutex sync.Mutex
	slots map[SafariDate]chan struct{}
}

func newProcessDateLocker() *processDateLocker {
	return &processDateLocker{slots: make(map[SafariDate]chan struct{})}
}

func (locker *processDateLocker) Lock(ctx context.Context, date SafariDate) (func(), error) {
	locker.mutex.Lock()
	slot, ok := locker.slots[date]
	if !ok {
		slot = make(chan struct{}, 1)
		locker.slots[date] = slot
	}
	locker.mutex.Unlock()
	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-slot })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
