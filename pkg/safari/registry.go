package safari

import (
	"context"
	"strings"
)

// SaveVehicle creates or replaces a vehicle. A zero ID mints a new one.
func (service *Service) SaveVehicle(ctx context.Context, vehicle Vehicle) (Vehicle, error) {
	vehicle.Number = strings.TrimSpace(vehicle.Number)
	vehicle.Owner = strings.TrimSpace(vehicle.Owner)
	var operationError error
	switch {
	case vehicle.Number == "":
		operationError = validationError("vehicle number is required")
	case vehicle.Capacity < 0:
		operationError = validationError("vehicle %s capacity %d must not be negative", vehicle.Number, vehicle.Capacity)
	}
	if operationError == nil {
		if vehicle.Capacity == 0 {
			vehicle.Capacity = service.config.DefaultVehicleCapacity
		}
		if vehicle.ID.IsZero() {
			vehicle.ID, operationError = NewVehicleID(service.newID())
		}
	}
	if operationError == nil {
		operationError = service.store.SaveVehicle(ctx, vehicle)
	}
	service.logOperation(ctx, OperationLog{Operation: operationSaveVehicle, Error: operationError})
	if operationError != nil {
		return Vehicle{}, operationError
	}
	return vehicle, nil
}

// SaveDriver creates or replaces a driver. A zero ID mints a new one.
func (service *Service) SaveDriver(ctx context.Context, driver Driver) (Driver, error) {
	driver.Name = strings.TrimSpace(driver.Name)
	driver.Phone = strings.TrimSpace(driver.Phone)
	var operationError error
	if driver.Name == "" {
		operationError = validationError("driver name is required")
	}
	if operationError == nil && driver.ID.IsZero() {
		driver.ID, operationError = NewDriverID(service.newID())
	}
	if operationError == nil {
		operationError = service.store.SaveDriver(ctx, driver)
	}
	service.logOperation(ctx, OperationLog{Operation: operationSaveDriver, Error: operationError})
	if operationError != nil {
		return Driver{}, operationError
	}
	return driver, nil
}

// ListVehicles returns every registered vehicle.
func (service *Service) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	return service.store.ListVehicles(ctx)
}

// ListDrivers returns every registered driver.
func (service *Service) ListDrivers(ctx context.Context) ([]Driver, error) {
	return service.store.ListDrivers(ctx)
}

// GetRun loads one run.
func (service *Service) GetRun(ctx context.Context, runID RunID) (VehicleRun, error) {
	return service.store.GetRun(ctx, runID)
}

// ListRuns returns the runs of date.
func (service *Service) ListRuns(ctx context.Context, date SafariDate) ([]VehicleRun, error) {
	return service.store.ListRuns(ctx, date)
}
