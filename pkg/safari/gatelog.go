package safari

import (
	"context"
	"time"
)

// GateLogGroup is the audit view of one departure: every token that left
// with the same vehicle, driver, action and run within one time bucket.
type GateLogGroup struct {
	VehicleID    VehicleID
	DriverID     DriverID
	RunID        RunID
	RunNumber    int
	Action       GateAction
	BucketStart  time.Time
	Tokens       []TokenCount
	TotalPersons int
}

type gateLogGroupKey struct {
	vehicleID VehicleID
	driverID  DriverID
	runID     RunID
	action    GateAction
	bucket    int64
}

// GroupGateLogs merges log entries by (vehicle, driver, action, time bucket,
// run) in order of first appearance. A non-positive bucket groups by the
// exact timestamp.
func GroupGateLogs(logs []GateLog, bucket time.Duration) []GateLogGroup {
	var groups []GateLogGroup
	positions := make(map[gateLogGroupKey]int)
	for _, entry := range logs {
		bucketStart := entry.CreatedAt
		if bucket > 0 {
			bucketStart = entry.CreatedAt.Truncate(bucket)
		}
		key := gateLogGroupKey{
			vehicleID: entry.VehicleID,
			driverID:  entry.DriverID,
			runID:     entry.RunID,
			action:    entry.Action,
			bucket:    bucketStart.UnixNano(),
		}
		position, ok := positions[key]
		if !ok {
			position = len(groups)
			positions[key] = position
			groups = append(groups, GateLogGroup{
				VehicleID:   entry.VehicleID,
				DriverID:    entry.DriverID,
				RunID:       entry.RunID,
				RunNumber:   entry.RunNumber,
				Action:      entry.Action,
				BucketStart: bucketStart,
			})
		}
		groups[position].Tokens = append(groups[position].Tokens, TokenCount{Token: entry.Token, Persons: entry.PersonsCount})
		groups[position].TotalPersons += entry.PersonsCount
	}
	return groups
}

// ListGateLogs returns the raw gate log entries of date.
func (service *Service) ListGateLogs(ctx context.Context, date SafariDate) ([]GateLog, error) {
	return service.store.ListGateLogs(ctx, date)
}
