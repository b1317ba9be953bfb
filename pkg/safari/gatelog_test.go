package safari

import (
	"testing"
	"time"
)

func TestGroupGateLogsMergesByDeparture(test *testing.T) {
	test.Parallel()
	base := time.Date(2025, time.January, 1, 10, 0, 10, 0, time.UTC)
	vehicleID := VehicleID{value: "vehicle-1"}
	driverID := DriverID{value: "driver-1"}
	runID := RunID{value: "run-1"}
	otherRunID := RunID{value: "run-2"}
	logs := []GateLog{
		{VehicleID: vehicleID, DriverID: driverID, RunID: runID, RunNumber: 1, Token: 1, PersonsCount: 3, Action: GateActionNormal, CreatedAt: base},
		{VehicleID: vehicleID, DriverID: driverID, RunID: runID, RunNumber: 1, Token: 2, PersonsCount: 3, Action: GateActionNormal, CreatedAt: base.Add(20 * time.Second)},
		{VehicleID: vehicleID, DriverID: driverID, RunID: otherRunID, RunNumber: 2, Token: 4, PersonsCount: 2, Action: GateActionForced, CreatedAt: base.Add(2 * time.Hour)},
	}

	groups := GroupGateLogs(logs, time.Minute)
	if len(groups) != 2 {
		test.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].TotalPersons != 6 || len(groups[0].Tokens) != 2 || groups[0].RunID != runID {
		test.Fatalf("unexpected first group %+v", groups[0])
	}
	if !groups[0].BucketStart.Equal(base.Truncate(time.Minute)) {
		test.Fatalf(errorMismatchMessage, base.Truncate(time.Minute), groups[0].BucketStart)
	}
	if groups[1].Action != GateActionForced || groups[1].TotalPersons != 2 {
		test.Fatalf("unexpected second group %+v", groups[1])
	}

	exact := GroupGateLogs(logs, 0)
	if len(exact) != 3 {
		test.Fatalf("expected exact timestamps to split groups, got %d", len(exact))
	}
}
