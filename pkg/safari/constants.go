package safari

const (
	operationCreateHold    = "create_hold"
	operationConfirm       = "confirm"
	operationCancel        = "cancel"
	operationExpire        = "expire"
	operationAssignSeats   = "assign_seats"
	operationUnassign      = "unassign"
	operationSetDriver     = "set_driver"
	operationMoveToGate    = "move_to_gate"
	operationGateStart     = "gate_start"
	operationGateComplete  = "gate_complete"
	operationReconcile     = "reconcile"
	operationSaveVehicle   = "save_vehicle"
	operationSaveDriver    = "save_driver"
	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusSkipped = "skipped"

	archiveReasonHoldTimeout = "hold timeout"
	archiveReasonCancelled   = "cancelled"

	safariDateLayout = "2006-01-02"
	subTokenAlphabet = "abcdefghijklmnopqrstuvwxyz"
)
