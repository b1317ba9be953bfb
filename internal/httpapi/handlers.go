package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger  *zap.Logger
	service *safari.Service
	clock   func() time.Time
	cfg     Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func (handler *httpHandler) respondInvalid(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidRequest, err.Error()))
}

func (handler *httpHandler) handleSlots(ctx *gin.Context) {
	var query slotsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	date, err := safari.NewSafariDate(query.Date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	slots, err := handler.service.SlotAvailability(requestCtx, date, query.Seats)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]slotPayload, 0, len(slots))
	for _, slot := range slots {
		payloads = append(payloads, slotPayload{Slot: slot.Slot.String(), Limit: slot.Limit, Available: slot.Available, Fits: slot.Fits})
	}
	ctx.JSON(http.StatusOK, gin.H{"date": date.String(), "slots": payloads})
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	var query availabilityQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	date, err := safari.NewSafariDate(query.Date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	slot, err := safari.NewTimeSlot(query.Slot)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	available, err := handler.service.AvailableSeats(requestCtx, date, slot)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"date": date.String(), "slot": slot.String(), "available": available})
}

func (handler *httpHandler) handleCreateHold(ctx *gin.Context) {
	var request holdRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	date, err := safari.NewSafariDate(request.Date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	slot, err := safari.NewTimeSlot(request.Slot)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	party, err := safari.NewPartySize(request.Adults, request.Children)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.CreateHold(requestCtx, safari.HoldRequest{
		Date:  date,
		Slot:  slot,
		Party: party,
		Visitor: safari.Visitor{
			Name:  request.Visitor.Name,
			Phone: request.Visitor.Phone,
			Email: request.Visitor.Email,
		},
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"reservation": newReservationPayload(reservation)})
}

func (handler *httpHandler) handleListReservations(ctx *gin.Context) {
	date, ok := handler.bindDate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservations, err := handler.service.ListReservations(requestCtx, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservations": newReservationPayloads(reservations)})
}

func (handler *httpHandler) handleGetReservation(ctx *gin.Context) {
	reservationID, err := safari.NewReservationID(ctx.Param("reservationID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.GetReservation(requestCtx, reservationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": newReservationPayload(reservation)})
}

func (handler *httpHandler) handleGetByToken(ctx *gin.Context) {
	date, err := safari.NewSafariDate(ctx.Param("date"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	token, err := safari.ParseToken(ctx.Param("token"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.GetReservationByToken(requestCtx, date, token)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": newReservationPayload(reservation)})
}

func (handler *httpHandler) handleConfirm(ctx *gin.Context) {
	reservationID, err := safari.NewReservationID(ctx.Param("reservationID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request confirmRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		handler.respondInvalid(ctx, err)
		return
	}
	metadata, err := safari.NewMetadataJSON(string(request.Metadata))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payment, err := safari.NewPaymentMeta(request.Method, request.Reference, metadata)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.Confirm(requestCtx, reservationID, payment)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": newReservationPayload(reservation)})
}

func (handler *httpHandler) handleCancel(ctx *gin.Context) {
	reservationID, err := safari.NewReservationID(ctx.Param("reservationID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request cancelRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		handler.respondInvalid(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.Cancel(requestCtx, reservationID, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": newReservationPayload(reservation)})
}

func (handler *httpHandler) handleAssign(ctx *gin.Context) {
	reservationID, err := safari.NewReservationID(ctx.Param("reservationID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request assignRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	vehicleID, err := safari.NewVehicleID(request.VehicleID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.AssignSeats(requestCtx, reservationID, vehicleID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"run_id":         result.RunID.String(),
		"seats_assigned": result.SeatsAssigned,
		"remaining":      result.Remaining,
	})
}

func (handler *httpHandler) handleListArchived(ctx *gin.Context) {
	date, ok := handler.bindDate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	records, err := handler.service.ListArchived(requestCtx, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"archived": newArchivedPayloads(records)})
}

func (handler *httpHandler) handleListVehicles(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	vehicles, err := handler.service.ListVehicles(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]vehiclePayload, 0, len(vehicles))
	for _, vehicle := range vehicles {
		payloads = append(payloads, newVehiclePayload(vehicle))
	}
	ctx.JSON(http.StatusOK, gin.H{"vehicles": payloads})
}

func (handler *httpHandler) handleCreateVehicle(ctx *gin.Context) {
	handler.saveVehicle(ctx, safari.VehicleID{}, http.StatusCreated)
}

func (handler *httpHandler) handleUpdateVehicle(ctx *gin.Context) {
	vehicleID, err := safari.NewVehicleID(ctx.Param("vehicleID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.saveVehicle(ctx, vehicleID, http.StatusOK)
}

func (handler *httpHandler) saveVehicle(ctx *gin.Context, vehicleID safari.VehicleID, status int) {
	var request vehicleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	dates, err := parseDates(request.UnavailableDates)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	vehicle, err := handler.service.SaveVehicle(requestCtx, safari.Vehicle{
		ID:               vehicleID,
		Number:           request.Number,
		Owner:            request.Owner,
		Capacity:         request.Capacity,
		Active:           request.Active == nil || *request.Active,
		UnavailableDates: dates,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(status, gin.H{"vehicle": newVehiclePayload(vehicle)})
}

func (handler *httpHandler) handleListDrivers(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	drivers, err := handler.service.ListDrivers(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]driverPayload, 0, len(drivers))
	for _, driver := range drivers {
		payloads = append(payloads, newDriverPayload(driver))
	}
	ctx.JSON(http.StatusOK, gin.H{"drivers": payloads})
}

func (handler *httpHandler) handleCreateDriver(ctx *gin.Context) {
	handler.saveDriver(ctx, safari.DriverID{}, http.StatusCreated)
}

func (handler *httpHandler) handleUpdateDriver(ctx *gin.Context) {
	driverID, err := safari.NewDriverID(ctx.Param("driverID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.saveDriver(ctx, driverID, http.StatusOK)
}

func (handler *httpHandler) saveDriver(ctx *gin.Context, driverID safari.DriverID, status int) {
	var request driverRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	dates, err := parseDates(request.UnavailableDates)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	driver, err := handler.service.SaveDriver(requestCtx, safari.Driver{
		ID:               driverID,
		Name:             request.Name,
		Phone:            request.Phone,
		Active:           request.Active == nil || *request.Active,
		UnavailableDates: dates,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(status, gin.H{"driver": newDriverPayload(driver)})
}

func (handler *httpHandler) handleAvailableVehicles(ctx *gin.Context) {
	date, ok := handler.bindDate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.ListAvailableVehicles(requestCtx, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"vehicles": newAvailableVehiclePayloads(entries)})
}

func (handler *httpHandler) handleAvailableDrivers(ctx *gin.Context) {
	date, ok := handler.bindDate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	drivers, err := handler.service.ListAvailableDrivers(requestCtx, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]driverPayload, 0, len(drivers))
	for _, driver := range drivers {
		payloads = append(payloads, newDriverPayload(driver))
	}
	ctx.JSON(http.StatusOK, gin.H{"drivers": payloads})
}

func (handler *httpHandler) handleListRuns(ctx *gin.Context) {
	date, ok := handler.bindDate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	runs, err := handler.service.ListRuns(requestCtx, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"runs": newRunPayloads(runs)})
}

func (handler *httpHandler) handleGetRun(ctx *gin.Context) {
	runID, ok := handler.runID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	run, err := handler.service.GetRun(requestCtx, runID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"run": newRunPayload(run)})
}

func (handler *httpHandler) handleUnassign(ctx *gin.Context) {
	runID, ok := handler.runID(ctx)
	if !ok {
		return
	}
	token, err := safari.ParseToken(ctx.Param("token"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	run, err := handler.service.UnassignReservation(requestCtx, runID, token)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"run": newRunPayload(run)})
}

func (handler *httpHandler) handleSetDriver(ctx *gin.Context) {
	runID, ok := handler.runID(ctx)
	if !ok {
		return
	}
	var request setDriverRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	driverID, err := safari.NewDriverID(request.DriverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	run, err := handler.service.SetDriver(requestCtx, runID, driverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"run": newRunPayload(run)})
}

func (handler *httpHandler) handleMoveToGate(ctx *gin.Context) {
	runID, ok := handler.runID(ctx)
	if !ok {
		return
	}
	var request moveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		handler.respondInvalid(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	run, err := handler.service.MoveToGate(requestCtx, runID, request.Forced)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"run": newRunPayload(run)})
}

func (handler *httpHandler) handleGateStart(ctx *gin.Context) {
	runID, ok := handler.runID(ctx)
	if !ok {
		return
	}
	var request gateStartRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	run, err := handler.service.GateStart(requestCtx, runID, *request.PlasticIn)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"run": newRunPayload(run)})
}

func (handler *httpHandler) handleGateComplete(ctx *gin.Context) {
	runID, ok := handler.runID(ctx)
	if !ok {
		return
	}
	var request gateCompleteRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	completion, err := handler.service.GateComplete(requestCtx, runID, *request.PlasticOut)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"run":           newRunPayload(completion.Run),
		"plastic_match": completion.PlasticMatch,
	})
}

func (handler *httpHandler) handleGateLogs(ctx *gin.Context) {
	var query gateLogQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		handler.respondInvalid(ctx, err)
		return
	}
	date, err := safari.NewSafariDate(query.Date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	bucket := handler.cfg.GateLogBucket
	if strings.TrimSpace(query.Bucket) != "" {
		bucket, err = time.ParseDuration(query.Bucket)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidRequest, "bucket must be a duration such as 1m"))
			return
		}
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	logs, err := handler.service.ListGateLogs(requestCtx, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"date":   date.String(),
		"groups": newGateLogGroupPayloads(safari.GroupGateLogs(logs, bucket)),
	})
}

func (handler *httpHandler) handleSweep(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	expired, err := handler.service.SweepExpired(requestCtx, handler.clock())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"expired": newReservationPayloads(expired)})
}

func (handler *httpHandler) handleReconcile(ctx *gin.Context) {
	date, ok := handler.bindDate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	completed, err := handler.service.ReconcileDate(requestCtx, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"completed": newReservationPayloads(completed)})
}

func (handler *httpHandler) bindDate(ctx *gin.Context) (safari.SafariDate, bool) {
	var query dateQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		handler.respondInvalid(ctx, err)
		return safari.SafariDate{}, false
	}
	date, err := safari.NewSafariDate(query.Date)
	if err != nil {
		handler.respondError(ctx, err)
		return safari.SafariDate{}, false
	}
	return date, true
}

func (handler *httpHandler) runID(ctx *gin.Context) (safari.RunID, bool) {
	runID, err := safari.NewRunID(ctx.Param("runID"))
	if err != nil {
		handler.respondError(ctx, err)
		return safari.RunID{}, false
	}
	return runID, true
}
