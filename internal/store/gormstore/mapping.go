package gormstore

import (
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"gorm.io/datatypes"
)

func reservationModel(reservation safari.Reservation) Reservation {
	createdAt := reservation.CreatedAt.UTC()
	if reservation.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := Reservation{
		ReservationID:    reservation.ID.String(),
		SafariDate:       reservation.Date.String(),
		Token:            int64(reservation.Token),
		Slot:             reservation.Slot.String(),
		Adults:           reservation.Party.Adults,
		Children:         reservation.Party.Children,
		VisitorName:      reservation.Visitor.Name,
		VisitorPhone:     reservation.Visitor.Phone,
		VisitorEmail:     reservation.Visitor.Email,
		BaseCents:        reservation.Amount.BaseCents.Int64(),
		SurchargeCents:   reservation.Amount.SurchargeCents.Int64(),
		TotalCents:       reservation.Amount.TotalCents.Int64(),
		HoldExpiresAt:    reservation.HoldExpiresAt.UTC(),
		Status:           reservation.Status.String(),
		PaymentMethod:    reservation.Payment.Method,
		PaymentReference: reservation.Payment.Reference,
		PaymentMetadata:  datatypesJSON(reservation.Payment.Metadata.String()),
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	if !reservation.Payment.ConfirmedAt.IsZero() {
		confirmedAt := reservation.Payment.ConfirmedAt.UTC()
		model.ConfirmedAt = &confirmedAt
	}
	return model
}

func mapReservation(row Reservation) (safari.Reservation, error) {
	reservationID, err := safari.NewReservationID(row.ReservationID)
	if err != nil {
		return safari.Reservation{}, err
	}
	date, err := safari.NewSafariDate(row.SafariDate)
	if err != nil {
		return safari.Reservation{}, err
	}
	token, err := safari.NewToken(row.Token)
	if err != nil {
		return safari.Reservation{}, err
	}
	slot, err := safari.NewTimeSlot(row.Slot)
	if err != nil {
		return safari.Reservation{}, err
	}
	party, err := safari.NewPartySize(row.Adults, row.Children)
	if err != nil {
		return safari.Reservation{}, err
	}
	status, err := safari.ParseReservationStatus(row.Status)
	if err != nil {
		return safari.Reservation{}, err
	}
	metadata, err := safari.NewMetadataJSON(string(row.PaymentMetadata))
	if err != nil {
		return safari.Reservation{}, err
	}
	payment := safari.PaymentMeta{
		Method:    row.PaymentMethod,
		Reference: row.PaymentReference,
		Metadata:  metadata,
	}
	if row.ConfirmedAt != nil {
		payment.ConfirmedAt = row.ConfirmedAt.UTC()
	}
	return safari.Reservation{
		ID:      reservationID,
		Token:   token,
		Date:    date,
		Slot:    slot,
		Party:   party,
		Visitor: safari.Visitor{Name: row.VisitorName, Phone: row.VisitorPhone, Email: row.VisitorEmail},
		Amount: safari.Amount{
			BaseCents:      safari.AmountCents(row.BaseCents),
			SurchargeCents: safari.AmountCents(row.SurchargeCents),
			TotalCents:     safari.AmountCents(row.TotalCents),
		},
		HoldExpiresAt: row.HoldExpiresAt.UTC(),
		Status:        status,
		Payment:       payment,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func mapReservations(rows []Reservation) ([]safari.Reservation, error) {
	reservations := make([]safari.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func archivedReservationModel(record safari.ArchivedReservation) ArchivedReservation {
	archivedAt := record.ArchivedAt.UTC()
	if record.ArchivedAt.IsZero() {
		archivedAt = time.Now().UTC()
	}
	return ArchivedReservation{
		ReservationID:  record.ReservationID.String(),
		SafariDate:     record.Date.String(),
		Token:          int64(record.Token),
		Slot:           record.Slot.String(),
		Adults:         record.Party.Adults,
		Children:       record.Party.Children,
		VisitorName:    record.Visitor.Name,
		VisitorPhone:   record.Visitor.Phone,
		VisitorEmail:   record.Visitor.Email,
		BaseCents:      record.Amount.BaseCents.Int64(),
		SurchargeCents: record.Amount.SurchargeCents.Int64(),
		TotalCents:     record.Amount.TotalCents.Int64(),
		Reason:         record.Reason,
		ArchivedAt:     archivedAt,
	}
}

func mapArchivedReservation(row ArchivedReservation) (safari.ArchivedReservation, error) {
	reservationID, err := safari.NewReservationID(row.ReservationID)
	if err != nil {
		return safari.ArchivedReservation{}, err
	}
	date, err := safari.NewSafariDate(row.SafariDate)
	if err != nil {
		return safari.ArchivedReservation{}, err
	}
	token, err := safari.NewToken(row.Token)
	if err != nil {
		return safari.ArchivedReservation{}, err
	}
	slot, err := safari.NewTimeSlot(row.Slot)
	if err != nil {
		return safari.ArchivedReservation{}, err
	}
	return safari.ArchivedReservation{
		ReservationID: reservationID,
		Token:         token,
		Date:          date,
		Slot:          slot,
		Party:         safari.PartySize{Adults: row.Adults, Children: row.Children},
		Visitor:       safari.Visitor{Name: row.VisitorName, Phone: row.VisitorPhone, Email: row.VisitorEmail},
		Amount: safari.Amount{
			BaseCents:      safari.AmountCents(row.BaseCents),
			SurchargeCents: safari.AmountCents(row.SurchargeCents),
			TotalCents:     safari.AmountCents(row.TotalCents),
		},
		Reason:     row.Reason,
		ArchivedAt: row.ArchivedAt.UTC(),
	}, nil
}

func vehicleModel(vehicle safari.Vehicle) Vehicle {
	now := time.Now().UTC()
	return Vehicle{
		VehicleID:        vehicle.ID.String(),
		Number:           vehicle.Number,
		Owner:            vehicle.Owner,
		Capacity:         vehicle.Capacity,
		Active:           vehicle.Active,
		UnavailableDates: dateStrings(vehicle.UnavailableDates),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func mapVehicle(row Vehicle) (safari.Vehicle, error) {
	vehicleID, err := safari.NewVehicleID(row.VehicleID)
	if err != nil {
		return safari.Vehicle{}, err
	}
	dates, err := parseDates(row.UnavailableDates)
	if err != nil {
		return safari.Vehicle{}, err
	}
	return safari.Vehicle{
		ID:               vehicleID,
		Number:           row.Number,
		Owner:            row.Owner,
		Capacity:         row.Capacity,
		Active:           row.Active,
		UnavailableDates: dates,
	}, nil
}

func driverModel(driver safari.Driver) Driver {
	now := time.Now().UTC()
	return Driver{
		DriverID:         driver.ID.String(),
		Name:             driver.Name,
		Phone:            driver.Phone,
		Active:           driver.Active,
		UnavailableDates: dateStrings(driver.UnavailableDates),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func mapDriver(row Driver) (safari.Driver, error) {
	driverID, err := safari.NewDriverID(row.DriverID)
	if err != nil {
		return safari.Driver{}, err
	}
	dates, err := parseDates(row.UnavailableDates)
	if err != nil {
		return safari.Driver{}, err
	}
	return safari.Driver{
		ID:               driverID,
		Name:             row.Name,
		Phone:            row.Phone,
		Active:           row.Active,
		UnavailableDates: dates,
	}, nil
}

func vehicleRunModel(run safari.VehicleRun) VehicleRun {
	createdAt := run.CreatedAt.UTC()
	if run.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	passengers := make(datatypes.JSONSlice[PassengerRecord], 0, len(run.Passengers))
	for _, passenger := range run.Passengers {
		passengers = append(passengers, PassengerRecord{
			ReservationID: passenger.ReservationID.String(),
			Token:         int64(passenger.Token),
			SeatIndex:     passenger.SeatIndex,
			SubToken:      passenger.SubToken().String(),
			Name:          passenger.Name,
			Contact:       passenger.Contact,
		})
	}
	model := VehicleRun{
		RunID:       run.ID.String(),
		SafariDate:  run.Date.String(),
		VehicleID:   run.VehicleID.String(),
		RunNumber:   run.RunNumber,
		Capacity:    run.Capacity,
		SeatsFilled: run.SeatsFilled(),
		Passengers:  passengers,
		FillStatus:  run.FillStatus.String(),
		GateStatus:  run.GateStatus.String(),
		PlasticIn:   run.PlasticIn,
		PlasticOut:  run.PlasticOut,
		GateInAt:    utcPointer(run.GateInAt),
		GateOutAt:   utcPointer(run.GateOutAt),
		Version:     run.Version,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if !run.DriverID.IsZero() {
		driverID := run.DriverID.String()
		model.DriverID = &driverID
	}
	return model
}

func mapVehicleRun(row VehicleRun) (safari.VehicleRun, error) {
	runID, err := safari.NewRunID(row.RunID)
	if err != nil {
		return safari.VehicleRun{}, err
	}
	date, err := safari.NewSafariDate(row.SafariDate)
	if err != nil {
		return safari.VehicleRun{}, err
	}
	vehicleID, err := safari.NewVehicleID(row.VehicleID)
	if err != nil {
		return safari.VehicleRun{}, err
	}
	fillStatus, err := safari.ParseFillStatus(row.FillStatus)
	if err != nil {
		return safari.VehicleRun{}, err
	}
	gateStatus, err := safari.ParseGateStatus(row.GateStatus)
	if err != nil {
		return safari.VehicleRun{}, err
	}
	var driverID safari.DriverID
	if row.DriverID != nil && *row.DriverID != "" {
		driverID, err = safari.NewDriverID(*row.DriverID)
		if err != nil {
			return safari.VehicleRun{}, err
		}
	}
	passengers := make([]safari.Passenger, 0, len(row.Passengers))
	for _, record := range row.Passengers {
		reservationID, err := safari.NewReservationID(record.ReservationID)
		if err != nil {
			return safari.VehicleRun{}, fmt.Errorf("run %s passenger: %w", row.RunID, err)
		}
		token, err := safari.NewToken(record.Token)
		if err != nil {
			return safari.VehicleRun{}, fmt.Errorf("run %s passenger: %w", row.RunID, err)
		}
		passengers = append(passengers, safari.Passenger{
			ReservationID: reservationID,
			Token:         token,
			SeatIndex:     record.SeatIndex,
			Name:          record.Name,
			Contact:       record.Contact,
		})
	}
	return safari.VehicleRun{
		ID:         runID,
		Date:       date,
		VehicleID:  vehicleID,
		RunNumber:  row.RunNumber,
		Capacity:   row.Capacity,
		Passengers: passengers,
		DriverID:   driverID,
		FillStatus: fillStatus,
		GateStatus: gateStatus,
		PlasticIn:  row.PlasticIn,
		PlasticOut: row.PlasticOut,
		GateInAt:   utcPointer(row.GateInAt),
		GateOutAt:  utcPointer(row.GateOutAt),
		Version:    row.Version,
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

func gateLogModel(entry safari.GateLog, position int) GateLog {
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return GateLog{
		GateLogID:    entry.ID,
		SafariDate:   entry.Date.String(),
		VehicleID:    entry.VehicleID.String(),
		DriverID:     entry.DriverID.String(),
		RunID:        entry.RunID.String(),
		RunNumber:    entry.RunNumber,
		Token:        int64(entry.Token),
		PersonsCount: entry.PersonsCount,
		Action:       entry.Action.String(),
		Position:     position,
		CreatedAt:    createdAt,
	}
}

func mapGateLog(row GateLog) (safari.GateLog, error) {
	date, err := safari.NewSafariDate(row.SafariDate)
	if err != nil {
		return safari.GateLog{}, err
	}
	vehicleID, err := safari.NewVehicleID(row.VehicleID)
	if err != nil {
		return safari.GateLog{}, err
	}
	driverID, err := safari.NewDriverID(row.DriverID)
	if err != nil {
		return safari.GateLog{}, err
	}
	runID, err := safari.NewRunID(row.RunID)
	if err != nil {
		return safari.GateLog{}, err
	}
	token, err := safari.NewToken(row.Token)
	if err != nil {
		return safari.GateLog{}, err
	}
	action, err := safari.ParseGateAction(row.Action)
	if err != nil {
		return safari.GateLog{}, err
	}
	return safari.GateLog{
		ID:           row.GateLogID,
		Date:         date,
		VehicleID:    vehicleID,
		DriverID:     driverID,
		RunID:        runID,
		RunNumber:    row.RunNumber,
		Token:        token,
		PersonsCount: row.PersonsCount,
		Action:       action,
		CreatedAt:    row.CreatedAt.UTC(),
	}, nil
}

func dateStrings(dates []safari.SafariDate) datatypes.JSONSlice[string] {
	values := make(datatypes.JSONSlice[string], 0, len(dates))
	for _, date := range dates {
		values = append(values, date.String())
	}
	return values
}

func parseDates(values []string) ([]safari.SafariDate, error) {
	dates := make([]safari.SafariDate, 0, len(values))
	for _, value := range values {
		date, err := safari.NewSafariDate(value)
		if err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	return dates, nil
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}
