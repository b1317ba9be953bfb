package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reservation mirrors the reservations table.
type Reservation struct {
	ReservationID    string         `gorm:"size:64;primaryKey"`
	SafariDate       string         `gorm:"size:10;not null;index:idx_reservations_date_token,unique,priority:1;index:idx_reservations_date_slot,priority:1"`
	Token            int64          `gorm:"not null;index:idx_reservations_date_token,unique,priority:2"`
	Slot             string         `gorm:"size:64;not null;index:idx_reservations_date_slot,priority:2"`
	Adults           int            `gorm:"not null"`
	Children         int            `gorm:"not null"`
	VisitorName      string         `gorm:"size:255;not null;default:''"`
	VisitorPhone     string         `gorm:"size:32;not null;default:''"`
	VisitorEmail     string         `gorm:"size:255;not null;default:''"`
	BaseCents        int64          `gorm:"not null"`
	SurchargeCents   int64          `gorm:"not null"`
	TotalCents       int64          `gorm:"not null"`
	HoldExpiresAt    time.Time      `gorm:"not null;index:idx_reservations_status_expiry,priority:2"`
	Status           string         `gorm:"size:16;not null;index:idx_reservations_status_expiry,priority:1"`
	PaymentMethod    string         `gorm:"size:32;not null;default:''"`
	PaymentReference string         `gorm:"size:128;not null;default:''"`
	PaymentMetadata  datatypes.JSON `gorm:"not null"`
	ConfirmedAt      *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

// ArchivedReservation mirrors the archived_reservations table. One row per
// reservation id.
type ArchivedReservation struct {
	ReservationID  string    `gorm:"size:64;primaryKey"`
	SafariDate     string    `gorm:"size:10;not null;index"`
	Token          int64     `gorm:"not null"`
	Slot           string    `gorm:"size:64;not null"`
	Adults         int       `gorm:"not null"`
	Children       int       `gorm:"not null"`
	VisitorName    string    `gorm:"size:255;not null;default:''"`
	VisitorPhone   string    `gorm:"size:32;not null;default:''"`
	VisitorEmail   string    `gorm:"size:255;not null;default:''"`
	BaseCents      int64     `gorm:"not null"`
	SurchargeCents int64     `gorm:"not null"`
	TotalCents     int64     `gorm:"not null"`
	Reason         string    `gorm:"size:255;not null"`
	ArchivedAt     time.Time `gorm:"not null"`
}

func (ArchivedReservation) TableName() string { return "archived_reservations" }

// Vehicle mirrors the vehicles table.
type Vehicle struct {
	VehicleID        string                      `gorm:"size:64;primaryKey"`
	Number           string                      `gorm:"size:64;not null;uniqueIndex"`
	Owner            string                      `gorm:"size:255;not null;default:''"`
	Capacity         int                         `gorm:"not null"`
	Active           bool                        `gorm:"not null"`
	UnavailableDates datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt        time.Time                   `gorm:"not null"`
	UpdatedAt        time.Time                   `gorm:"not null"`
}

func (Vehicle) TableName() string { return "vehicles" }

func (vehicle *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if vehicle.VehicleID == "" {
		vehicle.VehicleID = uuid.NewString()
	}
	return nil
}

// Driver mirrors the drivers table.
type Driver struct {
	DriverID         string                      `gorm:"size:64;primaryKey"`
	Name             string                      `gorm:"size:255;not null"`
	Phone            string                      `gorm:"size:32;not null;default:''"`
	Active           bool                        `gorm:"not null"`
	UnavailableDates datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt        time.Time                   `gorm:"not null"`
	UpdatedAt        time.Time                   `gorm:"not null"`
}

func (Driver) TableName() string { return "drivers" }

func (driver *Driver) BeforeCreate(tx *gorm.DB) error {
	if driver.DriverID == "" {
		driver.DriverID = uuid.NewString()
	}
	return nil
}

// PassengerRecord is one element of vehicle_runs.passengers.
type PassengerRecord struct {
	ReservationID string `json:"reservationId"`
	Token         int64  `json:"token"`
	SeatIndex     int    `json:"seatIndex"`
	SubToken      string `json:"subToken"`
	Name          string `json:"name"`
	Contact       string `json:"contact"`
}

// VehicleRun mirrors the vehicle_runs table.
type VehicleRun struct {
	RunID       string                               `gorm:"size:64;primaryKey"`
	SafariDate  string                               `gorm:"size:10;not null;index;index:idx_runs_vehicle_date_number,unique,priority:2"`
	VehicleID   string                               `gorm:"size:64;not null;index:idx_runs_vehicle_date_number,unique,priority:1"`
	RunNumber   int                                  `gorm:"not null;index:idx_runs_vehicle_date_number,unique,priority:3"`
	Capacity    int                                  `gorm:"not null"`
	SeatsFilled int                                  `gorm:"not null"`
	Passengers  datatypes.JSONSlice[PassengerRecord] `gorm:"not null"`
	DriverID    *string                              `gorm:"size:64;index"`
	FillStatus  string                               `gorm:"size:16;not null"`
	GateStatus  string                               `gorm:"size:16;not null"`
	PlasticIn   *int
	PlasticOut  *int
	GateInAt    *time.Time
	GateOutAt   *time.Time
	Version     int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (VehicleRun) TableName() string { return "vehicle_runs" }

// GateLog mirrors the gate_logs table.
type GateLog struct {
	GateLogID    string    `gorm:"size:64;primaryKey"`
	SafariDate   string    `gorm:"size:10;not null;index:idx_gate_logs_date_created,priority:1"`
	VehicleID    string    `gorm:"size:64;not null"`
	DriverID     string    `gorm:"size:64;not null"`
	RunID        string    `gorm:"size:64;not null;index"`
	RunNumber    int       `gorm:"not null"`
	Token        int64     `gorm:"not null"`
	PersonsCount int       `gorm:"not null"`
	Action       string    `gorm:"size:16;not null"`
	Position     int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_gate_logs_date_created,priority:2"`
}

func (GateLog) TableName() string { return "gate_logs" }

func (gateLog *GateLog) BeforeCreate(tx *gorm.DB) error {
	if gateLog.GateLogID == "" {
		gateLog.GateLogID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Reservation{},
		&ArchivedReservation{},
		&Vehicle{},
		&Driver{},
		&VehicleRun{},
		&GateLog{},
	}
}
