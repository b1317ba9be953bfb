package safari

import (
	"fmt"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultSlotLimit              = 60
	DefaultHoldDuration           = 15 * time.Minute
	DefaultAdultRateCents         = 60000
	DefaultChildRateCents         = 30000
	DefaultSurchargeBasisPoints   = 236
	DefaultVehicleCapacity        = 6
	DefaultMaxTransactionAttempts = 3

	basisPointsDivisor = 10000
)

// DefaultSlotNames lists the slots offered when none are configured.
var DefaultSlotNames = []string{"10:00 - 12:00", "12:00 - 14:00", "14:00 - 16:00", "16:00 - 18:00"}

// SlotConfig declares one bookable slot and its seat ceiling.
type SlotConfig struct {
	Name  string
	Limit int
}

// Config carries the tunable parameters of the service.
type Config struct {
	Slots                  []SlotConfig
	HoldDuration           time.Duration
	AdultRateCents         AmountCents
	ChildRateCents         AmountCents
	SurchargeBasisPoints   int64
	DefaultVehicleCapacity int
	MaxTransactionAttempts int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	slots := make([]SlotConfig, 0, len(DefaultSlotNames))
	for _, name := range DefaultSlotNames {
		slots = append(slots, SlotConfig{Name: name, Limit: DefaultSlotLimit})
	}
	return Config{
		Slots:                  slots,
		HoldDuration:           DefaultHoldDuration,
		AdultRateCents:         DefaultAdultRateCents,
		ChildRateCents:         DefaultChildRateCents,
		SurchargeBasisPoints:   DefaultSurchargeBasisPoints,
		DefaultVehicleCapacity: DefaultVehicleCapacity,
		MaxTransactionAttempts: DefaultMaxTransactionAttempts,
	}
}

// Validate checks the configuration for internal consistency.
func (config Config) Validate() error {
	if len(config.Slots) == 0 {
		return fmt.Errorf("%w: at least one slot is required", ErrInvalidServiceConfig)
	}
	seen := make(map[string]struct{}, len(config.Slots))
	for _, slot := range config.Slots {
		name := strings.TrimSpace(slot.Name)
		if name == "" {
			return fmt.Errorf("%w: slot name is empty", ErrInvalidServiceConfig)
		}
		if _, duplicate := seen[name]; duplicate {
			return fmt.Errorf("%w: slot %q declared twice", ErrInvalidServiceConfig, name)
		}
		seen[name] = struct{}{}
		if slot.Limit < 1 {
			return fmt.Errorf("%w: slot %q limit must be positive", ErrInvalidServiceConfig, name)
		}
	}
	if config.HoldDuration <= 0 {
		return fmt.Errorf("%w: hold duration must be positive", ErrInvalidServiceConfig)
	}
	if config.AdultRateCents < 0 || config.ChildRateCents < 0 {
		return fmt.Errorf("%w: rates must not be negative", ErrInvalidServiceConfig)
	}
	if config.SurchargeBasisPoints < 0 {
		return fmt.Errorf("%w: surcharge must not be negative", ErrInvalidServiceConfig)
	}
	if config.DefaultVehicleCapacity < 1 {
		return fmt.Errorf("%w: vehicle capacity must be positive", ErrInvalidServiceConfig)
	}
	if config.MaxTransactionAttempts < 1 {
		return fmt.Errorf("%w: transaction attempts must be positive", ErrInvalidServiceConfig)
	}
	return nil
}

func (config Config) slotLimit(slot TimeSlot) (int, bool) {
	for _, candidate := range config.Slots {
		if strings.TrimSpace(candidate.Name) == slot.String() {
			return candidate.Limit, true
		}
	}
	return 0, false
}

// SlotNames returns the configured slot names in order.
func (config Config) SlotNames() []string {
	names := make([]string, 0, len(config.Slots))
	for _, slot := range config.Slots {
		names = append(names, strings.TrimSpace(slot.Name))
	}
	return names
}

// Quote prices a party: base is adults×adult rate plus children×child rate,
// surcharge is base×basis points/10000 rounded half up to the cent.
func (config Config) Quote(party PartySize) Amount {
	base := int64(party.Adults)*config.AdultRateCents.Int64() + int64(party.Children)*config.ChildRateCents.Int64()
	surcharge := (base*config.SurchargeBasisPoints + basisPointsDivisor/2) / basisPointsDivisor
	return Amount{
		BaseCents:      AmountCents(base),
		SurchargeCents: AmountCents(surcharge),
		TotalCents:     AmountCents(base + surcharge),
	}
}
