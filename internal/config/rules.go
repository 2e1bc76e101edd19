package config

import (
    "fmt"
    "os"
    "time"

    "gopkg.in/yaml.v3"
)

// Rules are the booking limits enforced by the reservation engine.
type Rules struct {
    MaxDailyCapacity     int           `yaml:"maxDailyCapacity"`
    MaxConsecutiveDays   int           `yaml:"maxConsecutiveDays"`
    MaxPartySize         int           `yaml:"maxPartySize"`
    TransferWindow       time.Duration `yaml:"transferWindow"`
    TransferDeadlineHour int           `yaml:"transferDeadlineHour"`
    Timezone             string        `yaml:"timezone"`
    MaxRangeDays         int           `yaml:"maxRangeDays"`

    Location *time.Location `yaml:"-"`
}

// DefaultRules returns the park's standard limits.
func DefaultRules() Rules {
    return Rules{
        MaxDailyCapacity:     60,
        MaxConsecutiveDays:   3,
        MaxPartySize:         4,
        TransferWindow:       24 * time.Hour,
        TransferDeadlineHour: 17,
        Timezone:             "America/Chicago",
        MaxRangeDays:         92,
    }
}

// LoadRules starts from DefaultRules, overlays the YAML file at path (if
// any) and then the BOOKING_* environment variables, and resolves the
// timezone.
func LoadRules(path string) (Rules, error) {
    r := DefaultRules()
    if path != "" {
        raw, err := os.ReadFile(path)
        if err != nil {
            return Rules{}, fmt.Errorf("read rules: %w", err)
        }
        if err := yaml.Unmarshal(raw, &r); err != nil {
            return Rules{}, fmt.Errorf("parse rules: %w", err)
        }
    }

    r.MaxDailyCapacity = envInt("BOOKING_MAX_DAILY_CAPACITY", r.MaxDailyCapacity)
    r.MaxConsecutiveDays = envInt("BOOKING_MAX_CONSECUTIVE_DAYS", r.MaxConsecutiveDays)
    r.MaxPartySize = envInt("BOOKING_MAX_PARTY_SIZE", r.MaxPartySize)
    r.TransferWindow = envDur("BOOKING_TRANSFER_WINDOW", r.TransferWindow)
    r.TransferDeadlineHour = envInt("BOOKING_TRANSFER_DEADLINE_HOUR", r.TransferDeadlineHour)
    r.Timezone = envStr("BOOKING_TIMEZONE", r.Timezone)
    r.MaxRangeDays = envInt("BOOKING_MAX_RANGE_DAYS", r.MaxRangeDays)

    if err := r.validate(); err != nil {
        return Rules{}, err
    }
    loc, err := time.LoadLocation(r.Timezone)
    if err != nil {
        return Rules{}, fmt.Errorf("load timezone %q: %w", r.Timezone, err)
    }
    r.Location = loc
    return r, nil
}

func (r Rules) validate() error {
    switch {
    case r.MaxDailyCapacity < 1:
        return fmt.Errorf("maxDailyCapacity must be positive, got %d", r.MaxDailyCapacity)
    case r.MaxConsecutiveDays < 1:
        return fmt.Errorf("maxConsecutiveDays must be positive, got %d", r.MaxConsecutiveDays)
    case r.MaxPartySize < 1:
        return fmt.Errorf("maxPartySize must be positive, got %d", r.MaxPartySize)
    case r.TransferWindow <= 0:
        return fmt.Errorf("transferWindow must be positive, got %s", r.TransferWindow)
    case r.TransferDeadlineHour < 0 || r.TransferDeadlineHour > 23:
        return fmt.Errorf("transferDeadlineHour out of range: %d", r.TransferDeadlineHour)
    case r.MaxRangeDays < 1:
        return fmt.Errorf("maxRangeDays must be positive, got %d", r.MaxRangeDays)
    }
    return nil
}
