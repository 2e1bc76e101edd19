package handler

import (
    "net/mail"
    "regexp"
    "strings"
    "time"
    "unicode"

    "github.com/iliyamo/park-reservation/internal/model"
    "github.com/iliyamo/park-reservation/internal/service"
)

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

var (
    stateRe = regexp.MustCompile(`^[A-Za-z]{2}$`)
    zipRe   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

func validateEmail(email string) error {
    if email == "" {
        return service.FieldValidation("email", service.MsgRequired)
    }
    addr, err := mail.ParseAddress(email)
    if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
        return service.FieldValidation("email", "Invalid email")
    }
    return nil
}

// validatePassword applies the rules in the order a user would fix them.
func validatePassword(pw string) error {
    if pw == "" {
        return service.FieldValidation("password", service.MsgRequired)
    }
    if len([]rune(pw)) < 12 {
        return service.FieldValidation("password", "Password must be at least 12 characters")
    }
    var upper, digit, special bool
    for _, r := range pw {
        switch {
        case unicode.IsUpper(r):
            upper = true
        case unicode.IsDigit(r):
            digit = true
        case strings.ContainsRune(passwordSpecials, r):
            special = true
        }
    }
    if !upper {
        return service.FieldValidation("password", "Password must contain at least one uppercase letter")
    }
    if !digit {
        return service.FieldValidation("password", "Password must contain at least one number")
    }
    if !special {
        return service.FieldValidation("password", `Password must contain at least one special character (!@#$%^&*(),.?":{}|<>)`)
    }
    return nil
}

func validateAddress(a model.Address) error {
    switch {
    case a.Street == "":
        return service.FieldValidation("street", service.MsgRequired)
    case a.City == "":
        return service.FieldValidation("city", service.MsgRequired)
    case a.State == "":
        return service.FieldValidation("state", service.MsgRequired)
    case !stateRe.MatchString(a.State):
        return service.FieldValidation("state", "State must be 2 letters")
    case a.Zip == "":
        return service.FieldValidation("zip", service.MsgRequired)
    case !zipRe.MatchString(a.Zip):
        return service.FieldValidation("zip", "Invalid ZIP code")
    }
    return nil
}

func trimAddress(a model.Address) model.Address {
    return model.Address{
        Street: strings.TrimSpace(a.Street),
        City:   strings.TrimSpace(a.City),
        State:  strings.ToUpper(strings.TrimSpace(a.State)),
        Zip:    strings.TrimSpace(a.Zip),
    }
}

// parseDateRange validates an availability query.  today is the current
// civil date in the park's time zone; maxDays caps the span.
func parseDateRange(rawStart, rawEnd string, today time.Time, maxDays int) (time.Time, time.Time, error) {
    if rawStart == "" || rawEnd == "" {
        return time.Time{}, time.Time{}, service.Validation("Both start and end dates are required")
    }
    start, err := parseDateField("start", rawStart)
    if err != nil {
        return time.Time{}, time.Time{}, err
    }
    end, err := parseDateField("end", rawEnd)
    if err != nil {
        return time.Time{}, time.Time{}, err
    }
    if end.Before(start) {
        return time.Time{}, time.Time{}, service.Validation("Start date must be before or equal to end date")
    }
    if end.After(start.AddDate(0, 0, maxDays)) {
        return time.Time{}, time.Time{}, service.Validation("Date range cannot exceed 3 months")
    }
    if start.Before(today) {
        return time.Time{}, time.Time{}, service.FieldValidation("start", "Start date must not be in the past")
    }
    return start, end, nil
}
