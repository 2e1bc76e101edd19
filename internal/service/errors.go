package service

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure so the HTTP layer can pick a
// status code without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// User-facing messages.  Clients match on some of these verbatim.
const (
	MsgRequired             = "Required"
	MsgBookingCutoff        = "Reservations can be made up to 11:59 PM for the following day"
	MsgNoSpots              = "No available spots for this date"
	MsgAlreadyCancelled     = "Reservation is already cancelled"
	MsgReservationNotFound  = "Reservation not found"
	MsgUserNotInReservation = "User not found in reservation"
	MsgUserNotFound         = "User not found"
	MsgNoAccess             = "You do not have access to this reservation"
	MsgPrimaryOnly          = "Only the primary user can manage this reservation"
	MsgPrimaryMustCancel    = "Primary user must cancel the entire reservation"
	MsgAlreadyParticipant   = "User already holds a spot in this reservation"
	MsgAlreadyBookedOnDate  = "User already has a reservation on this date"
	MsgDuplicateUsers       = "Duplicate users in request"

	MsgTransferNotFound       = "Transfer not found or not pending"
	MsgTransferExpired        = "Transfer has expired"
	MsgTransferNotPending     = "Transfer is no longer pending"
	MsgNotRecipient           = "User is not the intended recipient of this transfer"
	MsgOwnSpotOnly            = "Non-primary users can only transfer their own spot"
	MsgPrimaryTransferOnly    = "Only the primary user can transfer primary status"
	MsgPrimarySpotMismatch    = "Primary status must be transferred together with the primary user's spot"
	MsgDeadlinePassed         = "Transfer deadline has passed"
	MsgTransferPending        = "A transfer is already pending for this reservation"
	MsgTransfersNotAllowed    = "Transfers are not allowed for this reservation"
	MsgSelfTransfer           = "Cannot transfer a spot to yourself"
	MsgSpotNoLongerHeld       = "A transferred spot is no longer held"
	msgConsecutiveLimitFormat = "Cannot make reservation. Users are limited to %d consecutive days."
	msgPartyTooLargeFormat    = "A reservation can include at most %d people"
)

// Error is a classified failure carrying the message shown to the caller.
// Field names the offending input when there is one.
type Error struct {
	Kind    Kind
	Message string
	Field   string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Validation reports malformed or out-of-range input.
func Validation(msg string) *Error { return newError(KindValidation, msg) }

// FieldValidation is Validation tied to one input field.
func FieldValidation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Field: field}
}

// Unauthenticated reports a missing or invalid session.
func Unauthenticated(msg string) *Error { return newError(KindAuthentication, msg) }

// Forbidden reports an authenticated caller acting outside their rights.
func Forbidden(msg string) *Error { return newError(KindAuthorization, msg) }

// NotFound reports a missing referenced entity.
func NotFound(msg string) *Error { return newError(KindNotFound, msg) }

// Conflict reports a business-rule or capacity conflict.
func Conflict(msg string) *Error { return newError(KindConflict, msg) }

// ConsecutiveLimit is the Conflict raised by the consecutive-days rule.
func ConsecutiveLimit(maxDays int) *Error {
	return Conflict(fmt.Sprintf(msgConsecutiveLimitFormat, maxDays))
}

// KindOf returns the classification of err, or KindInternal for anything
// that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsForbidden(err error) bool  { return KindOf(err) == KindAuthorization }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}
