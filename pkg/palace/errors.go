package palace

import "github.com/palace-sh/palace/pkg/fault"

// Error kind re-exports so callers can classify failures without importing
// the fault package directly.
const (
	KindNotFound      = fault.KindNotFound
	KindValidation    = fault.KindValidation
	KindIntegrity     = fault.KindIntegrity
	KindLimitExceeded = fault.KindLimitExceeded
	KindConflict      = fault.KindConflict
	KindPartial       = fault.KindPartial
	KindInternal      = fault.KindInternal
)

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return fault.IsKind(err, fault.KindNotFound)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return fault.IsKind(err, fault.KindValidation)
}

// IsIntegrity reports whether err is an integrity failure, such as an import
// package whose checksum does not match its payload.
func IsIntegrity(err error) bool {
	return fault.IsKind(err, fault.KindIntegrity)
}
