package world

import "errors"

// Error is a categorized WorldError. The kernel never panics on caller
// mistakes or concurrent-state inconsistencies. Most failure paths return
// one of these; EmitEffect returns *PolicyDeniedError on a policy deny, the
// governance methods return pkg/governance's errors unchanged, and
// ExecuteModuleCall returns the executor's *ModuleCallFailure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

// ErrorKind enumerates the abstract WorldError taxonomy.
type ErrorKind string

const (
	ErrJournalMismatch      ErrorKind = "JournalMismatch"
	ErrCapabilityMissing    ErrorKind = "CapabilityMissing"
	ErrCapabilityExpired    ErrorKind = "CapabilityExpired"
	ErrCapabilityNotAllowed ErrorKind = "CapabilityNotAllowed"
	ErrPolicyDenied         ErrorKind = "PolicyDenied"
	ErrReceiptUnknownIntent ErrorKind = "ReceiptUnknownIntent"
	ErrReceiptSigInvalid    ErrorKind = "ReceiptSignatureInvalid"
	ErrProposalNotFound     ErrorKind = "ProposalNotFound"
	ErrProposalInvalidState ErrorKind = "ProposalInvalidState"
	ErrPatchBaseMismatch    ErrorKind = "PatchBaseMismatch"
	ErrPatchInvalidPath     ErrorKind = "PatchInvalidPath"
	ErrPatchNonObject       ErrorKind = "PatchNonObject"
	ErrSignatureKeyInvalid  ErrorKind = "SignatureKeyInvalid"
	ErrIO                   ErrorKind = "Io"
	ErrSerde                ErrorKind = "Serde"
)

func newErr(kind ErrorKind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// PolicyDeniedError carries the intent_id alongside the deny so emit_effect's
// caller still learns which allocation was rejected.
type PolicyDeniedError struct {
	IntentID string
	Reason   string
}

func (e *PolicyDeniedError) Error() string {
	return "PolicyDenied: intent " + e.IntentID + ": " + e.Reason
}
