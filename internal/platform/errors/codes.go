// Package errors provides structured error handling for the chat domain.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Identifier errors
	CodeInvalidIdentifier Code = "INVALID_IDENTIFIER"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeConflict      Code = "CONFLICT"

	// Room log errors
	CodeRoomNameEmpty          Code = "ROOM_NAME_EMPTY"
	CodeInvalidRoomPurpose     Code = "ROOM_INVALID_PURPOSE"
	CodeInvalidActionCategory  Code = "ACTION_INVALID_CATEGORY"
	CodeOccupantRequired       Code = "ACTION_OCCUPANT_REQUIRED"
	CodeNotRoomMember          Code = "ACTION_NOT_ROOM_MEMBER"
	CodeAttachmentsNotAllowed  Code = "ACTION_ATTACHMENTS_NOT_ALLOWED"
	CodeActionDetailsMalformed Code = "ACTION_DETAILS_MALFORMED"

	// Account errors
	CodeUsernameEmpty      Code = "ACCOUNT_USERNAME_EMPTY"
	CodeUsernameTaken      Code = "ACCOUNT_USERNAME_TAKEN"
	CodePasswordTooShort   Code = "ACCOUNT_PASSWORD_TOO_SHORT"
	CodeCredentialsInvalid Code = "ACCOUNT_CREDENTIALS_INVALID"
	CodeTokenInvalid       Code = "ACCOUNT_TOKEN_INVALID"
)

// GRPCCode maps domain codes to gRPC status codes. The realtime transport
// reuses the same vocabulary for its error envelopes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidIdentifier,
		CodeRoomNameEmpty,
		CodeInvalidRoomPurpose,
		CodeInvalidActionCategory,
		CodeAttachmentsNotAllowed,
		CodeActionDetailsMalformed,
		CodeUsernameEmpty,
		CodePasswordTooShort:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow the operation
	case CodeOccupantRequired,
		CodeNotRoomMember:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	case CodeAlreadyExists,
		CodeUsernameTaken:
		return codes.AlreadyExists

	// Aborted - serialization conflict, caller retries the whole operation
	case CodeConflict:
		return codes.Aborted

	case CodeCredentialsInvalid,
		CodeTokenInvalid:
		return codes.Unauthenticated

	default:
		return codes.Internal
	}
}
