/*
Package errs provides the coded application error used by services and HTTP handlers.

Codes are grouped by range so clients can branch on the family without knowing every code.
*/
package errs

// 1xxx: request handling
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrFormParseFailed indicates failure to parse multipart or URL-encoded form data.
	ErrFormParseFailed = 1005

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the caller exceeded its request budget.
	ErrRateLimitExceeded = 1007
)

// 2xxx: chats, messages and attachments
const (
	ErrChatNotFound        = 2101
	ErrNotChatMember       = 2102
	ErrInvalidChatData     = 2103
	ErrNotGroupChat        = 2104
	ErrNotGroupAdmin       = 2105
	ErrAlreadyMember       = 2106
	ErrUserNotInGroup      = 2107
	ErrAlreadyAdmin        = 2108
	ErrUserNotAdmin        = 2109
	ErrDirectChatMembers   = 2110
	ErrAdminsMustBeMembers = 2111

	ErrMessageNotFound       = 2201
	ErrEmptyMessage          = 2202
	ErrMessageContentTooLong = 2203
	ErrNotMessageSender      = 2204

	ErrFileSizeTooLarge = 2301
	ErrFileTypeInvalid  = 2302
)

// 3xxx: users, sessions and security
const (
	ErrUnauthorized         = 3001
	ErrEmailAlreadyExists   = 3002
	ErrInvalidCredentials   = 3003
	ErrUserNotFound         = 3004
	ErrAlreadyLoggedIn      = 3005
	ErrPowChallengeRequired = 3006
	ErrPowChallengeInvalid  = 3007
)

// 5xxx: internal
const (
	// ErrUnknown represents an unclassified server error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates that the object store rejected an upload or is not configured.
	ErrFileStorageFailed = 5001
)
