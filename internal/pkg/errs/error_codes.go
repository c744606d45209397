/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the
server and in frames sent to clients over HTTP and the live session.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrFormParseFailed indicates failure to parse multipart or URL-encoded form data.
	ErrFormParseFailed = 1005

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnknownCommand indicates a live session frame with an unrecognised type.
	ErrUnknownCommand = 1008
)

// 22xx: Message Content Errors
const (
	// ErrMessageContentTooLong indicates that the user's message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates a send with neither text nor image.
	ErrMessageEmpty = 2202

	// ErrFileSizeTooLarge indicates an attachment above the size ceiling.
	ErrFileSizeTooLarge = 2203

	// ErrFileTypeInvalid indicates an attachment that is not a JPEG or PNG image.
	ErrFileTypeInvalid = 2204

	// ErrImageURLInvalid indicates an image URL that was not produced by an upload.
	ErrImageURLInvalid = 2205

	// ErrMessageNotFound indicates that the target message no longer exists.
	ErrMessageNotFound = 2206

	// ErrReportSelf indicates an attempt to report one's own message.
	ErrReportSelf = 2207

	// ErrFileNotFound indicates a download for a key with no stored object.
	ErrFileNotFound = 2208
)

// 23xx: Permission Errors
const (
	// ErrDeleteForbidden indicates a delete attempted by neither the author nor a moderator.
	ErrDeleteForbidden = 2301
)

// 24xx: Profile Errors
const (
	// ErrNameLength indicates a display name outside the allowed length.
	ErrNameLength = 2401

	// ErrNameCooldown indicates a rename attempted before the cooldown elapsed.
	ErrNameCooldown = 2402

	// ErrNameTaken indicates a display name already held by another user.
	ErrNameTaken = 2403

	// ErrColorInvalid indicates a pure black or pure white color.
	ErrColorInvalid = 2404

	// ErrBadgeTooLong indicates badge text above the allowed length.
	ErrBadgeTooLong = 2405

	// ErrUserNotFound indicates that the user document does not exist.
	ErrUserNotFound = 2406
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrPowChallengeInternal indicates an internal error occurred during the PoW challenge generation or validation process.
	ErrPowChallengeInternal = 3003

	// ErrSessionKicked indicates that the current client connection has been terminated.
	ErrSessionKicked = 3004

	// ErrUnauthorized indicates a missing or malformed credential.
	ErrUnauthorized = 3005

	// ErrInvalidCredentials indicates a wrong email or password.
	ErrInvalidCredentials = 3006

	// ErrSessionExpired indicates a credential past its expiry.
	ErrSessionExpired = 3007

	// ErrAccountNotFound indicates the account behind a credential no longer exists.
	ErrAccountNotFound = 3008

	// ErrUserAlreadyExists indicates the email is already registered.
	ErrUserAlreadyExists = 3009

	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = 3010

	// ErrInvalidPassword indicates a password outside the allowed length.
	ErrInvalidPassword = 3011

	// ErrAlreadyLoggedIn indicates a sign-in while a session is active.
	ErrAlreadyLoggedIn = 3012

	// ErrNotSignedIn indicates an operation that needs an active session.
	ErrNotSignedIn = 3013
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates a blob store failure.
	ErrFileStorageFailed = 5001

	// ErrStoreUnavailable indicates a document store read or write failure.
	ErrStoreUnavailable = 5002

	// ErrPushFailed indicates a push gateway failure.
	ErrPushFailed = 5003
)
