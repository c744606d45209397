/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, live session error frames and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError template for every application error code.
// The key is the error code, the value carries the user message, HTTP status and kind.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Kind: KindValidation},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Kind: KindValidation},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Kind: KindValidation},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Kind: KindValidation},
	ErrFormParseFailed:       {Code: ErrFormParseFailed, Message: "Failed to process uploaded data.", Kind: KindValidation},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Kind: KindValidation},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests, Kind: KindValidation},
	ErrUnknownCommand:        {Code: ErrUnknownCommand, Message: "Unknown command: %s.", Kind: KindValidation},

	// 22xx: Message Content Errors
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long.", Kind: KindValidation},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message cannot be empty.", Kind: KindValidation},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "File is too large, the limit is %d MB.", Kind: KindValidation},
	ErrFileTypeInvalid:       {Code: ErrFileTypeInvalid, Message: "Only JPEG and PNG images are allowed.", Kind: KindValidation},
	ErrImageURLInvalid:       {Code: ErrImageURLInvalid, Message: "Invalid image attachment.", Kind: KindValidation},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound, Kind: KindValidation},
	ErrReportSelf:            {Code: ErrReportSelf, Message: "You cannot report yourself.", Kind: KindValidation},
	ErrFileNotFound:          {Code: ErrFileNotFound, Message: "File not found.", Status: http.StatusNotFound, Kind: KindValidation},

	// 23xx: Permission Errors
	ErrDeleteForbidden: {Code: ErrDeleteForbidden, Message: "You can only delete your own messages.", Status: http.StatusForbidden, Kind: KindPermission},

	// 24xx: Profile Errors
	ErrNameLength:   {Code: ErrNameLength, Message: "Name must be between 3 and 15 characters.", Kind: KindValidation},
	ErrNameCooldown: {Code: ErrNameCooldown, Message: "You can change your name again in %d day(s).", Kind: KindValidation},
	ErrNameTaken:    {Code: ErrNameTaken, Message: "This name is already taken.", Kind: KindValidation},
	ErrColorInvalid: {Code: ErrColorInvalid, Message: "Pure black and pure white colors are not allowed.", Kind: KindValidation},
	ErrBadgeTooLong: {Code: ErrBadgeTooLong, Message: "Badge text can be at most 10 characters.", Kind: KindValidation},
	ErrUserNotFound: {Code: ErrUserNotFound, Message: "User not found.", Status: http.StatusNotFound, Kind: KindValidation},

	// 3xxx: User, Session, and Security Errors
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again.", Kind: KindValidation},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again.", Kind: KindValidation},
	ErrPowChallengeInternal: {Code: ErrPowChallengeInternal, Message: "Verification service error. Please try again later.", Kind: KindInternal},
	ErrSessionKicked:        {Code: ErrSessionKicked, Message: "Your account was removed or your session expired.", Kind: KindAuth},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized, Kind: KindAuth},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Incorrect email or password.", Status: http.StatusUnauthorized, Kind: KindAuth},
	ErrSessionExpired:       {Code: ErrSessionExpired, Message: "Your session has expired. Please sign in again.", Status: http.StatusUnauthorized, Kind: KindAuth},
	ErrAccountNotFound:      {Code: ErrAccountNotFound, Message: "Account not found.", Status: http.StatusUnauthorized, Kind: KindAuth},
	ErrUserAlreadyExists:    {Code: ErrUserAlreadyExists, Message: "This email is already registered.", Kind: KindValidation},
	ErrInvalidEmail:         {Code: ErrInvalidEmail, Message: "Invalid email address.", Kind: KindValidation},
	ErrInvalidPassword:      {Code: ErrInvalidPassword, Message: "Password must be between 6 and 50 characters.", Kind: KindValidation},
	ErrAlreadyLoggedIn:      {Code: ErrAlreadyLoggedIn, Message: "You are already signed in.", Kind: KindAuth},
	ErrNotSignedIn:          {Code: ErrNotSignedIn, Message: "You are not signed in.", Status: http.StatusUnauthorized, Kind: KindAuth},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError, Kind: KindInternal},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again.", Kind: KindTransport},
	ErrStoreUnavailable:  {Code: ErrStoreUnavailable, Message: "Could not reach the server. Please try again.", Status: http.StatusServiceUnavailable, Kind: KindTransport},
	ErrPushFailed:        {Code: ErrPushFailed, Message: "Could not register for notifications.", Kind: KindTransport},
}
