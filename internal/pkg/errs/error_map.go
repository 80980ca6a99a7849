package errs

import "net/http"

// errorMap holds the user-facing message and HTTP status for every code.
var errorMap = map[int]CustomError{
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Malformed JSON body.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrFormParseFailed:       {Code: ErrFormParseFailed, Message: "Failed to process uploaded data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	ErrChatNotFound:        {Code: ErrChatNotFound, Message: "Chat not found.", Status: http.StatusNotFound},
	ErrNotChatMember:       {Code: ErrNotChatMember, Message: "You are not a member of this chat.", Status: http.StatusForbidden},
	ErrInvalidChatData:     {Code: ErrInvalidChatData, Message: "Invalid chat data.", Status: http.StatusBadRequest},
	ErrNotGroupChat:        {Code: ErrNotGroupChat, Message: "Only group chats support this operation.", Status: http.StatusBadRequest},
	ErrNotGroupAdmin:       {Code: ErrNotGroupAdmin, Message: "You are not an admin of this group.", Status: http.StatusForbidden},
	ErrAlreadyMember:       {Code: ErrAlreadyMember, Message: "User already in the group.", Status: http.StatusBadRequest},
	ErrUserNotInGroup:      {Code: ErrUserNotInGroup, Message: "User is not a member of this group.", Status: http.StatusBadRequest},
	ErrAlreadyAdmin:        {Code: ErrAlreadyAdmin, Message: "User is already an admin.", Status: http.StatusBadRequest},
	ErrUserNotAdmin:        {Code: ErrUserNotAdmin, Message: "User is not an admin.", Status: http.StatusBadRequest},
	ErrDirectChatMembers:   {Code: ErrDirectChatMembers, Message: "Two different members are required for a direct chat.", Status: http.StatusBadRequest},
	ErrAdminsMustBeMembers: {Code: ErrAdminsMustBeMembers, Message: "All group admins must also be members of the chat.", Status: http.StatusBadRequest},

	ErrMessageNotFound:       {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrEmptyMessage:          {Code: ErrEmptyMessage, Message: "Message text or attachment is required.", Status: http.StatusBadRequest},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d bytes).", Status: http.StatusBadRequest},
	ErrNotMessageSender:      {Code: ErrNotMessageSender, Message: "Only the sender can delete this message for everyone.", Status: http.StatusForbidden},

	ErrFileSizeTooLarge: {Code: ErrFileSizeTooLarge, Message: "File is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrFileTypeInvalid:  {Code: ErrFileTypeInvalid, Message: "File type is not allowed.", Status: http.StatusUnsupportedMediaType},

	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrEmailAlreadyExists:   {Code: ErrEmailAlreadyExists, Message: "Email already exists.", Status: http.StatusConflict},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Incorrect email or password.", Status: http.StatusBadRequest},
	ErrUserNotFound:         {Code: ErrUserNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrAlreadyLoggedIn:      {Code: ErrAlreadyLoggedIn, Message: "You are already signed in.", Status: http.StatusBadRequest},
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again.", Status: http.StatusForbidden},

	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
}
