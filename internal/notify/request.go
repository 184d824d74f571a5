package notify

import (
	"errors"
	"net/http"

	"meteonotify/internal/core"
	"meteonotify/internal/types"
)

// Response messages. Clients match on these strings.
const (
	msgNotInitialized   = "Server configuration error: Firebase Admin SDK not initialized."
	msgMethodNotAllowed = "Method Not Allowed"
	msgMissingFields    = "Missing type or description"
	msgInvalidBody      = "Invalid request body"
	msgNoUsers          = "No users to notify."
	msgSent             = "Notifications sent successfully!"
	msgSendFailed       = "Failed to send notifications."
)

// decodeRequest reads and validates the notification payload. The returned
// AppError carries ErrCodeValidationInvalidJSON for undecodable bodies and
// ErrCodeValidationMissingField when type or description is empty.
func decodeRequest(w http.ResponseWriter, r *http.Request, v *core.Validator) (types.NotificationRequest, error) {
	var req types.NotificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		return req, err
	}
	if err := v.ValidateStruct(req); err != nil {
		return req, err
	}
	return req, nil
}

// validationMessage maps a decode or validation failure to the client-facing
// 400 message.
func validationMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeValidationInvalidJSON {
		return msgInvalidBody
	}
	return msgMissingFields
}
