package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"meteonotify/internal/core"
	"meteonotify/internal/credential"
	"meteonotify/internal/types"
)

// CORSPolicy is attached to every response of the notification endpoint.
var CORSPolicy = core.CORSPolicy{
	AllowedOrigins:  []string{"*"},
	AllowedMethods:  []string{http.MethodPost, http.MethodOptions},
	AllowedHeaders:  []string{"Content-Type"},
	PreflightStatus: http.StatusOK,
}

// HandlerDeps holds the collaborators of a Handler.
type HandlerDeps struct {
	Credential *credential.State
	Validator  *core.Validator
	Resolver   *Resolver
	Composer   *Composer
	Dispatcher *Dispatcher
	Metrics    Metrics
	Logger     *slog.Logger
}

// Handler serves the notification endpoint.
type Handler struct {
	credential *credential.State
	validator  *core.Validator
	resolver   *Resolver
	composer   *Composer
	dispatcher *Dispatcher
	metrics    Metrics
	logger     *slog.Logger

	next http.Handler
}

// NewHandler creates a Handler. The credential state is read on every
// request and never modified.
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		credential: deps.Credential,
		validator:  deps.Validator,
		resolver:   deps.Resolver,
		composer:   deps.Composer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = NoopMetrics{}
	}
	if h.validator == nil {
		h.validator = core.NewValidator(h.logger)
	}
	h.next = core.NewCORSMiddleware(CORSPolicy)(http.HandlerFunc(h.serve))
	return h
}

// ServeHTTP answers OPTIONS preflights and handles POST notifications.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.next.ServeHTTP(w, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.credential.Ready() {
		h.logger.ErrorContext(ctx, "identity credential not ready",
			"code", types.ErrCodeConfigNotInitialized,
			"reason", h.credential.Reason(),
		)
		core.Error(w, r, http.StatusInternalServerError, msgNotInitialized, "")
		return
	}

	if r.Method != http.MethodPost {
		h.logger.DebugContext(ctx, "method rejected",
			"code", types.ErrCodeMethodNotAllowed,
			"method", r.Method,
		)
		core.Error(w, r, http.StatusMethodNotAllowed, msgMethodNotAllowed, "")
		return
	}

	req, err := decodeRequest(w, r, h.validator)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid notification request", "error", err.Error())
		core.Error(w, r, http.StatusBadRequest, validationMessage(err), "")
		return
	}

	h.logger.InfoContext(ctx, "notification request received",
		"type", req.Type,
		"description_length", len(req.Description),
		"recipient_id_present", req.RecipientID != "",
	)

	msg, err := h.notify(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "notification failed",
			"type", req.Type,
			"error", err.Error(),
		)
		core.Error(w, r, http.StatusInternalServerError, msgSendFailed, errorDetails(err))
		return
	}

	core.Message(w, r, http.StatusOK, msg)
}

// notify resolves, composes and dispatches. It returns the success message
// for the response. A panic in any stage is reported as an error.
func (h *Handler) notify(ctx context.Context, req types.NotificationRequest) (message string, err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			h.logger.ErrorContext(ctx, "panic during notification",
				"panic", fmt.Sprintf("%v", rvr),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%v", rvr)
		}
	}()

	recipients, err := h.resolver.Resolve(ctx, h.credential.Directory(), req.RecipientID)
	if err != nil {
		return "", err
	}
	h.metrics.RecordRecipients(ctx, h.resolver.IsBroadcast(req.RecipientID), len(recipients))

	if len(recipients) == 0 {
		h.logger.InfoContext(ctx, "no recipients resolved", "type", req.Type)
		return msgNoUsers, nil
	}

	h.logger.DebugContext(ctx, "recipients resolved",
		"count", len(recipients),
		"recipients", types.RedactEmails(recipients),
	)

	rendered, err := h.composer.Compose(req)
	if err != nil {
		return "", err
	}

	outcomes, err := h.dispatcher.Dispatch(ctx, recipients, rendered)
	if err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "notifications sent",
		"type", req.Type,
		"recipients", len(recipients),
		"provider_calls", len(outcomes),
		"mode", string(h.dispatcher.Mode()),
	)
	return msgSent, nil
}

// errorDetails returns the description of the underlying failure for the
// response body, without the AppError code prefix.
func errorDetails(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return err.Error()
}
