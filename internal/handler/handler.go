// Package handler implements the JSON endpoints of the gateway.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/smithy-go"

	"r53gate/internal/auth"
	"r53gate/internal/middleware"
	"r53gate/internal/model"
	"r53gate/internal/util"
)

// UserStore is the credential store used by AuthHandler.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, username, password string) (*model.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	UpsertLDAPUser(ctx context.Context, username string) (*model.User, error)
}

type AuditStore interface {
	LogAudit(ctx context.Context, entry model.AuditEntry) error
	ListAuditLog(ctx context.Context, limit, offset int) ([]model.AuditEntry, int, error)
}

type TokenIssuer interface {
	Issue(id model.Identity) (string, error)
}

// Directory authenticates against an external directory such as LDAP.
type Directory interface {
	Authenticate(username, password string) (*auth.LDAPResult, error)
}

// DNS is the record management surface backed by Route 53.
type DNS interface {
	ListZonesWithRecords(ctx context.Context) ([]model.ZoneRecords, error)
	ListRecords(ctx context.Context, zoneID string) ([]model.ResourceRecordSet, error)
	ChangeRecord(ctx context.Context, zoneID string, req model.RecordChangeRequest) (*model.ChangeResponse, error)
	ManagesZone(zoneID string) bool
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// logFailure logs err with the request id. Provider errors carry their
// error code, which is the useful part when Route 53 rejects a change batch.
func logFailure(logger *slog.Logger, r *http.Request, msg string, err error) {
	attrs := []any{
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err,
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, "aws_code", apiErr.ErrorCode(), "aws_message", apiErr.ErrorMessage())
	}
	logger.ErrorContext(r.Context(), msg, attrs...)
}

// audit records an action for the authenticated caller. Failures are logged
// and never change the response.
func audit(store AuditStore, logger *slog.Logger, r *http.Request, entry model.AuditEntry) {
	if store == nil {
		return
	}
	ctx := r.Context()
	if entry.Username == "" {
		if id, ok := auth.IdentityFromContext(ctx); ok {
			entry.Username = id.Username
		}
	}
	entry.IPAddress = util.GetClientIP(r)
	if err := store.LogAudit(ctx, entry); err != nil {
		logger.Warn("audit write failed", "action", entry.Action, "error", err)
	}
}
