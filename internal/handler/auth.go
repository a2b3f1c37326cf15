package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"r53gate/internal/database"
	"r53gate/internal/metrics"
	"r53gate/internal/model"
)

type AuthHandler struct {
	users  UserStore
	tokens TokenIssuer
	ldap   Directory
	audit  AuditStore
	log    *slog.Logger
}

// NewAuthHandler wires the signup and login endpoints. ldap may be nil when
// directory login is disabled.
func NewAuthHandler(users UserStore, tokens TokenIssuer, ldap Directory, audit AuditStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, ldap: ldap, audit: audit, log: logger}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	existing, err := h.users.GetUserByUsername(r.Context(), in.Username)
	if err != nil {
		logFailure(h.log, r, "signup lookup failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}

	user, err := h.users.CreateUser(r.Context(), in.Username, in.Password)
	if errors.Is(err, database.ErrUserExists) {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if err != nil {
		logFailure(h.log, r, "signup failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// The user row stays even if signing fails; the caller can log in later.
	token, err := h.tokens.Issue(model.Identity{ID: user.ID, Username: user.Username})
	if err != nil {
		logFailure(h.log, r, "token signing failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	audit(h.audit, h.log, r, model.AuditEntry{Username: user.Username, Action: "signup"})
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var user *model.User
	authMethod := "local"

	// Directory first; a failed bind falls through to the local store.
	if h.ldap != nil {
		result, err := h.ldap.Authenticate(in.Username, in.Password)
		if err != nil {
			h.log.Debug("ldap login failed", "username", in.Username, "error", err)
		} else {
			user, err = h.users.UpsertLDAPUser(r.Context(), result.Username)
			if errors.Is(err, database.ErrAccountConflict) {
				h.log.Warn("ldap login refused for local account", "username", result.Username)
				metrics.RecordAuthFailure("account_conflict")
				writeError(w, http.StatusBadRequest, "Invalid credentials")
				return
			}
			if err != nil {
				logFailure(h.log, r, "ldap user provisioning failed", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			authMethod = "ldap"
		}
	}

	if user == nil {
		u, err := h.users.AuthenticateUser(r.Context(), in.Username, in.Password)
		if errors.Is(err, database.ErrInvalidCredentials) {
			metrics.RecordAuthFailure("bad_credentials")
			writeError(w, http.StatusBadRequest, "Invalid credentials")
			return
		}
		if err != nil {
			logFailure(h.log, r, "login failed", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		user = u
	}

	token, err := h.tokens.Issue(model.Identity{ID: user.ID, Username: user.Username})
	if err != nil {
		logFailure(h.log, r, "token signing failed", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	audit(h.audit, h.log, r, model.AuditEntry{
		Username: user.Username,
		Action:   "login",
		Detail:   fmt.Sprintf("auth=%s", authMethod),
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
