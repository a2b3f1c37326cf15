package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"r53gate/internal/model"
)

const auditPageSize = 50

type AuditHandler struct {
	store AuditStore
	log   *slog.Logger
}

func NewAuditHandler(store AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, log: logger}
}

// List returns one page of the audit log, newest first.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * auditPageSize

	entries, total, err := h.store.ListAuditLog(r.Context(), auditPageSize, offset)
	if err != nil {
		logFailure(h.log, r, "list audit log failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to load audit log")
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, model.AuditPage{
		Entries:    entries,
		Page:       page,
		TotalPages: (total + auditPageSize - 1) / auditPageSize,
		Total:      total,
	})
}
