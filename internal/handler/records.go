package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"r53gate/internal/model"
	"r53gate/internal/service"
)

// recordBody mirrors the provider's record set shape plus the target zone.
type recordBody struct {
	ZoneID          string                 `json:"zoneId"`
	Name            string                 `json:"Name"`
	Type            string                 `json:"Type"`
	TTL             int64                  `json:"TTL"`
	ResourceRecords []model.ResourceRecord `json:"ResourceRecords"`
}

type changeOp struct {
	action      string
	auditAction string
	failure     string
}

var (
	createOp = changeOp{model.ActionCreate, "create_record", "Failed to create DNS record"}
	updateOp = changeOp{model.ActionUpsert, "update_record", "Failed to update DNS record"}
	deleteOp = changeOp{model.ActionDelete, "delete_record", "Failed to delete DNS record"}
)

func (h *DNSHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, createOp)
}

func (h *DNSHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, updateOp)
}

// DeleteRecord forwards the record as supplied. The provider only deletes an
// exact match of name, type, TTL and values.
func (h *DNSHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, deleteOp)
}

func (h *DNSHandler) change(w http.ResponseWriter, r *http.Request, op changeOp) {
	var body recordBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.ZoneID == "" {
		writeError(w, http.StatusBadRequest, "zoneId is required")
		return
	}

	req := model.RecordChangeRequest{
		Action: op.action,
		Name:   body.Name,
		Type:   body.Type,
		TTL:    body.TTL,
	}
	for _, rr := range body.ResourceRecords {
		req.Values = append(req.Values, rr.Value)
	}

	resp, err := h.dns.ChangeRecord(r.Context(), body.ZoneID, req)

	entry := model.AuditEntry{
		Action:     op.auditAction,
		ZoneID:     body.ZoneID,
		RecordName: req.Name,
		RecordType: req.Type,
		Detail:     fmt.Sprintf("values=[%s] ttl=%d", strings.Join(req.Values, ","), req.TTL),
	}
	if err != nil {
		entry.Detail += " error=true"
	}
	audit(h.audit, h.log, r, entry)

	if errors.Is(err, service.ErrZoneNotAllowed) {
		writeError(w, http.StatusForbidden, "Zone is not managed by this gateway")
		return
	}
	if err != nil {
		logFailure(h.log, r, strings.ToLower(op.failure), err)
		writeError(w, http.StatusInternalServerError, op.failure)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
