package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"r53gate/internal/model"
	"r53gate/internal/service"
)

// DNSHandler serves zone listings and single-record changes.
type DNSHandler struct {
	dns   DNS
	audit AuditStore
	log   *slog.Logger
}

func NewDNSHandler(dns DNS, audit AuditStore, logger *slog.Logger) *DNSHandler {
	return &DNSHandler{dns: dns, audit: audit, log: logger}
}

// HostedZones returns every managed zone together with its record sets.
func (h *DNSHandler) HostedZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.dns.ListZonesWithRecords(r.Context())
	if err != nil {
		logFailure(h.log, r, "list hosted zones failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch hosted zones")
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (h *DNSHandler) Records(w http.ResponseWriter, r *http.Request) {
	zoneID := r.URL.Query().Get("zoneId")
	if zoneID == "" {
		writeError(w, http.StatusBadRequest, "zoneId is required")
		return
	}

	records, err := h.dns.ListRecords(r.Context(), zoneID)
	if errors.Is(err, service.ErrZoneNotAllowed) {
		writeError(w, http.StatusForbidden, "Zone is not managed by this gateway")
		return
	}
	if err != nil {
		logFailure(h.log, r, "list records failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve DNS records")
		return
	}
	writeJSON(w, http.StatusOK, model.RecordSetListing{ResourceRecordSets: records})
}
