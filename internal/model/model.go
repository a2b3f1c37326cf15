package model

import "time"

// DefaultTTL is applied to record changes that do not carry a TTL.
const DefaultTTL int64 = 300

// Change actions understood by the provider.
const (
	ActionCreate = "CREATE"
	ActionUpsert = "UPSERT"
	ActionDelete = "DELETE"
)

// JSON field names below follow the provider's own casing so responses can be
// consumed by clients written against the Route 53 API.

type HostedZoneConfig struct {
	Comment     string `json:"Comment,omitempty"`
	PrivateZone bool   `json:"PrivateZone"`
}

type HostedZone struct {
	ID                     string            `json:"Id"`
	Name                   string            `json:"Name"`
	CallerReference        string            `json:"CallerReference"`
	Config                 *HostedZoneConfig `json:"Config,omitempty"`
	ResourceRecordSetCount int64             `json:"ResourceRecordSetCount"`
	Label                  string            `json:"Label,omitempty"`
}

type ResourceRecord struct {
	Value string `json:"Value"`
}

type AliasTarget struct {
	DNSName              string `json:"DNSName"`
	HostedZoneID         string `json:"HostedZoneId"`
	EvaluateTargetHealth bool   `json:"EvaluateTargetHealth"`
}

type ResourceRecordSet struct {
	Name            string           `json:"Name"`
	Type            string           `json:"Type"`
	TTL             int64            `json:"TTL,omitempty"`
	ResourceRecords []ResourceRecord `json:"ResourceRecords,omitempty"`
	AliasTarget     *AliasTarget     `json:"AliasTarget,omitempty"`
	SetIdentifier   string           `json:"SetIdentifier,omitempty"`
}

// ZoneRecords pairs a hosted zone with its record sets.
type ZoneRecords struct {
	Zone    HostedZone          `json:"zone"`
	Records []ResourceRecordSet `json:"records"`
}

type RecordSetListing struct {
	ResourceRecordSets []ResourceRecordSet `json:"ResourceRecordSets"`
}

type ChangeInfo struct {
	ID          string    `json:"Id"`
	Status      string    `json:"Status"`
	SubmittedAt time.Time `json:"SubmittedAt"`
	Comment     string    `json:"Comment,omitempty"`
}

type ChangeResponse struct {
	ChangeInfo ChangeInfo `json:"ChangeInfo"`
}

type RecordChangeRequest struct {
	Action string
	Name   string
	Type   string
	TTL    int64
	Values []string
}

// ImportRow is one parsed line of a bulk upload.
type ImportRow struct {
	Line  int
	Name  string
	Type  string
	TTL   string
	Value string
}

// ImportResult carries exactly one of ChangeInfo or Error.
type ImportResult struct {
	Row        int         `json:"row"`
	Name       string      `json:"name"`
	ChangeInfo *ChangeInfo `json:"ChangeInfo,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type User struct {
	ID         int64
	Username   string
	PassHash   string
	AuthSource string // "local" or "ldap"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity is the token payload attached to authenticated requests.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type AuditEntry struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	ZoneID     string    `json:"zoneId,omitempty"`
	RecordName string    `json:"recordName,omitempty"`
	RecordType string    `json:"recordType,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
}

type AuditPage struct {
	Entries    []AuditEntry `json:"entries"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
	Total      int          `json:"total"`
}
