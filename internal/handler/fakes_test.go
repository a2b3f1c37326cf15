package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"r53gate/internal/auth"
	"r53gate/internal/database"
	"r53gate/internal/model"
	"r53gate/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUsers struct {
	mu        sync.Mutex
	users     map[string]*model.User
	passwords map[string]string
	nextID    int64
	err       error
	createErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*model.User{}, passwords: map[string]string{}}
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.users[username], nil
}

func (f *fakeUsers) CreateUser(_ context.Context, username, password string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.users[username]; ok {
		return nil, database.ErrUserExists
	}
	f.nextID++
	u := &model.User{ID: f.nextID, Username: username, AuthSource: "local", CreatedAt: time.Now()}
	f.users[username] = u
	f.passwords[username] = password
	return u, nil
}

func (f *fakeUsers) AuthenticateUser(_ context.Context, username, password string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[username]
	if !ok || u.AuthSource != "local" || f.passwords[username] != password {
		return nil, database.ErrInvalidCredentials
	}
	return u, nil
}

func (f *fakeUsers) UpsertLDAPUser(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[username]; ok {
		if u.AuthSource != "ldap" {
			return nil, database.ErrAccountConflict
		}
		return u, nil
	}
	f.nextID++
	u := &model.User{ID: f.nextID, Username: username, AuthSource: "ldap"}
	f.users[username] = u
	return u, nil
}

type fakeTokens struct {
	err    error
	issued []model.Identity
}

func (f *fakeTokens) Issue(id model.Identity) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, id)
	return "token-for-" + id.Username, nil
}

type fakeDirectory struct {
	users map[string]string
}

func (f *fakeDirectory) Authenticate(username, password string) (*auth.LDAPResult, error) {
	if pw, ok := f.users[username]; ok && pw == password {
		return &auth.LDAPResult{Username: username}, nil
	}
	return nil, errors.New("ldap user bind: invalid credentials")
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	listErr error
}

func (f *fakeAudit) LogAudit(_ context.Context, e model.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) ListAuditLog(_ context.Context, limit, offset int) ([]model.AuditEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	total := len(f.entries)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return f.entries[offset:end], total, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type changeCall struct {
	zoneID string
	req    model.RecordChangeRequest
}

type fakeDNS struct {
	mu        sync.Mutex
	zones     []model.ZoneRecords
	records   []model.ResourceRecordSet
	allowed   map[string]bool
	listErr   error
	changeErr error
	calls     []changeCall
	listCalls int
}

func (f *fakeDNS) ListZonesWithRecords(context.Context) ([]model.ZoneRecords, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.zones, nil
}

func (f *fakeDNS) ListRecords(_ context.Context, zoneID string) ([]model.ResourceRecordSet, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if !f.ManagesZone(zoneID) {
		return nil, service.ErrZoneNotAllowed
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeDNS) ChangeRecord(_ context.Context, zoneID string, req model.RecordChangeRequest) (*model.ChangeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, changeCall{zoneID: zoneID, req: req})
	if f.allowed != nil && !f.allowed[zoneID] {
		return nil, service.ErrZoneNotAllowed
	}
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	return &model.ChangeResponse{ChangeInfo: model.ChangeInfo{ID: "/change/C1", Status: "PENDING"}}, nil
}

func (f *fakeDNS) ManagesZone(zoneID string) bool {
	return f.allowed == nil || f.allowed[zoneID]
}
