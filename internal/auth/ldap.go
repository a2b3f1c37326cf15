package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"r53gate/internal/config"

	"github.com/go-ldap/ldap/v3"
)

// ErrNotInAllowedGroup is returned when a directory user authenticates but is
// not a member of any configured group.
var ErrNotInAllowedGroup = errors.New("user is not in an allowed group")

type LDAPResult struct {
	Username string
	Groups   []string
}

type LDAPClient struct {
	cfg config.LDAPConfig
}

func NewLDAPClient(cfg config.LDAPConfig) *LDAPClient {
	return &LDAPClient{cfg: cfg}
}

// Authenticate performs a two-step LDAP auth:
// 1. Bind with the service account to search for the user
// 2. Bind with the user's DN + password to verify credentials
func (lc *LDAPClient) Authenticate(username, password string) (*LDAPResult, error) {
	// An empty password would turn the user bind into an unauthenticated bind.
	if username == "" || password == "" {
		return nil, fmt.Errorf("ldap: empty credentials")
	}

	conn, err := lc.connect()
	if err != nil {
		return nil, fmt.Errorf("ldap connect: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(lc.cfg.BindDN, lc.cfg.BindPassword); err != nil {
		return nil, fmt.Errorf("ldap service bind: %w", err)
	}

	filter := fmt.Sprintf(lc.cfg.UserFilter, ldap.EscapeFilter(username))
	searchReq := ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 0, 30, false,
		filter,
		[]string{"dn", lc.cfg.UsernameAttr, "memberOf"},
		nil,
	)

	result, err := conn.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, fmt.Errorf("user not found or ambiguous: %d results", len(result.Entries))
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("ldap user bind: %w", err)
	}

	groups := entry.GetAttributeValues("memberOf")
	if len(groups) == 0 && len(lc.cfg.AllowedGroups) > 0 {
		groups = lc.searchGroups(conn, entry)
	}

	res := &LDAPResult{
		Username: entry.GetAttributeValue(lc.cfg.UsernameAttr),
		Groups:   groups,
	}
	if res.Username == "" {
		res.Username = username
	}
	if !lc.Allowed(res.Groups) {
		return nil, ErrNotInAllowedGroup
	}
	return res, nil
}

// searchGroups finds groups listing the user as a member, for directories
// that do not populate memberOf. %s in the filter is the user DN, %u the login.
func (lc *LDAPClient) searchGroups(conn *ldap.Conn, entry *ldap.Entry) []string {
	filterTmpl := lc.cfg.GroupFilter
	if filterTmpl == "" {
		filterTmpl = "(|(member=%s)(uniqueMember=%s))"
	}
	finalFilter := strings.ReplaceAll(filterTmpl, "%s", ldap.EscapeFilter(entry.DN))
	finalFilter = strings.ReplaceAll(finalFilter, "%u", ldap.EscapeFilter(entry.GetAttributeValue(lc.cfg.UsernameAttr)))

	groupSearch := ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		finalFilter,
		[]string{"dn"},
		nil,
	)
	groupResult, err := conn.Search(groupSearch)
	if err != nil {
		return nil
	}
	groups := make([]string, 0, len(groupResult.Entries))
	for _, ge := range groupResult.Entries {
		groups = append(groups, ge.DN)
	}
	return groups
}

// Allowed reports whether groups intersect the configured allow-list. An empty
// allow-list admits everyone.
func (lc *LDAPClient) Allowed(groups []string) bool {
	if len(lc.cfg.AllowedGroups) == 0 {
		return true
	}
	for _, allowed := range lc.cfg.AllowedGroups {
		for _, g := range groups {
			if strings.EqualFold(g, allowed) {
				return true
			}
		}
	}
	return false
}

func (lc *LDAPClient) connect() (*ldap.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: lc.cfg.SkipVerify}

	if strings.HasPrefix(lc.cfg.URL, "ldaps://") {
		return ldap.DialURL(lc.cfg.URL, ldap.DialWithTLSConfig(tlsCfg))
	}

	conn, err := ldap.DialURL(lc.cfg.URL)
	if err != nil {
		return nil, err
	}

	if lc.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	return conn, nil
}
