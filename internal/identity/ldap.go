package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/vaxtrack/vaxtrack-core/internal/config"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// LDAPProvider resolves users from an LDAP/AD directory. The assigned role
// and facility live in directory attributes (configurable, default
// employeeType / departmentNumber) so assignments survive outside this
// process.
type LDAPProvider struct {
	config config.LDAPConfig
	logger logger.Logger
}

func NewLDAPProvider(cfg config.LDAPConfig, log logger.Logger) *LDAPProvider {
	return &LDAPProvider{config: cfg, logger: log}
}

func (l *LDAPProvider) connect(ctx context.Context) (*ldap.Conn, error) {
	conn, err := ldap.DialURL(l.config.URL)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}
	if l.config.BindDN != "" {
		if err := conn.Bind(l.config.BindDN, l.config.BindPassword); err != nil {
			conn.Close()
			return nil, &NetworkError{Op: "bind", Err: err}
		}
	}
	return conn, nil
}

func (l *LDAPProvider) GetUser(ctx context.Context, userID string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &NetworkError{Op: "lookup", Err: err}
	}

	conn, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	searchRequest := ldap.NewSearchRequest(
		l.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(userID)),
		[]string{"uid", "mail", "memberOf", "employeeNumber", "description",
			l.config.RoleAttribute, l.config.FacilityAttribute},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil {
		return nil, &NetworkError{Op: "search", Err: err}
	}
	if len(result.Entries) == 0 {
		return nil, ErrUserNotFound
	}

	entry := result.Entries[0]
	status := entry.GetAttributeValue("description")
	if status == "" {
		status = "active"
	}

	return &User{
		ID:         entry.GetAttributeValue("uid"),
		Email:      entry.GetAttributeValue("mail"),
		Labels:     entry.GetAttributeValues("memberOf"),
		Status:     status,
		Role:       entry.GetAttributeValue(l.config.RoleAttribute),
		FacilityID: entry.GetAttributeValue(l.config.FacilityAttribute),
	}, nil
}

// SaveRoleAssignment rewrites the role/facility attributes on the user entry.
func (l *LDAPProvider) SaveRoleAssignment(ctx context.Context, userID, role, facilityID string) error {
	if err := ctx.Err(); err != nil {
		return &NetworkError{Op: "assign", Err: err}
	}

	conn, err := l.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	userDN := fmt.Sprintf("uid=%s,%s", userID, l.config.BaseDN)
	modify := ldap.NewModifyRequest(userDN, nil)
	modify.Replace(l.config.RoleAttribute, []string{role})
	if facilityID != "" {
		modify.Replace(l.config.FacilityAttribute, []string{facilityID})
	} else {
		modify.Replace(l.config.FacilityAttribute, nil)
	}

	if err := conn.Modify(modify); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return ErrUserNotFound
		}
		return &NetworkError{Op: "modify", Err: err}
	}

	l.logger.Info("role assignment persisted", "userId", userID, "role", role, "facilityId", facilityID)
	return nil
}
