// Package credentials maps logical roles to login credentials.
package credentials

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gotrs-io/e2eprobe/internal/config"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

// Role is a logical user category.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
	RoleVetted  Role = "vetted"
	RoleTeacher Role = "teacher"
	RoleGuest   Role = "guest"
)

// AllRoles lists the known roles in privilege order.
var AllRoles = []Role{RoleAdmin, RoleTeacher, RoleVetted, RoleMember, RoleGuest}

// ParseRole normalises s into a known Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", s)
}

func (r Role) String() string { return string(r) }

// Credential holds the login details for one role.
type Credential struct {
	Role       Role
	Email      string
	Password   string
	TOTPSecret string
}

// Source resolves a role to its credential.
type Source interface {
	Get(role Role) (Credential, error)
}

// Store is an immutable role → credential table. It is safe for concurrent use
// without locking because nothing mutates it after NewStore returns.
type Store struct {
	creds map[Role]Credential
}

// NewStore copies creds into a new Store. Entries without an email are skipped.
func NewStore(creds map[Role]Credential) *Store {
	s := &Store{creds: make(map[Role]Credential, len(creds))}
	for role, c := range creds {
		if c.Email == "" {
			continue
		}
		c.Role = role
		s.creds[role] = c
	}
	return s
}

// FromConfig builds a Store from the credentials section of cfg.
func FromConfig(cfg *config.Config) (*Store, error) {
	creds := make(map[Role]Credential, len(cfg.Credentials))
	for name, c := range cfg.Credentials {
		role, err := ParseRole(name)
		if err != nil {
			return nil, &harnesserrors.ConfigError{Field: "credentials." + name, Message: err.Error()}
		}
		if c.Email == "" || c.Password == "" {
			return nil, &harnesserrors.ConfigError{Field: "credentials." + name, Message: "email and password are required"}
		}
		creds[role] = Credential{
			Role:       role,
			Email:      c.Email,
			Password:   c.Password,
			TOTPSecret: c.TOTPSecret,
		}
	}
	return NewStore(creds), nil
}

// Get returns the credential for role or an *errors.UnknownRoleError.
func (s *Store) Get(role Role) (Credential, error) {
	c, ok := s.creds[role]
	if !ok {
		return Credential{}, &harnesserrors.UnknownRoleError{Role: string(role)}
	}
	return c, nil
}

// Roles returns the registered roles, sorted.
func (s *Store) Roles() []Role {
	roles := make([]Role, 0, len(s.creds))
	for r := range s.creds {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
