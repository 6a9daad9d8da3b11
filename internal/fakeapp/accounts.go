package fakeapp

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Roles the application distinguishes. Only admin may open the admin area.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleVetted  = "vetted"
	RoleMember  = "member"
	RoleGuest   = "guest"
)

// Account is a registered user. Passwords are kept only as bcrypt hashes.
type Account struct {
	Email        string
	Role         string
	PasswordHash string
	TOTPSecret   string
}

// Accounts is an in-memory user directory keyed by lower-cased email.
type Accounts struct {
	mu       sync.RWMutex
	byEmail  map[string]Account
	hashCost int
}

// NewAccounts creates an empty directory. A cost below bcrypt.MinCost selects
// bcrypt.DefaultCost.
func NewAccounts(hashCost int) *Accounts {
	if hashCost < bcrypt.MinCost {
		hashCost = bcrypt.DefaultCost
	}
	return &Accounts{byEmail: make(map[string]Account), hashCost: hashCost}
}

// Add registers an account, replacing any account with the same email.
func (a *Accounts) Add(email, password, role, totpSecret string) error {
	email = normaliseEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.byEmail[email] = Account{Email: email, Role: role, PasswordHash: string(hash), TOTPSecret: totpSecret}
	return nil
}

// Lookup returns the account registered for email.
func (a *Accounts) Lookup(email string) (Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.byEmail[normaliseEmail(email)]
	return acct, ok
}

// Authenticate checks a password. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (a *Accounts) Authenticate(email, password string) (Account, bool) {
	acct, ok := a.Lookup(email)
	if !ok {
		return Account{}, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Account{}, false
	}
	return acct, true
}

// Len returns the number of accounts.
func (a *Accounts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byEmail)
}

func (a *Accounts) list() []Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Account, 0, len(a.byEmail))
	for _, acct := range a.byEmail {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
