package client

import (
	"sync"
	"time"
)

// User is the authenticated account as returned by login/register.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	EmailVerified    bool      `json:"emailVerified"`
	ProfileCompleted bool      `json:"profileCompleted,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

// TenantType is the kind of workspace.
type TenantType string

const (
	TenantPersonal TenantType = "PERSONAL"
	TenantFamily   TenantType = "FAMILY"
	TenantBusiness TenantType = "BUSINESS"
)

// Tenant is a workspace the user can switch into.
type Tenant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Type      TenantType `json:"type"`
	OwnerID   string     `json:"ownerId"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}

// AuthState is the authenticated application state that lives next to the
// tokens: who is signed in and in which workspace. It is cleared by every
// logout, together with the tokens.
type AuthState struct {
	mu            sync.RWMutex
	user          *User
	tenant        *Tenant
	authenticated bool
	expiredNotice string
}

// NewAuthState creates an empty, signed-out state
func NewAuthState() *AuthState {
	return &AuthState{}
}

// SetAuth records a successful login or registration.
func (s *AuthState) SetAuth(user User, tenant *Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	if tenant != nil {
		t := *tenant
		s.tenant = &t
	} else {
		s.tenant = nil
	}
	s.authenticated = true
	s.expiredNotice = ""
}

// Clear signs the state out.
func (s *AuthState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.tenant = nil
	s.authenticated = false
}

func (s *AuthState) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// User returns a copy of the signed-in user, if any.
func (s *AuthState) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Tenant returns a copy of the current workspace, if any.
func (s *AuthState) Tenant() (Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tenant == nil {
		return Tenant{}, false
	}
	return *s.tenant, true
}

// UpdateUser applies fn to the signed-in user. No-op when signed out.
func (s *AuthState) UpdateUser(fn func(u *User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		fn(s.user)
	}
}

// SwitchTenant changes the current workspace.
func (s *AuthState) SwitchTenant(t Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant = &t
}

// SetExpiredNotice remembers the message the login page should show after
// an expiry logout.
func (s *AuthState) SetExpiredNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiredNotice = msg
}

// TakeExpiredNotice returns the pending expiry message once and clears it.
func (s *AuthState) TakeExpiredNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.expiredNotice
	s.expiredNotice = ""
	return msg
}
