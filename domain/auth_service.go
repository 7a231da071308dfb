package domain

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// BootstrapAdminID is the id of the account seeded into an empty user store.
const BootstrapAdminID = "1"

// AuthOptions configures AuthService.
type AuthOptions struct {
	// BootstrapEmail is the reserved address of the seeded admin account.
	BootstrapEmail string
	// BootstrapPassword is the only password Login checks unless
	// VerifyPasswords is set.
	BootstrapPassword string
	// SeedBootstrapAdmin writes the bootstrap admin the first time the user
	// list is read and found missing.
	SeedBootstrapAdmin bool
	// VerifyPasswords makes Login check the stored bcrypt hash of every
	// non-bootstrap user. Off by default: any password is accepted for them.
	VerifyPasswords bool
	Hasher          *PasswordHasher
	Now             func() time.Time
}

// AuthService owns the user list and the current session.
type AuthService struct {
	kv     KV
	ids    IDGenerator
	opts   AuthOptions
	hasher *PasswordHasher
	now    func() time.Time

	mu sync.Mutex
}

func NewAuthService(kv KV, ids IDGenerator, opts AuthOptions) *AuthService {
	s := &AuthService{kv: kv, ids: ids, opts: opts, hasher: opts.Hasher, now: opts.Now}
	if s.hasher == nil {
		s.hasher = NewPasswordHasher(0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Init makes sure the user list exists, seeding the bootstrap admin if enabled.
func (s *AuthService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.users(ctx)
	return err
}

// Login starts a session for the user registered under email.
func (s *AuthService) Login(ctx context.Context, email, password string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return User{}, err
	}
	i := indexByEmail(users, email)
	if i < 0 {
		return User{}, ErrInvalidCredentials
	}
	u := users[i]
	switch {
	case s.isBootstrap(email):
		if password != s.opts.BootstrapPassword {
			return User{}, ErrInvalidCredentials
		}
	case s.opts.VerifyPasswords:
		if !s.hasher.Matches(u.PasswordHash, password) {
			return User{}, ErrInvalidCredentials
		}
	}

	session := u.Public()
	if err := saveRecord(ctx, s.kv, SessionKey, session); err != nil {
		return User{}, err
	}
	return session, nil
}

// Logout clears the current session.
func (s *AuthService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Register adds a new account. An empty role means RoleUser. The first account
// of an empty store is always an admin. When no session is active the new
// account is logged in, reported by sessionStarted.
func (s *AuthService) Register(ctx context.Context, email, password, name string, role Role) (user User, sessionStarted bool, err error) {
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return User{}, false, ErrInvalidRole
	}
	if err := validateEmail(email); err != nil {
		return User{}, false, err
	}
	if strings.TrimSpace(name) == "" {
		return User{}, false, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return User{}, false, err
	}
	if indexByEmail(users, email) >= 0 {
		return User{}, false, ErrDuplicateEmail
	}
	if len(users) == 0 {
		role = RoleAdmin
	}

	u := User{
		ID:            s.ids.NewID(),
		Email:         email,
		Name:          name,
		Role:          role,
		DepartmentIDs: []string{},
		CreatedAt:     NewTimestamp(s.now()),
	}
	if password != "" {
		if u.PasswordHash, err = s.hasher.Hash(password); err != nil {
			return User{}, false, err
		}
	}

	users = append(users, u)
	if err := saveRecord(ctx, s.kv, UsersKey, users); err != nil {
		return User{}, false, err
	}

	_, active, err := s.session(ctx)
	if err != nil {
		return User{}, false, err
	}
	if !active {
		if err := saveRecord(ctx, s.kv, SessionKey, u.Public()); err != nil {
			return User{}, false, err
		}
		sessionStarted = true
	}
	return u.Public(), sessionStarted, nil
}

// UpdateUserRole overwrites the role of a user.
func (s *AuthService) UpdateUserRole(ctx context.Context, userID string, role Role) (User, error) {
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}
	return s.mutateUser(ctx, userID, func(u *User) bool {
		if u.Role == role {
			return false
		}
		u.Role = role
		return true
	})
}

// AssignToDepartment adds departmentID to the user's memberships. Assigning
// an existing membership is a no-op.
func (s *AuthService) AssignToDepartment(ctx context.Context, userID, departmentID string) (User, error) {
	if departmentID == "" {
		return User{}, fmt.Errorf("%w: department id is required", ErrInvalidArgument)
	}
	return s.mutateUser(ctx, userID, func(u *User) bool {
		if u.InDepartment(departmentID) {
			return false
		}
		u.DepartmentIDs = append(u.DepartmentIDs, departmentID)
		return true
	})
}

// RemoveFromDepartment drops departmentID from the user's memberships.
// Removing an absent membership is a no-op.
func (s *AuthService) RemoveFromDepartment(ctx context.Context, userID, departmentID string) (User, error) {
	return s.mutateUser(ctx, userID, func(u *User) bool {
		kept := u.DepartmentIDs[:0:0]
		for _, id := range u.DepartmentIDs {
			if id != departmentID {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(u.DepartmentIDs) {
			return false
		}
		u.DepartmentIDs = kept
		return true
	})
}

// AllUsers returns every registered user.
func (s *AuthService) AllUsers(ctx context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// CurrentUser returns the logged-in user, if any.
func (s *AuthService) CurrentUser(ctx context.Context) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session(ctx)
}

func (s *AuthService) mutateUser(ctx context.Context, userID string, fn func(u *User) bool) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return User{}, err
	}
	i := indexByID(users, userID)
	if i < 0 {
		return User{}, ErrUserNotFound
	}
	if !fn(&users[i]) {
		return users[i].Public(), nil
	}
	if err := saveRecord(ctx, s.kv, UsersKey, users); err != nil {
		return User{}, err
	}
	if err := s.refreshSession(ctx, users[i]); err != nil {
		return User{}, err
	}
	return users[i].Public(), nil
}

// refreshSession rewrites the session record when it belongs to u.
func (s *AuthService) refreshSession(ctx context.Context, u User) error {
	current, active, err := s.session(ctx)
	if err != nil {
		return err
	}
	if !active || current.ID != u.ID {
		return nil
	}
	return saveRecord(ctx, s.kv, SessionKey, u.Public())
}

func (s *AuthService) session(ctx context.Context) (User, bool, error) {
	var u User
	found, err := loadRecord(ctx, s.kv, SessionKey, &u)
	if err != nil || !found {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *AuthService) users(ctx context.Context) ([]User, error) {
	var users []User
	found, err := loadRecord(ctx, s.kv, UsersKey, &users)
	if err != nil {
		return nil, err
	}
	if found {
		return users, nil
	}
	if !s.opts.SeedBootstrapAdmin {
		return []User{}, nil
	}
	admin := User{
		ID:            BootstrapAdminID,
		Email:         s.opts.BootstrapEmail,
		Name:          "Admin",
		Role:          RoleAdmin,
		DepartmentIDs: []string{},
		CreatedAt:     NewTimestamp(s.now()),
	}
	users = []User{admin}
	if err := saveRecord(ctx, s.kv, UsersKey, users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *AuthService) isBootstrap(email string) bool {
	return s.opts.BootstrapEmail != "" && email == s.opts.BootstrapEmail
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidArgument, email)
	}
	return nil
}

func indexByEmail(users []User, email string) int {
	for i := range users {
		if users[i].Email == email {
			return i
		}
	}
	return -1
}

func indexByID(users []User, id string) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}
