package dao

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/rc4-stream-go/internal/storage"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserExists      = errors.New("user already exists")
)

// DefaultUser is created on first start when auth is enabled
const DefaultUser = "admin"

// User represents an API user
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// UserDAO handles user data access
type UserDAO struct {
	store *storage.Store
	cost  int
}

// NewUserDAO creates a new user DAO
func NewUserDAO(store *storage.Store) *UserDAO {
	return &UserDAO{store: store, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost (tests use bcrypt.MinCost)
func (d *UserDAO) WithCost(cost int) *UserDAO {
	d.cost = cost
	return d
}

func (d *UserDAO) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Create creates a new user
func (d *UserDAO) Create(username, password string) error {
	var existing User
	if err := d.store.GetJSON(storage.BucketUsers, username, &existing); err != nil {
		return err
	}
	if existing.Username != "" {
		return ErrUserExists
	}

	hash, err := d.hashPassword(password)
	if err != nil {
		return err
	}
	return d.store.SetJSON(storage.BucketUsers, username, User{
		Username:     username,
		PasswordHash: hash,
	})
}

// Validate validates user credentials
func (d *UserDAO) Validate(username, password string) error {
	user, err := d.Get(username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return ErrInvalidPassword
	}
	return nil
}

// Get retrieves a user
func (d *UserDAO) Get(username string) (*User, error) {
	var user User
	if err := d.store.GetJSON(storage.BucketUsers, username, &user); err != nil {
		return nil, err
	}
	if user.Username == "" {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// UpdatePassword updates a user's password
func (d *UserDAO) UpdatePassword(username, newPassword string) error {
	user, err := d.Get(username)
	if err != nil {
		return err
	}
	if user.PasswordHash, err = d.hashPassword(newPassword); err != nil {
		return err
	}
	return d.store.SetJSON(storage.BucketUsers, username, user)
}

// EnsureDefaultUser creates the admin user with password if it does not exist yet
func (d *UserDAO) EnsureDefaultUser(password string) error {
	if password == "" {
		return errors.New("auth.admin_password must be set when auth is enabled")
	}
	_, err := d.Get(DefaultUser)
	if errors.Is(err, ErrUserNotFound) {
		return d.Create(DefaultUser, password)
	}
	return err
}
