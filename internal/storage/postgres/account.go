package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Credential limits shared by registration and the accounts table.
// MaxPasswordLength is the bcrypt input limit.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

const uniqueViolation = "23505"

var (
	// ErrAccountNotFound is returned when no account has the username.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when registering a username that is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUsername is returned for usernames outside the allowed shape.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned for passwords outside the allowed length.
	ErrInvalidPassword = errors.New("invalid password")
)

// Account is a login identity. Its username doubles as the default
// character name, so usernames are stored lowercased.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// ValidateUsername reports whether username can be registered.
//
// Postcondition: Returns nil, or an error wrapping ErrInvalidUsername.
func ValidateUsername(username string) error {
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("%w: %d characters, want %d to %d", ErrInvalidUsername, n, MinUsernameLength, MaxUsernameLength)
	}
	for _, r := range username {
		if !isUsernameRune(r) {
			return fmt.Errorf("%w: %q is not a letter, digit or underscore", ErrInvalidUsername, r)
		}
	}
	return nil
}

// ValidatePassword reports whether password can be hashed and stored.
//
// Postcondition: Returns nil, or an error wrapping ErrInvalidPassword.
func ValidatePassword(password string) error {
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return fmt.Errorf("%w: %d bytes, want %d to %d", ErrInvalidPassword, n, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

func isUsernameRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// AccountRepository stores accounts in the accounts table.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create registers username with a bcrypt hash of password.
//
// Precondition: none; both credentials are validated here.
// Postcondition: Returns the stored Account with its username lowercased,
// an error wrapping ErrInvalidUsername or ErrInvalidPassword, or
// ErrAccountExists when the username is taken in any letter case.
func (r *AccountRepository) Create(ctx context.Context, username, password string) (Account, error) {
	username = normalizeUsername(username)
	if err := ValidateUsername(username); err != nil {
		return Account{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return Account{}, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password of %q: %w", username, err)
	}

	acct, err := scanAccount(r.db.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash) VALUES ($1, $2)
		 RETURNING id, username, password_hash, created_at`,
		username, hash,
	))
	switch {
	case isUniqueViolation(err):
		return Account{}, ErrAccountExists
	case err != nil:
		return Account{}, fmt.Errorf("inserting account %q: %w", username, err)
	}
	return acct, nil
}

// Authenticate returns the account when password matches its hash.
//
// Postcondition: Returns the Account, ErrAccountNotFound, or
// ErrInvalidCredentials.
func (r *AccountRepository) Authenticate(ctx context.Context, username, password string) (Account, error) {
	acct, err := r.GetByUsername(ctx, username)
	if err != nil {
		return Account{}, err
	}
	if !passwordMatches(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// GetByUsername looks an account up regardless of the username's letter case.
//
// Postcondition: Returns the Account or ErrAccountNotFound.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	acct, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM accounts WHERE username = $1`,
		normalizeUsername(username),
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Account{}, ErrAccountNotFound
	case err != nil:
		return Account{}, fmt.Errorf("querying account %q: %w", username, err)
	}
	return acct, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	err := row.Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.CreatedAt)
	return acct, err
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func passwordMatches(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
