package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/catfeed"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	username   TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE COLLATE NOCASE,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	credential TEXT NOT NULL,
	role       TEXT NOT NULL,
	reset_key  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

type accountRow struct {
	Username   string `db:"username"`
	Email      string `db:"email"`
	FirstName  string `db:"first_name"`
	LastName   string `db:"last_name"`
	Credential string `db:"credential"`
	Role       string `db:"role"`
	ResetKey   string `db:"reset_key"`
	CreatedAt  int64  `db:"created_at"`

	// Previous is only bound by Update.
	Previous string `db:"previous"`
}

func (r accountRow) account() catfeed.Account {
	return catfeed.Account{
		Username:   r.Username,
		Email:      r.Email,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Credential: r.Credential,
		Role:       catfeed.Role(r.Role),
		ResetKey:   r.ResetKey,
		CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
	}
}

func rowFromAccount(a catfeed.Account) accountRow {
	return accountRow{
		Username:   a.Username,
		Email:      a.Email,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Credential: a.Credential,
		Role:       string(a.Role),
		ResetKey:   a.ResetKey,
		CreatedAt:  a.CreatedAt.Unix(),
	}
}

// SQLiteStore implements catfeed.AccountProvider on SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ catfeed.AccountProvider = (*SQLiteStore)(nil)

// NewSQLiteStore creates the accounts table if it does not exist. The caller
// owns db.
func NewSQLiteStore(ctx context.Context, db *sqlx.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("accounts: nil database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", catfeed.ErrAccountUnavailable, err)
	}
	return &SQLiteStore{db: db}, nil
}

const selectAccount = `
	SELECT username, email, first_name, last_name, credential, role, reset_key, created_at
	FROM accounts`

func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (catfeed.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE username = ?`, username)
}

// FindByEmail matches case-insensitively.
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (catfeed.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE email = ?`, email)
}

func (s *SQLiteStore) findOne(ctx context.Context, query string, arg string) (catfeed.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return catfeed.Account{}, catfeed.ErrAccountNotFound
	}
	if err != nil {
		return catfeed.Account{}, fmt.Errorf("%w: %v", catfeed.ErrAccountUnavailable, err)
	}
	return row.account(), nil
}

func (s *SQLiteStore) Create(ctx context.Context, account catfeed.Account) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO accounts (username, email, first_name, last_name, credential, role, reset_key, created_at)
		VALUES (:username, :email, :first_name, :last_name, :credential, :role, :reset_key, :created_at)`,
		rowFromAccount(account))
	return mapWriteError(err)
}

// Update rewrites every column of the account stored under previousUsername,
// including its primary key when the username changed.
func (s *SQLiteStore) Update(ctx context.Context, previousUsername string, account catfeed.Account) error {
	row := rowFromAccount(account)
	row.Previous = previousUsername

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE accounts SET
			username = :username, email = :email,
			first_name = :first_name, last_name = :last_name,
			credential = :credential, role = :role, reset_key = :reset_key
		WHERE username = :previous`, row)
	if err != nil {
		return mapWriteError(err)
	}
	return requireOneRow(res)
}

func (s *SQLiteStore) SetResetKey(ctx context.Context, username, key string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET reset_key = ? WHERE username = ?`, key, username)
	if err != nil {
		return fmt.Errorf("%w: %v", catfeed.ErrAccountUnavailable, err)
	}
	return requireOneRow(res)
}

// Count returns the number of stored accounts.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM accounts`); err != nil {
		return 0, fmt.Errorf("%w: %v", catfeed.ErrAccountUnavailable, err)
	}
	return n, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", catfeed.ErrAccountUnavailable, err)
	}
	if n == 0 {
		return catfeed.ErrAccountNotFound
	}
	return nil
}

// mapWriteError turns uniqueness violations into the catfeed sentinels.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		switch {
		case strings.Contains(sqlErr.Error(), "accounts.email"):
			return catfeed.ErrEmailTaken
		case strings.Contains(sqlErr.Error(), "accounts.username"):
			return catfeed.ErrUsernameTaken
		}
	}
	return fmt.Errorf("%w: %v", catfeed.ErrAccountUnavailable, err)
}
