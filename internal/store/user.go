package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"chatrelay/internal/database"
	"chatrelay/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// UserStore persists accounts.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = "id, full_name, email, bio, profile_pic, password_hash, created_at, updated_at"

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.FullName, u.Email, u.Bio, u.ProfilePic, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if database.IsDuplicate(err) {
			return ErrEmailTaken
		}
		return errors.Wrap(err, "userStore.Create.Insert")
	}
	return nil
}

func (s *UserStore) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.one(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.one(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

// ByIDs returns the users found among ids; unknown ids are skipped.
func (s *UserStore) ByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.many(ctx, "SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders+") ORDER BY full_name, id", args...)
}

// Search lists users other than excludeID whose name or email contains query
// (case-insensitive). An empty query lists everyone.
func (s *UserStore) Search(ctx context.Context, excludeID, query string) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.many(ctx, "SELECT "+userColumns+" FROM users WHERE id <> ? ORDER BY full_name, id", excludeID)
	}
	like := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.many(ctx,
		"SELECT "+userColumns+` FROM users WHERE id <> ?
		AND (LOWER(full_name) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!')
		ORDER BY full_name, id`,
		excludeID, like, like)
}

// UpdateProfile sets name, bio and, when non-empty, the avatar URL.
func (s *UserStore) UpdateProfile(ctx context.Context, id, fullName, bio, profilePic string) (*model.User, error) {
	now := time.Now().UTC()
	var (
		result sql.Result
		err    error
	)
	if profilePic != "" {
		result, err = s.db.ExecContext(ctx,
			"UPDATE users SET full_name = ?, bio = ?, profile_pic = ?, updated_at = ? WHERE id = ?",
			fullName, bio, profilePic, now, id)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE users SET full_name = ?, bio = ?, updated_at = ? WHERE id = ?",
			fullName, bio, now, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "userStore.UpdateProfile.Update")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, ErrUserNotFound
	}
	return s.ByID(ctx, id)
}

func (s *UserStore) one(ctx context.Context, query string, args ...any) (*model.User, error) {
	u := new(model.User)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.FullName, &u.Email, &u.Bio, &u.ProfilePic, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "userStore.one.Scan")
	}
	return u, nil
}

func (s *UserStore) many(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "userStore.many.Query")
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.Bio, &u.ProfilePic, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "userStore.many.Scan")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "userStore.many.Rows")
	}
	return users, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
