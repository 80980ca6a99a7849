package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/store"
)

const userColumns = `id, username, email, password_hash, profile_pic, bio, status, last_seen, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var status string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ProfilePic, &u.Bio,
		&status, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.Status = model.Status(status)
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]*model.User, error) {
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.ProfilePic, u.Bio,
		string(u.Status), u.LastSeen, u.CreatedAt, u.UpdatedAt)
	return translate(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]*model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (s *Store) ListUsersExcept(ctx context.Context, id string) ([]*model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY username`, id)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET
			username    = COALESCE($2, username),
			bio         = COALESCE($3, bio),
			profile_pic = COALESCE($4, profile_pic),
			updated_at  = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.Username, upd.Bio, upd.ProfilePic))
}

func (s *Store) SetPresence(ctx context.Context, id string, status model.Status, lastSeen *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET status = $2, last_seen = COALESCE($3, last_seen) WHERE id = $1`,
		id, string(status), lastSeen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
