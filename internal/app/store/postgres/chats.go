package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/store"
)

const chatColumns = `id, is_group, name, description, members, admins, created_by,
	COALESCE(latest_message_id, ''), COALESCE(direct_key, ''), created_at, updated_at`

func scanChat(row pgx.Row) (*model.Chat, error) {
	var c model.Chat
	err := row.Scan(&c.ID, &c.IsGroup, &c.Name, &c.Description, &c.Members, &c.Admins,
		&c.CreatedBy, &c.LatestMessageID, &c.DirectKey, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) CreateChat(ctx context.Context, c *model.Chat) error {
	if !c.IsGroup && c.DirectKey == "" && len(c.Members) == 2 {
		c.DirectKey = model.DirectKey(c.Members[0], c.Members[1])
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chats (id, is_group, name, description, members, admins, created_by,
			latest_message_id, direct_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.IsGroup, c.Name, c.Description, c.Members, c.Admins, c.CreatedBy,
		nullIfEmpty(c.LatestMessageID), nullIfEmpty(c.DirectKey), c.CreatedAt, c.UpdatedAt)
	return translate(err)
}

func (s *Store) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
}

func (s *Store) FindDirectChat(ctx context.Context, a, b string) (*model.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE direct_key = $1`, model.DirectKey(a, b)))
}

func (s *Store) ListChatsForUser(ctx context.Context, userID string) ([]*model.Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE $1 = ANY(members) ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []*model.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *Store) ChatIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM chats WHERE $1 = ANY(members) ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// updateChat runs one single-row UPDATE on chats and returns the row it left behind.
func (s *Store) updateChat(ctx context.Context, set string, args ...any) (*model.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx,
		`UPDATE chats SET `+set+`, updated_at = now() WHERE id = $1 RETURNING `+chatColumns, args...))
}

func (s *Store) RenameChat(ctx context.Context, chatID, name string) (*model.Chat, error) {
	return s.updateChat(ctx, `name = $2`, chatID, name)
}

func (s *Store) AddMember(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(ctx, `members = CASE WHEN $2 = ANY(members) THEN members
		ELSE array_append(members, $2) END`, chatID, userID)
}

func (s *Store) RemoveMember(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(ctx, `members = array_remove(members, $2), admins = array_remove(admins, $2)`,
		chatID, userID)
}

func (s *Store) AddAdmin(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(ctx, `admins = CASE WHEN $2 = ANY(members) AND NOT ($2 = ANY(admins))
		THEN array_append(admins, $2) ELSE admins END`, chatID, userID)
}

func (s *Store) RemoveAdmin(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(ctx, `admins = array_remove(admins, $2)`, chatID, userID)
}

func (s *Store) DeleteChatIfEmpty(ctx context.Context, chatID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chats WHERE id = $1 AND cardinality(members) = 0`, chatID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) SetLatestMessage(ctx context.Context, chatID, messageID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET latest_message_id = $2, updated_at = now() WHERE id = $1`,
		chatID, nullIfEmpty(messageID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

