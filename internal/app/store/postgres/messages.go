package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"chatterbox/internal/app/model"
)

const messageColumns = `id, chat_id, sender_id, text, attachments, created_at, is_deleted,
	deleted_for, delivered_to, read_by`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.Attachments, &m.CreatedAt,
		&m.IsDeleted, &m.DeletedFor, &m.DeliveredTo, &m.ReadBy)
	if err != nil {
		return nil, translate(err)
	}
	m.Normalize()
	return &m, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	m.Normalize()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.ChatID, m.SenderID, m.Text, m.Attachments, m.CreatedAt, m.IsDeleted,
		m.DeletedFor, m.DeliveredTo, m.ReadBy)
	return translate(err)
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (s *Store) ListMessages(ctx context.Context, chatID, viewer string) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = $1 AND NOT ($2 = ANY(deleted_for))
		ORDER BY created_at DESC, seq DESC`,
		chatID, viewer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) LatestVisibleMessage(ctx context.Context, chatID, viewer, excludeID string) (*model.Message, error) {
	return scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = $1 AND NOT ($2 = ANY(deleted_for)) AND id <> $3
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`,
		chatID, viewer, excludeID))
}

// exists distinguishes "no change" from "no such message" after a guarded update.
func (s *Store) exists(ctx context.Context, messageID string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM messages WHERE id = $1`, messageID).Scan(&one)
	return translate(err)
}

func (s *Store) AddDeletedFor(ctx context.Context, messageID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted_for = array_append(deleted_for, $2)
		WHERE id = $1 AND NOT ($2 = ANY(deleted_for))`,
		messageID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.exists(ctx, messageID)
	}
	return nil
}

func (s *Store) Tombstone(ctx context.Context, messageID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_deleted = true, text = $2, attachments = '[]'::jsonb
		WHERE id = $1 AND NOT is_deleted`,
		messageID, model.DeletedText)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, s.exists(ctx, messageID)
	}
	return true, nil
}

func (s *Store) MarkDeliveredForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		WITH upd AS (
			UPDATE messages m SET delivered_to = array_append(m.delivered_to, $1)
			FROM chats c
			WHERE c.id = m.chat_id
				AND $1 = ANY(c.members)
				AND m.sender_id <> $1
				AND NOT ($1 = ANY(m.delivered_to))
			RETURNING m.chat_id
		)
		SELECT DISTINCT chat_id FROM upd ORDER BY chat_id`,
		userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) MarkReadUpTo(ctx context.Context, chatID, userID string, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET read_by = array_append(read_by, $2)
		WHERE chat_id = $1
			AND sender_id <> $2
			AND created_at <= $3
			AND NOT ($2 = ANY(read_by))`,
		chatID, userID, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(chatIDs))
	for _, id := range chatIDs {
		counts[id] = 0
	}
	if len(chatIDs) == 0 {
		return counts, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT chat_id, count(*) FROM messages
		WHERE chat_id = ANY($2) AND sender_id <> $1 AND NOT ($1 = ANY(read_by))
		GROUP BY chat_id`,
		userID, chatIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var chatID string
		var n int64
		if err := rows.Scan(&chatID, &n); err != nil {
			return nil, err
		}
		counts[chatID] = int(n)
	}
	return counts, rows.Err()
}
