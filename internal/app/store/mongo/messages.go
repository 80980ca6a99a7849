package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/store"
)

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	m.Normalize()
	_, err := s.messages.InsertOne(ctx, m)
	return translate(err)
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	if err := s.messages.FindOne(ctx, byID(id)).Decode(&m); err != nil {
		return nil, translate(err)
	}
	m.Normalize()
	return &m, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID, viewer string) ([]*model.Message, error) {
	cur, err := s.messages.Find(ctx,
		bson.D{
			{Key: "chat_id", Value: chatID},
			{Key: "deleted_for", Value: bson.D{{Key: "$ne", Value: viewer}}},
		},
		options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}

	msgs := []*model.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	for _, m := range msgs {
		m.Normalize()
	}
	return msgs, nil
}

func (s *Store) LatestVisibleMessage(ctx context.Context, chatID, viewer, excludeID string) (*model.Message, error) {
	var m model.Message
	err := s.messages.FindOne(ctx,
		bson.D{
			{Key: "chat_id", Value: chatID},
			{Key: "_id", Value: bson.D{{Key: "$ne", Value: excludeID}}},
			{Key: "deleted_for", Value: bson.D{{Key: "$ne", Value: viewer}}},
		},
		options.FindOne().SetSort(newestFirst),
	).Decode(&m)
	if err != nil {
		return nil, translate(err)
	}
	m.Normalize()
	return &m, nil
}

func (s *Store) AddDeletedFor(ctx context.Context, messageID, userID string) error {
	return requireMatch(s.messages.UpdateOne(ctx, byID(messageID),
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "deleted_for", Value: userID}}}}))
}

func (s *Store) Tombstone(ctx context.Context, messageID string) (bool, error) {
	res, err := s.messages.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: messageID}, {Key: "is_deleted", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "is_deleted", Value: true},
			{Key: "text", Value: model.DeletedText},
			{Key: "attachments", Value: []model.Attachment{}},
		}}})
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	n, err := s.messages.CountDocuments(ctx, byID(messageID))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, store.ErrNotFound
	}
	return false, nil
}

// MarkDeliveredForUser reads the affected chat ids before the bulk update. A concurrent
// caller may report the same chats; the broadcast that follows is idempotent for clients.
func (s *Store) MarkDeliveredForUser(ctx context.Context, userID string) ([]string, error) {
	chatIDs, err := s.ChatIDsForUser(ctx, userID)
	if err != nil || len(chatIDs) == 0 {
		return []string{}, err
	}

	filter := bson.D{
		{Key: "chat_id", Value: bson.D{{Key: "$in", Value: chatIDs}}},
		{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
		{Key: "delivered_to", Value: bson.D{{Key: "$ne", Value: userID}}},
	}

	touched := []string{}
	if err := s.messages.Distinct(ctx, "chat_id", filter).Decode(&touched); err != nil {
		return nil, err
	}
	if len(touched) == 0 {
		return touched, nil
	}

	if _, err := s.messages.UpdateMany(ctx, filter,
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "delivered_to", Value: userID}}}}); err != nil {
		return nil, err
	}
	return touched, nil
}

func (s *Store) MarkReadUpTo(ctx context.Context, chatID, userID string, cutoff time.Time) (int, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.D{
			{Key: "chat_id", Value: chatID},
			{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
			{Key: "created_at", Value: bson.D{{Key: "$lte", Value: cutoff}}},
			{Key: "read_by", Value: bson.D{{Key: "$ne", Value: userID}}},
		},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "read_by", Value: userID}}}})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(chatIDs))
	for _, id := range chatIDs {
		counts[id] = 0
	}
	if len(chatIDs) == 0 {
		return counts, nil
	}

	pipeline := bson.A{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "chat_id", Value: bson.D{{Key: "$in", Value: chatIDs}}},
			{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
			{Key: "read_by", Value: bson.D{{Key: "$ne", Value: userID}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$chat_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cur, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ChatID string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ChatID] = row.Count
	}
	return counts, nil
}
