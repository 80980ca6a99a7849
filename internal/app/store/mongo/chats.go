package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"chatterbox/internal/app/model"
)

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func memberFilter(userID string) bson.D {
	return bson.D{{Key: "members", Value: userID}}
}

func (s *Store) CreateChat(ctx context.Context, c *model.Chat) error {
	if !c.IsGroup && c.DirectKey == "" && len(c.Members) == 2 {
		c.DirectKey = model.DirectKey(c.Members[0], c.Members[1])
	}
	_, err := s.chats.InsertOne(ctx, c)
	return translate(err)
}

func (s *Store) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	var c model.Chat
	if err := s.chats.FindOne(ctx, byID(id)).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) FindDirectChat(ctx context.Context, a, b string) (*model.Chat, error) {
	var c model.Chat
	err := s.chats.FindOne(ctx, bson.D{{Key: "direct_key", Value: model.DirectKey(a, b)}}).Decode(&c)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) ListChatsForUser(ctx context.Context, userID string) ([]*model.Chat, error) {
	cur, err := s.chats.Find(ctx, memberFilter(userID),
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}

	chats := []*model.Chat{}
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *Store) ChatIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	if err := s.chats.Distinct(ctx, "_id", memberFilter(userID)).Decode(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// updateChat applies update to the chat matched by filter and returns the document after
// the write. When filter carries extra conditions that do not hold, the chat is returned
// unchanged.
func (s *Store) updateChat(ctx context.Context, chatID string, filter, update bson.D) (*model.Chat, error) {
	update = append(update, bson.E{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now()}}})

	var c model.Chat
	err := s.chats.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) && len(filter) > 1 {
		return s.GetChat(ctx, chatID)
	}
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) RenameChat(ctx context.Context, chatID, name string) (*model.Chat, error) {
	var c model.Chat
	err := s.chats.FindOneAndUpdate(ctx, byID(chatID),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: name},
			{Key: "updated_at", Value: time.Now()},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) AddMember(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(ctx, chatID, byID(chatID),
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "members", Value: userID}}}})
}

func (s *Store) RemoveMember(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(ctx, chatID, byID(chatID),
		bson.D{{Key: "$pull", Value: bson.D{
			{Key: "members", Value: userID},
			{Key: "admins", Value: userID},
		}}})
}

func (s *Store) AddAdmin(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	filter := bson.D{{Key: "_id", Value: chatID}, {Key: "members", Value: userID}}
	return s.updateChat(ctx, chatID, filter,
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "admins", Value: userID}}}})
}

func (s *Store) RemoveAdmin(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(ctx, chatID, byID(chatID),
		bson.D{{Key: "$pull", Value: bson.D{{Key: "admins", Value: userID}}}})
}

func (s *Store) DeleteChatIfEmpty(ctx context.Context, chatID string) (bool, error) {
	res, err := s.chats.DeleteOne(ctx, bson.D{
		{Key: "_id", Value: chatID},
		{Key: "members", Value: bson.D{{Key: "$size", Value: 0}}},
	})
	if err != nil {
		return false, err
	}
	if res.DeletedCount == 0 {
		return false, nil
	}

	_, err = s.messages.DeleteMany(ctx, bson.D{{Key: "chat_id", Value: chatID}})
	return true, err
}

func (s *Store) SetLatestMessage(ctx context.Context, chatID, messageID string) error {
	return requireMatch(s.chats.UpdateOne(ctx, byID(chatID), bson.D{{Key: "$set", Value: bson.D{
		{Key: "latest_message_id", Value: messageID},
		{Key: "updated_at", Value: time.Now()},
	}}}))
}

