package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/store"
)

var emailCollation = &options.Collation{Locale: "en", Strength: 2}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.users.InsertOne(ctx, u)
	return translate(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.users.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.users.FindOne(ctx, bson.D{{Key: "email", Value: email}},
		options.FindOne().SetCollation(emailCollation)).Decode(&u)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) findUsers(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) ([]*model.User, error) {
	cur, err := s.users.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	users := []*model.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]*model.User, error) {
	return s.findUsers(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
}

func (s *Store) ListUsersExcept(ctx context.Context, id string) ([]*model.User, error) {
	return s.findUsers(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: id}}}},
		options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*model.User, error) {
	set := bson.D{{Key: "updated_at", Value: time.Now()}}
	if upd.Username != nil {
		set = append(set, bson.E{Key: "username", Value: *upd.Username})
	}
	if upd.Bio != nil {
		set = append(set, bson.E{Key: "bio", Value: *upd.Bio})
	}
	if upd.ProfilePic != nil {
		set = append(set, bson.E{Key: "profile_pic", Value: *upd.ProfilePic})
	}

	var u model.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) SetPresence(ctx context.Context, id string, status model.Status, lastSeen *time.Time) error {
	set := bson.D{{Key: "status", Value: status}}
	if lastSeen != nil {
		set = append(set, bson.E{Key: "last_seen", Value: *lastSeen})
	}
	return requireMatch(s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}}))
}
