package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"naija-nutri-hub/backend/internal/reset/domain"
	"naija-nutri-hub/backend/internal/store"
	userdomain "naija-nutri-hub/backend/internal/user/domain"
)

// TokensCollection is the MongoDB collection holding reset token documents.
const TokensCollection = "password-reset-tokens"

type tokenDocument struct {
	ID           string     `bson:"_id"`
	UserID       string     `bson:"user_id"`
	Email        string     `bson:"email"`
	TokenHash    string     `bson:"token_hash"`
	CreatedAt    time.Time  `bson:"created_at"`
	ExpiresAt    time.Time  `bson:"expires_at"`
	IsUsed       bool       `bson:"is_used"`
	UsedAt       *time.Time `bson:"used_at"`
	SupersededAt *time.Time `bson:"superseded_at"`
}

// MongoRepository persists reset tokens in TokensCollection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository returns a reset token repository backed by db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(TokensCollection)}
}

// EnsureIndexes creates the unique token_hash index and the email lookup index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "is_used", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: create token indexes: %w", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, t *domain.Token) error {
	t.Email = userdomain.NormalizeEmail(t.Email)
	t.Normalize()
	if err := t.Validate(); err != nil {
		return err
	}
	doc := tokenDocument{
		ID:           t.ID,
		UserID:       t.UserID,
		Email:        t.Email,
		TokenHash:    t.TokenHash,
		CreatedAt:    t.CreatedAt,
		ExpiresAt:    t.ExpiresAt,
		IsUsed:       t.IsUsed,
		UsedAt:       timePtr(t.UsedAt),
		SupersededAt: timePtr(t.SupersededAt),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return mapMongoErr(err)
	}
	return nil
}

func (r *MongoRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	var doc tokenDocument
	if err := r.coll.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) SupersedeActive(ctx context.Context, email string, at time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"email": userdomain.NormalizeEmail(email), "is_used": false, "superseded_at": nil},
		bson.M{"$set": bson.M{"superseded_at": at.UTC()}},
	)
	if err != nil {
		return 0, mapMongoErr(err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) Supersede(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "is_used": false, "superseded_at": nil},
		bson.M{"$set": bson.M{"superseded_at": at.UTC()}},
	)
	if err != nil {
		return mapMongoErr(err)
	}
	return nil
}

// Consume uses FindOneAndUpdate so the usable-check and the flip are one atomic step.
func (r *MongoRepository) Consume(ctx context.Context, tokenHash string, at time.Time) (*domain.Token, error) {
	at = at.UTC()
	filter := bson.M{
		"token_hash":    tokenHash,
		"is_used":       false,
		"superseded_at": nil,
		"expires_at":    bson.M{"$gte": at},
	}
	update := bson.M{"$set": bson.M{"is_used": true, "used_at": at}}
	var doc tokenDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) Unconsume(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "is_used": true, "used_at": usedAt.UTC()},
		bson.M{"$set": bson.M{"is_used": false, "used_at": nil}},
	)
	if err != nil {
		return mapMongoErr(err)
	}
	return nil
}

func (r *MongoRepository) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"is_used": false,
		"$or": bson.A{
			bson.M{"superseded_at": bson.M{"$ne": nil}},
			bson.M{"expires_at": bson.M{"$lt": cutoff.UTC()}},
		},
	})
	if err != nil {
		return 0, mapMongoErr(err)
	}
	return res.DeletedCount, nil
}

func (d tokenDocument) toDomain() *domain.Token {
	t := &domain.Token{
		ID:        d.ID,
		UserID:    d.UserID,
		Email:     d.Email,
		TokenHash: d.TokenHash,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
		IsUsed:    d.IsUsed,
	}
	if d.UsedAt != nil {
		t.UsedAt = *d.UsedAt
	}
	if d.SupersededAt != nil {
		t.SupersededAt = *d.SupersededAt
	}
	t.Normalize()
	return t
}

func mapMongoErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
