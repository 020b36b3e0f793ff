package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"naija-nutri-hub/backend/internal/ratelimit"
	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
)

// UsersCollection is the MongoDB collection holding account documents.
const UsersCollection = "user-auth"

type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Username     string    `bson:"username"`
	FirstName    string    `bson:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty"`
	PasswordHash string    `bson:"password_hash"`
	IsVerified   bool      `bson:"is_verified"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`

	OTPHash              string     `bson:"otp_hash,omitempty"`
	OTPExpiresAt         *time.Time `bson:"otp_expires_at,omitempty"`
	OTPFailedAttempts    int        `bson:"otp_failed_attempts"`
	OTPLastSentAt        *time.Time `bson:"otp_last_sent_at,omitempty"`
	OTPResendCount       int        `bson:"otp_resend_count"`
	OTPResendWindowStart *time.Time `bson:"otp_resend_window_start,omitempty"`

	ResetLastSentAt   *time.Time `bson:"reset_last_sent_at,omitempty"`
	ResetRequestCount int        `bson:"reset_request_count"`
	ResetWindowStart  *time.Time `bson:"reset_window_start,omitempty"`

	Version int64 `bson:"version"`
}

// MongoRepository persists users as documents in UsersCollection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository returns a user repository backed by db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(UsersCollection)}
}

// EnsureIndexes creates the unique email and username indexes. It is idempotent.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("%w: create user indexes: %w", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)})
}

func (r *MongoRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": domain.NormalizeUsername(username)})
}

func (r *MongoRepository) Create(ctx context.Context, u *domain.User) error {
	u.Normalize()
	if err := u.Validate(); err != nil {
		return err
	}
	doc := toDocument(u)
	doc.Version = 1
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return mapMongoErr(err)
	}
	u.Version = 1
	return nil
}

// Update replaces the document only when both _id and version match.
func (r *MongoRepository) Update(ctx context.Context, u *domain.User, expectedVersion int64) error {
	u.Normalize()
	doc := toDocument(u)
	doc.Version = expectedVersion + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": u.ID, "version": expectedVersion}, doc)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrVersionConflict
	}
	u.Version = expectedVersion + 1
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}

func mapMongoErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
}

func toDocument(u *domain.User) userDocument {
	return userDocument{
		ID:                   u.ID,
		Email:                u.Email,
		Username:             u.Username,
		FirstName:            u.FirstName,
		LastName:             u.LastName,
		PasswordHash:         u.PasswordHash,
		IsVerified:           u.IsVerified,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
		OTPHash:              u.OTP.Hash,
		OTPExpiresAt:         timePtr(u.OTP.ExpiresAt),
		OTPFailedAttempts:    u.OTP.FailedAttempts,
		OTPLastSentAt:        timePtr(u.OTPResend.LastSentAt),
		OTPResendCount:       u.OTPResend.Count,
		OTPResendWindowStart: timePtr(u.OTPResend.WindowStart),
		ResetLastSentAt:      timePtr(u.ResetThrottle.LastSentAt),
		ResetRequestCount:    u.ResetThrottle.Count,
		ResetWindowStart:     timePtr(u.ResetThrottle.WindowStart),
		Version:              u.Version,
	}
}

func (d userDocument) toDomain() *domain.User {
	u := &domain.User{
		ID:           d.ID,
		Email:        d.Email,
		Username:     d.Username,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		PasswordHash: d.PasswordHash,
		IsVerified:   d.IsVerified,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		OTP: domain.OTPState{
			Hash:           d.OTPHash,
			ExpiresAt:      timeVal(d.OTPExpiresAt),
			FailedAttempts: d.OTPFailedAttempts,
		},
		OTPResend: ratelimit.Counter{
			LastSentAt:  timeVal(d.OTPLastSentAt),
			Count:       d.OTPResendCount,
			WindowStart: timeVal(d.OTPResendWindowStart),
		},
		ResetThrottle: ratelimit.Counter{
			LastSentAt:  timeVal(d.ResetLastSentAt),
			Count:       d.ResetRequestCount,
			WindowStart: timeVal(d.ResetWindowStart),
		},
		Version: d.Version,
	}
	u.Normalize()
	return u
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
