package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

const collectionTokens = "tokens"

// TokenRepository keeps one document per token. The token id is the _id, so
// InsertOne is the conditional set the identity store relies on.
type TokenRepository struct {
	col *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{col: db.Collection(collectionTokens)}
}

type tokenDoc struct {
	TokenID               string `bson:"_id"`
	Kind                  string `bson:"kind"`
	OwnerID               string `bson:"owner_id"`
	LinkedPhysicalTokenID string `bson:"linked_physical_token_id,omitempty"`
	DisplayName           string `bson:"display_name"`
	Active                bool   `bson:"active"`
	CreatedAt             int64  `bson:"created_at"`
	LastUsedAt            *int64 `bson:"last_used_at,omitempty"`
}

func toTokenDoc(t *domain.Token) tokenDoc {
	doc := tokenDoc{
		TokenID:               t.TokenID,
		Kind:                  string(t.Kind),
		OwnerID:               t.OwnerID,
		LinkedPhysicalTokenID: t.LinkedPhysicalTokenID,
		DisplayName:           t.DisplayName,
		Active:                t.Active,
		CreatedAt:             t.CreatedAt.UnixMilli(),
	}
	if t.LastUsedAt != nil {
		ms := t.LastUsedAt.UnixMilli()
		doc.LastUsedAt = &ms
	}
	return doc
}

func (d tokenDoc) toDomain() *domain.Token {
	t := &domain.Token{
		TokenID:               d.TokenID,
		Kind:                  domain.TokenKind(d.Kind),
		OwnerID:               d.OwnerID,
		LinkedPhysicalTokenID: d.LinkedPhysicalTokenID,
		DisplayName:           d.DisplayName,
		Active:                d.Active,
		CreatedAt:             msToTime(d.CreatedAt),
	}
	if d.LastUsedAt != nil {
		at := msToTime(*d.LastUsedAt)
		t.LastUsedAt = &at
	}
	return t
}

// Insert fails with domain.ErrAlreadyRegistered when the id is taken.
func (r *TokenRepository) Insert(ctx context.Context, t *domain.Token) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toTokenDoc(t)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyRegistered
		}
		return classify("insert token", err)
	}
	return nil
}

func (r *TokenRepository) FindByID(ctx context.Context, tokenID string) (*domain.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc, err := retryRead(ctx, func() (tokenDoc, error) {
		var d tokenDoc
		err := r.col.FindOne(ctx, bson.M{"_id": tokenID}).Decode(&d)
		return d, err
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, classify("find token", err)
	}
	return doc.toDomain(), nil
}

// ListByOwner uses the owner_id index; ordering is left to the resolver.
func (r *TokenRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	docs, err := retryRead(ctx, func() ([]tokenDoc, error) {
		cur, err := r.col.Find(ctx, bson.M{"owner_id": ownerID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
		if err != nil {
			return nil, err
		}
		var out []tokenDoc
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, classify("list tokens", err)
	}

	tokens := make([]*domain.Token, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.toDomain())
	}
	return tokens, nil
}

// UpdateLastUsed relies on $max so out-of-order touches never regress the value.
func (r *TokenRepository) UpdateLastUsed(ctx context.Context, tokenID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": tokenID},
		bson.M{"$max": bson.M{"last_used_at": at.UnixMilli()}},
	)
	if err != nil {
		return classify("touch token", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) SetActive(ctx context.Context, tokenID, ownerID string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": tokenID, "owner_id": ownerID},
		bson.M{"$set": bson.M{"active": active}},
	)
	if err != nil {
		return classify("set token active", err)
	}
	if res.MatchedCount == 0 {
		return r.missOrForeign(ctx, tokenID)
	}
	return nil
}

// Delete filters on both id and owner so a foreign caller can never remove
// someone else's token, even when racing a re-registration.
func (r *TokenRepository) Delete(ctx context.Context, tokenID, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": tokenID, "owner_id": ownerID})
	if err != nil {
		return classify("delete token", err)
	}
	if res.DeletedCount == 0 {
		return r.missOrForeign(ctx, tokenID)
	}
	return nil
}

// missOrForeign explains why an owner-scoped write matched nothing.
func (r *TokenRepository) missOrForeign(ctx context.Context, tokenID string) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": tokenID})
	if err != nil {
		return classify("check token", err)
	}
	if n == 0 {
		return domain.ErrTokenNotFound
	}
	return domain.ErrNotOwner
}

// EnsureIndexes creates the owner lookup index. _id is unique already.
func (r *TokenRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
