package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names follow the original document database.
const (
	colUsers                  = "Users"
	colChatbots               = "Chatbots"
	colAccess                 = "Access"
	colDocuments              = "Documents"
	colSuggestedPrompts       = "SuggestedPrompts"
	colUsages                 = "Usages"
	colServiceModels          = "ServiceModels"
	colCreateChatbotDurations = "CreateChatbotDurations"
	colAskChatbotDurations    = "AskChatbotDurations"
	colAskChatbotTokenCounts  = "AskChatbotTokenCounts"
	colIntegrationCredentials = "IntegrationCredentials"
)

var _ store.Store = (*MongoStore)(nil)

// MongoStore implements store.Store on MongoDB. IDs are stored as UUID
// strings and no multi-document transactions are used, so it runs on a
// standalone server.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, pings the primary and returns a store on database name.
func Connect(ctx context.Context, uri, name string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	logger.Info("[MongoStore] connected", zap.String("database", name))
	return &MongoStore{client: client, db: client.Database(name)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colAccess: {
			{Keys: bson.D{{Key: "chatbot_id", Value: 1}, {Key: "user_email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_email", Value: 1}}},
		},
		colDocuments: {
			{Keys: bson.D{{Key: "chatbot_id", Value: 1}, {Key: "filename", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colServiceModels: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colUsages: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		colChatbots: {
			{Keys: bson.D{{Key: "access", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.col(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", name, err)
		}
	}
	return nil
}

func mapError(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	logger.Error("[MongoStore] operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("database error in %s: %w", op, err)
}

func parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// --- Users ---

type userDoc struct {
	ID                  string    `bson:"_id"`
	Email               string    `bson:"email"`
	FirstName           string    `bson:"first_name"`
	LastName            string    `bson:"last_name"`
	FriendlyName        string    `bson:"friendly_name"`
	PasswordHash        string    `bson:"password_hash"`
	PeriodDollarAmount  float64   `bson:"period_dollar_amount"`
	TermsOfUseDisplayed bool      `bson:"terms_of_use_displayed"`
	IsGuest             bool      `bson:"is_guest"`
	AuthProvider        string    `bson:"auth_provider"`
	Timestamp           time.Time `bson:"timestamp"`
	UpdatedAt           time.Time `bson:"updated_at"`
}

func (d userDoc) model() *models.User {
	return &models.User{
		ID:                  parseID(d.ID),
		Email:               d.Email,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		FriendlyName:        d.FriendlyName,
		HashedPassword:      d.PasswordHash,
		PeriodDollarAmount:  d.PeriodDollarAmount,
		TermsOfUseDisplayed: d.TermsOfUseDisplayed,
		IsGuest:             d.IsGuest,
		AuthProvider:        models.AuthProvider(d.AuthProvider),
		CreatedAt:           d.Timestamp,
		UpdatedAt:           d.UpdatedAt,
	}
}

func (s *MongoStore) CreateUser(ctx context.Context, arg store.CreateUserParams) (*models.User, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	now := time.Now().UTC()
	doc := userDoc{
		ID:                 arg.ID.String(),
		Email:              arg.Email,
		FirstName:          arg.FirstName,
		LastName:           arg.LastName,
		FriendlyName:       arg.FriendlyName,
		PasswordHash:       arg.HashedPassword,
		PeriodDollarAmount: arg.PeriodDollarAmount,
		IsGuest:            arg.IsGuest,
		AuthProvider:       string(arg.AuthProvider),
		Timestamp:          now,
		UpdatedAt:          now,
	}
	if _, err := s.col(colUsers).InsertOne(ctx, doc); err != nil {
		return nil, mapError("CreateUser", err)
	}
	return doc.model(), nil
}

func (s *MongoStore) findUser(ctx context.Context, op string, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.col(colUsers).FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapError(op, err)
	}
	return doc.model(), nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "GetUserByEmail", bson.M{"email": email})
}

func (s *MongoStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findUser(ctx, "GetUserByID", bson.M{"_id": id.String()})
}

func (s *MongoStore) UpdateUser(ctx context.Context, arg store.UpdateUserParams) (*models.User, error) {
	set := bson.M{}
	if arg.TermsOfUseDisplayed != nil {
		set["terms_of_use_displayed"] = *arg.TermsOfUseDisplayed
	}
	if arg.PeriodDollarAmount != nil {
		set["period_dollar_amount"] = *arg.PeriodDollarAmount
	}
	if len(set) == 0 {
		return s.GetUserByID(ctx, arg.ID)
	}
	set["updated_at"] = time.Now().UTC()

	var doc userDoc
	err := s.col(colUsers).FindOneAndUpdate(ctx,
		bson.M{"_id": arg.ID.String()},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapError("UpdateUser", err)
	}
	return doc.model(), nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.col(colAccess).DeleteMany(ctx, bson.M{"user_email": u.Email}); err != nil {
		return mapError("DeleteUser", err)
	}
	if _, err := s.col(colUsers).DeleteOne(ctx, bson.M{"_id": id.String()}); err != nil {
		return mapError("DeleteUser", err)
	}
	logger.Info("[MongoStore] DeleteUser: removed user and access rows", zap.String("user_id", id.String()))
	return nil
}
