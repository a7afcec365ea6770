package mongodb

import (
	"context"
	"fmt"
	"time"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type serviceModelDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Unit         string    `bson:"unit"`
	PricePerUnit float64   `bson:"price_per_unit"`
	Timestamp    time.Time `bson:"timestamp"`
}

func (s *MongoStore) ListServiceModels(ctx context.Context) ([]models.ServiceModel, error) {
	cur, err := s.col(colServiceModels).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, mapError("ListServiceModels", err)
	}
	var docs []serviceModelDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError("ListServiceModels", err)
	}
	items := make([]models.ServiceModel, 0, len(docs))
	for _, d := range docs {
		items = append(items, models.ServiceModel{
			ID:           parseID(d.ID),
			Name:         d.Name,
			Unit:         d.Unit,
			PricePerUnit: d.PricePerUnit,
			CreatedAt:    d.Timestamp,
		})
	}
	return items, nil
}

func (s *MongoStore) UpsertServiceModel(ctx context.Context, m models.ServiceModel) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.col(colServiceModels).UpdateOne(ctx,
		bson.M{"name": m.Name},
		bson.M{
			"$set":         bson.M{"unit": m.Unit, "price_per_unit": m.PricePerUnit},
			"$setOnInsert": bson.M{"_id": m.ID.String(), "timestamp": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return mapError("UpsertServiceModel", err)
	}
	return nil
}

type usageDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Model     string    `bson:"model"`
	Unit      string    `bson:"unit"`
	Qty       float64   `bson:"qty"`
	Price     float64   `bson:"price"`
	Timestamp time.Time `bson:"timestamp"`
}

func (s *MongoStore) CreateUsage(ctx context.Context, arg store.CreateUsageParams) (*models.Usage, error) {
	doc := usageDoc{
		ID:        uuid.NewString(),
		UserID:    arg.UserID.String(),
		Model:     arg.Model,
		Unit:      arg.Unit,
		Qty:       arg.Qty,
		Price:     arg.Price,
		Timestamp: time.Now().UTC(),
	}
	if _, err := s.col(colUsages).InsertOne(ctx, doc); err != nil {
		return nil, mapError("CreateUsage", err)
	}
	return &models.Usage{
		ID:        parseID(doc.ID),
		UserID:    arg.UserID,
		Model:     doc.Model,
		Unit:      doc.Unit,
		Qty:       doc.Qty,
		Price:     doc.Price,
		CreatedAt: doc.Timestamp,
	}, nil
}

func (s *MongoStore) SumUsagePrice(ctx context.Context, userID uuid.UUID, from, to time.Time) (float64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{
			"user_id":   userID.String(),
			"timestamp": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
		}},
		bson.M{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$price"}}},
	}
	cur, err := s.col(colUsages).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, mapError("SumUsagePrice", err)
	}
	var out []struct {
		Total float64 `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return 0, mapError("SumUsagePrice", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

// --- Metrics ---

var metricCollections = map[models.MetricKind]string{
	models.MetricCreateChatbotDuration: colCreateChatbotDurations,
	models.MetricAskChatbotDuration:    colAskChatbotDurations,
	models.MetricAskChatbotTokenCount:  colAskChatbotTokenCounts,
}

type metricDoc struct {
	ID          string    `bson:"_id"`
	Value       float64   `bson:"value"`
	NbDocuments int       `bson:"nb_documents"`
	TotalPages  int       `bson:"total_pages"`
	Model       string    `bson:"model"`
	Metadata    struct {
		ChatbotID string `bson:"chatbot_id"`
	} `bson:"metadata"`
	Timestamp time.Time `bson:"timestamp"`
}

func metricCollection(kind models.MetricKind) (string, error) {
	name, ok := metricCollections[kind]
	if !ok {
		return "", fmt.Errorf("unknown metric kind %q", kind)
	}
	return name, nil
}

func (s *MongoStore) CreateMetric(ctx context.Context, arg store.CreateMetricParams) error {
	name, err := metricCollection(arg.Kind)
	if err != nil {
		return err
	}
	doc := metricDoc{
		ID:          uuid.NewString(),
		Value:       arg.Value,
		NbDocuments: arg.NbDocuments,
		TotalPages:  arg.TotalPages,
		Model:       arg.Model,
		Timestamp:   time.Now().UTC(),
	}
	doc.Metadata.ChatbotID = arg.ChatbotID.String()
	if _, err := s.col(name).InsertOne(ctx, doc); err != nil {
		return mapError("CreateMetric", err)
	}
	return nil
}

func (s *MongoStore) ListMetrics(ctx context.Context, kind models.MetricKind, model string, limit int) ([]models.MetricRecord, error) {
	name, err := metricCollection(kind)
	if err != nil {
		return nil, err
	}
	cur, err := s.col(name).Find(ctx,
		bson.M{"model": model},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, mapError("ListMetrics", err)
	}
	var docs []metricDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError("ListMetrics", err)
	}
	items := make([]models.MetricRecord, 0, len(docs))
	for _, d := range docs {
		items = append(items, models.MetricRecord{
			ID:          parseID(d.ID),
			Kind:        kind,
			Value:       d.Value,
			NbDocuments: d.NbDocuments,
			TotalPages:  d.TotalPages,
			Model:       d.Model,
			ChatbotID:   parseID(d.Metadata.ChatbotID),
			CreatedAt:   d.Timestamp,
		})
	}
	return items, nil
}

// --- Integration credentials ---

type credentialDoc struct {
	ID                   string    `bson:"_id"`
	UserID               string    `bson:"user_id"`
	ServiceType          string    `bson:"service_type"`
	CredentialName       string    `bson:"credential_name"`
	EncryptedCredentials []byte    `bson:"encrypted_credentials"`
	Status               string    `bson:"status"`
	Timestamp            time.Time `bson:"timestamp"`
	UpdatedAt            time.Time `bson:"updated_at"`
}

func (d credentialDoc) model() models.IntegrationCredential {
	return models.IntegrationCredential{
		ID:                   parseID(d.ID),
		UserID:               parseID(d.UserID),
		ServiceType:          d.ServiceType,
		CredentialName:       d.CredentialName,
		EncryptedCredentials: d.EncryptedCredentials,
		Status:               d.Status,
		CreatedAt:            d.Timestamp,
		UpdatedAt:            d.UpdatedAt,
	}
}

func (s *MongoStore) CreateIntegrationCredential(ctx context.Context, arg store.CreateIntegrationCredentialParams) (*models.IntegrationCredential, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	now := time.Now().UTC()
	doc := credentialDoc{
		ID:                   arg.ID.String(),
		UserID:               arg.UserID.String(),
		ServiceType:          arg.ServiceType,
		CredentialName:       arg.CredentialName,
		EncryptedCredentials: arg.EncryptedCredentials,
		Status:               arg.Status,
		Timestamp:            now,
		UpdatedAt:            now,
	}
	if _, err := s.col(colIntegrationCredentials).InsertOne(ctx, doc); err != nil {
		return nil, mapError("CreateIntegrationCredential", err)
	}
	logger.Info("[MongoStore] CreateIntegrationCredential: inserted",
		zap.String("credential_id", doc.ID),
		zap.String("service_type", doc.ServiceType),
	)
	c := doc.model()
	return &c, nil
}

func (s *MongoStore) GetIntegrationCredentialByID(ctx context.Context, id, userID uuid.UUID) (*models.IntegrationCredential, error) {
	var doc credentialDoc
	err := s.col(colIntegrationCredentials).FindOne(ctx, bson.M{"_id": id.String(), "user_id": userID.String()}).Decode(&doc)
	if err != nil {
		return nil, mapError("GetIntegrationCredentialByID", err)
	}
	c := doc.model()
	return &c, nil
}

func (s *MongoStore) ListIntegrationCredentials(ctx context.Context, userID uuid.UUID, serviceType *string) ([]models.IntegrationCredential, error) {
	filter := bson.M{"user_id": userID.String()}
	if serviceType != nil && *serviceType != "" {
		filter["service_type"] = *serviceType
	}
	cur, err := s.col(colIntegrationCredentials).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, mapError("ListIntegrationCredentials", err)
	}
	var docs []credentialDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError("ListIntegrationCredentials", err)
	}
	creds := make([]models.IntegrationCredential, 0, len(docs))
	for _, d := range docs {
		creds = append(creds, d.model())
	}
	return creds, nil
}

func (s *MongoStore) DeleteIntegrationCredential(ctx context.Context, id, userID uuid.UUID) error {
	res, err := s.col(colIntegrationCredentials).DeleteOne(ctx, bson.M{"_id": id.String(), "user_id": userID.String()})
	if err != nil {
		return mapError("DeleteIntegrationCredential", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
