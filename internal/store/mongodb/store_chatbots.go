package mongodb

import (
	"context"
	"strings"
	"time"

	"docutalk-backend/internal/models"
	"docutalk-backend/internal/store"
	"docutalk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type chatbotDoc struct {
	ID          string    `bson:"_id"`
	CreatedBy   string    `bson:"created_by"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Icon        []byte    `bson:"icon"`
	Access      string    `bson:"access"`
	Timestamp   time.Time `bson:"timestamp"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d chatbotDoc) model() *models.Chatbot {
	return &models.Chatbot{
		ID:          parseID(d.ID),
		CreatedBy:   parseID(d.CreatedBy),
		Title:       d.Title,
		Description: d.Description,
		Icon:        d.Icon,
		Access:      models.ChatbotAccess(d.Access),
		CreatedAt:   d.Timestamp,
		UpdatedAt:   d.UpdatedAt,
	}
}

type accessDoc struct {
	ChatbotID string    `bson:"chatbot_id"`
	UserEmail string    `bson:"user_email"`
	Role      string    `bson:"role"`
	Timestamp time.Time `bson:"timestamp"`
}

func (d accessDoc) model() models.Access {
	return models.Access{
		ChatbotID: parseID(d.ChatbotID),
		UserEmail: d.UserEmail,
		Role:      models.Role(d.Role),
		CreatedAt: d.Timestamp,
	}
}

type promptDoc struct {
	ID        string    `bson:"_id"`
	ChatbotID string    `bson:"chatbot_id"`
	Prompt    string    `bson:"prompt"`
	Position  int       `bson:"position"`
	Timestamp time.Time `bson:"timestamp"`
}

func (d promptDoc) model() models.SuggestedPrompt {
	return models.SuggestedPrompt{
		ID:        parseID(d.ID),
		ChatbotID: parseID(d.ChatbotID),
		Prompt:    d.Prompt,
		Position:  d.Position,
		CreatedAt: d.Timestamp,
	}
}

type documentDoc struct {
	ID         string    `bson:"_id"`
	ChatbotID  string    `bson:"chatbot_id"`
	CreatedBy  string    `bson:"created_by"`
	Filename   string    `bson:"filename"`
	MimeType   string    `bson:"mime_type"`
	URI        string    `bson:"uri"`
	PublicPath string    `bson:"public_path"`
	NbPages    int       `bson:"nb_pages"`
	Timestamp  time.Time `bson:"timestamp"`
}

func (d documentDoc) model() models.Document {
	return models.Document{
		ID:         parseID(d.ID),
		ChatbotID:  parseID(d.ChatbotID),
		CreatedBy:  parseID(d.CreatedBy),
		Filename:   d.Filename,
		MimeType:   d.MimeType,
		URI:        d.URI,
		PublicPath: d.PublicPath,
		NbPages:    d.NbPages,
		CreatedAt:  d.Timestamp,
	}
}

func newDocumentDoc(arg store.CreateDocumentParams, now time.Time) documentDoc {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	return documentDoc{
		ID:         arg.ID.String(),
		ChatbotID:  arg.ChatbotID.String(),
		CreatedBy:  arg.CreatedBy.String(),
		Filename:   arg.Filename,
		MimeType:   arg.MimeType,
		URI:        arg.URI,
		PublicPath: arg.PublicPath,
		NbPages:    arg.NbPages,
		Timestamp:  now,
	}
}

// CreateChatbot writes the chatbot first and the dependent documents after
// it. A failure part way removes what was written.
func (s *MongoStore) CreateChatbot(ctx context.Context, arg store.CreateChatbotParams) (*models.Chatbot, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	if arg.Access == "" {
		arg.Access = models.AccessPrivate
	}
	now := time.Now().UTC()
	doc := chatbotDoc{
		ID:          arg.ID.String(),
		CreatedBy:   arg.CreatedBy.String(),
		Title:       arg.Title,
		Description: arg.Description,
		Icon:        arg.Icon,
		Access:      string(arg.Access),
		Timestamp:   now,
		UpdatedAt:   now,
	}
	if _, err := s.col(colChatbots).InsertOne(ctx, doc); err != nil {
		return nil, mapError("CreateChatbot", err)
	}

	var prompts []any
	for _, p := range arg.Prompts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		prompts = append(prompts, promptDoc{
			ID:        uuid.NewString(),
			ChatbotID: doc.ID,
			Prompt:    p,
			Position:  len(prompts),
			Timestamp: now,
		})
	}
	var docs []any
	for _, d := range arg.Documents {
		d.ChatbotID = arg.ID
		docs = append(docs, newDocumentDoc(d, now))
	}

	err := func() error {
		if len(prompts) > 0 {
			if _, err := s.col(colSuggestedPrompts).InsertMany(ctx, prompts); err != nil {
				return err
			}
		}
		if len(docs) > 0 {
			if _, err := s.col(colDocuments).InsertMany(ctx, docs); err != nil {
				return err
			}
		}
		_, err := s.col(colAccess).InsertOne(ctx, accessDoc{
			ChatbotID: doc.ID,
			UserEmail: arg.CreatorEmail,
			Role:      string(models.RoleAdmin),
			Timestamp: now,
		})
		return err
	}()
	if err != nil {
		if derr := s.DeleteChatbot(context.WithoutCancel(ctx), arg.ID); derr != nil {
			logger.Error("[MongoStore] CreateChatbot: rollback failed", zap.String("chatbot_id", doc.ID), zap.Error(derr))
		}
		return nil, mapError("CreateChatbot", err)
	}

	logger.Info("[MongoStore] CreateChatbot: inserted",
		zap.String("chatbot_id", doc.ID),
		zap.Int("prompts", len(prompts)),
		zap.Int("documents", len(docs)),
	)
	return doc.model(), nil
}

func (s *MongoStore) GetChatbotByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error) {
	var doc chatbotDoc
	if err := s.col(colChatbots).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, mapError("GetChatbotByID", err)
	}
	return doc.model(), nil
}

func (s *MongoStore) ListChatbotsForUser(ctx context.Context, email string) ([]models.UserChatbot, error) {
	cur, err := s.col(colAccess).Find(ctx, bson.M{"user_email": email})
	if err != nil {
		return nil, mapError("ListChatbotsForUser", err)
	}
	var rows []accessDoc
	if err := cur.All(ctx, &rows); err != nil {
		return nil, mapError("ListChatbotsForUser", err)
	}
	roles := make(map[string]models.Role, len(rows))
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		roles[a.ChatbotID] = models.Role(a.Role)
		ids = append(ids, a.ChatbotID)
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"access": string(models.AccessPublic)},
	}}
	cur, err = s.col(colChatbots).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, mapError("ListChatbotsForUser", err)
	}
	var bots []chatbotDoc
	if err := cur.All(ctx, &bots); err != nil {
		return nil, mapError("ListChatbotsForUser", err)
	}

	items := make([]models.UserChatbot, 0, len(bots))
	for _, b := range bots {
		role, ok := roles[b.ID]
		if !ok {
			role = models.RoleUser
		}
		items = append(items, models.UserChatbot{Chatbot: *b.model(), UserRole: role})
	}
	return items, nil
}

func (s *MongoStore) UpdateChatbot(ctx context.Context, arg store.UpdateChatbotParams) (*models.Chatbot, error) {
	set := bson.M{}
	if arg.Title != nil {
		set["title"] = *arg.Title
	}
	if arg.Description != nil {
		set["description"] = *arg.Description
	}
	if arg.Icon != nil {
		set["icon"] = arg.Icon
	}
	if arg.Access != nil {
		set["access"] = string(*arg.Access)
	}
	if len(set) == 0 {
		return s.GetChatbotByID(ctx, arg.ID)
	}
	set["updated_at"] = time.Now().UTC()

	var doc chatbotDoc
	err := s.col(colChatbots).FindOneAndUpdate(ctx,
		bson.M{"_id": arg.ID.String()},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapError("UpdateChatbot", err)
	}
	return doc.model(), nil
}

func (s *MongoStore) DeleteChatbot(ctx context.Context, id uuid.UUID) error {
	filter := bson.M{"chatbot_id": id.String()}
	for _, name := range []string{colAccess, colSuggestedPrompts, colDocuments} {
		if _, err := s.col(name).DeleteMany(ctx, filter); err != nil {
			return mapError("DeleteChatbot", err)
		}
	}
	res, err := s.col(colChatbots).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return mapError("DeleteChatbot", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Access ---

func accessFilter(chatbotID uuid.UUID, email string) bson.M {
	return bson.M{"chatbot_id": chatbotID.String(), "user_email": email}
}

func (s *MongoStore) UpsertAccess(ctx context.Context, chatbotID uuid.UUID, email string, role models.Role) (*models.Access, error) {
	var doc accessDoc
	err := s.col(colAccess).FindOneAndUpdate(ctx,
		accessFilter(chatbotID, email),
		bson.M{
			"$set":         bson.M{"role": string(role)},
			"$setOnInsert": bson.M{"timestamp": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapError("UpsertAccess", err)
	}
	a := doc.model()
	return &a, nil
}

func (s *MongoStore) GetAccess(ctx context.Context, chatbotID uuid.UUID, email string) (*models.Access, error) {
	var doc accessDoc
	if err := s.col(colAccess).FindOne(ctx, accessFilter(chatbotID, email)).Decode(&doc); err != nil {
		return nil, mapError("GetAccess", err)
	}
	a := doc.model()
	return &a, nil
}

func (s *MongoStore) ListAccess(ctx context.Context, chatbotID uuid.UUID) ([]models.Access, error) {
	cur, err := s.col(colAccess).Find(ctx,
		bson.M{"chatbot_id": chatbotID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, mapError("ListAccess", err)
	}
	var docs []accessDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError("ListAccess", err)
	}
	items := make([]models.Access, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}
	return items, nil
}

func (s *MongoStore) DeleteAccess(ctx context.Context, chatbotID uuid.UUID, email string) error {
	res, err := s.col(colAccess).DeleteOne(ctx, accessFilter(chatbotID, email))
	if err != nil {
		return mapError("DeleteAccess", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Suggested prompts ---

func (s *MongoStore) ListSuggestedPrompts(ctx context.Context, chatbotID uuid.UUID) ([]models.SuggestedPrompt, error) {
	cur, err := s.col(colSuggestedPrompts).Find(ctx,
		bson.M{"chatbot_id": chatbotID.String()},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, mapError("ListSuggestedPrompts", err)
	}
	var docs []promptDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError("ListSuggestedPrompts", err)
	}
	items := make([]models.SuggestedPrompt, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}
	return items, nil
}

func (s *MongoStore) UpdateSuggestedPrompt(ctx context.Context, chatbotID, promptID uuid.UUID, prompt string) (*models.SuggestedPrompt, error) {
	var doc promptDoc
	err := s.col(colSuggestedPrompts).FindOneAndUpdate(ctx,
		bson.M{"_id": promptID.String(), "chatbot_id": chatbotID.String()},
		bson.M{"$set": bson.M{"prompt": prompt}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapError("UpdateSuggestedPrompt", err)
	}
	p := doc.model()
	return &p, nil
}

// --- Documents ---

func (s *MongoStore) CreateDocument(ctx context.Context, arg store.CreateDocumentParams) (*models.Document, error) {
	doc := newDocumentDoc(arg, time.Now().UTC())
	if _, err := s.col(colDocuments).InsertOne(ctx, doc); err != nil {
		return nil, mapError("CreateDocument", err)
	}
	d := doc.model()
	return &d, nil
}

func (s *MongoStore) ListDocuments(ctx context.Context, chatbotID uuid.UUID) ([]models.Document, error) {
	cur, err := s.col(colDocuments).Find(ctx,
		bson.M{"chatbot_id": chatbotID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "filename", Value: 1}}),
	)
	if err != nil {
		return nil, mapError("ListDocuments", err)
	}
	var docs []documentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError("ListDocuments", err)
	}
	items := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}
	return items, nil
}

func (s *MongoStore) GetDocumentByFilename(ctx context.Context, chatbotID uuid.UUID, filename string) (*models.Document, error) {
	var doc documentDoc
	err := s.col(colDocuments).FindOne(ctx, bson.M{"chatbot_id": chatbotID.String(), "filename": filename}).Decode(&doc)
	if err != nil {
		return nil, mapError("GetDocumentByFilename", err)
	}
	d := doc.model()
	return &d, nil
}

func (s *MongoStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	res, err := s.col(colDocuments).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return mapError("DeleteDocument", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

