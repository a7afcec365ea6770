package store

import (
	"context"
	"errors"
	"time"

	"docutalk-backend/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
)

type CreateUserParams struct {
	ID                 uuid.UUID
	Email              string
	FirstName          string
	LastName           string
	FriendlyName       string
	HashedPassword     string
	PeriodDollarAmount float64
	IsGuest            bool
	AuthProvider       models.AuthProvider
}

// UpdateUserParams uses pointers for optional fields.
type UpdateUserParams struct {
	ID                  uuid.UUID
	TermsOfUseDisplayed *bool
	PeriodDollarAmount  *float64
}

type CreateDocumentParams struct {
	ID         uuid.UUID
	ChatbotID  uuid.UUID
	CreatedBy  uuid.UUID
	Filename   string
	MimeType   string
	URI        string
	PublicPath string
	NbPages    int
}

// CreateChatbotParams creates a chatbot together with its prompts, its
// documents and the creator's Admin access row.
type CreateChatbotParams struct {
	ID           uuid.UUID
	CreatedBy    uuid.UUID
	CreatorEmail string
	Title        string
	Description  string
	Icon         []byte
	Access       models.ChatbotAccess
	Prompts      []string
	Documents    []CreateDocumentParams
}

type UpdateChatbotParams struct {
	ID          uuid.UUID
	Title       *string
	Description *string
	Icon        []byte // nil keeps the current icon
	Access      *models.ChatbotAccess
}

type CreateUsageParams struct {
	UserID uuid.UUID
	Model  string
	Unit   string
	Qty    float64
	Price  float64
}

type CreateMetricParams struct {
	Kind        models.MetricKind
	Value       float64
	NbDocuments int
	TotalPages  int
	Model       string
	ChatbotID   uuid.UUID
}

// CreateIntegrationCredentialParams carries the already sealed payload.
type CreateIntegrationCredentialParams struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	ServiceType          string
	CredentialName       string
	EncryptedCredentials []byte
	Status               string
}

// Store defines the database operations of the application. Implementations
// exist for PostgreSQL and MongoDB.
type Store interface {
	// Users
	CreateUser(ctx context.Context, arg CreateUserParams) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, arg UpdateUserParams) (*models.User, error)
	// DeleteUser removes the user and every access row of their email.
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// Chatbots
	CreateChatbot(ctx context.Context, arg CreateChatbotParams) (*models.Chatbot, error)
	GetChatbotByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error)
	// ListChatbotsForUser returns chatbots shared with email plus every public
	// chatbot, each once. Public ones without an access row get RoleUser.
	ListChatbotsForUser(ctx context.Context, email string) ([]models.UserChatbot, error)
	UpdateChatbot(ctx context.Context, arg UpdateChatbotParams) (*models.Chatbot, error)
	// DeleteChatbot removes the chatbot with its access rows, prompts and documents.
	DeleteChatbot(ctx context.Context, id uuid.UUID) error

	// Access
	UpsertAccess(ctx context.Context, chatbotID uuid.UUID, email string, role models.Role) (*models.Access, error)
	GetAccess(ctx context.Context, chatbotID uuid.UUID, email string) (*models.Access, error)
	ListAccess(ctx context.Context, chatbotID uuid.UUID) ([]models.Access, error)
	DeleteAccess(ctx context.Context, chatbotID uuid.UUID, email string) error

	// Suggested prompts
	ListSuggestedPrompts(ctx context.Context, chatbotID uuid.UUID) ([]models.SuggestedPrompt, error)
	UpdateSuggestedPrompt(ctx context.Context, chatbotID, promptID uuid.UUID, prompt string) (*models.SuggestedPrompt, error)

	// Documents
	CreateDocument(ctx context.Context, arg CreateDocumentParams) (*models.Document, error)
	ListDocuments(ctx context.Context, chatbotID uuid.UUID) ([]models.Document, error)
	GetDocumentByFilename(ctx context.Context, chatbotID uuid.UUID, filename string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// Pricing and usage
	ListServiceModels(ctx context.Context) ([]models.ServiceModel, error)
	UpsertServiceModel(ctx context.Context, m models.ServiceModel) error
	CreateUsage(ctx context.Context, arg CreateUsageParams) (*models.Usage, error)
	// SumUsagePrice sums prices of usages in [from, to).
	SumUsagePrice(ctx context.Context, userID uuid.UUID, from, to time.Time) (float64, error)

	// Metrics
	CreateMetric(ctx context.Context, arg CreateMetricParams) error
	// ListMetrics returns the newest records of kind for model, at most limit.
	ListMetrics(ctx context.Context, kind models.MetricKind, model string, limit int) ([]models.MetricRecord, error)

	// Integration credentials
	CreateIntegrationCredential(ctx context.Context, arg CreateIntegrationCredentialParams) (*models.IntegrationCredential, error)
	GetIntegrationCredentialByID(ctx context.Context, id, userID uuid.UUID) (*models.IntegrationCredential, error)
	ListIntegrationCredentials(ctx context.Context, userID uuid.UUID, serviceType *string) ([]models.IntegrationCredential, error)
	DeleteIntegrationCredential(ctx context.Context, id, userID uuid.UUID) error
}
