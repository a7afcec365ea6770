package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's permission level on a chatbot.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// ChatbotAccess is the visibility of a chatbot.
type ChatbotAccess string

const (
	AccessPrivate              ChatbotAccess = "private"
	AccessPublic               ChatbotAccess = "public"
	AccessPendingPublicRequest ChatbotAccess = "pending_public_request"
)

// AuthProvider records how an account was created.
type AuthProvider string

const (
	ProviderPassword  AuthProvider = "password"
	ProviderGuest     AuthProvider = "guest"
	ProviderGoogle    AuthProvider = "google"
	ProviderMicrosoft AuthProvider = "microsoft"
)

// User represents the 'users' table.
type User struct {
	ID                  uuid.UUID    `db:"id"`
	Email               string       `db:"email"`
	FirstName           string       `db:"first_name"`
	LastName            string       `db:"last_name"`
	FriendlyName        string       `db:"friendly_name"`
	HashedPassword      string       `db:"hashed_password"`
	PeriodDollarAmount  float64      `db:"period_dollar_amount"`
	TermsOfUseDisplayed bool         `db:"terms_of_use_displayed"`
	IsGuest             bool         `db:"is_guest"`
	AuthProvider        AuthProvider `db:"auth_provider"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
}

// Chatbot represents the 'chatbots' table. Icon holds PNG bytes.
type Chatbot struct {
	ID          uuid.UUID     `db:"id"`
	CreatedBy   uuid.UUID     `db:"created_by"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	Icon        []byte        `db:"icon"`
	Access      ChatbotAccess `db:"access"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

// UserChatbot is a chatbot as seen by one user.
type UserChatbot struct {
	Chatbot
	UserRole Role `db:"user_role"`
}

// Access represents the 'access' table. Rows are keyed by email so a
// chatbot can be shared before the recipient signs up.
type Access struct {
	ChatbotID uuid.UUID `db:"chatbot_id"`
	UserEmail string    `db:"user_email"`
	Role      Role      `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

// Document represents the 'documents' table. URI is the gs:// location,
// PublicPath the console URL of the same object.
type Document struct {
	ID         uuid.UUID `db:"id"`
	ChatbotID  uuid.UUID `db:"chatbot_id"`
	CreatedBy  uuid.UUID `db:"created_by"`
	Filename   string    `db:"filename"`
	MimeType   string    `db:"mime_type"`
	URI        string    `db:"uri"`
	PublicPath string    `db:"public_path"`
	NbPages    int       `db:"nb_pages"`
	CreatedAt  time.Time `db:"created_at"`
}

type SuggestedPrompt struct {
	ID        uuid.UUID `db:"id"`
	ChatbotID uuid.UUID `db:"chatbot_id"`
	Prompt    string    `db:"prompt"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
}

// ServiceModel is a priced model. Price = qty * PricePerUnit.
type ServiceModel struct {
	ID           uuid.UUID `db:"id" json:"-"`
	Name         string    `db:"name" json:"name"`
	Unit         string    `db:"unit" json:"unit"`
	PricePerUnit float64   `db:"price_per_unit" json:"price_per_unit"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
}

// Usage is one metered model call.
type Usage struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Model     string    `db:"model"`
	Unit      string    `db:"unit"`
	Qty       float64   `db:"qty"`
	Price     float64   `db:"price"`
	CreatedAt time.Time `db:"created_at"`
}

// MetricKind names one of the three metric tables.
type MetricKind string

const (
	MetricCreateChatbotDuration MetricKind = "create_chatbot_duration"
	MetricAskChatbotDuration    MetricKind = "ask_chatbot_duration"
	MetricAskChatbotTokenCount  MetricKind = "ask_chatbot_token_count"
)

type MetricRecord struct {
	ID          uuid.UUID  `db:"id"`
	Kind        MetricKind `db:"kind"`
	Value       float64    `db:"value"`
	NbDocuments int        `db:"nb_documents"`
	TotalPages  int        `db:"total_pages"`
	Model       string     `db:"model"`
	ChatbotID   uuid.UUID  `db:"chatbot_id"`
	CreatedAt   time.Time  `db:"created_at"`
}

// IntegrationCredential represents the 'integration_credentials' table.
type IntegrationCredential struct {
	ID                   uuid.UUID `db:"id"`
	UserID               uuid.UUID `db:"user_id"`
	ServiceType          string    `db:"service_type"`
	CredentialName       string    `db:"credential_name"`
	EncryptedCredentials []byte    `db:"encrypted_credentials"` // JSON wrapper {"encrypted": base64}
	Status               string    `db:"status"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}
