package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Auth ---

type SignupRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse never carries the password hash.
type UserResponse struct {
	ID                  uuid.UUID    `json:"id"`
	Email               string       `json:"email"`
	FirstName           string       `json:"first_name"`
	LastName            string       `json:"last_name"`
	FriendlyName        string       `json:"friendly_name"`
	IsGuest             bool         `json:"is_guest"`
	TermsOfUseDisplayed bool         `json:"terms_of_use_displayed"`
	AuthProvider        AuthProvider `json:"auth_provider"`
	CreatedAt           time.Time    `json:"created_at"`
}

func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:                  u.ID,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		FriendlyName:        u.FriendlyName,
		IsGuest:             u.IsGuest,
		TermsOfUseDisplayed: u.TermsOfUseDisplayed,
		AuthProvider:        u.AuthProvider,
		CreatedAt:           u.CreatedAt,
	}
}

type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// CreditsResponse is the weekly ledger of a user, in credits.
type CreditsResponse struct {
	Available    float64   `json:"available"`
	Consumed     float64   `json:"consumed"`
	Remaining    float64   `json:"remaining"`
	Exhausted    bool      `json:"exhausted"`
	ExchangeRate float64   `json:"exchange_rate"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
}

// --- Chatbots ---

type ChatbotResponse struct {
	ID               uuid.UUID                 `json:"id"`
	Title            string                    `json:"title"`
	Description      string                    `json:"description"`
	Access           ChatbotAccess             `json:"access"`
	UserRole         Role                      `json:"user_role"`
	CreatedBy        uuid.UUID                 `json:"created_by"`
	IconURL          string                    `json:"icon_url"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	Documents        []DocumentResponse        `json:"documents,omitempty"`
	SuggestedPrompts []SuggestedPromptResponse `json:"suggested_prompts,omitempty"`
}

func NewChatbotResponse(c *Chatbot, role Role) ChatbotResponse {
	return ChatbotResponse{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Access:      c.Access,
		UserRole:    role,
		CreatedBy:   c.CreatedBy,
		IconURL:     "/v1/chatbots/" + c.ID.String() + "/icon",
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// CreateChatbotResponse lists in Fallbacks the generation steps whose model
// output was unusable (title_description, suggested_prompts, icon).
type CreateChatbotResponse struct {
	Chatbot     ChatbotResponse `json:"chatbot"`
	Fallbacks   []string        `json:"fallbacks"`
	CreditsUsed float64         `json:"credits_used"`
}

type UpdateChatbotRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type SuggestedPromptResponse struct {
	ID     uuid.UUID `json:"id"`
	Prompt string    `json:"prompt"`
}

type UpdateSuggestedPromptRequest struct {
	Prompt string `json:"prompt"`
}

// --- Documents ---

type DocumentResponse struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	NbPages   int       `json:"nb_pages"`
	URL       string    `json:"url,omitempty"` // signed, short-lived
	CreatedAt time.Time `json:"created_at"`
}

type ImportNotionPageRequest struct {
	CredentialID uuid.UUID `json:"credential_id"`
	PageID       string    `json:"page_id"`
}

// --- Access ---

type ShareChatbotRequest struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type AccessResponse struct {
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Chat ---

type ConversationResponse struct {
	ID        string    `json:"id"`
	ChatbotID uuid.UUID `json:"chatbot_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

type AskRequest struct {
	Message     string      `json:"message"`
	Premium     bool        `json:"premium"`
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
}

type SourcesRequest struct {
	Premium     bool        `json:"premium"`
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
}

// Source is a citation in a document, URL pointing at the page.
type Source struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
	Citation string `json:"citation"`
	URL      string `json:"url"`
}

type SourcesResponse struct {
	Sources     []Source `json:"sources"`
	CreditsUsed float64  `json:"credits_used"`
}

type EstimateRequest struct {
	Operation   string `json:"operation"` // create_chatbot | ask
	NbDocuments int    `json:"nb_documents"`
	TotalPages  int    `json:"total_pages"`
	Premium     bool   `json:"premium"`
}

type EstimateResponse struct {
	Seconds float64 `json:"seconds"`
}

// --- Integration Credentials ---

type ServiceType string

const (
	ServiceTypeNotion ServiceType = "NOTION"
)

// CreateCredentialRequest carries raw secrets; they are only used for this
// request and never returned.
type CreateCredentialRequest struct {
	ServiceType    ServiceType       `json:"service_type"`
	CredentialName *string           `json:"credential_name,omitempty"`
	Credentials    map[string]string `json:"credentials"`
}

type CredentialResponse struct {
	ID             uuid.UUID   `json:"id"`
	ServiceType    ServiceType `json:"service_type"`
	CredentialName string      `json:"credential_name"`
	Status         string      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type TestCredentialResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
