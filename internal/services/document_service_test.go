package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"docutalk-backend/internal/crypto"
	"docutalk-backend/internal/integrations"
	"docutalk-backend/internal/models"
	integration_models "docutalk-backend/internal/models/integrations"
	"docutalk-backend/internal/store"

	"github.com/google/uuid"
)

// flakyStore fails the failOn-th CreateDocument call.
type flakyStore struct {
	*memStore
	failOn int
	calls  int
}

func (s *flakyStore) CreateDocument(ctx context.Context, arg store.CreateDocumentParams) (*models.Document, error) {
	s.calls++
	if s.calls == s.failOn {
		return nil, errors.New("db down")
	}
	return s.memStore.CreateDocument(ctx, arg)
}

func TestUploadIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	id := f.chatbot(t, admin).Chatbot.ID

	cfg := testConfig()
	cfg.Limits.MaxDocsPerChatbot = 5
	svc := NewDocumentService(&flakyStore{memStore: f.store, failOn: 2}, f.objects, nil, integrations.NewRegistry(), cfg)

	_, err := svc.Upload(ctx, admin, id, []UploadedFile{{"c.pdf", buildPDF(1)}, {"d.pdf", buildPDF(1)}})
	if err == nil {
		t.Fatal("want an error when the second row fails")
	}

	docs, _ := f.store.ListDocuments(ctx, id)
	var names []string
	for _, d := range docs {
		names = append(names, d.Filename)
	}
	if strings.Join(names, ",") != "a.pdf,b.pdf" {
		t.Fatalf("rows after failed upload = %v", names)
	}
	if f.objects.count() != 2 {
		t.Fatalf("objects after failed upload = %d, want 2", f.objects.count())
	}

	// The same files can be uploaded again.
	if _, err := f.docs.Upload(ctx, admin, id, []UploadedFile{{"c.pdf", buildPDF(1)}}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

// stubImporter is a stubIntegration that serves pages by id.
type stubImporter struct {
	stubIntegration
	pages map[string]integration_models.ImportedPage
}

func (s stubImporter) ImportPage(_ context.Context, _ integration_models.DecryptedCredentials, pageID string) (*integration_models.ImportedPage, error) {
	p, ok := s.pages[pageID]
	if !ok {
		return nil, integrations.ErrInvalidPageID
	}
	return &p, nil
}

func TestImportNotionPage(t *testing.T) {
	importer := stubImporter{pages: map[string]integration_models.ImportedPage{
		"plan":     {PageID: "plan", Title: "Q3/Plan", Text: strings.Repeat("a", 7000)},
		"untitled": {PageID: "abc123", Title: "", Text: "hello"},
		"empty":    {PageID: "empty", Title: "Empty", Text: ""},
		"huge":     {PageID: "huge", Title: "Huge", Text: strings.Repeat("b", 20000)},
	}}

	cases := []struct {
		name      string
		pageID    string
		noCred    bool
		asMember  bool
		wantErr   error
		wantFile  string
		wantPages int
	}{
		{name: "sanitised title", pageID: "plan", wantFile: "Q3 Plan.txt", wantPages: 3},
		{name: "untitled page uses id", pageID: "untitled", wantFile: "abc123.txt", wantPages: 1},
		{name: "empty page", pageID: "empty", wantErr: ErrInvalidDocument},
		{name: "page limit", pageID: "huge", wantErr: ErrTooManyPages},
		{name: "unknown page", pageID: "nope", wantErr: ErrValidation},
		{name: "missing credential", pageID: "plan", noCred: true, wantErr: ErrValidation},
		{name: "member", pageID: "plan", asMember: true, wantErr: ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			admin := f.user(t, "admin@example.com")
			member := f.user(t, "member@example.com")
			id := f.chatbot(t, admin).Chatbot.ID
			if _, err := f.access.Share(ctx, admin, id, models.ShareChatbotRequest{Email: member.Email, Role: models.RoleUser}); err != nil {
				t.Fatal(err)
			}

			reg := integrations.NewRegistry()
			reg.Register(string(models.ServiceTypeNotion), importer)
			aead, _ := crypto.NewAESGCM(bytes.Repeat([]byte{3}, 32))
			creds := NewCredentialsService(f.store, aead, reg)
			svc := NewDocumentService(f.store, f.objects, creds, reg, testConfig())

			caller := admin
			if tc.asMember {
				caller = member
			}
			cred, err := creds.CreateCredential(ctx, models.CreateCredentialRequest{
				ServiceType: models.ServiceTypeNotion,
				Credentials: map[string]string{"internal_integration_secret": "good"},
			}, caller.UserID)
			if err != nil {
				t.Fatalf("CreateCredential: %v", err)
			}
			req := models.ImportNotionPageRequest{CredentialID: cred.ID, PageID: tc.pageID}
			if tc.noCred {
				req.CredentialID = uuid.Nil
			}

			doc, err := svc.ImportNotionPage(ctx, caller, id, req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if docs, _ := f.store.ListDocuments(ctx, id); len(docs) != 2 {
					t.Fatalf("documents after failure = %d, want 2", len(docs))
				}
				return
			}
			if err != nil {
				t.Fatalf("ImportNotionPage: %v", err)
			}
			if doc.Filename != tc.wantFile || doc.NbPages != tc.wantPages || doc.MimeType != "text/plain" {
				t.Fatalf("imported = %+v", doc)
			}
		})
	}
}

func TestUpdatePrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	member := f.user(t, "member@example.com")
	id := f.chatbot(t, admin).Chatbot.ID
	if _, err := f.access.Share(ctx, admin, id, models.ShareChatbotRequest{Email: member.Email, Role: models.RoleUser}); err != nil {
		t.Fatal(err)
	}
	prompts, _ := f.store.ListSuggestedPrompts(ctx, id)
	if len(prompts) == 0 {
		t.Fatal("chatbot has no suggested prompts")
	}
	promptID := prompts[0].ID

	cases := []struct {
		name     string
		caller   Caller
		promptID uuid.UUID
		prompt   string
		wantErr  error
	}{
		{"member", member, promptID, "Hi?", ErrForbidden},
		{"empty prompt", admin, promptID, "   ", ErrValidation},
		{"unknown prompt", admin, uuid.New(), "Hi?", ErrPromptNotFound},
		{"admin", admin, promptID, "  When does it end?  ", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.chatbots.UpdatePrompt(ctx, tc.caller, id, tc.promptID, tc.prompt)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil || got.Prompt != "When does it end?" {
				t.Fatalf("UpdatePrompt = %+v, %v", got, err)
			}
		})
	}
}
