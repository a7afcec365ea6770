package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/llm"
	"docutalk-backend/internal/mailing"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/storage"
	"docutalk-backend/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory store.Store.
type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	chatbots map[uuid.UUID]*models.Chatbot
	access   map[string]*models.Access // chatbot_id|email
	prompts  []models.SuggestedPrompt
	docs     map[uuid.UUID]*models.Document
	services []models.ServiceModel
	usages   []models.Usage
	metrics  []models.MetricRecord
	creds    map[uuid.UUID]*models.IntegrationCredential
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:    map[uuid.UUID]*models.User{},
		chatbots: map[uuid.UUID]*models.Chatbot{},
		access:   map[string]*models.Access{},
		docs:     map[uuid.UUID]*models.Document{},
		creds:    map[uuid.UUID]*models.IntegrationCredential{},
		services: []models.ServiceModel{{Name: "gemini-pro", Unit: "characters", PricePerUnit: 0.001}, {Name: "gemini-flash", Unit: "characters", PricePerUnit: 0.0001}},
	}
}

func accessKey(id uuid.UUID, email string) string { return id.String() + "|" + email }

func (m *memStore) CreateUser(_ context.Context, arg store.CreateUserParams) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == arg.Email {
			return nil, store.ErrConflict
		}
	}
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	u := &models.User{
		ID: arg.ID, Email: arg.Email, FirstName: arg.FirstName, LastName: arg.LastName,
		FriendlyName: arg.FriendlyName, HashedPassword: arg.HashedPassword,
		PeriodDollarAmount: arg.PeriodDollarAmount, IsGuest: arg.IsGuest, AuthProvider: arg.AuthProvider,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateUser(_ context.Context, arg store.UpdateUserParams) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[arg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if arg.TermsOfUseDisplayed != nil {
		u.TermsOfUseDisplayed = *arg.TermsOfUseDisplayed
	}
	if arg.PeriodDollarAmount != nil {
		u.PeriodDollarAmount = *arg.PeriodDollarAmount
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	for k, a := range m.access {
		if a.UserEmail == u.Email {
			delete(m.access, k)
		}
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) CreateChatbot(_ context.Context, arg store.CreateChatbotParams) (*models.Chatbot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.Chatbot{
		ID: arg.ID, CreatedBy: arg.CreatedBy, Title: arg.Title, Description: arg.Description,
		Icon: arg.Icon, Access: arg.Access, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.chatbots[c.ID] = c
	for i, p := range arg.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			m.prompts = append(m.prompts, models.SuggestedPrompt{ID: uuid.New(), ChatbotID: c.ID, Prompt: p, Position: i})
		}
	}
	for _, d := range arg.Documents {
		m.docs[d.ID] = &models.Document{ID: d.ID, ChatbotID: c.ID, CreatedBy: d.CreatedBy, Filename: d.Filename, MimeType: d.MimeType, URI: d.URI, PublicPath: d.PublicPath, NbPages: d.NbPages}
	}
	m.access[accessKey(c.ID, arg.CreatorEmail)] = &models.Access{ChatbotID: c.ID, UserEmail: arg.CreatorEmail, Role: models.RoleAdmin}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetChatbotByID(_ context.Context, id uuid.UUID) (*models.Chatbot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chatbots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListChatbotsForUser(_ context.Context, email string) ([]models.UserChatbot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserChatbot
	for _, c := range m.chatbots {
		if a, ok := m.access[accessKey(c.ID, email)]; ok {
			out = append(out, models.UserChatbot{Chatbot: *c, UserRole: a.Role})
		} else if c.Access == models.AccessPublic {
			out = append(out, models.UserChatbot{Chatbot: *c, UserRole: models.RoleUser})
		}
	}
	return out, nil
}

func (m *memStore) UpdateChatbot(_ context.Context, arg store.UpdateChatbotParams) (*models.Chatbot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chatbots[arg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if arg.Title != nil {
		c.Title = *arg.Title
	}
	if arg.Description != nil {
		c.Description = *arg.Description
	}
	if arg.Icon != nil {
		c.Icon = arg.Icon
	}
	if arg.Access != nil {
		c.Access = *arg.Access
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteChatbot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chatbots[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.chatbots, id)
	for k, a := range m.access {
		if a.ChatbotID == id {
			delete(m.access, k)
		}
	}
	for k, d := range m.docs {
		if d.ChatbotID == id {
			delete(m.docs, k)
		}
	}
	kept := m.prompts[:0]
	for _, p := range m.prompts {
		if p.ChatbotID != id {
			kept = append(kept, p)
		}
	}
	m.prompts = kept
	return nil
}

func (m *memStore) UpsertAccess(_ context.Context, chatbotID uuid.UUID, email string, role models.Role) (*models.Access, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := accessKey(chatbotID, email)
	a, ok := m.access[k]
	if !ok {
		a = &models.Access{ChatbotID: chatbotID, UserEmail: email, CreatedAt: time.Now()}
		m.access[k] = a
	}
	a.Role = role
	cp := *a
	return &cp, nil
}

func (m *memStore) GetAccess(_ context.Context, chatbotID uuid.UUID, email string) (*models.Access, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.access[accessKey(chatbotID, email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAccess(_ context.Context, chatbotID uuid.UUID) ([]models.Access, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Access
	for _, a := range m.access {
		if a.ChatbotID == chatbotID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserEmail < out[j].UserEmail })
	return out, nil
}

func (m *memStore) DeleteAccess(_ context.Context, chatbotID uuid.UUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := accessKey(chatbotID, email)
	if _, ok := m.access[k]; !ok {
		return store.ErrNotFound
	}
	delete(m.access, k)
	return nil
}

func (m *memStore) ListSuggestedPrompts(_ context.Context, chatbotID uuid.UUID) ([]models.SuggestedPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SuggestedPrompt
	for _, p := range m.prompts {
		if p.ChatbotID == chatbotID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpdateSuggestedPrompt(_ context.Context, chatbotID, promptID uuid.UUID, prompt string) (*models.SuggestedPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.prompts {
		if m.prompts[i].ID == promptID && m.prompts[i].ChatbotID == chatbotID {
			m.prompts[i].Prompt = prompt
			cp := m.prompts[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateDocument(_ context.Context, arg store.CreateDocumentParams) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ChatbotID == arg.ChatbotID && d.Filename == arg.Filename {
			return nil, store.ErrConflict
		}
	}
	d := &models.Document{ID: arg.ID, ChatbotID: arg.ChatbotID, CreatedBy: arg.CreatedBy, Filename: arg.Filename, MimeType: arg.MimeType, URI: arg.URI, PublicPath: arg.PublicPath, NbPages: arg.NbPages, CreatedAt: time.Now()}
	m.docs[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *memStore) ListDocuments(_ context.Context, chatbotID uuid.UUID) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.ChatbotID == chatbotID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (m *memStore) GetDocumentByFilename(_ context.Context, chatbotID uuid.UUID, filename string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ChatbotID == chatbotID && d.Filename == filename {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) DeleteDocument(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memStore) ListServiceModels(context.Context) ([]models.ServiceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ServiceModel(nil), m.services...), nil
}

func (m *memStore) UpsertServiceModel(_ context.Context, sm models.ServiceModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.services {
		if m.services[i].Name == sm.Name {
			m.services[i] = sm
			return nil
		}
	}
	m.services = append(m.services, sm)
	return nil
}

func (m *memStore) CreateUsage(_ context.Context, arg store.CreateUsageParams) (*models.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.Usage{ID: uuid.New(), UserID: arg.UserID, Model: arg.Model, Unit: arg.Unit, Qty: arg.Qty, Price: arg.Price, CreatedAt: time.Now()}
	m.usages = append(m.usages, u)
	return &u, nil
}

func (m *memStore) SumUsagePrice(_ context.Context, userID uuid.UUID, from, to time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, u := range m.usages {
		if u.UserID == userID && !u.CreatedAt.Before(from) && u.CreatedAt.Before(to) {
			total += u.Price
		}
	}
	return total, nil
}

func (m *memStore) CreateMetric(_ context.Context, arg store.CreateMetricParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, models.MetricRecord{ID: uuid.New(), Kind: arg.Kind, Value: arg.Value, NbDocuments: arg.NbDocuments, TotalPages: arg.TotalPages, Model: arg.Model, ChatbotID: arg.ChatbotID, CreatedAt: time.Now()})
	return nil
}

func (m *memStore) ListMetrics(_ context.Context, kind models.MetricKind, model string, limit int) ([]models.MetricRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MetricRecord
	for i := len(m.metrics) - 1; i >= 0 && len(out) < limit; i-- {
		if r := m.metrics[i]; r.Kind == kind && r.Model == model {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreateIntegrationCredential(_ context.Context, arg store.CreateIntegrationCredentialParams) (*models.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.IntegrationCredential{ID: arg.ID, UserID: arg.UserID, ServiceType: arg.ServiceType, CredentialName: arg.CredentialName, EncryptedCredentials: arg.EncryptedCredentials, Status: arg.Status, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.creds[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) GetIntegrationCredentialByID(_ context.Context, id, userID uuid.UUID) (*models.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListIntegrationCredentials(_ context.Context, userID uuid.UUID, serviceType *string) ([]models.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.IntegrationCredential
	for _, c := range m.creds {
		if c.UserID == userID && (serviceType == nil || *serviceType == c.ServiceType) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) DeleteIntegrationCredential(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.creds, id)
	return nil
}

// memObjects is an in-memory storage.ObjectStore for bucket "test".
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ storage.ObjectStore = (*memObjects)(nil)

func newMemObjects() *memObjects { return &memObjects{objects: map[string][]byte{}} }

func (o *memObjects) Save(_ context.Context, path string, data []byte, _ string) (string, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	uri := storage.URI("test", path)
	o.objects[uri] = data
	return uri, storage.PublicPath("test", path), nil
}

func (o *memObjects) SignedURL(_ context.Context, uri string, _ time.Duration) (string, error) {
	_, object, err := storage.ParseURI(uri)
	if err != nil {
		return "", err
	}
	return "https://signed.example/" + object + "?sig=1", nil
}

func (o *memObjects) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[uri]
	if !ok {
		return nil, fmt.Errorf("no object %s", uri)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *memObjects) Delete(_ context.Context, uri string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, uri)
	return nil
}

func (o *memObjects) DeletePrefix(_ context.Context, dir string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	prefix := storage.URI("test", strings.TrimSuffix(dir, "/")+"/")
	for uri := range o.objects {
		if strings.HasPrefix(uri, prefix) {
			delete(o.objects, uri)
		}
	}
	return nil
}

func (o *memObjects) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}

// scriptedGen answers by matching the last text part of the request.
type scriptedGen struct {
	mu       sync.Mutex
	replies  map[string]string // substring of the last part -> reply
	tokens   int
	requests []llm.Request
	err      error
}

func (g *scriptedGen) reply(req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	last := req.Messages[len(req.Messages)-1]
	text := last.Parts[len(last.Parts)-1].Text
	for key, reply := range g.replies {
		if strings.Contains(text, key) {
			return &llm.Response{Text: reply, Usage: llm.Usage{Model: req.Model, TotalTokens: g.tokens}}, nil
		}
	}
	return &llm.Response{Text: "plain answer", Usage: llm.Usage{Model: req.Model, TotalTokens: g.tokens}}, nil
}

func (g *scriptedGen) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	return g.reply(req)
}

func (g *scriptedGen) Stream(_ context.Context, req llm.Request, onChunk func(string) error) (*llm.Response, error) {
	resp, err := g.reply(req)
	if err != nil {
		return nil, err
	}
	for _, w := range strings.SplitAfter(resp.Text, " ") {
		if err := onChunk(w); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// recordingMailer keeps dispatched emails.
type recordingMailer struct {
	mu     sync.Mutex
	emails []mailing.Email
}

func (r *recordingMailer) Dispatch(_ context.Context, e mailing.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, e)
	return nil
}

type recordingNotifier struct {
	calls int
}

func (n *recordingNotifier) PublicSharingRequested(context.Context, *models.Chatbot, *models.User) {
	n.calls++
}

func testConfig() *config.Config {
	return &config.Config{
		GCS:     config.GCSConfig{SignedURLTTL: 15 * time.Minute},
		Models:  config.ModelsConfig{Basic: "gemini-flash-002", Premium: "gemini-pro-002"},
		Credits: config.CreditsConfig{UserWeeklyAmount: 1, GuestWeeklyAmount: 0.2, ExchangeRate: 100},
		Limits:  config.LimitsConfig{MaxIconFileSizeKB: 200, MaxDocsPerChatbot: 3, MaxPagesPerChatbot: 10},
		Auth:    config.AuthConfig{JWTSecret: "test-secret", TokenExpirationHours: 1, GuestModeEnabled: true},
	}
}

// buildPDF writes a minimal PDF with n empty pages.
func buildPDF(n int) []byte {
	var objs []string
	kids := make([]string, n)
	for i := 0; i < n; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}
