package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"docutalk-backend/internal/conversation"
	"docutalk-backend/internal/crypto"
	"docutalk-backend/internal/integrations"
	"docutalk-backend/internal/llm"
	"docutalk-backend/internal/mailing"
	"docutalk-backend/internal/models"
	integration_models "docutalk-backend/internal/models/integrations"
	"docutalk-backend/internal/store"

	"github.com/google/uuid"
)

const (
	titleReply   = `{"title": "Contracts", "description": "Answers questions about the contracts."}`
	iconReply    = `{'name': 'gavel', 'color': '#1f6feb'}`
	promptsReply = "```json\n[\"What is the term?\", \"  \", \"Who signs?\"]\n```"
)

type fixture struct {
	store    *memStore
	objects  *memObjects
	gen      *scriptedGen
	mailer   *recordingMailer
	notifier *recordingNotifier
	usage    *UsageService
	chatbots *ChatbotService
	docs     *DocumentService
	access   *AccessService
	chat     *ChatService
	auth     *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	f := &fixture{
		store:    newMemStore(),
		objects:  newMemObjects(),
		mailer:   &recordingMailer{},
		notifier: &recordingNotifier{},
		gen: &scriptedGen{tokens: 100, replies: map[string]string{
			"describe the chatbot":  titleReply,
			"Pick an icon":          iconReply,
			"Suggest 4 questions":   promptsReply,
			"Identify the passages": `[{"filename": "a.pdf", "page": 2, "citation": "term is 2 years"}, {"filename": "ghost.pdf", "page": 1, "citation": "x"}, {"filename": "a.pdf", "page": "two"}]`,
		}},
	}
	composer := mailing.Composer{From: "support@ai-apps.cloud", Bcc: "support@ai-apps.cloud"}
	estimator := NewEstimator(f.store)
	f.usage = NewUsageService(f.store, cfg.Credits)
	f.chatbots = NewChatbotService(f.store, f.objects, f.gen, f.usage, estimator, f.notifier, cfg)
	f.docs = NewDocumentService(f.store, f.objects, nil, integrations.NewRegistry(), cfg)
	f.access = NewAccessService(f.store, f.mailer, composer)
	f.chat = NewChatService(f.store, conversation.NewMemoryStore(), f.objects, f.gen, f.usage, estimator, cfg)
	f.auth = NewAuthService(f.store, cfg, f.mailer, composer, nil)
	return f
}

func (f *fixture) user(t *testing.T, email string) Caller {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), store.CreateUserParams{Email: email, FirstName: "Ada", LastName: "L", PeriodDollarAmount: 1})
	if err != nil {
		t.Fatal(err)
	}
	return Caller{UserID: u.ID, Email: u.Email}
}

func (f *fixture) chatbot(t *testing.T, caller Caller) *models.CreateChatbotResponse {
	t.Helper()
	resp, err := f.chatbots.Create(context.Background(), caller, []UploadedFile{
		{Filename: "a.pdf", Data: buildPDF(2)},
		{Filename: "b.pdf", Data: buildPDF(3)},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return resp
}

func TestWeekBounds(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	cases := []struct {
		now   time.Time
		start time.Time
	}{
		{time.Date(2024, 5, 15, 13, 0, 0, 0, loc), time.Date(2024, 5, 13, 0, 0, 0, 0, loc)}, // Wednesday
		{time.Date(2024, 5, 13, 0, 0, 0, 0, loc), time.Date(2024, 5, 13, 0, 0, 0, 0, loc)},  // Monday midnight
		{time.Date(2024, 5, 19, 23, 59, 0, 0, loc), time.Date(2024, 5, 13, 0, 0, 0, 0, loc)}, // Sunday
		{time.Date(2024, 1, 2, 8, 0, 0, 0, loc), time.Date(2024, 1, 1, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		start, end := WeekBounds(tc.now)
		if !start.Equal(tc.start) || !end.Equal(tc.start.AddDate(0, 0, 7)) {
			t.Errorf("WeekBounds(%v) = [%v, %v)", tc.now, start, end)
		}
	}
}

func TestLedgerNeverNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := f.user(t, "ada@example.com")
	user, _ := f.store.GetUserByID(ctx, caller.UserID)

	ledger, err := f.usage.Ledger(ctx, user)
	if err != nil || ledger.Available != 100 || ledger.Remaining != 100 || ledger.Exhausted {
		t.Fatalf("fresh ledger = %+v, %v", ledger, err)
	}

	if _, err := f.usage.Record(ctx, user.ID, "gemini-pro-002", 1500); err != nil {
		t.Fatal(err)
	}
	ledger, _ = f.usage.Ledger(ctx, user)
	if ledger.Remaining != 0 || !ledger.Exhausted || math.Abs(ledger.Consumed-150) > 1e-9 {
		t.Fatalf("overdrawn ledger = %+v", ledger)
	}
	if err := f.usage.EnsureCredits(ctx, user); !errors.Is(err, ErrNoCredits) {
		t.Fatalf("want ErrNoCredits, got %v", err)
	}
}

func TestPriceForPrefixAndReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.usage.PriceFor(ctx, "gemini-flash-002")
	if err != nil || m.Name != "gemini-flash" {
		t.Fatalf("PriceFor = %+v, %v", m, err)
	}
	if _, err := f.usage.PriceFor(ctx, "claude"); !errors.Is(err, ErrUnknownServiceModel) {
		t.Fatalf("want ErrUnknownServiceModel, got %v", err)
	}
	f.store.UpsertServiceModel(ctx, models.ServiceModel{Name: "claude", PricePerUnit: 1})
	if _, err := f.usage.PriceFor(ctx, "claude"); err != nil {
		t.Fatalf("new model not picked up: %v", err)
	}
}

func TestNearestMean(t *testing.T) {
	records := []models.MetricRecord{
		{NbDocuments: 1, TotalPages: 10, Value: 10},
		{NbDocuments: 1, TotalPages: 12, Value: 12},
		{NbDocuments: 5, TotalPages: 400, Value: 100},
	}
	if got := nearestMean(records, 1, 11, 2); got != 11 {
		t.Fatalf("nearestMean = %v, want 11", got)
	}
	if got := nearestMean(records, 5, 400, 10); math.Abs(got-122.0/3) > 1e-9 {
		t.Fatalf("k above len = %v", got)
	}
}

func TestEstimateDefaults(t *testing.T) {
	f := newFixture(t)
	got, err := f.chat.Estimate(context.Background(), models.EstimateRequest{Operation: EstimateAsk, NbDocuments: 1, TotalPages: 3})
	if err != nil || got != 8 {
		t.Fatalf("Estimate = %v, %v", got, err)
	}
	if _, err := f.chat.Estimate(context.Background(), models.EstimateRequest{Operation: "nap"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestConversationMergesTurns(t *testing.T) {
	docs := []llm.Part{llm.Text("a.pdf: "), llm.File("gs://b/a.pdf", "application/pdf")}
	history := []models.Message{
		{Role: models.MessageRoleUser, Content: "q1"},
		{Role: models.MessageRoleAssistant, Content: "a1"},
	}
	msgs := buildTurns(docs, history, "q2")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Role != llm.RoleUser || len(msgs[0].Parts) != 3 || msgs[0].Parts[2].Text != "q1" {
		t.Fatalf("documents not merged with first question: %+v", msgs[0])
	}
	if msgs[1].Role != llm.RoleModel || msgs[2].Parts[0].Text != "q2" {
		t.Fatalf("unexpected turns: %+v", msgs)
	}
}

func TestCreateChatbot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := f.user(t, "ada@example.com")

	resp := f.chatbot(t, caller)
	if resp.Chatbot.Title != "Contracts" || resp.Chatbot.UserRole != models.RoleAdmin || resp.Chatbot.Access != models.AccessPrivate {
		t.Fatalf("unexpected chatbot: %+v", resp.Chatbot)
	}
	if len(resp.Fallbacks) != 0 {
		t.Fatalf("unexpected fallbacks %v", resp.Fallbacks)
	}
	if len(resp.Chatbot.SuggestedPrompts) != 2 || resp.Chatbot.SuggestedPrompts[0].Prompt != "What is the term?" {
		t.Fatalf("prompts = %+v", resp.Chatbot.SuggestedPrompts)
	}
	if math.Abs(resp.CreditsUsed-30) > 1e-9 {
		t.Fatalf("credits used = %v, want 30", resp.CreditsUsed)
	}
	if f.objects.count() != 2 {
		t.Fatalf("stored objects = %d", f.objects.count())
	}

	got, err := f.chatbots.Get(ctx, caller, resp.Chatbot.ID)
	if err != nil || got.Title != "Contracts" || len(got.Documents) != 2 || got.Documents[0].URL == "" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	icon, err := f.chatbots.Icon(ctx, caller, resp.Chatbot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(icon)); err != nil {
		t.Fatalf("icon is not a PNG: %v", err)
	}
	if len(f.store.metrics) != 1 || f.store.metrics[0].Kind != models.MetricCreateChatbotDuration || f.store.metrics[0].TotalPages != 5 {
		t.Fatalf("metrics = %+v", f.store.metrics)
	}
}

func TestCreateChatbotFallbacks(t *testing.T) {
	f := newFixture(t)
	f.gen.replies["describe the chatbot"] = "I cannot do that"
	f.gen.replies["Pick an icon"] = `{"name": "unicorn", "color": "pink"}`
	caller := f.user(t, "ada@example.com")

	resp := f.chatbot(t, caller)
	if resp.Chatbot.Title != fallbackTitle || resp.Chatbot.Description != fallbackDescription {
		t.Fatalf("fallback title not used: %+v", resp.Chatbot)
	}
	want := []string{OperationTitleDescription, OperationIcon}
	if strings.Join(resp.Fallbacks, ",") != strings.Join(want, ",") {
		t.Fatalf("fallbacks = %v, want %v", resp.Fallbacks, want)
	}
}

func TestCreateChatbotLimits(t *testing.T) {
	f := newFixture(t)
	caller := f.user(t, "ada@example.com")
	ctx := context.Background()

	cases := []struct {
		name  string
		files []UploadedFile
		want  error
	}{
		{"too many documents", []UploadedFile{{"a.pdf", buildPDF(1)}, {"b.pdf", buildPDF(1)}, {"c.pdf", buildPDF(1)}, {"d.pdf", buildPDF(1)}}, ErrTooManyDocuments},
		{"too many pages", []UploadedFile{{"a.pdf", buildPDF(6)}, {"b.pdf", buildPDF(5)}}, ErrTooManyPages},
		{"not a pdf", []UploadedFile{{"a.pdf", []byte("hello")}}, ErrInvalidDocument},
		{"duplicate filename", []UploadedFile{{"a.pdf", buildPDF(1)}, {"a.pdf", buildPDF(1)}}, ErrDuplicateDocument},
		{"no files", nil, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.chatbots.Create(ctx, caller, tc.files); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
	if f.objects.count() != 0 {
		t.Fatalf("rejected uploads left %d objects", f.objects.count())
	}
}

func TestCreateChatbotCleansUpOnFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("boom")
	caller := f.user(t, "ada@example.com")
	_, err := f.chatbots.Create(context.Background(), caller, []UploadedFile{{"a.pdf", buildPDF(1)}})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("want ErrUpstream, got %v", err)
	}
	if f.objects.count() != 0 {
		t.Fatalf("uploaded objects left after failure: %d", f.objects.count())
	}
}

func TestChatbotRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	member := f.user(t, "member@example.com")
	outsider := f.user(t, "outsider@example.com")
	id := f.chatbot(t, admin).Chatbot.ID

	if _, err := f.access.Share(ctx, admin, id, models.ShareChatbotRequest{Email: "Member@Example.com", Role: models.RoleUser}); err != nil {
		t.Fatalf("Share: %v", err)
	}
	if len(f.mailer.emails) != 1 || f.mailer.emails[0].To != "member@example.com" || !strings.Contains(f.mailer.emails[0].Subject, "admin@example.com") {
		t.Fatalf("sharing email = %+v", f.mailer.emails)
	}

	title := "New"
	if _, err := f.chatbots.Update(ctx, member, id, models.UpdateChatbotRequest{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member update: want ErrForbidden, got %v", err)
	}
	if _, err := f.chatbots.Get(ctx, outsider, id); !errors.Is(err, ErrChatbotNotFound) {
		t.Fatalf("outsider get: want ErrChatbotNotFound, got %v", err)
	}
	long := strings.Repeat("x", 101)
	if _, err := f.chatbots.Update(ctx, admin, id, models.UpdateChatbotRequest{Title: &long}); !errors.Is(err, ErrValidation) {
		t.Fatalf("long title: want ErrValidation, got %v", err)
	}
	if err := f.access.Remove(ctx, admin, id, admin.Email); !errors.Is(err, ErrRemoveSelf) {
		t.Fatalf("remove self: want ErrRemoveSelf, got %v", err)
	}
	guest := member
	guest.IsGuest = true
	if _, err := f.chatbots.RequestPublic(ctx, guest, id); !errors.Is(err, ErrGuestForbidden) {
		t.Fatalf("guest public request: want ErrGuestForbidden, got %v", err)
	}

	resp, err := f.chatbots.RequestPublic(ctx, admin, id)
	if err != nil || resp.Access != models.AccessPendingPublicRequest || f.notifier.calls != 1 {
		t.Fatalf("RequestPublic = %+v, %v, notified %d", resp, err, f.notifier.calls)
	}

	if err := f.access.Remove(ctx, admin, id, member.Email); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	list, _ := f.chatbots.List(ctx, member)
	if len(list) != 0 {
		t.Fatalf("member still lists %d chatbots", len(list))
	}
}

func TestSetIcon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	id := f.chatbot(t, admin).Chatbot.ID

	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	if err := f.chatbots.SetIcon(ctx, admin, id, buf.Bytes()); err != nil {
		t.Fatalf("SetIcon: %v", err)
	}
	if err := f.chatbots.SetIcon(ctx, admin, id, []byte("GIF89a")); !errors.Is(err, ErrInvalidIcon) {
		t.Fatalf("want ErrInvalidIcon, got %v", err)
	}
}

func TestDeleteChatbotRemovesObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	id := f.chatbot(t, admin).Chatbot.ID

	if err := f.chatbots.Delete(ctx, admin, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.objects.count() != 0 {
		t.Fatalf("objects left: %d", f.objects.count())
	}
	if _, err := f.chatbots.Get(ctx, admin, id); !errors.Is(err, ErrChatbotNotFound) {
		t.Fatalf("want ErrChatbotNotFound, got %v", err)
	}
}

func TestDocumentUploadAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	id := f.chatbot(t, admin).Chatbot.ID

	if _, err := f.docs.Upload(ctx, admin, id, []UploadedFile{{"a.pdf", buildPDF(1)}}); !errors.Is(err, ErrDuplicateDocument) {
		t.Fatalf("duplicate: want ErrDuplicateDocument, got %v", err)
	}
	if _, err := f.docs.Upload(ctx, admin, id, []UploadedFile{{"c.pdf", buildPDF(6)}}); !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("pages: want ErrTooManyPages, got %v", err)
	}
	added, err := f.docs.Upload(ctx, admin, id, []UploadedFile{{"c.pdf", buildPDF(1)}})
	if err != nil || len(added) != 1 || added[0].NbPages != 1 {
		t.Fatalf("Upload = %+v, %v", added, err)
	}
	if _, err := f.docs.Upload(ctx, admin, id, []UploadedFile{{"d.pdf", buildPDF(1)}}); !errors.Is(err, ErrTooManyDocuments) {
		t.Fatalf("count: want ErrTooManyDocuments, got %v", err)
	}

	if err := f.docs.Delete(ctx, admin, id, "c.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.docs.Delete(ctx, admin, id, "c.pdf"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("want ErrDocumentNotFound, got %v", err)
	}
	docs, _ := f.docs.List(ctx, admin, id)
	if len(docs) != 2 || f.objects.count() != 2 {
		t.Fatalf("docs = %d, objects = %d", len(docs), f.objects.count())
	}
}

func TestAskAndSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	other := f.user(t, "other@example.com")
	id := f.chatbot(t, admin).Chatbot.ID

	conv, err := f.chat.StartConversation(ctx, admin, id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.chat.GetConversation(ctx, other, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("other user: want ErrConversationNotFound, got %v", err)
	}
	if _, err := f.chat.Sources(ctx, admin, conv.ID, models.SourcesRequest{}); !errors.Is(err, ErrNoExchange) {
		t.Fatalf("want ErrNoExchange, got %v", err)
	}

	var streamed strings.Builder
	res, err := f.chat.Ask(ctx, admin, conv.ID, models.AskRequest{Message: "What is the term?"}, func(s string) error {
		streamed.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "plain answer" || streamed.String() != res.Answer {
		t.Fatalf("answer %q, streamed %q", res.Answer, streamed.String())
	}
	// 100 tokens * 4 chars * 0.0001 $ * 100 credits/$
	if math.Abs(res.CreditsUsed-4) > 1e-9 {
		t.Fatalf("credits used = %v, want 4", res.CreditsUsed)
	}
	last := f.gen.requests[len(f.gen.requests)-1]
	if last.Model != "gemini-flash-002" || last.System == "" {
		t.Fatalf("ask request = %+v", last)
	}

	got, _ := f.chat.GetConversation(ctx, admin, conv.ID)
	if len(got.Messages) != 2 || got.Messages[1].Role != models.MessageRoleAssistant {
		t.Fatalf("messages = %+v", got.Messages)
	}

	sources, err := f.chat.Sources(ctx, admin, conv.ID, models.SourcesRequest{Premium: true})
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources.Sources) != 1 || sources.Sources[0].Page != 2 || !strings.HasSuffix(sources.Sources[0].URL, "#page=2") {
		t.Fatalf("sources = %+v", sources.Sources)
	}

	if err := f.chat.ResetConversation(ctx, admin, conv.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = f.chat.GetConversation(ctx, admin, conv.ID)
	if len(got.Messages) != 0 {
		t.Fatalf("reset left %d messages", len(got.Messages))
	}
}

func TestAskFailureKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	id := f.chatbot(t, admin).Chatbot.ID
	conv, _ := f.chat.StartConversation(ctx, admin, id)

	stop := errors.New("client gone")
	_, err := f.chat.Ask(ctx, admin, conv.ID, models.AskRequest{Message: "q"}, func(string) error { return stop })
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := f.chat.GetConversation(ctx, admin, conv.ID)
	if len(got.Messages) != 0 {
		t.Fatalf("failed ask stored %d messages", len(got.Messages))
	}
}

func TestSourcesBadOutputStillMetered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	id := f.chatbot(t, admin).Chatbot.ID
	conv, _ := f.chat.StartConversation(ctx, admin, id)
	f.chat.Ask(ctx, admin, conv.ID, models.AskRequest{Message: "q"}, func(string) error { return nil })

	f.gen.replies["Identify the passages"] = "no idea"
	before := len(f.store.usages)
	if _, err := f.chat.Sources(ctx, admin, conv.ID, models.SourcesRequest{}); !errors.Is(err, ErrBadOutputFormat) {
		t.Fatalf("want ErrBadOutputFormat, got %v", err)
	}
	if len(f.store.usages) != before+1 {
		t.Fatalf("usage not recorded for malformed sources")
	}
}

func TestSignupAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Signup(ctx, models.SignupRequest{Email: " Ada@Example.com ", FirstName: "Ada", LastName: "lovelace"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.Email != "ada@example.com" || user.FriendlyName != "Ada L." || user.PeriodDollarAmount != 1 {
		t.Fatalf("user = %+v", user)
	}
	if len(f.mailer.emails) != 1 || f.mailer.emails[0].Template != mailing.TemplateWelcome {
		t.Fatalf("welcome email = %+v", f.mailer.emails)
	}
	if _, err := f.auth.Signup(ctx, models.SignupRequest{Email: "ada@example.com", FirstName: "A", LastName: "B"}); !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("duplicate: want ErrUserAlreadyExists, got %v", err)
	}
	if _, err := f.auth.Signup(ctx, models.SignupRequest{Email: "nope", FirstName: "A", LastName: "B"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad email: want ErrValidation, got %v", err)
	}
	if _, err := f.auth.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
}

func TestGuest(t *testing.T) {
	f := newFixture(t)
	resp, err := f.auth.Guest(context.Background())
	if err != nil {
		t.Fatalf("Guest: %v", err)
	}
	if !resp.User.IsGuest || !strings.HasPrefix(resp.User.Email, "guest-") || resp.User.FriendlyName != "Guest G." || resp.AccessToken == "" {
		t.Fatalf("guest = %+v", resp)
	}
	u, _ := f.store.GetUserByID(context.Background(), resp.User.ID)
	if u.PeriodDollarAmount != 0.2 {
		t.Fatalf("guest amount = %v", u.PeriodDollarAmount)
	}
}

// stubIntegration accepts the secret "good".
type stubIntegration struct{}

func (stubIntegration) ValidateCredentials(c integration_models.DecryptedCredentials) error {
	if c["internal_integration_secret"] == "" {
		return errors.New("missing secret")
	}
	return nil
}

func (stubIntegration) TestConnection(_ context.Context, c integration_models.DecryptedCredentials) (*integration_models.TestConnectionResult, error) {
	if c["internal_integration_secret"] != "good" {
		return &integration_models.TestConnectionResult{Success: false, Message: "unauthorized"}, nil
	}
	return &integration_models.TestConnectionResult{Success: true, Details: map[string]interface{}{"bot_name": "Docu Bot"}}, nil
}

func (stubIntegration) GetCredentialSchema() interface{} { return integration_models.NotionCredentials{} }

func TestCredentials(t *testing.T) {
	st := newMemStore()
	aead, _ := crypto.NewAESGCM(bytes.Repeat([]byte{1}, 32))
	reg := integrations.NewRegistry()
	reg.Register("NOTION", stubIntegration{})
	svc := NewCredentialsService(st, aead, reg)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.CreateCredential(ctx, models.CreateCredentialRequest{ServiceType: "NOTION", Credentials: map[string]string{"internal_integration_secret": "bad"}}, userID)
	if !errors.Is(err, ErrCredentialTestFailed) {
		t.Fatalf("want ErrCredentialTestFailed, got %v", err)
	}
	_, err = svc.CreateCredential(ctx, models.CreateCredentialRequest{ServiceType: "SLACK", Credentials: map[string]string{"x": "y"}}, userID)
	if !errors.Is(err, ErrUnsupportedServiceType) {
		t.Fatalf("want ErrUnsupportedServiceType, got %v", err)
	}

	created, err := svc.CreateCredential(ctx, models.CreateCredentialRequest{ServiceType: "NOTION", Credentials: map[string]string{"internal_integration_secret": "good"}}, userID)
	if err != nil || created.CredentialName != "Docu Bot" {
		t.Fatalf("CreateCredential = %+v, %v", created, err)
	}
	if bytes.Contains(st.creds[created.ID].EncryptedCredentials, []byte("good")) {
		t.Fatal("secret stored in clear")
	}

	serviceType, creds, err := svc.Decrypt(ctx, created.ID, userID)
	if err != nil || serviceType != "NOTION" || creds["internal_integration_secret"] != "good" {
		t.Fatalf("Decrypt = %s %v %v", serviceType, creds, err)
	}
	if _, _, err := svc.Decrypt(ctx, created.ID, uuid.New()); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("other user: want ErrCredentialNotFound, got %v", err)
	}

	res, err := svc.TestCredential(ctx, created.ID, userID)
	if err != nil || !res.Success {
		t.Fatalf("TestCredential = %+v, %v", res, err)
	}
	if err := svc.DeleteCredential(ctx, created.ID, userID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetCredential(ctx, created.ID, userID); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("after delete: want ErrCredentialNotFound, got %v", err)
	}
}

func TestRevokedAccessDropsConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com")
	member := f.user(t, "member@example.com")
	id := f.chatbot(t, admin).Chatbot.ID
	if _, err := f.access.Share(ctx, admin, id, models.ShareChatbotRequest{Email: member.Email, Role: models.RoleUser}); err != nil {
		t.Fatal(err)
	}
	conv, err := f.chat.StartConversation(ctx, member, id)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.access.Remove(ctx, admin, id, member.Email); err != nil {
		t.Fatal(err)
	}
	_, err = f.chat.Ask(ctx, member, conv.ID, models.AskRequest{Message: "Still there?"}, func(string) error { return nil })
	if !errors.Is(err, ErrChatbotNotFound) {
		t.Fatalf("ask after removal: want ErrChatbotNotFound, got %v", err)
	}
	if _, err := f.chat.GetConversation(ctx, member, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("conversation kept after removal: %v", err)
	}
}
