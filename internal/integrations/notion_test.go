package integrations

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	integration_models "docutalk-backend/internal/models/integrations"
)

// rewriteTransport sends every request to the test server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestNotion(t *testing.T, handler http.HandlerFunc) *NotionIntegration {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)
	return NewNotionIntegration(&http.Client{Transport: rewriteTransport{target: target}})
}

var testCreds = integration_models.DecryptedCredentials{"internal_integration_secret": "secret_abc"}

const pageID = "0123456789abcdef0123456789abcdef"

func TestNormalizePageID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: pageID, want: pageID},
		{in: "01234567-89ab-cdef-0123-456789abcdef", want: pageID},
		{in: "https://www.notion.so/acme/Handbook-0123456789ABCDEF0123456789ABCDEF", want: pageID},
		{in: "not-a-page", err: true},
	}
	for _, tc := range cases {
		got, err := NormalizePageID(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidPageID) {
				t.Errorf("NormalizePageID(%q): want ErrInvalidPageID, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("NormalizePageID(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestValidateCredentials(t *testing.T) {
	n := NewNotionIntegration(nil)
	if err := n.ValidateCredentials(integration_models.DecryptedCredentials{}); err == nil {
		t.Fatal("expected error for missing secret")
	}
	if err := n.ValidateCredentials(testCreds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	n := newTestNotion(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/me" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret_abc" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"user","id":"u1","type":"bot","name":"Docu Bot","bot":{}}`))
	})

	res, err := n.TestConnection(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if !res.Success || res.Details["bot_name"] != "Docu Bot" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = n.TestConnection(context.Background(), integration_models.DecryptedCredentials{"internal_integration_secret": "bad"})
	if err != nil {
		t.Fatalf("TestConnection with bad key: %v", err)
	}
	if res.Success {
		t.Fatalf("bad key reported success: %+v", res)
	}
}

func TestImportPage(t *testing.T) {
	n := newTestNotion(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/pages/"):
			w.Write([]byte(`{"object":"page","id":"` + pageID + `","properties":{"Name":{"id":"title","type":"title","title":[{"type":"text","text":{"content":"Handbook"},"plain_text":"Handbook"}]}}}`))
		case r.URL.Path == "/v1/blocks/"+pageID+"/children" && r.URL.Query().Get("start_cursor") == "":
			w.Write([]byte(`{"object":"list","has_more":true,"next_cursor":"c2","results":[
				{"object":"block","id":"b1","type":"heading_1","has_children":false,"heading_1":{"rich_text":[{"type":"text","text":{"content":"Leave"},"plain_text":"Leave"}]}},
				{"object":"block","id":"b2","type":"paragraph","has_children":false,"paragraph":{"rich_text":[{"type":"text","text":{"content":"25 days per year."},"plain_text":"25 days per year."}]}}
			]}`))
		case r.URL.Path == "/v1/blocks/"+pageID+"/children" && r.URL.Query().Get("start_cursor") == "c2":
			w.Write([]byte(`{"object":"list","has_more":false,"next_cursor":null,"results":[
				{"object":"block","id":"b3","type":"to_do","has_children":false,"to_do":{"checked":true,"rich_text":[{"type":"text","text":{"content":"Ask manager"},"plain_text":"Ask manager"}]}}
			]}`))
		default:
			http.NotFound(w, r)
		}
	})

	page, err := n.ImportPage(context.Background(), testCreds, "https://www.notion.so/Handbook-"+pageID)
	if err != nil {
		t.Fatalf("ImportPage: %v", err)
	}
	if page.Title != "Handbook" || page.PageID != pageID {
		t.Fatalf("unexpected page: %+v", page)
	}
	want := "# Leave\n25 days per year.\n[x] Ask manager"
	if page.Text != want {
		t.Fatalf("text = %q, want %q", page.Text, want)
	}
}

func TestRegistryImporter(t *testing.T) {
	r := NewRegistry()
	r.Register("NOTION", NewNotionIntegration(nil))
	if _, err := r.Importer("NOTION"); err != nil {
		t.Fatalf("Importer: %v", err)
	}
	if _, err := r.Get("SLACK"); err == nil {
		t.Fatal("expected error for unknown service type")
	}
}
