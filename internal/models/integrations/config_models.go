package integrations

// NotionCredentials is the decrypted shape of a Notion credential.
type NotionCredentials struct {
	InternalIntegrationSecret string `json:"internal_integration_secret"`
}

// TestConnectionResult is the outcome of checking a credential against the
// remote service.
type TestConnectionResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"` // e.g. {"bot_name": "..."}
}

// DecryptedCredentials is a credential after opening the AES-GCM envelope.
type DecryptedCredentials map[string]string

// ImportedPage is a Notion page flattened to plain text.
type ImportedPage struct {
	PageID string
	Title  string
	Text   string
}
