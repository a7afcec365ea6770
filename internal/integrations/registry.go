package integrations

import (
	"context"
	"fmt"

	integration_models "docutalk-backend/internal/models/integrations"
	"docutalk-backend/pkg/logger"

	"go.uber.org/zap"
)

// Integration is an external service users can connect with a credential.
type Integration interface {
	// ValidateCredentials checks the decrypted credential has every field the
	// service needs.
	ValidateCredentials(creds integration_models.DecryptedCredentials) error

	// TestConnection calls the service with creds. A rejected credential is
	// a result with Success false; the error is for transport failures.
	TestConnection(ctx context.Context, creds integration_models.DecryptedCredentials) (*integration_models.TestConnectionResult, error)

	// GetCredentialSchema returns an empty value of the credential struct.
	GetCredentialSchema() interface{}
}

// PageImporter is implemented by integrations that can turn a remote page
// into a text document.
type PageImporter interface {
	ImportPage(ctx context.Context, creds integration_models.DecryptedCredentials, pageID string) (*integration_models.ImportedPage, error)
}

// Registry maps service types to their Integration.
type Registry struct {
	integrations map[string]Integration
}

func NewRegistry() *Registry {
	return &Registry{
		integrations: make(map[string]Integration),
	}
}

func (r *Registry) Register(serviceType string, integration Integration) {
	if _, exists := r.integrations[serviceType]; exists {
		logger.Warn("[IntegrationRegistry] service type already registered, overwriting", zap.String("service_type", serviceType))
	}
	r.integrations[serviceType] = integration
	logger.Info("[IntegrationRegistry] registered integration", zap.String("service_type", serviceType))
}

func (r *Registry) Get(serviceType string) (Integration, error) {
	integration, exists := r.integrations[serviceType]
	if !exists {
		return nil, fmt.Errorf("no integration registered for service type: %s", serviceType)
	}
	return integration, nil
}

// Importer returns the PageImporter of serviceType.
func (r *Registry) Importer(serviceType string) (PageImporter, error) {
	integration, err := r.Get(serviceType)
	if err != nil {
		return nil, err
	}
	importer, ok := integration.(PageImporter)
	if !ok {
		return nil, fmt.Errorf("service type %s cannot import pages", serviceType)
	}
	return importer, nil
}
