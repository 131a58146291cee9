package importer

import (
	"fmt"
	"time"

	"costscan/internal/models"
	"costscan/pkg/billing"
	"costscan/pkg/config"
)

// AdapterFactory builds a fresh provider adapter per import run. Adapters
// carry per-run side-channel caches, so they are never shared between runs.
type AdapterFactory struct {
	aliCfg   *config.AliCloudConfig
	registry ResourceRegistry
	timeout  time.Duration
}

func NewAdapterFactory(aliCfg *config.AliCloudConfig, registry ResourceRegistry) *AdapterFactory {
	timeout := 30 * time.Second
	if aliCfg != nil && aliCfg.Timeout > 0 {
		timeout = time.Duration(aliCfg.Timeout) * time.Second
	}
	return &AdapterFactory{aliCfg: aliCfg, registry: registry, timeout: timeout}
}

// ForAccount selects the adapter variant from the account's kind
func (f *AdapterFactory) ForAccount(account *models.CloudAccount) (ProviderAdapter, error) {
	switch account.Kind {
	case models.KindAlibaba:
		source, err := billing.NewAliCloudSource(f.aliCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoBillingSource, err)
		}
		return NewAlibabaAdapter(source), nil

	case models.KindAzure:
		source, err := f.exportSource(account, "azure")
		if err != nil {
			return nil, err
		}
		return NewAzureAdapter(source), nil

	case models.KindNebius:
		source, err := f.exportSource(account, "nebius")
		if err != nil {
			return nil, err
		}
		return NewNebiusAdapter(source), nil

	case models.KindKubernetes:
		source, err := f.exportSource(account, "kubernetes")
		if err != nil {
			return nil, err
		}
		return NewKubernetesAdapter(source), nil

	case models.KindEnvironment:
		return NewEnvironmentAdapter(f.registry), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, account.Kind)
	}
}

func (f *AdapterFactory) exportSource(account *models.CloudAccount, provider string) (*billing.HTTPExportSource, error) {
	exportURL, err := account.GetExportURL()
	if err != nil {
		return nil, err
	}
	if exportURL == "" {
		return nil, fmt.Errorf("%w: account %s has no export_url", ErrNoBillingSource, account.ID)
	}
	return billing.NewHTTPExportSource(exportURL, provider, f.timeout), nil
}
