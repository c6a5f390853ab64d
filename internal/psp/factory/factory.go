// Package factory builds configured payment adapters by provider name.
package factory

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/psp/adyen"
	"github.com/cardroute/cardroute/internal/psp/stripe"
	"github.com/cardroute/cardroute/internal/vault"
)

// Config holds configuration for the adapter factory.
type Config struct {
	// Credentials maps provider names to their secrets. Providers without
	// an entry cannot be built.
	Credentials map[string]psp.Credentials

	// Vault is the active vault provider shared by all adapters (required).
	Vault vault.Provider

	// Features applies to every adapter the factory builds.
	Features psp.Features

	// Logger for adapter operations.
	Logger zerolog.Logger
}

// Factory builds and caches adapters per provider name. Safe for
// concurrent use.
type Factory struct {
	cfg Config

	mu       sync.Mutex
	adapters map[string]psp.Adapter
}

// New creates an adapter factory.
func New(cfg Config) *Factory {
	return &Factory{
		cfg:      cfg,
		adapters: make(map[string]psp.Adapter),
	}
}

// Adapter returns the adapter for the named provider, building it on first
// use. Unknown providers return ErrUnknownProvider; providers with missing
// credentials return a *psp.ValidationError.
func (f *Factory) Adapter(name string) (psp.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.adapters[name]; ok {
		return a, nil
	}

	a, err := f.build(name)
	if err != nil {
		return nil, err
	}
	f.adapters[name] = a
	return a, nil
}

func (f *Factory) build(name string) (psp.Adapter, error) {
	creds, ok := f.cfg.Credentials[name]
	if !ok {
		creds = psp.Credentials{}
	}

	switch name {
	case stripe.Name:
		return stripe.NewAdapter(stripe.Config{
			Credentials: creds,
			Vault:       f.cfg.Vault,
			Features:    f.cfg.Features,
			Logger:      f.cfg.Logger,
		})
	case adyen.Name:
		return adyen.NewAdapter(adyen.Config{
			Credentials: creds,
			Vault:       f.cfg.Vault,
			Features:    f.cfg.Features,
			Logger:      f.cfg.Logger,
		})
	default:
		return nil, psp.ErrUnknownProvider
	}
}

// Providers lists the provider names this factory can build.
func (f *Factory) Providers() []string {
	return []string{stripe.Name, adyen.Name}
}

var _ psp.Factory = (*Factory)(nil)
