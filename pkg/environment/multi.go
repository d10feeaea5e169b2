package environment

import "context"

// MultiProvider asks its providers in order and returns the first value found.
type MultiProvider struct {
	providers []Provider
}

func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{
		providers: providers,
	}
}

func (p *MultiProvider) Get(ctx context.Context, name string) (string, bool) {
	for _, provider := range p.providers {
		if value, found := provider.Get(ctx, name); found {
			return value, true
		}
	}

	return "", false
}
