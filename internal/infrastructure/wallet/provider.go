package wallet

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitos/lendflow/internal/domain"
)

type addressSigner string

func (a addressSigner) Address() string { return string(a) }

// Provider holds the connected account. Signing happens in the bridge; the
// provider only tells the forms which address acts.
type Provider struct {
	mu     sync.RWMutex
	signer domain.Signer
}

var _ domain.WalletProvider = (*Provider)(nil)

// NewProvider connects address when it is not empty.
func NewProvider(address string) (*Provider, error) {
	p := &Provider{}
	if address == "" {
		return p, nil
	}
	if err := p.Connect(address); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Connect(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid wallet address %q", address)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signer = addressSigner(common.HexToAddress(address).Hex())
	return nil
}

func (p *Provider) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signer = nil
}

// Signer returns nil while disconnected.
func (p *Provider) Signer() domain.Signer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.signer
}
