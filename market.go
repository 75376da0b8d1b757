package assetflow

import (
	"maps"
	"sync"
)

// Market holds what the engine knows besides the ledger: prices of held
// assets, last prices of exited assets, manual realized adjustments and the
// persisted holdings of asset classes that are not lot tracked.
//
// It implements PriceSource, AdjustmentSource and HoldingsSource. It is safe
// for concurrent use.
type Market struct {
	mu          sync.RWMutex
	current     map[AssetKey]Money
	exited      map[AssetKey]Money
	adjustments map[AssetClass]Money
	holdings    Holdings
}

// NewMarket returns a new empty market.
func NewMarket() *Market {
	return &Market{
		current:     make(map[AssetKey]Money),
		exited:      make(map[AssetKey]Money),
		adjustments: make(map[AssetClass]Money),
		holdings:    make(Holdings),
	}
}

// SetCurrentPrice records the live price of an asset.
func (m *Market) SetCurrentPrice(class AssetClass, symbol string, price Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[Key(class, symbol)] = price
}

// SetExitedPrice records the last known price of an exited asset.
func (m *Market) SetExitedPrice(class AssetClass, symbol string, price Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exited[Key(class, symbol)] = price
}

// SetAdjustment sets the manual realized gain of an asset class.
func (m *Market) SetAdjustment(class AssetClass, amount Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[class] = amount
}

// SetHolding persists a holding of an asset class that is not lot tracked.
func (m *Market) SetHolding(h Holding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings.set(h)
}

func (m *Market) CurrentPrice(class AssetClass, symbol string) (Money, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.current[Key(class, symbol)]
	return p, ok
}

func (m *Market) LastKnownPriceForExited(class AssetClass, symbol string) (Money, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.exited[Key(class, symbol)]
	return p, ok
}

func (m *Market) ManualRealizedAdjustments() map[AssetClass]Money {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.adjustments)
}

func (m *Market) PersistedHoldings() Holdings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := make(Holdings, len(m.holdings))
	for class, positions := range m.holdings {
		h[class] = maps.Clone(positions)
	}
	return h
}

// RecordExits moves the live price of every lot tracked asset that is no
// longer in holdings to the exited prices. It returns the moved keys.
func (m *Market) RecordExits(holdings Holdings) []AssetKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved []AssetKey
	for key, price := range m.current {
		class, symbol := key.Split()
		if !class.LotTracked() || holdings.Held(class, symbol) {
			continue
		}
		m.exited[key] = price
		delete(m.current, key)
		moved = append(moved, key)
	}
	return moved
}
