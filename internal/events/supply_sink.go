package events

import (
	"github.com/aristath/sentinel-vault/internal/domain"
)

// SupplySink forwards committed supply changes to the bus, where the
// governance extension subscribes to them.
type SupplySink struct {
	manager *Manager
}

// NewSupplySink creates a sink publishing through manager
func NewSupplySink(manager *Manager) *SupplySink {
	return &SupplySink{manager: manager}
}

// OnSupplyChange implements domain.SupplySink
func (s *SupplySink) OnSupplyChange(change domain.SupplyChange) {
	s.manager.EmitTyped("vault", &SupplyChangedData{
		Account:     string(change.Account),
		Delta:       change.Delta.String(),
		TotalSupply: change.TotalSupply.String(),
		Reason:      change.Reason,
	})
}
