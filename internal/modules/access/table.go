// Package access provides a static role table implementing the
// authorization boundary.
package access

import (
	"sync"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/rs/zerolog"
)

// Table grants operations to accounts. Public operations are allowed for
// every caller.
type Table struct {
	mu     sync.RWMutex
	grants map[domain.Account]map[domain.Operation]struct{}
	public map[domain.Operation]struct{}
	log    zerolog.Logger
}

// NewTable creates an empty table. Deposit, mint, withdraw and redeem are
// public unless restricted with SetPublic.
func NewTable(log zerolog.Logger) *Table {
	t := &Table{
		grants: make(map[domain.Account]map[domain.Operation]struct{}),
		public: make(map[domain.Operation]struct{}),
		log:    log.With().Str("service", "access").Logger(),
	}
	for _, op := range []domain.Operation{domain.OpDeposit, domain.OpMint, domain.OpWithdraw, domain.OpRedeem} {
		t.public[op] = struct{}{}
	}
	return t
}

// Grant allows account to perform ops
func (t *Table) Grant(account domain.Account, ops ...domain.Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.grants[account]
	if !ok {
		set = make(map[domain.Operation]struct{})
		t.grants[account] = set
	}
	for _, op := range ops {
		set[op] = struct{}{}
	}
}

// Revoke removes ops from account
func (t *Table) Revoke(account domain.Account, ops ...domain.Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, op := range ops {
		delete(t.grants[account], op)
	}
}

// GrantOperator gives account every operator and configuration operation
func (t *Table) GrantOperator(account domain.Account) {
	t.Grant(account, domain.OpExecute, domain.OpRefresh, domain.OpConfigure)
}

// SetPublic makes op callable by anyone, or restricts it again
func (t *Table) SetPublic(op domain.Operation, public bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if public {
		t.public[op] = struct{}{}
	} else {
		delete(t.public, op)
	}
}

// IsAuthorized implements domain.Authorizer
func (t *Table) IsAuthorized(caller domain.Account, op domain.Operation) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.public[op]; ok {
		return true
	}
	if _, ok := t.grants[caller][op]; ok {
		return true
	}
	t.log.Debug().Str("caller", string(caller)).Str("operation", string(op)).Msg("Denied")
	return false
}
