// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	BatchExecuted     EventType = "BATCH_EXECUTED"
	BalancesRefreshed EventType = "BALANCES_REFRESHED"
	FeesRealized      EventType = "FEES_REALIZED"
	SupplyChanged     EventType = "SUPPLY_CHANGED"
	LiquidityRaised   EventType = "LIQUIDITY_RAISED"
	ConfigChanged     EventType = "CONFIG_CHANGED"
	UnitRolledBack    EventType = "UNIT_ROLLED_BACK"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
