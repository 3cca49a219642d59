package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// BatchExecutedData contains data for BatchExecuted events
type BatchExecutedData struct {
	UnitID       string   `json:"unit_id"`
	Caller       string   `json:"caller"`
	Instructions int      `json:"instructions"`
	Markets      []uint64 `json:"markets"`
	TotalAssets  string   `json:"total_assets"`
}

// EventType returns the event type for BatchExecutedData
func (d *BatchExecutedData) EventType() EventType {
	return BatchExecuted
}

// BalancesRefreshedData contains data for BalancesRefreshed events
type BalancesRefreshedData struct {
	UnitID      string   `json:"unit_id"`
	Markets     []uint64 `json:"markets"`
	TotalAssets string   `json:"total_assets"`
}

// EventType returns the event type for BalancesRefreshedData
func (d *BalancesRefreshedData) EventType() EventType {
	return BalancesRefreshed
}

// FeesRealizedData contains data for FeesRealized events
type FeesRealizedData struct {
	UnitID            string `json:"unit_id"`
	ManagementShares  string `json:"management_shares"`
	PerformanceShares string `json:"performance_shares"`
	HighWaterMark     string `json:"high_water_mark"`
	ElapsedSeconds    int64  `json:"elapsed_seconds"`
}

// EventType returns the event type for FeesRealizedData
func (d *FeesRealizedData) EventType() EventType {
	return FeesRealized
}

// SupplyChangedData contains data for SupplyChanged events
type SupplyChangedData struct {
	Account     string `json:"account"`
	Delta       string `json:"delta"`
	TotalSupply string `json:"total_supply"`
	Reason      string `json:"reason"`
}

// EventType returns the event type for SupplyChangedData
func (d *SupplyChangedData) EventType() EventType {
	return SupplyChanged
}

// LiquidityRaisedData contains data for LiquidityRaised events
type LiquidityRaisedData struct {
	UnitID    string `json:"unit_id"`
	Shortfall string `json:"shortfall"`
	Raised    string `json:"raised"`
}

// EventType returns the event type for LiquidityRaisedData
func (d *LiquidityRaisedData) EventType() EventType {
	return LiquidityRaised
}

// ConfigChangedData contains data for ConfigChanged events
type ConfigChangedData struct {
	UnitID string `json:"unit_id"`
	Caller string `json:"caller"`
	Change string `json:"change"`
}

// EventType returns the event type for ConfigChangedData
func (d *ConfigChangedData) EventType() EventType {
	return ConfigChanged
}

// UnitRolledBackData contains data for UnitRolledBack events
type UnitRolledBackData struct {
	UnitID    string `json:"unit_id"`
	Operation string `json:"operation"`
	Caller    string `json:"caller"`
	Error     string `json:"error"`
}

// EventType returns the event type for UnitRolledBackData
func (d *UnitRolledBackData) EventType() EventType {
	return UnitRolledBack
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
