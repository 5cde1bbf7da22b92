package models

// WipSnapshot is the occupancy of one stage. It is derived and can always be
// recomputed from current deal states.
type WipSnapshot struct {
	StageKey           string   `json:"stage_key"`
	DealCount          int      `json:"deal_count"`
	WipLimit           *int     `json:"wip_limit,omitempty"`
	UtilizationPercent *float64 `json:"utilization_percent,omitempty"`
}

func (w WipSnapshot) AtLimit() bool {
	return w.WipLimit != nil && w.DealCount >= *w.WipLimit
}
