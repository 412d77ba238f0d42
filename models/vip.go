package models

// VipLevel is a VIP tier. Priority is the only input the mic subsystem
// reads (queue tie-break); levels are managed elsewhere and never written here.
type VipLevel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"` // higher = more senior
	BadgeURL string `json:"badge_url"`
}
