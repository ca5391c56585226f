package domain

// Unlimited marks a ceiling that is never enforced.
const Unlimited = -1

// Limits are the ceilings applied to one identity.
type Limits struct {
	MaxPerDay     int `json:"max_per_day"`
	MaxResolution int `json:"max_resolution"`
	MaxConcurrent int `json:"max_concurrent"`
}

// DailyUnlimited reports whether the daily ceiling is disabled.
func (l Limits) DailyUnlimited() bool {
	return l.MaxPerDay == Unlimited
}
