package domain

// Status is the monitor's view of the target bot.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// Public status strings served to the dashboard.
const (
	PublicOnline = "online"
	PublicDown   = "down"
)
