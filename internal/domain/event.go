package domain

// Events pushed to real-time subscribers.
const (
	EventSignalsUpdate  = "signals_update"
	EventStatusUpdate   = "status_update"
	EventSettingsUpdate = "settings_update"
	EventNewSignal      = "new_signal"
	EventSimulationMode = "simulation_mode"
)

// Requests a subscriber may send.
const (
	RequestSignals = "request_signals"
	RequestStatus  = "request_status"
)
