package telemetry

type Snapshot struct {
	// Feed activity
	BatchesReceived  uint64
	SnapshotsPruned  uint64
	ToleranceUpdates uint64
	ErrorsTotal      uint64

	// Window state
	SnapshotsInWindow int
	WindowFrom        int64
	WindowTo          int64
	LagSeconds        float64
	HorizonSeconds    int64
	TolerancesLoaded  int
	Degraded          bool

	// Connection status
	RelayConnected      bool
	ActiveSubscriptions int

	// Rate metrics
	BatchesPerSecond float64

	// System metrics
	UptimeSeconds      float64
	ChannelUtilization float64

	// Error breakdown
	ErrorsByContext  map[string]uint64
	ErrorsBySeverity map[ErrorSeverity]uint64
	RecentErrors     []string
}

type TelemetryReader interface {
	Snapshot() Snapshot
}
