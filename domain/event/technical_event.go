package event

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type Heartbeat struct {
	PID       int
	PIDStatus string
	Cpu       float64
	RamBytes  uint64
}
