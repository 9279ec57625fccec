package domain

// ConnDelivery is the outcome of one transport attempt to one connection.
type ConnDelivery struct {
	Conn ConnID
	Err  error
}

// SendResult aggregates the per-connection outcomes of one logical send.
// Delivered is true when at least one connection received the message; the
// per-connection detail stays available in Connections for callers that need
// the stricter reading.
type SendResult struct {
	Delivered   bool
	Succeeded   int
	Failed      int
	Err         error
	Connections []ConnDelivery
}

// BroadcastResult aggregates a multi-user send. There is no ordering
// guarantee between users.
type BroadcastResult struct {
	Targeted  int
	Delivered int
	Failed    int
	PerUser   map[UserID]SendResult
}
