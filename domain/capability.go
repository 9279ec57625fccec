package domain

// Capabilities are the permission strings carried inside issued tokens.
// CapabilityConnect gates opening a connection, CapabilitySendSystem gates
// system-priority sends.
const (
	CapabilityConnect    = "connect"
	CapabilitySendSystem = "send.system"
)
