package core

type EventType string

const (
	EventTelemetry EventType = "node.telemetry"
	EventStatus    EventType = "node.status"
)

// Command is a remote control payload.
type Command string

const (
	CommandReboot    Command = "reboot"
	CommandCalibrate Command = "calibrate"
)
