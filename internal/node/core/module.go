package core

import (
	"context"

	"github.com/autopeer-io/sensornode/internal/node/sched"
)

// Module is a unit of node functionality.
type Module interface {
	Name() string

	// Setup wires the module and registers its tasks with the scheduler.
	Setup(ctx context.Context, rt Runtime) error

	// Routes are the remote commands the module handles.
	Routes() map[Command]HandlerFunc
}

// Runtime is what a module receives at setup.
type Runtime struct {
	HAL       HAL
	Sender    Sender
	Scheduler *sched.Scheduler
}
