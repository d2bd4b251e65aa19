package config

import (
	"time"

	"github.com/offloadlab/offload/pkg/core"
)

// DefaultWalltime bounds remote execution when no layer sets one.
const DefaultWalltime = 5 * time.Minute

// defaultWorkerInit runs before every task unless a layer replaces the
// accumulator entirely (layers append to it, so this always runs first).
const defaultWorkerInit = ""

// Defaults returns the built-in lowest-precedence configuration layer.
func Defaults() *core.EndpointConfig {
	return &core.EndpointConfig{WorkerInit: defaultWorkerInit}
}
