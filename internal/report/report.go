package report

import "github.com/zjy-dev/gocovr/internal/coverage"

// Writer defines the interface for serializing an aggregated coverage
// container.
type Writer interface {
	// Write renders the container to the writer's destination.
	Write(container *coverage.Container) error
}
