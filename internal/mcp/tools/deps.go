// Package tools exposes the task operations as MCP tools.
package tools

import (
	"github.com/vthunder/chorebot/internal/ingest"
	"github.com/vthunder/chorebot/internal/reflex"
	"github.com/vthunder/chorebot/internal/resolver"
)

// Dependencies holds the services tools call into. Reflex may be nil.
type Dependencies struct {
	Resolver *resolver.Resolver
	Ingester *ingest.Ingester
	Reflex   *reflex.Engine
}
