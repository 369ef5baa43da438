package main

import (
	"context"

	"github.com/pxtool/px/internal/engine"
	"github.com/pxtool/px/internal/mcpctl"
)

func runMCPServer(ctx context.Context, deps *engine.Deps, addr string) error {
	return mcpctl.Serve(ctx, deps, addr)
}
