package gate

import (
	"context"
)

func (p *Pipeline) maintainDependentPID(ctx context.Context, c *Context) error {
	if p.pids == nil {
		return nil
	}
	return p.pids.MaintainDependentPID(ctx, c.Graph)
}

func (p *Pipeline) maintainPID(ctx context.Context, c *Context) error {
	if p.pids == nil {
		return nil
	}
	return p.pids.MaintainPID(ctx, c.Graph, c.Known())
}
