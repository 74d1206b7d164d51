// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package meta

import (
	"context"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/config"
)

// ClientFactory builds the AWS clients for one invocation.
type ClientFactory func(ctx context.Context, opts ...aws.Option) (*aws.Clients, error)

// Meta contains runtime metadata shared by commands. It carries CLI arguments,
// the loaded configuration and its namespace, the context and the factory
// commands use to reach AWS.
type Meta struct {
	Args    []string
	Config  config.Type
	Context context.Context
	Clients ClientFactory
}

// NewClients calls the configured factory, falling back to aws.NewClients.
func (m Meta) NewClients(ctx context.Context, opts ...aws.Option) (*aws.Clients, error) {
	if m.Clients != nil {
		return m.Clients(ctx, opts...)
	}
	return aws.NewClients(ctx, opts...)
}
