// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/meta"
)

// Registry collects subcommands. Each command file contributes a
// register<Name> function; InitApp calls them all in registrations order.
type Registry struct {
	Meta     meta.Meta
	commands map[string]*cli.Command
}

// registrations lists every command module.
var registrations = []func(*Registry){
	registerBuildAMI,
	registerCost,
	registerCostForecast,
	registerEnsureSSHKey,
	registerImages,
	registerKeyPairs,
	registerTrustHostKey,
}

// NewRegistry returns an empty registry whose builders receive m.
func NewRegistry(m meta.Meta) *Registry {
	return &Registry{Meta: m, commands: map[string]*cli.Command{}}
}

// Register builds cb with the registry's meta and adds it. Registering the
// same name twice panics since it is a programming error.
func (r *Registry) Register(cb *CommandBuilder) {
	if _, dup := r.commands[cb.Name]; dup {
		panic(fmt.Sprintf("command %q registered twice", cb.Name))
	}
	cb.Meta = r.Meta
	r.commands[cb.Name] = cb.Build()
}

// Commands returns every registered command ordered by name, with each
// command's flags sorted for --help.
func (r *Registry) Commands() []*cli.Command {
	cmds := make([]*cli.Command, 0, len(r.commands))
	for _, c := range r.commands {
		sort.Slice(c.Flags, func(i, j int) bool {
			return c.Flags[i].Names()[0] < c.Flags[j].Names()[0]
		})
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}
