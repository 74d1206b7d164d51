// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package ssm runs shell commands on instances through SSM Run Command and
// sorts their failures into the cases callers retry on.
package ssm

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/log"
)

// ShellDocument is the SSM document used to run commands.
const ShellDocument = "AWS-RunShellScript"

// DefaultMaxWait bounds a single command invocation.
const DefaultMaxWait = 2 * time.Minute

// ErrInstanceUnreachable means SSM does not know the instance yet. Freshly
// launched instances report this until the agent registers.
var ErrInstanceUnreachable = errors.New("instance not reachable by SSM")

// CommandFailedError is returned when an invocation ends in any state other
// than Success.
type CommandFailedError struct {
	CommandID  string
	InstanceID string
	Status     string
	ExitCode   int32
	Stderr     string
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("SSM command failed: instance=%s command=%s status=%s exit=%d",
		e.InstanceID, e.CommandID, e.Status, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// IsTransient reports whether err is worth retrying against the same
// instance.
func IsTransient(err error) bool {
	if errors.Is(err, ErrInstanceUnreachable) {
		return true
	}
	var cf *CommandFailedError
	return errors.As(err, &cf)
}

// API is the subset of the SSM client used by Runner.
type API interface {
	SendCommand(ctx context.Context, params *awsssm.SendCommandInput, optFns ...func(*awsssm.Options)) (*awsssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *awsssm.GetCommandInvocationInput, optFns ...func(*awsssm.Options)) (*awsssm.GetCommandInvocationOutput, error)
}

// Runner executes commands on one instance at a time.
type Runner struct {
	Client API
	// MaxWait bounds how long Run waits for an invocation. Zero means
	// DefaultMaxWait.
	MaxWait time.Duration
	// WaiterOptions tune the CommandExecuted waiter.
	WaiterOptions []func(*awsssm.CommandExecutedWaiterOptions)
}

// NewRunner returns a Runner using client.
func NewRunner(client API) *Runner {
	return &Runner{Client: client}
}

// Run executes command on instanceID and returns its standard output.
func (r *Runner) Run(ctx context.Context, instanceID, command string) (string, error) {
	out, err := r.Client.SendCommand(ctx, &awsssm.SendCommandInput{
		DocumentName: awsv2.String(ShellDocument),
		InstanceIds:  []string{instanceID},
		Parameters:   map[string][]string{"commands": {command}},
	})
	if err != nil {
		if aws.HasErrorCode(err, "InvalidInstanceId") {
			return "", fmt.Errorf("%w: %s", ErrInstanceUnreachable, instanceID)
		}
		return "", fmt.Errorf("failed to send command to %s: %w", instanceID, err)
	}
	if out.Command == nil || out.Command.CommandId == nil {
		return "", fmt.Errorf("send command to %s returned no command id", instanceID)
	}
	commandID := awsv2.ToString(out.Command.CommandId)
	log.Debugf("ssm command sent: instance=%s command=%s", instanceID, commandID)

	in := &awsssm.GetCommandInvocationInput{
		CommandId:  awsv2.String(commandID),
		InstanceId: awsv2.String(instanceID),
	}

	maxWait := r.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	waiter := awsssm.NewCommandExecutedWaiter(r.Client, r.WaiterOptions...)
	if err := waiter.Wait(ctx, in, maxWait); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Terminal failure states also end the waiter with an error; the
		// invocation below carries the detail.
		log.Debugf("ssm waiter: command=%s err=%v", commandID, err)
	}

	inv, err := r.Client.GetCommandInvocation(ctx, in)
	if err != nil {
		if aws.HasErrorCode(err, "InvalidInstanceId") {
			return "", fmt.Errorf("%w: %s", ErrInstanceUnreachable, instanceID)
		}
		return "", fmt.Errorf("failed to read invocation %s: %w", commandID, err)
	}

	if inv.Status != types.CommandInvocationStatusSuccess {
		return "", &CommandFailedError{
			CommandID:  commandID,
			InstanceID: instanceID,
			Status:     string(inv.Status),
			ExitCode:   inv.ResponseCode,
			Stderr:     awsv2.ToString(inv.StandardErrorContent),
		}
	}

	return awsv2.ToString(inv.StandardOutputContent), nil
}
