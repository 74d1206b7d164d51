// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/command"
	"github.com/aegea/aegea/internal/config"
	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/version"
)

// exitSoftware is EX_SOFTWARE from sysexits.h.
const exitSoftware = 70

const noRegionMessage = "The AWS CLI is not configured. Please configure it using instructions at " +
	"https://docs.aws.amazon.com/cli/latest/userguide/cli-chap-configure-files.html"

func main() {
	os.Exit(realMain(os.Args, os.Stdout, os.Stderr))
}

// handleVersion checks for --version/-v and returns whether it was handled.
func handleVersion(args []string, w io.Writer) bool {
	for _, a := range args {
		if a == "--version" || a == "-v" {
			fmt.Fprintln(w, version.Version)
			return true
		}
	}
	return false
}

// handleNakedCommand appends --help if no command is provided.
func handleNakedCommand(args []string) []string {
	if len(args) <= 1 {
		return append(args, "--help")
	}
	return args
}

// processSetOnly expands an @set argument into the flags stored under
// <command>.sets.<set> in the config file, at the position of the @set.
func processSetOnly(args []string) []string {
	if len(args) < 3 { //nolint:mnd
		return args
	}

	idx := 2
	removeIdx := -1
	var set string
	for i, a := range args[idx:] {
		if strings.HasPrefix(a, "@") {
			set = a[1:]
			removeIdx = idx + i
			break
		}
	}
	if removeIdx == -1 {
		return args
	}

	key := strings.ReplaceAll(args[1], "-", "_") + ".sets." + set
	setArgs, err := config.GetStringSlice(key)
	if err != nil {
		log.Warnf("no flag set %s: %v", key, err)
	}

	expanded := append([]string{}, args[:removeIdx]...)
	for _, arg := range setArgs {
		expanded = append(expanded, strings.Fields(arg)...)
	}
	expanded = append(expanded, args[removeIdx+1:]...)
	log.Debugf("args after set processing: args=%v", expanded)
	return expanded
}

// handleError turns a command error into an exit code. A missing region
// gets setup instructions. At debug level the whole error goes to stderr;
// otherwise it is appended to error.log and summarized in one line.
func handleError(err error, stderr io.Writer, now time.Time) int {
	if err == nil {
		return 0
	}

	if errors.Is(err, aws.ErrNoRegion) {
		fmt.Fprintln(stderr, noRegionMessage)
		return 1
	}

	if log.IsDebug() {
		fmt.Fprintf(stderr, "%s: %+v\n", errorType(err), err)
		return 1
	}

	path, logErr := appendErrorLog(err, now)
	if logErr != nil {
		log.Debugf("error log write failed: err=%v", logErr)
		fmt.Fprintln(stderr, err)
		return exitSoftware
	}

	fmt.Fprintf(stderr, "%s: %s. See %s for error details.\n", errorType(err), err, path)
	return 1
}

// appendErrorLog writes a timestamped record of err to error.log next to the
// config file and returns its path.
func appendErrorLog(err error, now time.Time) (string, error) {
	path, pathErr := config.ErrorLogPath()
	if pathErr != nil {
		return "", pathErr
	}

	f, openErr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:mnd
	if openErr != nil {
		return "", openErr
	}
	defer func() { _ = f.Close() }()

	if _, writeErr := fmt.Fprintf(f, "%s\n%s: %+v\n", now.Format(time.RFC3339), errorType(err), err); writeErr != nil {
		return "", writeErr
	}
	return path, nil
}

// errorType names the most specific error in err's chain, skipping the
// anonymous wrappers from fmt.Errorf and errors.New.
func errorType(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		t := fmt.Sprintf("%T", e)
		switch t {
		case "*fmt.wrapError", "*fmt.wrapErrors", "*errors.errorString", "*errors.joinError":
			continue
		}
		t = strings.TrimPrefix(t, "*")
		if i := strings.LastIndex(t, "."); i >= 0 {
			t = t[i+1:]
		}
		return t
	}
	return "Error"
}

func realMain(args []string, stdout, stderr io.Writer) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "failed to load .env: %v\n", err)
	}

	log.InitLogger()
	log.Debugf("args captured: args=%v", args)

	if _, err := config.EnsureDefault(); err != nil {
		log.Warnf("failed to write default config: %v", err)
	}

	if handleVersion(args, stdout) {
		return 0
	}

	args = handleNakedCommand(args)
	args = processSetOnly(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := command.InitApp(ctx, args)
	if err != nil {
		return handleError(err, stderr, time.Now())
	}
	app.Writer = stdout
	app.ErrWriter = stderr

	return handleError(app.Run(ctx, args), stderr, time.Now())
}
