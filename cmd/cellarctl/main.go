package main

import (
	"cellarcore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, formatError(err))
		}
		os.Exit(1)
	}
}

// formatError prefixes domain failures with the status class the request
// layer would answer with.
func formatError(err error) string {
	status := domain.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("error [%d %s]: %v", status, http.StatusText(status), err)
}
