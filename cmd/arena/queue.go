package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	cl "agentarena/internal/cli"
	"agentarena/internal/syncq"

	"github.com/spf13/cobra"
)

func offlineQueue() (*syncq.Queue, error) {
	dir, err := cl.ProfileDir()
	if err != nil {
		return nil, err
	}
	return syncq.New(dir), nil
}

// queueOnNetworkError parks a write that never reached the API. Errors the
// API answered are returned unchanged.
func queueOnNetworkError(err error, method, path, label, idem string, body any) error {
	if err == nil {
		return nil
	}
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) || errors.Is(err, context.Canceled) {
		return err
	}
	var raw json.RawMessage
	if body != nil {
		b, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		raw = b
	}
	q, qerr := offlineQueue()
	if qerr != nil {
		return fmt.Errorf("%w (queue unavailable: %v)", err, qerr)
	}
	if qerr := q.Push(syncq.Command{
		Method:         method,
		Path:           path,
		Body:           raw,
		IdempotencyKey: idem,
		Label:          label,
	}); qerr != nil {
		return fmt.Errorf("%w (queue failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("API unreachable, queued %q. Run `arena sync` once it is back.", label))
	return nil
}

func newSyncCmd(apiBase *string) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := offlineQueue()
			if err != nil {
				return err
			}
			if list {
				pending, err := q.Load()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					printInfo("Sync queue is empty.")
					return nil
				}
				for _, c := range pending {
					fmt.Printf("%s  %-6s %-40s %s\n", muted.Sprint(c.QueuedAt.Format("2006-01-02 15:04:05")), c.Method, truncate(c.Path, 40), c.Label)
				}
				return nil
			}

			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			replayed, remaining, err := q.Replay(ctx, func(ctx context.Context, c syncq.Command) error {
				err := client.Do(ctx, c.Method, c.Path, c.Body, c.IdempotencyKey)
				var apiErr *cl.APIError
				if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
					printWarn(fmt.Sprintf("Dropped %q: %s", c.Label, apiErr.Message))
					return nil
				}
				if err != nil {
					printWarn(fmt.Sprintf("Sync failed for %q: %v", c.Label, err))
				}
				return err
			})
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "show queued writes without sending them")
	return cmd
}
