// Package main implements the vecfs CLI for operations against a vecfsd server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/vecfs/internal/http"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags shared by every command.
type options struct {
	serverURL string
	profile   string
	requester string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "vecfs",
		Short: "CLI for vecfsd HTTP server operations",
		Long: `vecfs is a command-line interface for a vecfsd node.
It manages folders, items and permissions of a profile and runs vector
searches over them.

Every profile command acts as --requester, which defaults to the
VECFS_REQUESTER environment variable.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:9191", "vecfsd server URL")
	root.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "main", "profile to operate on")
	root.PersistentFlags().StringVar(&opts.requester, "requester", os.Getenv("VECFS_REQUESTER"), `full name of the caller, e.g. "@@node.shinkai/main"`)
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(
		newHealthCmd(opts),
		newInitCmd(opts),
		newLsCmd(opts),
		newMkdirCmd(opts),
		newPutCmd(opts),
		newRmCmd(opts),
		newTransferCmd(opts, false),
		newTransferCmd(opts, true),
		newChmodCmd(opts),
		newSearchCmd(opts),
		newDeepSearchCmd(opts),
		newLogsCmd(opts),
		newImportCmd(opts),
	)
	addSetupCmd(root)
	return root
}

// client talks to one profile of a vecfsd server.
type client struct {
	opts *options
	http *http.Client
}

func newClient(opts *options) *client {
	return &client{opts: opts, http: &http.Client{Timeout: opts.timeout}}
}

// apiError is an error response from the server.
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// do sends a request to the profile route path and decodes the JSON
// response into out when out is not nil.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.opts.requester == "" {
		return fmt.Errorf("--requester or VECFS_REQUESTER is required")
	}
	target := fmt.Sprintf("%s/api/v1/profiles/%s%s", c.opts.serverURL, url.PathEscape(c.opts.profile), path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(httpserver.HeaderRequester, c.opts.requester)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(raw)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
