package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultServerURL = "http://127.0.0.1:8080"

func stateCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Fetch live mob state from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, baseURL, "/debug/v1/state", 5*time.Second)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", defaultServerURL, "server base url")
	return cmd
}

func requestSnapshotCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Ask a running server to write a snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, baseURL, "/debug/v1/snapshot", 10*time.Second)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", defaultServerURL, "server base url")
	return cmd
}

func call(cmd *cobra.Command, method, baseURL, path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
