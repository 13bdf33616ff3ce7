package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Main is the operator CLI: small commands against a running pulsed.
func Main() {
	var addr string
	var key string

	root := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse CLI",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8090", "pulsed base URL")
	root.PersistentFlags().StringVar(&key, "key", os.Getenv("PULSE_PUSH_KEY"), "internal push key")

	root.AddCommand(pushCmd(&addr, &key))
	root.AddCommand(onlineCmd(&addr))
	root.AddCommand(pollCmd(&addr))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func pushCmd(addr, key *string) *cobra.Command {
	var target, typ, data string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push an event to a principal or channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]any{
				"target": target,
				"type":   typ,
				"data":   json.RawMessage(data),
			})
			if err != nil {
				return err
			}
			req, err := http.NewRequest(http.MethodPost, *addr+"/internal/push", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if *key != "" {
				req.Header.Set("X-Pulse-Key", *key)
			}
			resp, err := httpClient().Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "principal id or channel id")
	cmd.Flags().StringVar(&typ, "type", "", "event type")
	cmd.Flags().StringVar(&data, "data", "{}", "event payload (json)")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func onlineCmd(addr *string) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "online",
		Short: "List non-stale online principals",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, *addr+"/presence/online", nil)
			if err != nil {
				return err
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := httpClient().Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}

	cmd.Flags().StringVar(&token, "token", os.Getenv("PULSE_TOKEN"), "credential (session id or token)")
	return cmd
}

func pollCmd(addr *string) *cobra.Command {
	var token, resource string
	var since int64

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll the durable store for new events",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/poll/%s?since=%d", *addr, resource, since)
			req, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := httpClient().Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}

	cmd.Flags().StringVar(&token, "token", os.Getenv("PULSE_TOKEN"), "credential (session id or token)")
	cmd.Flags().StringVar(&resource, "resource", "notifications", "notifications|messages|dashboard")
	cmd.Flags().Int64Var(&since, "since", 0, "cursor (unix milliseconds, 0 = from now)")
	return cmd
}

func printResponse(resp *http.Response) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(b))
	}
	fmt.Println(string(bytes.TrimSpace(b)))
	return nil
}
