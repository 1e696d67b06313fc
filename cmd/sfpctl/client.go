package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// httpClient is a thin wrapper issuing JSON requests against a running
// "sfpctl serve" instance. Grounded on the shape of the teacher's
// cli.clientFromCmd / authInterceptor (addr + bearer token from flag or env),
// adapted from a Connect RPC client to plain net/http since this corpus
// carries no protobuf codegen for a generated client.
type httpClient struct {
	addr  string
	token string
	hc    *http.Client
}

func clientFromCmd(cmd *cobra.Command) *httpClient {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("SFP_TOKEN")
	}
	return &httpClient{addr: addr, token: token, hc: &http.Client{Timeout: 10 * time.Second}}
}

func (c *httpClient) do(method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.addr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Call a running sfpctl server over HTTP",
	}
	cmd.PersistentFlags().String("addr", "http://localhost:8080", "server address")
	cmd.PersistentFlags().String("token", "", "authentication token (or SFP_TOKEN env)")

	cmd.AddCommand(
		newContainCmd(),
		newInsertCmd(),
		newBatchContainCmd(),
		newBatchInsertCmd(),
		newConfigCmd(),
	)
	return cmd
}

func newContainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contain <appid> <group> <key>",
		Short: "Check whether key is a member of (appid, group)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			path := fmt.Sprintf("/v1/%s/%s/contain", args[0], args[1])
			var resp struct {
				Contains bool `json:"contains"`
			}
			body := map[string]string{"key": base64.StdEncoding.EncodeToString([]byte(args[2]))}
			if err := c.do(http.MethodPost, path, body, &resp); err != nil {
				return err
			}
			fmt.Println(resp.Contains)
			return nil
		},
	}
}

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <appid> <group> <key>",
		Short: "Add key to (appid, group)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			path := fmt.Sprintf("/v1/%s/%s/insert", args[0], args[1])
			body := map[string]string{"key": base64.StdEncoding.EncodeToString([]byte(args[2]))}
			if err := c.do(http.MethodPost, path, body, nil); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func newBatchContainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-contain <appid> <group> <key...>",
		Short: "Check membership for many keys in one round trip",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			appid, group, rawKeys := args[0], args[1], args[2:]
			path := fmt.Sprintf("/v1/%s/%s/batch_contain", appid, group)
			body := map[string][]string{"keys": encodeKeys(rawKeys)}
			var resp struct {
				Results []bool `json:"results"`
			}
			if err := c.do(http.MethodPost, path, body, &resp); err != nil {
				return err
			}
			for i, key := range rawKeys {
				fmt.Printf("%s: %v\n", key, resp.Results[i])
			}
			return nil
		},
	}
}

func newBatchInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-insert <appid> <group> <key...>",
		Short: "Add many keys to (appid, group) in one round trip",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			appid, group, rawKeys := args[0], args[1], args[2:]
			path := fmt.Sprintf("/v1/%s/%s/batch_insert", appid, group)
			body := map[string][]string{"keys": encodeKeys(rawKeys)}
			if err := c.do(http.MethodPost, path, body, nil); err != nil {
				return err
			}
			fmt.Printf("ok: %d keys inserted\n", len(rawKeys))
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set the persisted AppConfig for an appid",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <appid>",
		Short: "Show the persisted AppConfig for an appid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			var cfg map[string]any
			if err := c.do(http.MethodGet, "/v1/"+args[0]+"/config", nil, &cfg); err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <appid> <json-body>",
		Short: "Persist an AppConfig (JSON body) for an appid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFromCmd(cmd)
			var body any
			if err := json.Unmarshal([]byte(args[1]), &body); err != nil {
				return fmt.Errorf("parse json body: %w", err)
			}
			if err := c.do(http.MethodPut, "/v1/"+args[0]+"/config", body, nil); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func encodeKeys(raw []string) []string {
	encoded := make([]string, len(raw))
	for i, k := range raw {
		encoded[i] = base64.StdEncoding.EncodeToString([]byte(k))
	}
	return encoded
}
