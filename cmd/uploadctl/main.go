// Package main はCLIツールのエントリポイント。
package main

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

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "uploadctl",
		Short: "Data Upload Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("UPLOADCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set UPLOADCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format for unzip: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(decryptCmd())
	rootCmd.AddCommand(unzipCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uploadctl version %s\n", version)
		},
	}
}

// encryptCmd はファイルの暗号化コマンド。
func encryptCmd() *cobra.Command {
	var appID, in, out string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a file with an app's certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := postFile(fmt.Sprintf("%s/v1/apps/%s/encrypt", apiURL, appID), in)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, body)
		},
	}
	addTransferFlags(cmd, &appID, &in, &out)
	return cmd
}

// decryptCmd はファイルの復号コマンド。
func decryptCmd() *cobra.Command {
	var appID, in, out string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a file with an app's private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := postFile(fmt.Sprintf("%s/v1/apps/%s/decrypt", apiURL, appID), in)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, body)
		},
	}
	addTransferFlags(cmd, &appID, &in, &out)
	return cmd
}

// unzipCmd は暗号化されたアーカイブ（--app指定時）または平文ZIPの展開コマンド。
func unzipCmd() *cobra.Command {
	var appID, in, out string
	cmd := &cobra.Command{
		Use:   "unzip",
		Short: "Decrypt (with --app) and list the entries of an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/v1/archives/unzip", apiURL)
			if appID != "" {
				url = fmt.Sprintf("%s/v1/apps/%s/unzip", apiURL, appID)
			}
			body, err := postFile(url, in)
			if err != nil {
				return err
			}

			if output == "json" {
				return writeOutput(cmd, out, body)
			}

			var result struct {
				Entries []struct {
					Name string `json:"name"`
					Size int    `json:"size"`
				} `json:"entries"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-10s %s\n", "SIZE", "NAME")
			for _, e := range result.Entries {
				fmt.Fprintf(w, "%-10d %s\n", e.Size, e.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app", "", "App ID (optional; the input is decrypted first when set)")
	cmd.Flags().StringVar(&in, "in", "", "Input file (required, - for stdin)")
	cmd.Flags().StringVar(&out, "out", "", "Output file for --output json (defaults to stdout)")
	cmd.MarkFlagRequired("in")
	return cmd
}

func addTransferFlags(cmd *cobra.Command, appID, in, out *string) {
	cmd.Flags().StringVar(appID, "app", "", "App ID (required)")
	cmd.Flags().StringVar(in, "in", "", "Input file (required, - for stdin)")
	cmd.Flags().StringVar(out, "out", "", "Output file (defaults to stdout)")
	cmd.MarkFlagRequired("app")
	cmd.MarkFlagRequired("in")
}

// postFile は入力ファイルをリクエストボディとしてPOSTし、レスポンスボディを返す。
func postFile(url, in string) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set UPLOADCTL_API_URL)")
	}

	data, err := readInput(in)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Post(url, "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func readInput(in string) ([]byte, error) {
	if in == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return data, nil
}

func writeOutput(cmd *cobra.Command, out string, data []byte) error {
	if out == "" || out == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s (%s)", errResp.Message, errResp.Code)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
