package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether a running server is healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8090, "port the server listens on")
	return cmd
}

func runStatus(port int) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		return fmt.Errorf("server not reachable on port %d: %w", port, err)
	}
	defer resp.Body.Close()

	var health struct {
		Status           string `json:"status"`
		DocumentsIndexed int    `json:"documents_indexed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	fmt.Printf("status: %s\n", health.Status)
	fmt.Printf("documents indexed: %d\n", health.DocumentsIndexed)
	return nil
}

// writePidFile records the server pid so operators can find it. Returns a
// cleanup func.
func writePidFile(dataDir string) (func(), error) {
	path := filepath.Join(dataDir, "skald.pid")
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing pid file: %w", err)
	}
	return func() {
		content, err := os.ReadFile(path)
		if err == nil && strings.TrimSpace(string(content)) == pid {
			os.Remove(path)
		}
	}, nil
}
