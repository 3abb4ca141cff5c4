package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	mcphttp "github.com/txn2/mcp-dremio/pkg/http"
)

// maxKeyBytes bounds what hash-key reads from stdin.
const maxKeyBytes = 4096

var errEmptyKey = errors.New("api key is empty")

func newHashKeyCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of an API key for server.api_keys",
		Long: "Hashes an API key for the server.api_keys configuration. The key is read " +
			"from the argument or, when omitted, from stdin so it stays out of shell history.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readKey(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			hash, err := mcphttp.HashKey(key)
			if err != nil {
				return fmt.Errorf("hashing key: %w", err)
			}

			out := cmd.OutOrStdout()
			if name == "" {
				_, err = fmt.Fprintln(out, hash)
				return err
			}
			_, err = fmt.Fprintf(out, "- name: %s\n  hash: %q\n", name, hash)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "print a server.api_keys entry with this key name")
	return cmd
}

func readKey(r io.Reader, args []string) (string, error) {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		data, err := io.ReadAll(io.LimitReader(r, maxKeyBytes))
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		key = string(data)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errEmptyKey
	}
	return key, nil
}
