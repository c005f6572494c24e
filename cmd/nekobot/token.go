package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var tokenFlags struct {
	bytes int
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a random admin API token",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().IntVar(&tokenFlags.bytes, "bytes", 32, "random bytes in the token")
}

func runToken(cmd *cobra.Command, _ []string) error {
	tok, err := newToken(tokenFlags.bytes)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Token: %s\n", tok)
	fmt.Fprintln(out, "\nAdd this to your config.yaml:")
	fmt.Fprintln(out, "  server:")
	fmt.Fprintf(out, "    admin_token: \"%s\"\n", tok)
	fmt.Fprintln(out, "\nThen call the admin API with: Authorization: Bearer <token>")
	return nil
}

func newToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token needs at least 16 bytes, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
