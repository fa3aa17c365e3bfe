package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actiongate/actiongate/internal/domain/auth"
)

var hashKeySHA256 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Hash an API key for use in config",
	Long: `Hash an API key for the auth.api_keys.key_hash field.

By default the key is hashed with Argon2id, which resists offline
brute-force if the config file leaks. Pass --sha256 for the legacy
"sha256:<hex>" format, which allows constant-time lookup.

Example:
  actiongate hash-key "my-secret-api-key"

Security note: the key will appear in shell history. Consider clearing
history after use or passing an environment variable:
  actiongate hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashKeySHA256 {
			fmt.Printf("sha256:%s\n", auth.HashKey(args[0]))
			return nil
		}
		hash, err := auth.HashKeyArgon2id(args[0])
		if err != nil {
			return fmt.Errorf("hash key: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "use SHA-256 instead of Argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}
