package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hashicorp/cap-aims/oidc"
)

// Configuration keys.  Every key can be set by a flag, the config file or an
// AIMS_ prefixed environment variable.
const (
	keyConfig       = "config"
	keyAccounts     = "accounts"
	keyStore        = "store"
	keyStoreDir     = "store_dir"
	keyRedisAddr    = "redis_addr"
	keyRedisPrefix  = "redis_prefix"
	keyLogLevel     = "log_level"
	keyCAFile       = "ca_file"
	keyTestProvider = "test_provider"
	keyAttemptExp   = "attempt_expiry"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "aims-login",
		Short:         "Log content server accounts in with AIMS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			return readConfigFile(v)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (yaml)")
	flags.StringP("accounts", "a", "accounts.yaml", "account registry file")
	flags.String("store", "file", "secret store: file, redis or memory")
	flags.String("store-dir", "", "directory for the file secret store (default is the user config dir)")
	flags.String("redis-addr", "localhost:6379", "redis address for the redis secret store")
	flags.String("redis-prefix", "", "key prefix for the redis secret store")
	flags.String("log-level", "warn", "log level: trace, debug, info, warn or error")
	flags.String("ca-file", "", "PEM encoded CA certificate(s) for the identity service")
	flags.Duration("attempt-expiry", oidc.DefaultAttemptExpiry, "how long an interactive login may take")
	flags.Bool("test-provider", false, "use an in-process identity service with a \"test\" account")
	for _, name := range []string{"config", "accounts", "store", "store-dir", "redis-addr", "redis-prefix", "log-level", "ca-file", "attempt-expiry", "test-provider"} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	root.AddCommand(
		newProbeCmd(v),
		newLoginCmd(v),
		newRefreshCmd(v),
		newLogoutCmd(v),
		newStatusCmd(v),
	)
	return root
}

func readConfigFile(v *viper.Viper) error {
	path := v.GetString(keyConfig)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	return v.ReadInConfig()
}
