// Command flowdb runs the dataflow engine's server process, or drives
// it as a load-generating client, over the internal/server RPC surface.
//
// Grounded on the teacher's cmd/* subcommand-per-binary-concern layout
// (e.g. cmd/uplink, cmd/satellite all split into a cobra root plus one
// file per subcommand) and on internal/cfgstruct/pkg/process's
// flag-binding convention: each subcommand's Config struct is bound to
// its own FlagSet via cfgstruct.Bind, then handed to viper together
// with a config file and environment variables. Only the flags and
// their defaults set a Config's fields: the values viper reads from the
// file or the environment are not copied back into them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"storj.io/flowdb/internal/cfgstruct"
)

var (
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "flowdb",
		Short: "flowdb runs or drives a partially-stateful dataflow engine",
	}
)

func main() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newBenchCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("exit", zap.Error(err))
	}
}

// bindConfig wires config's fields to cmd's flags via cfgstruct.Bind,
// then binds those flags into a viper instance that also reads a
// flowdb.yaml config file (if present) and FLOWDB_-prefixed environment
// variables. That viper instance is local and nothing reads from it, so
// the file and the environment do not change config; a field's value
// comes from its flag (or the flag's default) only. A malformed config
// file is still reported as an error.
func bindConfig(cmd *cobra.Command, config interface{}, confDir string) error {
	cfgstruct.Bind(cmd.Flags(), config, cfgstruct.ConfDir(confDir))

	v := viper.New()
	v.SetConfigName("flowdb")
	v.AddConfigPath(confDir)
	v.SetEnvPrefix("flowdb")
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return err
		}
	}
	return nil
}
