// Command ssg prerenders a vite single-page application into static HTML.
//
// Configuration is read from ssg.config.yaml in the project root (or the
// file named by --config / SSG_CONFIG_FILE), SSG_* environment variables
// and flags, in increasing order of precedence.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/3-lines-studio/ssg/internal/adapters/cli"
	"github.com/3-lines-studio/ssg/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "ssg",
	Short:         "Prerender a client-rendered single-page application",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.SetDefaults(v)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ssg.config.yaml, can also use SSG_CONFIG_FILE env var)")
	flags.String("root", ".", "project root")
	flags.String("runtime", config.DefaultRuntime, "JavaScript runtime for the render worker (node, bun)")
	flags.String("entry", "", "server entry (default: first module script in index.html)")
	flags.StringP("log-level", "l", "warn", "log level (debug, info, warn, error)")

	bindFlag(flags, "root", "root")
	bindFlag(flags, "runtime", "runtime")
	bindFlag(flags, "entry", "entry")
	bindFlag(flags, "logLevel", "log-level")

	rootCmd.AddCommand(buildCmd, doctorCmd)
}

// bindFlag ties a viper key to a flag so an explicitly set flag wins.
func bindFlag(flags *pflag.FlagSet, key, name string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(err)
	}
}

// loadConfig reads the config file from the project root and validates the
// merged settings.
func loadConfig() (*config.Config, error) {
	if err := config.ReadConfigFile(v, cfgFile, v.GetString("root")); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Build failures are already listed by the build report.
		if !errors.Is(err, errBuildFailed) {
			cli.NewOutput().PrintError("%v", err)
		}
		os.Exit(1)
	}
}

var errBuildFailed = errors.New("build failed")
