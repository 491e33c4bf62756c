package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envAnnotation = "postcraft_env"

var rootCmd = &cobra.Command{
	Use:   "postcraft",
	Short: "PostCraft API server and tooling",
	Long: `PostCraft serves the request-guarded API behind the social media dashboard
and drives the new-user onboarding flow from the terminal.

Every flag can also be set with the POSTCRAFT_* environment variable named in
its help text. A .env file in the working directory is loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return applyEnv(cmd)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// envFlag registers env as the fallback source for the named flag and
// appends it to the flag's usage.
func envFlag(flags *pflag.FlagSet, name, env string) {
	f := flags.Lookup(name)
	if f == nil {
		panic("envFlag: unknown flag " + name)
	}
	f.Usage += " [$" + env + "]"
	if err := flags.SetAnnotation(name, envAnnotation, []string{env}); err != nil {
		panic(err)
	}
}

// applyEnv fills every flag not set on the command line from its
// environment variable, if present.
func applyEnv(cmd *cobra.Command) error {
	var firstErr error
	visit := func(f *pflag.Flag) {
		keys := f.Annotations[envAnnotation]
		if f.Changed || len(keys) == 0 || firstErr != nil {
			return
		}
		v, ok := os.LookupEnv(keys[0])
		if !ok {
			return
		}
		if err := f.Value.Set(v); err != nil {
			firstErr = fmt.Errorf("invalid %s=%q: %w", keys[0], v, err)
		}
	}
	// Flags() includes persistent flags inherited from parents.
	cmd.Flags().VisitAll(visit)
	return firstErr
}
