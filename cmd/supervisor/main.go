// Command supervisor is the supervisor process entrypoint: it forks and
// watches the engine worker binary, restarting it with exponential
// backoff and gating it against the configured trading session
// schedule. Built as a cobra root command with standalone/daemon mode
// selection.
package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/haka-quant/optionengine/config"
	"github.com/haka-quant/optionengine/supervisor"
)

var (
	mode                string
	childBinary         string
	sessionSchedulePath string
	extraArgs           []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "supervisor watches and restarts the engine worker process",
	RunE:  runSupervisor,
}

func init() {
	rootCmd.Flags().StringVar(&mode, "mode", "daemon", "supervisor mode: \"standalone\" or \"daemon\"")
	rootCmd.Flags().StringVar(&childBinary, "child", "./engine", "path to the engine worker binary to run")
	rootCmd.Flags().StringVar(&sessionSchedulePath, "sessions", "config/sessions.yaml", "path to the trading-session schedule YAML file")
	rootCmd.Flags().StringArrayVar(&extraArgs, "child-arg", nil, "extra argument to forward to the child binary (repeatable)")
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	var sched *config.SessionSchedule
	if mode == string(supervisor.ModeDaemon) {
		loaded, err := config.LoadSessionSchedule(sessionSchedulePath)
		if err != nil {
			log.Printf("⚠️  supervisor: no session schedule at %s (%v), running unrestricted", sessionSchedulePath, err)
		} else {
			sched = loaded
		}
	}

	sup := supervisor.New(supervisor.Config{
		Mode:     supervisor.Mode(mode),
		Command:  childBinary,
		Args:     extraArgs,
		Schedule: sched,
	})

	err := sup.Run(context.Background())
	if err != nil && err != context.Canceled {
		return err
	}
	os.Exit(0)
	return nil
}
