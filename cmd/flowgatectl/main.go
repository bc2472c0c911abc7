// Command flowgatectl is the CLI wrapper around the router: load a
// configuration, activate a graph for a session, and drive the transition
// API from the shell. Grounded on cmd/relurpify/main.go's cobra
// root-command-plus-subcommands tree.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rixmerz/flowgate/config"
	"github.com/rixmerz/flowgate/persistence"
	"github.com/rixmerz/flowgate/router"
	"github.com/rixmerz/flowgate/session"
)

var (
	flagConfig    string
	flagSessionID string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowgatectl",
		Short: "Operate a flowgate policy-gated tool-call router",
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "flowgate.yaml", "Path to flowgate.yaml")
	root.PersistentFlags().StringVar(&flagSessionID, "session", "", "Session id (defaults to the default session)")

	root.AddCommand(newActivateCmd(), newStatusCmd(), newTraverseCmd(), newResetCmd(), newValidateCmd())
	return root
}

func newAPI() (*router.API, *config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	store, err := persistence.NewFileStateStore(cfg.ProjectRoot + "/.flowgate")
	if err != nil {
		return nil, nil, err
	}
	sessions := session.NewRegistry(cfg.ProjectRoot)
	return router.NewAPI(sessions, store, cfg.GraphLibraryDir), cfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <graph-name>",
		Short: "Load a named graph and initialize session state at its start node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := newAPI()
			if err != nil {
				return err
			}
			state, err := api.Activate(context.Background(), flagSessionID, args[0])
			if err != nil {
				return err
			}
			return printJSON(state)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session's current graph state and any visit-cap warning",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := newAPI()
			if err != nil {
				return err
			}
			state, warning, err := api.Status(context.Background(), flagSessionID)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"state": state, "warning": warning})
		},
	}
}

func newTraverseCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "traverse <edge-id>",
		Short: "Explicitly take a named edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := newAPI()
			if err != nil {
				return err
			}
			state, err := api.Traverse(context.Background(), flagSessionID, args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(state)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual traverse", "Reason recorded in the transition trace")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return the session's graph state to its start node",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := newAPI()
			if err != nil {
				return err
			}
			state, err := api.Reset(context.Background(), flagSessionID)
			if err != nil {
				return err
			}
			return printJSON(state)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph-name>",
		Short: "Validate a named graph file without activating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := newAPI()
			if err != nil {
				return err
			}
			if err := api.Validate(args[0]); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}
