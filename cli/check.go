package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"medstore-console/app"
	"medstore-console/session"
)

// CheckResult is the outcome of one bootstrap identity check.
type CheckResult struct {
	State       string `json:"state"`
	Identity    string `json:"identity,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	ProfileErr  string `json:"profileError,omitempty"`
}

// NewCheckCommand creates the check command. It runs the same identity check a
// page load runs, without stored credentials, and reports where it ended.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one identity check against the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			factory, err := app.NewBackendFactory(cfg)
			if err != nil {
				return err
			}
			backend, err := factory(nil)
			if err != nil {
				return err
			}

			store := session.New(backend,
				session.WithCheckTimeout(cfg.CheckTimeout),
				session.WithRequestTimeout(cfg.RequestTimeout),
				session.WithLogger(cfg.Logger(cmd.ErrOrStderr())),
			)
			store.CheckSession(cmd.Context())

			return writeCheck(cmd.OutOrStdout(), rootOpts.Format, store.Snapshot())
		},
	}

	flags.register(cmd)
	return cmd
}

func writeCheck(w io.Writer, format string, snap session.Snapshot) error {
	res := CheckResult{State: snap.State.String()}
	if snap.Authenticated() {
		res.Identity = snap.Identity
		res.DisplayName = snap.Profile.DisplayName(snap.Identity)
	}
	if snap.ProfileErr != nil {
		res.ProfileErr = snap.ProfileErr.Error()
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if _, err := fmt.Fprintf(w, "state: %s\n", res.State); err != nil {
		return err
	}
	if res.Identity != "" {
		fmt.Fprintf(w, "identity: %s\nname: %s\n", res.Identity, res.DisplayName)
	}
	if res.ProfileErr != "" {
		fmt.Fprintf(w, "profile: unavailable (%s)\n", res.ProfileErr)
	}
	return nil
}
