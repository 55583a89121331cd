package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"medstore-console/guard"
	"medstore-console/session"
)

// RouteRow is one line of the routes listing.
type RouteRow struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Layout  string `json:"layout"`
	Access  string `json:"access"`
	Visible bool   `json:"visible"`
}

// NewRoutesCommand creates the routes command. It prints the route table and
// which entries a visitor in the given session state would see.
func NewRoutesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		file string
		as   string
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route table and its visibility",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := guard.DefaultTable()
			if file != "" {
				loaded, err := guard.LoadTableFile(file)
				if err != nil {
					return err
				}
				table = loaded
			}

			var snap session.Snapshot
			switch as {
			case "anonymous":
				snap = session.Snapshot{State: session.StateAnonymous}
			case "authenticated":
				snap = session.Snapshot{State: session.StateAuthenticated, Identity: "visitor@example.com"}
			default:
				return fmt.Errorf("invalid --as %q: must be anonymous or authenticated", as)
			}

			return writeRoutes(cmd.OutOrStdout(), rootOpts.Format, table, snap)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "route table file (defaults to the built-in table)")
	cmd.Flags().StringVar(&as, "as", "anonymous", "session state to evaluate (anonymous|authenticated)")
	return cmd
}

func writeRoutes(w io.Writer, format string, table *guard.Table, snap session.Snapshot) error {
	visible := make(map[string]bool)
	for _, r := range guard.New(table).Visible(snap) {
		visible[r.Path] = true
	}

	rows := make([]RouteRow, 0, len(table.Routes()))
	for _, r := range table.Routes() {
		rows = append(rows, RouteRow{
			Path:    r.Path,
			Name:    r.Name,
			Layout:  r.Layout,
			Access:  string(table.Access(r.Path)),
			Visible: visible[r.Path],
		})
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tLAYOUT\tACCESS\tVISIBLE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.Path, r.Name, r.Layout, r.Access, r.Visible)
	}
	return tw.Flush()
}
