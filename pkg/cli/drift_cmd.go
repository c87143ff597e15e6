package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDriftCmd(client *Client) *cobra.Command {
	var (
		from             string
		to               string
		includeUnchanged bool
	)

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Diff the access matrices of two closed runs",
		Long: `Diff the access matrix snapshots of two closed runs and report every
principal/service pair that was added, removed, or changed access level.
When --from is omitted, the run preceding --to is used as the baseline.`,
		Example: `  # Compare the latest run against its predecessor
  ledgerctl drift --to <run-id>

  # Explicit baseline, JSON for piping
  ledgerctl drift --from <run-a> --to <run-b> --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			q.Set("to", to)
			if from != "" {
				q.Set("from", from)
			}
			if includeUnchanged {
				q.Set("include_unchanged", "true")
			}

			var resp struct {
				Data []struct {
					PrincipalID  string `json:"principal_id"`
					SourceSystem string `json:"source_system"`
					Environment  string `json:"environment"`
					Service      string `json:"service"`
					Change       string `json:"change"`
					OldAccess    string `json:"old_access"`
					NewAccess    string `json:"new_access"`
				} `json:"data"`
			}
			if err := client.DoJSON(http.MethodGet, "/drift", q, nil, &resp); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, resp)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHANGE\tPRINCIPAL\tSOURCE\tENV\tSERVICE\tOLD\tNEW")
			for _, rec := range resp.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.Change, rec.PrincipalID, rec.SourceSystem, rec.Environment,
					rec.Service, rec.OldAccess, rec.NewAccess)
			}
			_ = w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Baseline run ID (default: the run before --to)")
	cmd.Flags().StringVar(&to, "to", "", "Target run ID (required)")
	cmd.Flags().BoolVar(&includeUnchanged, "include-unchanged", false, "Also report unchanged entries")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
