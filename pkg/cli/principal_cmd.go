package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// principalPayload mirrors the API principal shape.
type principalPayload struct {
	ID           string  `json:"id"`
	PrincipalID  string  `json:"principal_id"`
	SourceSystem string  `json:"source_system"`
	Environment  string  `json:"environment"`
	Type         string  `json:"type"`
	DisplayName  string  `json:"display_name"`
	Email        string  `json:"email"`
	JiraTicket   *string `json:"jira_ticket"`
	Status       string  `json:"status"`
	MissedRuns   int     `json:"missed_runs"`
	LastAccessAt *string `json:"last_access_at"`
}

func newPrincipalCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principal",
		Short: "Inspect and annotate registry principals",
	}

	cmd.AddCommand(newPrincipalListCmd(client))
	cmd.AddCommand(newPrincipalGetCmd(client))
	cmd.AddCommand(newPrincipalSetTicketCmd(client))

	return cmd
}

func newPrincipalListCmd(client *Client) *cobra.Command {
	var (
		maxResults int
		pageToken  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry principals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if maxResults > 0 {
				q.Set("max_results", strconv.Itoa(maxResults))
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}

			var resp struct {
				Data          []principalPayload `json:"data"`
				NextPageToken string             `json:"next_page_token"`
			}
			if err := client.DoJSON(http.MethodGet, "/principals", q, nil, &resp); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, resp)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRINCIPAL\tSOURCE\tENV\tTYPE\tSTATUS\tMISSED\tTICKET")
			for _, p := range resp.Data {
				ticket := ""
				if p.JiraTicket != nil {
					ticket = *p.JiraTicket
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					p.ID, p.PrincipalID, p.SourceSystem, p.Environment,
					p.Type, p.Status, p.MissedRuns, ticket)
			}
			_ = w.Flush()
			if resp.NextPageToken != "" {
				fmt.Fprintf(os.Stdout, "\nNext page: --page-token %s\n", resp.NextPageToken)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Maximum number of results")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Page token from a previous listing")

	return cmd
}

func newPrincipalGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <principal-ref>",
		Short: "Show one registry principal by its stable reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p principalPayload
			if err := client.DoJSON(http.MethodGet, "/principals/"+args[0], nil, nil, &p); err != nil {
				return err
			}
			return PrintJSON(os.Stdout, p)
		},
	}
}

func newPrincipalSetTicketCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "set-ticket <principal-ref> <ticket>",
		Short: "Record a workflow ticket on a principal",
		Example: `  ledgerctl principal set-ticket 0192a-... OPS-1234`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"ticket": args[1]}
			var p principalPayload
			if err := client.DoJSON(http.MethodPut, "/principals/"+args[0]+"/ticket", nil, body, &p); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, p)
			}
			fmt.Fprintf(os.Stdout, "Ticket %s recorded on %s\n", args[1], p.PrincipalID)
			return nil
		},
	}
}
