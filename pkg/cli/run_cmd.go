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

// runPayload mirrors the API run shape.
type runPayload struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Partial       bool     `json:"partial"`
	TriggerType   string   `json:"trigger_type"`
	TriggeredBy   string   `json:"triggered_by"`
	Description   string   `json:"description"`
	Environment   string   `json:"environment"`
	FailedSources []string `json:"failed_sources"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    *string  `json:"finished_at"`
}

func newRunCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger and inspect reconciliation runs",
	}

	cmd.AddCommand(newRunTriggerCmd(client))
	cmd.AddCommand(newRunListCmd(client))
	cmd.AddCommand(newRunGetCmd(client))
	cmd.AddCommand(newRunCancelCmd(client))
	cmd.AddCommand(newRunEntriesCmd(client))

	return cmd
}

func newRunTriggerCmd(client *Client) *cobra.Command {
	var (
		environment string
		description string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a reconciliation run and wait for it to close",
		Example: `  ledgerctl run trigger --environment PROD
  ledgerctl run trigger --environment STAGING --description "post-migration check"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]string{
				"environment": environment,
				"description": description,
			}
			var run runPayload
			if err := client.DoJSON(http.MethodPost, "/runs", nil, body, &run); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, run)
			}
			printRunTable(os.Stdout, []runPayload{run})
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment to reconcile (required)")
	cmd.Flags().StringVar(&description, "description", "", "Free-text run description")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}

func newRunListCmd(client *Client) *cobra.Command {
	var (
		maxResults int
		pageToken  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
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
				Data          []runPayload `json:"data"`
				NextPageToken string       `json:"next_page_token"`
			}
			if err := client.DoJSON(http.MethodGet, "/runs", q, nil, &resp); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, resp)
			}
			printRunTable(os.Stdout, resp.Data)
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

func newRunGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run runPayload
			if err := client.DoJSON(http.MethodGet, "/runs/"+args[0], nil, nil, &run); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, run)
			}
			printRunTable(os.Stdout, []runPayload{run})
			return nil
		},
	}
}

func newRunCancelCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel an in-flight run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			if err := client.DoJSON(http.MethodPost, "/runs/"+args[0]+"/cancel", nil, nil, &resp); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, resp)
			}
			fmt.Fprintf(os.Stdout, "Run %s is cancelling\n", args[0])
			return nil
		},
	}
}

func newRunEntriesCmd(client *Client) *cobra.Command {
	var (
		maxResults int
		pageToken  string
	)

	cmd := &cobra.Command{
		Use:   "entries <run-id>",
		Short: "List the matrix snapshot recorded by a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if maxResults > 0 {
				q.Set("max_results", strconv.Itoa(maxResults))
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}

			var resp struct {
				Data []struct {
					PrincipalID   string `json:"principal_id"`
					PrincipalType string `json:"principal_type"`
					SourceSystem  string `json:"source_system"`
					Environment   string `json:"environment"`
					Service       string `json:"service"`
					AccessLevel   string `json:"access_level"`
					Degraded      bool   `json:"degraded"`
				} `json:"data"`
				NextPageToken string `json:"next_page_token"`
			}
			if err := client.DoJSON(http.MethodGet, "/runs/"+args[0]+"/entries", q, nil, &resp); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, resp)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRINCIPAL\tTYPE\tSOURCE\tENV\tSERVICE\tACCESS\tDEGRADED")
			for _, e := range resp.Data {
				degraded := ""
				if e.Degraded {
					degraded = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.PrincipalID, e.PrincipalType, e.SourceSystem, e.Environment,
					e.Service, e.AccessLevel, degraded)
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

func printRunTable(w *os.File, runs []runPayload) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENV\tSTATUS\tTRIGGER\tBY\tSTARTED\tFAILED SOURCES")
	for _, r := range runs {
		failed := ""
		if len(r.FailedSources) > 0 {
			failed = fmt.Sprintf("%v", r.FailedSources)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Environment, r.Status, r.TriggerType, r.TriggeredBy, r.StartedAt, failed)
	}
	_ = tw.Flush()
}
