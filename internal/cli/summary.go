package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/stats"
)

func init() {
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(membersCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show member and object counts",
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	var summary stats.Summary
	c := newClient(agentAddr)
	if err := c.get(c.instancePath(instance, "summary"), nil, &summary); err != nil {
		return err
	}

	fmt.Printf("Instance %s, %d members, sampled %s\n\n",
		summary.Instance, summary.MembersCount, humanize.Time(summary.SampleTime))

	kinds := make([]domain.ObjectKind, 0, len(summary.Counts))
	for k := range summary.Counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tCOUNT")
	for _, k := range kinds {
		fmt.Fprintf(w, "%s\t%s\n", k, humanize.Comma(int64(summary.Counts[k])))
	}
	return w.Flush()
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List grid members",
	RunE:  runMembers,
}

func runMembers(cmd *cobra.Command, args []string) error {
	var resp struct {
		Members []domain.Member `json:"members"`
	}
	c := newClient(agentAddr)
	if err := c.get(c.instancePath(instance, "members"), nil, &resp); err != nil {
		return err
	}

	if len(resp.Members) == 0 {
		fmt.Println("No members.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tUUID\tSTATE")
	for _, m := range resp.Members {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Address, m.UUID, m.State)
	}
	return w.Flush()
}
