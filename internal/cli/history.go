package cli

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gridmon/gridmon/internal/infra/sqlite"
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of samples to show")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <kind> <name>",
	Short: "Show recorded statistics samples, newest first",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("instance", instance)
	q.Set("limit", strconv.Itoa(historyLimit))

	var resp struct {
		Products []sqlite.ProductRecord `json:"products"`
	}
	c := newClient(agentAddr)
	if err := c.get("/api/history/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), q, &resp); err != nil {
		return err
	}

	if len(resp.Products) == 0 {
		fmt.Println("No samples recorded. Subscribe to a statistics topic to start recording.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSAMPLED\tANSWERED\tSIZE")
	for _, p := range resp.Products {
		fmt.Fprintf(w, "%d\t%s\t%d/%d\t%s\n",
			p.ID, humanize.Time(p.SampledAt), p.Answered, p.Dispatched, humanize.Bytes(uint64(len(p.Payload))))
	}
	return w.Flush()
}
