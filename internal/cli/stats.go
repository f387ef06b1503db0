package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	statsCmd.Flags().DurationVar(&statsTimeout, "timeout", 0, "Per-member wait (0 uses the agent default)")
	rootCmd.AddCommand(statsCmd)
}

var statsTimeout time.Duration

var statsCmd = &cobra.Command{
	Use:   "stats <kind> <name>",
	Short: "Sample per-member statistics of an executor, queue or topic",
	Example: `  gridmon stats queue orders
  gridmon stats executor jobs --timeout 2s`,
	Args: cobra.ExactArgs(2),
	RunE: runStats,
}

// statsProduct mirrors the agent's product with member values left as
// generic JSON objects.
type statsProduct struct {
	SampleTime time.Time                 `json:"sample_time"`
	Instance   string                    `json:"instance"`
	Kind       string                    `json:"kind"`
	Object     string                    `json:"object"`
	Dispatched int                       `json:"dispatched"`
	Members    map[string]map[string]any `json:"members"`
	Aggregated map[string]any            `json:"aggregated"`
}

func runStats(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if statsTimeout > 0 {
		q.Set("timeout", statsTimeout.String())
	}

	var p statsProduct
	c := newClient(agentAddr)
	if err := c.get(c.instancePath(instance, "stats", args[0], args[1]), q, &p); err != nil {
		return err
	}

	fmt.Printf("%s %s on %s, %d of %d members answered, sampled %s\n\n",
		p.Kind, p.Object, p.Instance, len(p.Members), p.Dispatched, humanize.Time(p.SampleTime))

	members := make([]string, 0, len(p.Members))
	for addr := range p.Members {
		members = append(members, addr)
	}
	sort.Strings(members)

	fields := make([]string, 0, len(p.Aggregated))
	for f := range p.Aggregated {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "FIELD\t%s\tTOTAL\t\n", strings.Join(members, "\t"))
	for _, f := range fields {
		row := make([]string, 0, len(members)+2)
		row = append(row, f)
		for _, addr := range members {
			row = append(row, formatStat(f, p.Members[addr][f]))
		}
		row = append(row, formatStat(f, p.Aggregated[f]))
		fmt.Fprintln(w, strings.Join(row, "\t")+"\t")
	}
	return w.Flush()
}

// formatStat renders one statistics field. Durations travel as nanosecond
// counts and times as RFC 3339 strings.
func formatStat(field string, v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case float64:
		if isDurationField(field) {
			return time.Duration(int64(t)).Round(time.Microsecond).String()
		}
		return humanize.Comma(int64(t))
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			if ts.IsZero() {
				return "-"
			}
			return humanize.Time(ts)
		}
		return t
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

func isDurationField(field string) bool {
	return strings.HasSuffix(field, "_age") ||
		strings.HasSuffix(field, "_latency") ||
		field == "total_execution_time"
}
