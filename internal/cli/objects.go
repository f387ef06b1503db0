package cli

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gridmon/gridmon/internal/stats"
)

func init() {
	objectsCmd.Flags().StringVar(&objectsFilter, "filter", "", "Regular expression matched against object names")
	objectsCmd.Flags().IntVar(&objectsPage, "page", 1, "Page number, starting at 1")
	objectsCmd.Flags().IntVar(&objectsPageSize, "page-size", 0, "Objects per page (0 for all)")
	rootCmd.AddCommand(objectsCmd)
}

var (
	objectsFilter   string
	objectsPage     int
	objectsPageSize int
)

var objectsCmd = &cobra.Command{
	Use:   "objects <kind>",
	Short: "List distributed objects of one kind",
	Example: `  gridmon objects queue
  gridmon objects map --filter '^user' --page-size 20`,
	Args: cobra.ExactArgs(1),
	RunE: runObjects,
}

func runObjects(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if objectsFilter != "" {
		q.Set("filter", objectsFilter)
	}
	q.Set("page", strconv.Itoa(objectsPage))
	if objectsPageSize > 0 {
		q.Set("page_size", strconv.Itoa(objectsPageSize))
	}

	var listing stats.ObjectPage
	c := newClient(agentAddr)
	if err := c.get(c.instancePath(instance, "objects", args[0]), q, &listing); err != nil {
		return err
	}

	if len(listing.Objects) == 0 {
		fmt.Printf("No %s objects.\n", listing.Kind)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARTITION KEY")
	for _, o := range listing.Objects {
		fmt.Fprintf(w, "%s\t%s\n", o.Name, o.PartitionKey)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if listing.PageSize > 0 && listing.Total > listing.PageSize {
		fmt.Printf("\nPage %d, %d of %d objects\n", listing.Page, len(listing.Objects), listing.Total)
	}
	return nil
}
