package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	queryCmd.Flags().StringVar(&queryPartitionKey, "partition-key", "", "Partition key when it differs from the name")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print the raw JSON response")
	rootCmd.AddCommand(queryCmd)
}

var (
	queryPartitionKey string
	queryJSON         bool
)

var queryCmd = &cobra.Command{
	Use:   "query <kind> <name> <predicate>",
	Short: "Run a predicate over a list, set, queue or map",
	Long: `Run a predicate next to the data and print matching elements.

For list, set and queue the element is bound as "item". For map the
predicate sees "key", "value" and "entry" and matches return the values.`,
	Example: `  gridmon query set numbers 'item % 2 == 0'
  gridmon query map users 'value.age > 40'`,
	Args: cobra.ExactArgs(3),
	RunE: runQuery,
}

type queryResult struct {
	Kind       string            `json:"kind"`
	Collection string            `json:"collection"`
	Predicate  string            `json:"predicate"`
	Count      int               `json:"count"`
	Results    []json.RawMessage `json:"results"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	body := map[string]string{"predicate": args[2]}
	if queryPartitionKey != "" {
		body["partition_key"] = queryPartitionKey
	}

	var res queryResult
	c := newClient(agentAddr)
	if err := c.post(c.instancePath(instance, "query", args[0], args[1]), body, &res); err != nil {
		return err
	}

	if queryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	for _, r := range res.Results {
		fmt.Println(string(r))
	}
	fmt.Printf("\n%s matches in %s %s\n", humanize.Comma(int64(res.Count)), res.Kind, res.Collection)
	return nil
}
