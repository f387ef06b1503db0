package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func init() {
	watchCmd.Flags().DurationVar(&watchFrequency, "frequency", 0, "Production interval (0 uses the agent default)")
	watchCmd.Flags().StringVar(&watchFilter, "filter", "", "Name filter for objects/<kind> topics")
	rootCmd.AddCommand(watchCmd)
}

var (
	watchFrequency time.Duration
	watchFilter    string
)

var watchCmd = &cobra.Command{
	Use:   "watch <topic>",
	Short: "Stream a topic until interrupted",
	Long: `Subscribe to a topic and print every notice as it arrives.

Topics:
  stats                                       instance summary
  objects/<kind>                              object listing
  distributed_object_stats/<kind>/<name>      per-member statistics`,
	Example: `  gridmon watch distributed_object_stats/queue/orders --frequency 2s`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := url.Values{}
	if watchFrequency > 0 {
		q.Set("frequency", watchFrequency.String())
	}
	if watchFilter != "" {
		q.Set("filter", watchFilter)
	}

	c := newClient(agentAddr)
	u := c.base + c.instancePath(instance, "topics") + "/" + args[0]
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streams stay open indefinitely, so no client timeout.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "is the agent running? (gridmon serve)")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeResponse(resp, nil)
	}

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", args[0])
	return readEvents(ctx, resp, func(event, data string) {
		fmt.Printf("%s %-7s %s\n", time.Now().Format("15:04:05"), event, data)
	})
}

// readEvents parses a server-sent event stream and calls fn once per event.
func readEvents(ctx context.Context, resp *http.Response, fn func(event, data string)) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(event, strings.Join(data, "\n"))
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
