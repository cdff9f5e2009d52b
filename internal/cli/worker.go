package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/config"
	"github.com/matzehuels/chainsat/pkg/queue"
)

// workerCommand creates the "worker" command consuming the package queue.
func (c *CLI) workerCommand() *cobra.Command {
	var (
		concurrency int
		batch       int
		block       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume package messages from the queue",
		Long: `Consume package messages from the Redis stream. Each worker reads
batches through the consumer group, resolves versions and requirements, and
acknowledges or dead-letters every message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if a.Config.Queue.Backend == config.BackendMemory {
				printWarning("queue backend is memory; this worker only sees its own messages")
			}
			printInfo("Consuming %s as %s (%d workers)", StyleHighlight.Render(a.Config.Queue.Stream), a.Config.Queue.Group, concurrency)

			var wg sync.WaitGroup
			for i := 0; i < concurrency; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = a.Builder.Run(ctx, batch, block)
				}()
			}
			wg.Wait()
			return ctx.Err()
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 4, "concurrent consumers")
	cmd.Flags().IntVar(&batch, "batch", 10, "messages read per batch")
	cmd.Flags().DurationVar(&block, "block", 2*time.Second, "how long a read blocks for new messages")

	cmd.AddCommand(c.workerDLQCommand())
	return cmd
}

// workerDLQCommand lists dead-lettered messages.
func (c *CLI) workerDLQCommand() *cobra.Command {
	var (
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered package messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			letters, err := a.Queue.DeadLetters(cmd.Context(), count)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(letters)
			}
			if len(letters) == 0 {
				printInfo("No dead letters")
				return nil
			}
			for _, l := range letters {
				printDeadLetter(l)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 50, "maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printDeadLetter(l queue.DeadLetter) {
	subject := l.Raw
	if msg, err := queue.Decode(l.Raw); err == nil {
		subject = fmt.Sprintf("%s/%s", msg.Ecosystem, msg.Package)
	}
	printError("%s %s", StyleValue.Render(subject), StyleDim.Render(l.At.Format(time.RFC3339)))
	printDetail("%s", l.Error)
}

// writeJSON prints v as indented JSON on stdout.
func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
