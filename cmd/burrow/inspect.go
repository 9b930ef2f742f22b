package main

import (
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/persist"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <db-file>",
	Short: "Dump the snapshot envelopes stored in a Burrow BoltDB file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var inspectVerbose bool

func init() {
	inspectCmd.Flags().BoolVarP(&inspectVerbose, "verbose", "v", false, "Print record keys per bucket")
}

func runInspect(cmd *cobra.Command, args []string) error {
	adapter, err := persist.NewBoltAdapter(args[0])
	if err != nil {
		return err
	}
	defer adapter.Close()

	keys, err := adapter.Keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}

	for _, key := range keys {
		envelope, err := adapter.Load(key)
		if err != nil {
			return fmt.Errorf("load %q: %w", key, err)
		}
		persistedAt := time.UnixMilli(envelope.Metadata.PersistedAt).Format(time.RFC3339)
		fmt.Printf("%s\n", key)
		fmt.Printf("  records:   %d\n", len(envelope.State.Records))
		fmt.Printf("  counter:   %d\n", envelope.State.AutoincrementCounter)
		fmt.Printf("  persisted: %s (by %s, schema v%d)\n",
			persistedAt, envelope.Metadata.ServerID, envelope.Metadata.SchemaVersion)
		if inspectVerbose {
			for _, pair := range envelope.State.Records {
				fmt.Printf("    %s (v%d)\n", pair.Key, pair.Record.Version())
			}
		}
	}
	return nil
}
