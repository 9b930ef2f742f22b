package main

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/tx"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a small seeded workload against an in-memory store",
	RunE:  runDemo,
}

var demoManifest string

func init() {
	demoCmd.Flags().StringVar(&demoManifest, "manifest", "", "Define buckets from a YAML manifest instead of the built-in schema")
}

func runDemo(cmd *cobra.Command, args []string) error {
	s := store.New(store.Options{Name: "demo"})
	defer s.Stop()

	if demoManifest != "" {
		if err := s.ApplyManifestFile(demoManifest); err != nil {
			return err
		}
	} else {
		if err := defineDemoBuckets(s); err != nil {
			return err
		}
	}

	users, err := s.Bucket("users")
	if err != nil {
		return err
	}

	err = s.DefineQuery("orderTotal", func(ctx *query.Context, params any) (any, error) {
		view, err := ctx.Bucket("orders")
		if err != nil {
			return nil, err
		}
		return view.Sum("amount", nil)
	})
	if err != nil {
		return err
	}

	cancel, err := s.SubscribeQuery(context.Background(), "orderTotal", nil, func(result any) {
		fmt.Printf("order total changed: %v\n", result)
	})
	if err != nil {
		return err
	}
	defer cancel()

	alice, err := users.Insert(types.Record{"email": "alice@example.com", "name": "Alice"})
	if err != nil {
		return err
	}

	err = s.Transaction(func(txc *tx.Context) error {
		ordersTx, err := txc.Bucket("orders")
		if err != nil {
			return err
		}
		for _, amount := range []float64{19.99, 5.25, 42.00} {
			if _, err := ordersTx.Insert(types.Record{
				"customer": alice["id"],
				"amount":   amount,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Settle()

	orders, err := s.Bucket("orders")
	if err != nil {
		return err
	}
	total, err := orders.Sum("amount", nil)
	if err != nil {
		return err
	}
	fmt.Printf("final order total: %.2f\n", total)

	stats := s.Stats()
	fmt.Printf("store %s: %d buckets, %d records\n",
		stats.Name, stats.Buckets.Count, stats.Records.Total)
	for _, name := range stats.Buckets.Names {
		fmt.Printf("  %-10s %d records, %d indexed fields\n",
			name, stats.Records.PerBucket[name], stats.Indexes.PerBucket[name])
	}
	return nil
}

func defineDemoBuckets(s *store.Store) error {
	if err := s.DefineBucket("users", types.BucketDefinition{
		Key: "id",
		Schema: types.Schema{
			"id":    {Type: types.FieldTypeString, Generated: types.GeneratedUUID},
			"email": {Type: types.FieldTypeString, Required: true, Unique: true, Format: types.FormatEmail},
			"name":  {Type: types.FieldTypeString, Required: true},
		},
	}); err != nil {
		return err
	}
	return s.DefineBucket("orders", types.BucketDefinition{
		Key: "id",
		Schema: types.Schema{
			"id":       {Type: types.FieldTypeNumber, Generated: types.GeneratedAutoincrement},
			"customer": {Type: types.FieldTypeString, Reference: "users"},
			"amount":   {Type: types.FieldTypeNumber, Min: floatPtr(0)},
		},
		Indexes: []string{"customer"},
	})
}

func floatPtr(f float64) *float64 {
	return &f
}
