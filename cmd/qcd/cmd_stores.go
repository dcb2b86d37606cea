package main

import (
	"github.com/spf13/cobra"

	"qcflow/store"
)

var storesCmd = &cobra.Command{
	Use:   "stores [code]",
	Short: "List active stores, or show one by code",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStores,
}

func runStores(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := store.NewService(store.NewRepository(pool))

	if len(args) == 1 {
		s, err := svc.GetByCode(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(s)
	}

	stores, err := svc.List(ctx, 100)
	if err != nil {
		return err
	}
	return printJSON(stores)
}
