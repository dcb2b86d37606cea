package main

import (
	"github.com/spf13/cobra"

	"qcflow/inspection"
	"qcflow/rework"
	"qcflow/unit"
)

var unitCmd = &cobra.Command{
	Use:   "unit [unit-id]",
	Short: "Show a unit with its inspection history and rework tickets",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnit,
}

func runUnit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ref := args[0]

	u, err := unit.NewService(unit.NewRepository(pool)).GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	history, err := inspection.NewRepository(pool).ListForUnit(ctx, ref)
	if err != nil {
		return err
	}
	tickets, err := rework.NewService(rework.NewRepository(pool)).List(ctx, ref, "")
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"unit":        u,
		"inspections": history,
		"tickets":     tickets,
	})
}
