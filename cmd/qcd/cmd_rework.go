package main

import (
	"strings"

	"github.com/spf13/cobra"

	"qcflow/rework"
)

var reworkCmd = &cobra.Command{
	Use:   "rework [ticket-id] [status]",
	Short: "List rework tickets, or advance one to a new status",
	Long: `With no arguments, lists open tickets. With a ticket id and a status
(IN_PROGRESS, DONE or CLOSED) advances the ticket. Tickets only move
forward; a closed ticket stays closed.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runRework,
}

func runRework(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := rework.NewService(rework.NewRepository(pool))

	switch len(args) {
	case 2:
		ticket, err := svc.Advance(ctx, args[0], rework.Status(strings.ToUpper(args[1])))
		if err != nil {
			return err
		}
		return printJSON(ticket)
	case 1:
		ticket, err := svc.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(ticket)
	default:
		tickets, err := svc.List(ctx, "", rework.StatusOpen)
		if err != nil {
			return err
		}
		return printJSON(tickets)
	}
}
