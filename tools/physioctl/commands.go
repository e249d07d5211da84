package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/physiobook/physiobook/libs/grpcx"
	"github.com/spf13/cobra"
)

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print an export line for PHYSIOCTL_TOKEN",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			tok, err := a.api.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), tok)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export PHYSIOCTL_TOKEN=%s\n", tok.AccessToken)
			fmt.Fprintf(cmd.ErrOrStderr(), "signed in as %s (%s), expires %s\n",
				tok.Profile.FullName, tok.Profile.Role, tok.ExpiresAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func codesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "codes", Short: "Manage access codes"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List access codes, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			codes, err := a.api.ListCodes(ctx, status)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), codes)
			}
			rows := make([][]string, 0, len(codes))
			for _, c := range codes {
				rows = append(rows, []string{c.ID, c.Code, usedLabel(c.IsUsed), c.CreatedAt.Format("2006-01-02 15:04")})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "CODE", "STATUS", "CREATED"}, rows)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter: used or unused")

	generate := &cobra.Command{
		Use:   "generate N",
		Short: "Generate N unique codes (1-100)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 || n > 100 {
				return fmt.Errorf("N must be between 1 and 100")
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			codes, err := a.api.GenerateCodes(ctx, n)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), codes)
			}
			for _, c := range codes {
				fmt.Fprintln(cmd.OutOrStdout(), c.Code)
			}
			return nil
		},
	}

	cmd.AddCommand(list, generate, deleteCmd(a, "code", a.deleteCode))
	return cmd
}

func slotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "slots", Short: "Manage appointment slots"}

	var from, to string
	list := &cobra.Command{
		Use:   "list",
		Short: "List slots grouped by date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			days, err := a.api.ListSlots(ctx, from, to)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), days)
			}
			var rows [][]string
			for _, d := range days {
				for _, s := range d.Slots {
					rows = append(rows, []string{s.ID, d.Date, fmt.Sprintf("%02d:00", s.Hour), bookedLabel(s.IsBooked)})
				}
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "DATE", "HOUR", "STATUS"}, rows)
		},
	}
	list.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD), default today")
	list.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD)")

	var date, hours string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create slots for one date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hs, err := parseHours(hours)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			slots, err := a.api.CreateSlots(ctx, date, hs)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), slots)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d slot(s) on %s\n", len(slots), date)
			return nil
		},
	}
	create.Flags().StringVar(&date, "date", "", "slot date (YYYY-MM-DD)")
	create.Flags().StringVar(&hours, "hours", "", "comma separated hours, e.g. 8,9,10")
	_ = create.MarkFlagRequired("date")
	_ = create.MarkFlagRequired("hours")

	cmd.AddCommand(list, create, deleteCmd(a, "slot", a.deleteSlot))
	return cmd
}

func departmentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "departments", Short: "Manage departments"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			depts, err := a.api.ListDepartments(ctx)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), depts)
			}
			rows := make([][]string, 0, len(depts))
			for _, d := range depts {
				active := "inactive"
				if d.IsActive {
					active = "active"
				}
				rows = append(rows, []string{d.ID, d.Name, active})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "STATUS"}, rows)
		},
	}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an active department",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			d, err := a.api.CreateDepartment(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created department %s (%s)\n", d.Name, d.ID)
			return nil
		},
	}

	cmd.AddCommand(list, create, deleteCmd(a, "department", a.deleteDepartment))
	return cmd
}

func registrationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "registrations", Short: "Inspect registrations"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List registrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			regs, err := a.api.ListRegistrations(ctx, status)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), regs)
			}
			rows := make([][]string, 0, len(regs))
			for _, r := range regs {
				rows = append(rows, []string{
					r.ID, r.SlotDate, fmt.Sprintf("%02d:00", r.SlotHour), r.FullName, r.DepartmentName, r.Status,
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "DATE", "HOUR", "PATIENT", "DEPARTMENT", "STATUS"}, rows)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter: pending or completed")

	cmd.AddCommand(list)
	return cmd
}

func incidentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "incidents", Short: "Review booking and reconciliation incidents"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List incidents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			incs, err := a.api.Incidents(ctx, status)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), incs)
			}
			rows := make([][]string, 0, len(incs))
			for _, i := range incs {
				rows = append(rows, []string{i.ID, i.Kind, i.ResourceType + ":" + i.ResourceID, i.Status, i.Detail})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "KIND", "RESOURCE", "STATUS", "DETAIL"}, rows)
		},
	}
	list.Flags().StringVar(&status, "status", "open", "filter: open, resolved or empty for all")

	resolve := &cobra.Command{
		Use:   "resolve ID",
		Short: "Mark an open incident resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			inc, err := a.api.ResolveIncident(ctx, args[0])
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), inc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", inc.ID)
			return nil
		},
	}

	cmd.AddCommand(list, resolve)
	return cmd
}

func healthCmd(a *app) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "health ADDR",
		Short: "Run a gRPC health check against a service (host:port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			status, err := grpcx.CheckHealth(ctx, args[0], service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			if status != "SERVING" {
				return fmt.Errorf("%s is %s", args[0], status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "service name to check, empty for the whole server")
	return cmd
}

func deleteCmd(a *app, noun string, del func(cmd *cobra.Command, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a " + noun,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := del(cmd, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", noun, args[0])
			return nil
		},
	}
}

func (a *app) deleteCode(cmd *cobra.Command, id string) error {
	ctx, cancel := a.ctx(cmd)
	defer cancel()
	return a.api.DeleteCode(ctx, id)
}

func (a *app) deleteSlot(cmd *cobra.Command, id string) error {
	ctx, cancel := a.ctx(cmd)
	defer cancel()
	return a.api.DeleteSlot(ctx, id)
}

func (a *app) deleteDepartment(cmd *cobra.Command, id string) error {
	ctx, cancel := a.ctx(cmd)
	defer cancel()
	err := a.api.DeleteDepartment(ctx, id)
	if err != nil && isConflict(err) {
		return fmt.Errorf("department %s still has registrations; deactivate it instead", id)
	}
	return err
}

func parseHours(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := strconv.Atoi(part)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid hour %q", part)
		}
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one hour is required")
	}
	return out, nil
}

func usedLabel(used bool) string {
	if used {
		return "used"
	}
	return "unused"
}

func bookedLabel(booked bool) string {
	if booked {
		return "booked"
	}
	return "open"
}
