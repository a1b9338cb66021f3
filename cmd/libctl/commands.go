package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"unilib/internal/circulation"
)

func newLoginCmd(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as a manager and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			token, err := opts.client().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := opts.saveToken(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "manager email")
	return cmd
}

func newPresenceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "presence <matricule>",
		Short: "Record a student's entry into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.client().RecordPresence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s entered at %s\n", p.Matricule, p.Heure)
			return nil
		},
	}
}

func newLoansCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Create, return and list loans",
	}
	cmd.AddCommand(newLoanCreateCmd(opts), newLoanReturnCmd(opts), newLoanListCmd(opts))
	return cmd
}

func newLoanCreateCmd(opts *options) *cobra.Command {
	var in circulation.CreateLoanInput
	var remarks string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Lend a book to a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remarks != "" {
				in.Remarques = &remarks
			}
			loan, err := opts.client().CreateLoan(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), loan)
		},
	}
	cmd.Flags().StringVar(&in.Matricule, "matricule", "", "student matricule")
	cmd.Flags().StringVar(&in.Livre, "book", "", "book id, ISBN or title")
	cmd.Flags().StringVar(&in.DateRetourPrevue, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&remarks, "remarks", "", "optional remarks")
	for _, f := range []string{"matricule", "book", "due"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newLoanReturnCmd(opts *options) *cobra.Command {
	var date, remarks string
	cmd := &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Mark a loan as returned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid loan id %q", args[0])
			}
			in := circulation.ReturnLoanInput{DateRetourEffective: date}
			if remarks != "" {
				in.Remarques = &remarks
			}
			msg, err := opts.client().ReturnLoan(cmd.Context(), id, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "return date (YYYY-MM-DD), today when omitted")
	cmd.Flags().StringVar(&remarks, "remarks", "", "optional remarks")
	return cmd
}

func newLoanListCmd(opts *options) *cobra.Command {
	var filter circulation.LoanFilter
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loans with optional filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().ListLoans(cmd.Context(), filter, page, perPage)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLIVRE\tMATRICULE\tNOM\tEMPRUNT\tRETOUR\tSTATUT")
			for _, l := range res.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
					l.ID, l.Livre, l.Matricule, l.Prenom, l.Nom, l.DateEmprunt, l.DateRetour, l.Statut)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d loans\n", res.Page, res.TotalPages, res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Status, "status", "", "En cours, En retard or Retourné")
	cmd.Flags().StringVar(&filter.Student, "student", "", "matricule, nom or prenom")
	cmd.Flags().StringVar(&filter.Day, "date", "", "borrow day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "page size, server default when 0")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
