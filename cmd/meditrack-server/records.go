package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meditrack/meditrack/internal/client"
	"github.com/meditrack/meditrack/internal/domain/patient"
)

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Read patient records from a running server",
	}
	cmd.PersistentFlags().String("server", "http://localhost:8000", "Server base URL")
	cmd.PersistentFlags().String("username", "doctor", "Doctor username")
	cmd.PersistentFlags().String("password", "", "Doctor password (default $MEDITRACK_PASSWORD)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print a summary table of every record, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			return withSession(cmd, func(ctx context.Context, c *client.Client) error {
				records, err := c.AllPatients(ctx, 100, refresh)
				if err != nil {
					return err
				}
				return printSummaries(cmd.OutOrStdout(), records)
			})
		},
	}
	listCmd.Flags().Bool("refresh", false, "Reload from the storage backend first")
	cmd.AddCommand(listCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Download the XLSX export",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return withSession(cmd, func(ctx context.Context, c *client.Client) error {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				n, err := c.ExportPatients(ctx, f)
				if closeErr := f.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					_ = os.Remove(out)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", n, out)
				return nil
			})
		},
	}
	exportCmd.Flags().String("out", "patients.xlsx", "Output file")
	cmd.AddCommand(exportCmd)

	return cmd
}

// withSession logs in with the command's flags, runs fn, then logs out.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	server, _ := cmd.Flags().GetString("server")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("MEDITRACK_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("--password or MEDITRACK_PASSWORD is required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(zerolog.WarnLevel)
	ctx := cmd.Context()
	c := client.New(server, logger)
	if err := c.Login(ctx, username, password); err != nil {
		return err
	}
	defer func() {
		if err := c.Logout(ctx); err != nil {
			logger.Warn().Err(err).Msg("logout failed")
		}
	}()
	return fn(ctx, c)
}

func printSummaries(w io.Writer, records []*patient.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDOB\tSEX\tMOBILE\tREASON\tSUBMITTED")
	for _, r := range records {
		s := r.Summarize()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.FullName, s.DateOfBirth, s.Sex, s.MobileNo, truncate(s.ReasonForVisit, 40), s.SubmissionDate)
	}
	fmt.Fprintf(tw, "\n%d record(s)\n", len(records))
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
