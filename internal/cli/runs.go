package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"finextract/internal/domain"
	"finextract/internal/export"
	"finextract/internal/repository/sqlstore"
	"finextract/internal/service"
)

func newRunsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted extraction runs",
	}
	cmd.AddCommand(newRunsListCommand(e), newRunsGetCommand(e))
	return cmd
}

func newRunsListCommand(e *env) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withService(func(svc service.ExtractionService) error {
				runs, total, err := svc.ListRuns(cmd.Context(), offset, limit)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs, total, offset)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}

func newRunsGetCommand(e *env) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "get RUN_ID",
		Short: "Print the stored result of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: invalid run id %q", domain.ErrInvalidRequest, args[0])
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return e.withService(func(svc service.ExtractionService) error {
				rendered, err := svc.Export(cmd.Context(), id, f)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, func(w io.Writer) error {
					_, err := w.Write(rendered.Data)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to stdout)")
	return cmd
}

// withService opens the run store for the duration of fn.
func (e *env) withService(fn func(service.ExtractionService) error) error {
	db, err := sqlstore.NewDB(&e.cfg.DB)
	if err != nil {
		return err
	}
	defer func(db *sqlx.DB) { _ = db.Close() }(db)

	if err := sqlstore.MigrateUp(db); err != nil {
		return err
	}
	return fn(service.NewExtractionService(service.ExtractionDeps{
		Runs:   sqlstore.NewRunRepo(db),
		Logger: e.logger,
	}))
}

func printRuns(w io.Writer, runs []domain.ExtractionRun, total, offset int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOCUMENT\tSTATUS\tRECORDS\tCONFLICTS\tTOTAL\tACCURACY\tCREATED")
	for i := range runs {
		r := &runs[i]
		accuracy := "n/a"
		if r.Accuracy != nil {
			accuracy = fmt.Sprintf("%.2f%%", *r.Accuracy)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\t%s\n",
			r.ID, r.DocumentName, r.Status, r.RecordCount, r.ConflictCount,
			r.TotalValue, accuracy, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "showing %d-%d of %d\n", min(offset+1, total), offset+len(runs), total)
	return err
}
