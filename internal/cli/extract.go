package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finextract/internal/domain"
	"finextract/internal/export"
	"finextract/internal/normalize"
	"finextract/internal/pipeline"
)

type extractOptions struct {
	file          string
	name          string
	expectedTotal float64
	secondary     string
	overrides     map[string]string
	format        string
	out           string
}

func newExtractCommand(e *env) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run the extraction pipeline over a statement text file",
		Long: "Run the extraction pipeline locally over a statement text file and print the\n" +
			"reconciled, validated result. Nothing is persisted.",
		Example: "  finex extract --file stmt.txt --expected-total 19464431 --format csv --out positions.csv",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, e, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "statement text file, - for stdin")
	f.StringVar(&opts.name, "name", "", "document name (defaults to the file name)")
	f.Float64Var(&opts.expectedTotal, "expected-total", 0, "expected portfolio total for the accuracy check")
	f.StringVar(&opts.secondary, "secondary", "", "JSON file with secondary source records")
	f.StringToStringVar(&opts.overrides, "override", nil, "manual value for an identifier, ISIN=VALUE")
	f.StringVar(&opts.format, "format", "json", "output format: json, csv or xlsx")
	f.StringVarP(&opts.out, "out", "o", "", "output file (defaults to stdout)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runExtract(cmd *cobra.Command, e *env, opts *extractOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	doc, err := buildDocument(cmd.InOrStdin(), opts)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("expected-total") {
		doc.ExpectedTotal = &opts.expectedTotal
	}

	p, err := pipeline.FromConfig(e.cfg, e.logger)
	if err != nil {
		return err
	}
	res, err := p.Process(cmd.Context(), doc)
	if err != nil {
		return err
	}

	e.logger.Info("extraction finished",
		zap.String("run_id", res.RunID.String()),
		zap.Int("records", len(res.Reconciliation.Records)),
		zap.Int("conflicts", len(res.Reconciliation.Conflicts)),
		zap.String("status", string(res.Validation.Status)),
	)

	return writeOutput(cmd.OutOrStdout(), opts.out, func(w io.Writer) error {
		return export.Write(w, format, res)
	})
}

func buildDocument(stdin io.Reader, opts *extractOptions) (*domain.Document, error) {
	var (
		text []byte
		err  error
	)
	if opts.file == "-" {
		text, err = io.ReadAll(stdin)
	} else {
		text, err = os.ReadFile(opts.file)
	}
	if err != nil {
		return nil, fmt.Errorf("reading statement: %w", err)
	}

	doc := &domain.Document{Name: opts.name, Text: string(text)}
	if doc.Name == "" && opts.file != "-" {
		doc.Name = filepath.Base(opts.file)
	}

	if opts.secondary != "" {
		doc.SecondarySources, err = loadSecondary(opts.secondary)
		if err != nil {
			return nil, err
		}
	}

	if len(opts.overrides) > 0 {
		doc.Overrides = make(map[string]float64, len(opts.overrides))
		for id, raw := range opts.overrides {
			v, err := normalize.ParseAmount(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: override %s=%s: %v", domain.ErrInvalidRequest, id, raw, err)
			}
			doc.Overrides[strings.ToUpper(strings.TrimSpace(id))] = v.InexactFloat64()
		}
	}
	return doc, nil
}

// loadSecondary reads a JSON array of {source, records} objects.
func loadSecondary(path string) ([]domain.SourceRecords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secondary records: %w", err)
	}
	var sets []domain.SourceRecords
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("%w: secondary records in %s: %v", domain.ErrMalformedInput, path, err)
	}
	return sets, nil
}
