package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finextract/internal/cli"
	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/repository/sqlstore"
)

const statement = "ISIN: XS2993414619 Goldman Sachs notes, market value USD 97'700"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DB:         config.DBConfig{Driver: sqlstore.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "runs.db")},
		Log:        config.LogConfig{Level: "error", Format: "console"},
		Extraction: config.DefaultExtraction(),
	}
}

func execute(t *testing.T, cfg *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand(func() (*config.Config, error) { return cfg, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExtract_JSONToStdout(t *testing.T) {
	path := writeFile(t, "stmt.txt", statement)

	out, err := execute(t, testConfig(t), "", "extract", "--file", path, "--expected-total", "100000")
	require.NoError(t, err)

	var res domain.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "stmt.txt", res.DocumentName)
	require.Len(t, res.Reconciliation.Records, 1)
	assert.Equal(t, 97700.0, res.Reconciliation.Records[0].MarketValue)
	require.NotNil(t, res.Validation.AccuracyPercent)
	assert.InDelta(t, 97.7, *res.Validation.AccuracyPercent, 1e-9)
}

func TestExtract_Stdin(t *testing.T) {
	out, err := execute(t, testConfig(t), statement, "extract", "--file", "-", "--name", "piped")
	require.NoError(t, err)

	var res domain.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "piped", res.DocumentName)
	assert.Len(t, res.Reconciliation.Records, 1)
	assert.Nil(t, res.Validation.AccuracyPercent)
}

func TestExtract_CSVToFile(t *testing.T) {
	path := writeFile(t, "stmt.txt", statement)
	outPath := filepath.Join(t.TempDir(), "positions.csv")

	out, err := execute(t, testConfig(t), "", "extract", "-f", path, "--format", "csv", "-o", outPath)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "ISIN,Name,Market Value")
	assert.Contains(t, content, "XS2993414619")
}

func TestExtract_SecondaryAndOverride(t *testing.T) {
	path := writeFile(t, "stmt.txt", statement)
	secondary := writeFile(t, "vision.json",
		`[{"source":"vision","records":[{"identifier":"XS2993414619","market_value":1977000,"confidence":0.4}]}]`)

	out, err := execute(t, testConfig(t), "", "extract", "--file", path, "--secondary", secondary,
		"--override", "xs2993414619=99000")
	require.NoError(t, err)

	var res domain.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Reconciliation.Records, 1)
	assert.Equal(t, 99000.0, res.Reconciliation.Records[0].MarketValue)
	assert.Equal(t, domain.SourceOverride, res.Reconciliation.Records[0].Source)
	require.Len(t, res.Reconciliation.Conflicts, 1)
}

func TestExtract_Errors(t *testing.T) {
	path := writeFile(t, "stmt.txt", statement)
	badJSON := writeFile(t, "bad.json", `{"source":`)

	tests := []struct {
		name string
		args []string
		is   error
	}{
		{"missing file flag", []string{"extract"}, nil},
		{"file not found", []string{"extract", "--file", filepath.Join(t.TempDir(), "nope.txt")}, nil},
		{"bad format", []string{"extract", "--file", path, "--format", "pdf"}, domain.ErrUnsupportedFormat},
		{"bad secondary", []string{"extract", "--file", path, "--secondary", badJSON}, domain.ErrMalformedInput},
		{"bad override", []string{"extract", "--file", path, "--override", "XS2993414619=lots"}, domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, testConfig(t), "", tt.args...)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func seedRun(t *testing.T, cfg *config.Config, name string, createdAt time.Time) uuid.UUID {
	t.Helper()
	db, err := sqlstore.NewDB(&cfg.DB)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, sqlstore.MigrateUp(db))

	result := domain.ExtractionResult{
		RunID:        uuid.New(),
		DocumentName: name,
		Reconciliation: domain.ReconciliationResult{
			Records: []domain.SecurityRecord{{Identifier: "XS2993414619", MarketValue: 97700, Currency: "USD", Confidence: 0.9}},
		},
		ProcessedAt: createdAt,
	}
	body, err := json.Marshal(result)
	require.NoError(t, err)

	run := &domain.ExtractionRun{
		ID:           result.RunID,
		DocumentName: name,
		Status:       domain.ValidationStatusValid,
		RecordCount:  1,
		TotalValue:   97700,
		Result:       string(body),
		CreatedAt:    createdAt,
	}
	require.NoError(t, sqlstore.NewRunRepo(db).Create(context.Background(), run))
	return run.ID
}

func TestRuns_ListAndGet(t *testing.T) {
	cfg := testConfig(t)
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	seedRun(t, cfg, "september.txt", base.Add(-time.Hour))
	id := seedRun(t, cfg, "october.txt", base)

	out, err := execute(t, cfg, "", "runs", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "october.txt")
	assert.Contains(t, lines[2], "september.txt")
	assert.Equal(t, "showing 1-2 of 2", lines[3])

	out, err = execute(t, cfg, "", "runs", "get", id.String())
	require.NoError(t, err)
	var res domain.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, id, res.RunID)

	out, err = execute(t, cfg, "", "runs", "get", id.String(), "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "XS2993414619")
}

func TestRuns_GetErrors(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "", "runs", "get", "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = execute(t, cfg, "", "runs", "get", uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	_, err = execute(t, cfg, "", "runs", "get")
	assert.Error(t, err)
}

func TestRoot_ConfigError(t *testing.T) {
	cmd := cli.NewRootCommand(func() (*config.Config, error) { return nil, domain.ErrInvalidConfig })
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"runs", "list"})
	assert.ErrorIs(t, cmd.Execute(), domain.ErrInvalidConfig)
}
