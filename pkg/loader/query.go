package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/datasource"
)

// sqlFileExtension is appended to query names to find their SQL file.
const sqlFileExtension = ".sql"

// loadQuery reads the named SQL file and renders it with the benchmark
// variables. Each file must hold a single statement.
func (l *loader) loadQuery(name string, variables map[string]string) (*benchmark.Query, error) {
	path := filepath.Join(l.cfg.SQLDir, filepath.FromSlash(name)+sqlFileExtension)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query %q: %w", name, err)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing query %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return nil, fmt.Errorf("rendering query %q: %w", name, err)
	}

	statement, err := singleStatement(buf.String())
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}

	return &benchmark.Query{Name: name, Statement: statement}, nil
}

// singleStatement strips comment lines and a trailing semicolon and
// rejects files with more than one statement.
func singleStatement(sql string) (string, error) {
	lines := strings.Split(sql, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}

		kept = append(kept, line)
	}

	statements := datasource.SplitStatements(strings.Join(kept, "\n"))

	switch len(statements) {
	case 0:
		return "", fmt.Errorf("no statement found")
	case 1:
		return statements[0], nil
	default:
		return "", fmt.Errorf("multiple statements are not supported")
	}
}
