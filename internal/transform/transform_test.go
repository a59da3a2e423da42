package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ardoooo/anonymizepg/internal/config"
	"github.com/ardoooo/anonymizepg/internal/schema"
)

// fakeExecutor records every statement it is asked to run instead of
// talking to a database, so the transform family's DDL can be checked
// without a live PostgreSQL cluster.
type fakeExecutor struct {
	statements []string
	failOn     string
}

func (f *fakeExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.statements = append(f.statements, sql)
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errFake
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeExecutor) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "fake executor error" }

func cols() []schema.Column {
	return []schema.Column{
		{Name: "name", Type: "text"},
		{Name: "salary", Type: "numeric"},
		{Name: "address", Type: "text"},
	}
}

func TestCopyOutputSchemaMatchesConfiguredColumns(t *testing.T) {
	tr, err := New(config.ProcessingSettings{Method: config.MethodCopy, Columns: []string{"name", "salary"}}, "temp_ctid_holder", cols())
	if err != nil {
		t.Fatal(err)
	}
	out := tr.OutputSchema()
	if len(out) != 2 || out[0].Name != "name" || out[1].Name != "salary" {
		t.Fatalf("unexpected output schema: %+v", out)
	}
}

func TestCopyPrepareCreatesTypeAndFunction(t *testing.T) {
	tr, _ := New(config.ProcessingSettings{Method: config.MethodCopy, Columns: []string{"name", "salary"}}, "temp_ctid_holder", cols())
	ex := &fakeExecutor{}
	if err := tr.Prepare(context.Background(), ex); err != nil {
		t.Fatal(err)
	}
	if len(ex.statements) != 2 {
		t.Fatalf("expected 2 DDL statements, got %d: %v", len(ex.statements), ex.statements)
	}
	if !strings.Contains(ex.statements[0], "CREATE TYPE") {
		t.Errorf("statement 0 = %q, want CREATE TYPE", ex.statements[0])
	}
	if !strings.Contains(ex.statements[1], "CREATE OR REPLACE FUNCTION") {
		t.Errorf("statement 1 = %q, want CREATE FUNCTION", ex.statements[1])
	}
	if funcs := tr.ProducerFuncs(); len(funcs) != 1 {
		t.Fatalf("expected 1 producer func, got %v", funcs)
	}
}

func TestAggrEchoColumnPassesThrough(t *testing.T) {
	tr, _ := New(config.ProcessingSettings{
		Method:    config.MethodAggr,
		ColumnOps: map[string]string{"name": "echo", "salary": "max"},
	}, "temp_ctid_holder", cols())

	ex := &fakeExecutor{}
	if err := tr.Prepare(context.Background(), ex); err != nil {
		t.Fatal(err)
	}
	funcStmt := ex.statements[1]
	if !strings.Contains(funcStmt, `SELECT "name", `) {
		t.Errorf("aggr function body should select echo column name unchanged: %q", funcStmt)
	}
	if !strings.Contains(funcStmt, "max(salary) OVER()") && !strings.Contains(funcStmt, `max("salary") OVER()`) {
		t.Errorf("aggr function body missing windowed max: %q", funcStmt)
	}
}

func TestReduceAggrDropsWindowClause(t *testing.T) {
	tr, _ := New(config.ProcessingSettings{
		Method:    config.MethodReduceAggr,
		ColumnOps: map[string]string{"salary": "max"},
	}, "temp_ctid_holder", cols())

	ex := &fakeExecutor{}
	if err := tr.Prepare(context.Background(), ex); err != nil {
		t.Fatal(err)
	}
	funcStmt := ex.statements[1]
	if strings.Contains(funcStmt, "OVER()") {
		t.Errorf("reduce_aggr should not use OVER(): %q", funcStmt)
	}
}

func TestShuffleGroupsGetIndependentFunctions(t *testing.T) {
	tr, _ := New(config.ProcessingSettings{
		Method: config.MethodShuffle,
		Groups: [][]string{{"name"}, {"salary", "address"}},
	}, "temp_ctid_holder", cols())

	ex := &fakeExecutor{}
	if err := tr.Prepare(context.Background(), ex); err != nil {
		t.Fatal(err)
	}
	funcs := tr.ProducerFuncs()
	if len(funcs) != 2 {
		t.Fatalf("expected 2 producer funcs, got %v", funcs)
	}
	for _, stmt := range ex.statements {
		if strings.Contains(stmt, "CREATE OR REPLACE FUNCTION") && !strings.Contains(stmt, "ORDER BY RANDOM()") {
			t.Errorf("shuffle function missing ORDER BY RANDOM(): %q", stmt)
		}
	}
}

func TestSelectRandomSkipsLastPartialBatch(t *testing.T) {
	tr, _ := New(config.ProcessingSettings{
		Method:    config.MethodSelectRandom,
		Groups:    [][]string{{"name"}},
		BatchSize: 5,
	}, "temp_ctid_holder", cols())

	if !tr.SkipLastPartialBatch() {
		t.Error("select_random must skip the final partial batch")
	}
}

func TestUUIDReplaceSeparatesEchoAndUUIDColumns(t *testing.T) {
	tr, _ := New(config.ProcessingSettings{
		Method:        config.MethodUUID,
		ColumnOps:     map[string]string{"name": "uuid", "salary": "echo"},
		TransferTable: "_transfer_workers",
	}, "temp_ctid_holder", cols())

	out := tr.OutputSchema()
	var sawUUIDType bool
	for _, c := range out {
		if c.Name == "name" && c.Type == "UUID" {
			sawUUIDType = true
		}
	}
	if !sawUUIDType {
		t.Fatalf("expected name column to be typed UUID in output schema: %+v", out)
	}

	ex := &fakeExecutor{}
	if err := tr.Prepare(context.Background(), ex); err != nil {
		t.Fatal(err)
	}
	var sawMappingTable bool
	for _, stmt := range ex.statements {
		if strings.Contains(stmt, "_transfer_workers_uuid_name") && strings.Contains(stmt, "CREATE TABLE") {
			sawMappingTable = true
		}
	}
	if !sawMappingTable {
		t.Errorf("expected a uuid mapping table to be created, statements: %v", ex.statements)
	}
}

func TestNewRejectsUnknownMethod(t *testing.T) {
	if _, err := New(config.ProcessingSettings{Method: "bogus"}, "temp_ctid_holder", cols()); err == nil {
		t.Fatal("expected error for unknown method")
	}
}
