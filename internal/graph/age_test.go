package graph

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestCypherSQL(t *testing.T) {
	sql, err := cypherSQL("recruiting_graph", "MATCH (n) RETURN {id: n.id} AS row", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT * FROM ag_catalog.cypher('recruiting_graph', $$ MATCH (n) RETURN {id: n.id} AS row $$, $1) AS (row ag_catalog.agtype)"
	if sql != expected {
		t.Fatalf("unexpected sql:\n%s", sql)
	}

	sql, err = cypherSQL("recruiting_graph", "RETURN 1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sql, "$1") {
		t.Fatalf("expected no parameter placeholder, got %s", sql)
	}
}

func TestCypherSQLRejectsUnsafeInput(t *testing.T) {
	if _, err := cypherSQL("bad'); DROP", "RETURN 1", false); !errors.Is(err, ErrInvalidGraphName) {
		t.Fatalf("expected invalid graph name, got %v", err)
	}
	if _, err := cypherSQL("g", "RETURN '$$'", false); err == nil {
		t.Fatal("expected dollar quoting error")
	}
}

func TestAGEConnString(t *testing.T) {
	age, err := NewAGE(AGEConfig{Host: "db", Port: 5433, User: "app", Password: "p@ss", Database: "talent"}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := age.connString(); got != "postgres://app:p%40ss@db:5433/talent" {
		t.Fatalf("unexpected conn string: %s", got)
	}
	if age.graphName != defaultGraphName {
		t.Fatalf("expected default graph name, got %s", age.graphName)
	}

	age, _ = NewAGE(AGEConfig{DSN: "postgres://x@y/z"}, zap.NewNop())
	if got := age.connString(); got != "postgres://x@y/z" {
		t.Fatalf("expected dsn to win, got %s", got)
	}
}
