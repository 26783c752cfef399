package errors

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpCarriesUpstreamStatus(t *testing.T) {
	cause := NewUpstreamError("midtrans", http.StatusBadGateway, []byte(strings.Repeat("x", 400)))
	err := fmt.Errorf("initiate payment: %w", Wrap(CodeDependency, cause, "midtrans unavailable"))

	d := Dump(err)
	if d.Code != CodeDependency || !d.Retryable {
		t.Fatalf("expected retryable dependency code, got %+v", d)
	}
	if d.Upstream != "midtrans" || d.UpstreamStatus != http.StatusBadGateway {
		t.Fatalf("expected upstream fields, got %+v", d)
	}
	if len(cause.Body) != 256 {
		t.Fatalf("expected body truncated to 256, got %d", len(cause.Body))
	}

	fields := d.Fields()
	if fields["upstream_status"] != http.StatusBadGateway {
		t.Fatalf("expected upstream_status in fields, got %v", fields)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatal("pg fields must be omitted when no database error is present")
	}
}

func TestDumpCarriesPostgresConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "servers_order_id_key", TableName: "servers"}
	d := Dump(Wrap(CodeConflict, pgErr, "server already provisioned"))

	if d.PGCode != "23505" || d.PGConstraint != "servers_order_id_key" || d.PGTable != "servers" {
		t.Fatalf("unexpected pg fields: %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", d.Chain)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Fields()["error"] != "" {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
