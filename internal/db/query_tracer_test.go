package db

import "testing"

func TestDescribeQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  queryDescription
	}{
		{name: "empty", query: "   ", want: queryDescription{}},
		{
			name:  "order number sequence",
			query: "SELECT nextval('order_number_seq')",
			want:  queryDescription{text: "SELECT nextval('order_number_seq')", operation: "SELECT", sequence: orderNumberSequence},
		},
		{
			name:  "versioned update",
			query: "\n\tUPDATE orders\n\t SET version = version + 1\n\tWHERE id = $1 AND version = $2\n",
			want:  queryDescription{text: "UPDATE orders SET version = version + 1 WHERE id = $1 AND version = $2", operation: "UPDATE", table: "orders"},
		},
		{
			name:  "insert with column list",
			query: "INSERT INTO orders_mirror (order_id, version) VALUES ($1, $2)",
			want:  queryDescription{text: "INSERT INTO orders_mirror (order_id, version) VALUES ($1, $2)", operation: "INSERT", table: "orders_mirror"},
		},
		{
			name:  "exists subquery",
			query: "select exists (select 1 from orders where id = $1)",
			want:  queryDescription{text: "select exists (select 1 from orders where id = $1)", operation: "SELECT", table: "orders"},
		},
		{
			name:  "delete",
			query: "DELETE FROM orders WHERE id = $1",
			want:  queryDescription{text: "DELETE FROM orders WHERE id = $1", operation: "DELETE", table: "orders"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := describeQuery(tc.query); got != tc.want {
				t.Fatalf("describeQuery() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFormatOrderNumber(t *testing.T) {
	t.Parallel()

	if got := FormatOrderNumber(2026, 42); got != "SF-2026-000042" {
		t.Fatalf("FormatOrderNumber() = %q", got)
	}
	if got := FormatOrderNumber(2026, 1234567); got != "SF-2026-1234567" {
		t.Fatalf("FormatOrderNumber(overflow) = %q", got)
	}
}
