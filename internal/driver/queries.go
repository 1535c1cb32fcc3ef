package driver

// A target table is one :TargetTable node holding the ordered column names
// and one :TargetRow node per row, keyed by table name and row_index. Row
// values are a string list aligned with the table's columns.

var IndexQueries = []string{
	"CREATE INDEX ON :TargetRow(table);",
	"CREATE INDEX ON :TargetRow(row_index);",
	"CREATE INDEX ON :TargetTable(name);",
}

const (
	LoadTableColumnsQuery = `
		MATCH (t:TargetTable {name: $table})
		RETURN t.columns AS columns
	`

	LoadTableRowsQuery = `
		MATCH (r:TargetRow {table: $table})
		RETURN r.row_index AS row_index, r.values AS values
		ORDER BY r.row_index
	`

	DeleteTableRowsQuery = `
		MATCH (r:TargetRow {table: $table})
		DETACH DELETE r
	`

	SaveTableQuery = `
		MERGE (t:TargetTable {name: $table})
		SET t.columns = $columns, t.updated_at = $updated_at
		RETURN t.name AS name
	`

	SaveTableRowsQuery = `
		UNWIND $rows AS row
		CREATE (r:TargetRow {table: $table, row_index: row.row_index})
		SET r.values = row.values
	`
)
