package mysql

import "fmt"

const columns = "id, log_name, tx_id, record_offset, payload, attempts, last_error, status, failed_at, resolved_at"

type queries struct {
	insert     string
	selectOpen string
	selectLog  string
	countOpen  string
}

func newQueries(table string) queries {
	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (log_name, tx_id, record_offset, payload, attempts, last_error, failed_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			table,
		),
		selectOpen: fmt.Sprintf("SELECT %s FROM %s WHERE status = ? ORDER BY id ASC LIMIT ?", columns, table),
		selectLog:  fmt.Sprintf("SELECT %s FROM %s WHERE status = ? AND log_name = ? ORDER BY id ASC LIMIT ?", columns, table),
		countOpen:  fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ?", table),
	}
}
