package mysql

import "fmt"

// maxPayloadLen is the capacity of a BLOB column.
const maxPayloadLen = 65535

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	log_name VARCHAR(255) NOT NULL,
	tx_id INT UNSIGNED NOT NULL,
	record_offset BIGINT NOT NULL,
	payload BLOB NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	status SMALLINT NOT NULL DEFAULT 0,
	failed_at TIMESTAMP(6) NOT NULL,
	resolved_at TIMESTAMP(6) NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id),
	INDEX idx_status_id (status, id),
	INDEX idx_log_tx (log_name, tx_id)
);`

// Schema returns the CREATE TABLE statement for a dead-letter table.
func Schema(table string) (string, error) {
	name, err := checkTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name), nil
}
