package db

import (
	"database/sql"
	"fmt"
	"time"
)

// RecordConfigWrite journals a document write
func (d *DB) RecordConfigWrite(w ConfigWrite) error {
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now()
	}
	_, err := d.conn.Exec(`
		INSERT INTO config_writes (operation_id, path, changed, backup_path, diff, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.OperationID, w.Path, w.Changed, w.BackupPath, w.Diff, w.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record config write: %w", err)
	}
	return nil
}

// RecordUnitOperation journals a daemon-reload or unit action
func (d *DB) RecordUnitOperation(op UnitOperation) error {
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	_, err := d.conn.Exec(`
		INSERT INTO unit_operations (operation_id, action, service, success, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, op.OperationID, op.Action, op.Service, op.Success, op.Message, op.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record unit operation: %w", err)
	}
	return nil
}

// GetRecentWrites returns the most recent document writes
func (d *DB) GetRecentWrites(limit int) ([]*ConfigWrite, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(`
		SELECT id, operation_id, path, changed, backup_path, diff, timestamp
		FROM config_writes
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query config writes: %w", err)
	}
	return scanWrites(rows)
}

// GetRecentUnitOperations returns the most recent unit operations
func (d *DB) GetRecentUnitOperations(limit int) ([]*UnitOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(`
		SELECT id, operation_id, action, service, success, message, timestamp
		FROM unit_operations
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit operations: %w", err)
	}
	return scanUnitOperations(rows)
}

// GetOperation returns everything journaled under one operation ID, oldest
// first
func (d *DB) GetOperation(operationID string) ([]*ConfigWrite, []*UnitOperation, error) {
	rows, err := d.conn.Query(`
		SELECT id, operation_id, path, changed, backup_path, diff, timestamp
		FROM config_writes
		WHERE operation_id = ?
		ORDER BY id
	`, operationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query config writes: %w", err)
	}
	writes, err := scanWrites(rows)
	if err != nil {
		return nil, nil, err
	}

	rows, err = d.conn.Query(`
		SELECT id, operation_id, action, service, success, message, timestamp
		FROM unit_operations
		WHERE operation_id = ?
		ORDER BY id
	`, operationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query unit operations: %w", err)
	}
	ops, err := scanUnitOperations(rows)
	if err != nil {
		return nil, nil, err
	}
	return writes, ops, nil
}

func scanWrites(rows *sql.Rows) ([]*ConfigWrite, error) {
	defer rows.Close()
	var writes []*ConfigWrite
	for rows.Next() {
		var w ConfigWrite
		var opID, backup, diff sql.NullString
		if err := rows.Scan(&w.ID, &opID, &w.Path, &w.Changed, &backup, &diff, &w.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan config write: %w", err)
		}
		w.OperationID = opID.String
		w.BackupPath = backup.String
		w.Diff = diff.String
		writes = append(writes, &w)
	}
	return writes, rows.Err()
}

func scanUnitOperations(rows *sql.Rows) ([]*UnitOperation, error) {
	defer rows.Close()
	var ops []*UnitOperation
	for rows.Next() {
		var op UnitOperation
		var opID, service, msg sql.NullString
		if err := rows.Scan(&op.ID, &opID, &op.Action, &service, &op.Success, &msg, &op.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan unit operation: %w", err)
		}
		op.OperationID = opID.String
		op.Service = service.String
		op.Message = msg.String
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}
