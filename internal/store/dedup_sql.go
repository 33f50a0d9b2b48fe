package store

import (
	"database/sql"
	"errors"
	"fmt"
)

func (s *sqlStore) IsDuplicate(messageID string) (bool, error) {
	var id string
	err := s.db.Get(&id, s.db.Rebind(`SELECT message_id FROM inbound_dedup WHERE message_id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *sqlStore) RecordInbound(messageID, sender string) (bool, error) {
	result, err := s.db.Exec(s.db.Rebind(
		`INSERT INTO inbound_dedup (message_id, sender, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`),
		messageID, sender, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(s.db.Rebind(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), s.now(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
