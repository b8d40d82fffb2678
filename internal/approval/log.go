package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/projectledger/internal/platform/db"
)

var refNamespace = uuid.MustParse("6f1c27f4-2b8e-4c55-9a53-31d4a0e7c2b1")

// RefID derives a stable reference for a request row.
func RefID(module string, id int64) uuid.UUID {
	return uuid.NewSHA1(refNamespace, []byte(fmt.Sprintf("%s:%d", module, id)))
}

// Log represents a single approval record.
type Log struct {
	ID      int64     `json:"id"`
	Module  string    `json:"module"`
	RefID   uuid.UUID `json:"ref_id"`
	ActorID int64     `json:"actor_id"`
	Action  Action    `json:"action"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Note    string    `json:"note"`
	At      time.Time `json:"at"`
}

// NewLog builds the log entry for a validated step on request id.
func NewLog(module string, id int64, step Step, actor int64, note string) Log {
	return Log{
		Module:  module,
		RefID:   RefID(module, id),
		ActorID: actor,
		Action:  step.Action,
		From:    step.From,
		To:      step.To,
		Note:    note,
	}
}

// Recorder persists approval history.
type Recorder interface {
	RecordApproval(ctx context.Context, log Log) error
}

// Validate checks required fields.
func (l Log) Validate() error {
	switch {
	case l.Module == "":
		return errors.New("approval: module required")
	case l.ActorID == 0:
		return errors.New("approval: actor required")
	case l.RefID == uuid.Nil:
		return errors.New("approval: ref id required")
	case l.Action == "":
		return errors.New("approval: action required")
	}
	return nil
}

// Store writes approval logs through a pool or an open transaction.
type Store struct {
	q db.Querier
}

// NewStore constructs Store.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// RecordApproval inserts a log row.
func (s *Store) RecordApproval(ctx context.Context, log Log) error {
	if err := log.Validate(); err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := s.q.Exec(ctx, `INSERT INTO approval_logs (module, ref_id, actor_id, action, from_state, to_state, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		log.Module, log.RefID, log.ActorID, string(log.Action), string(log.From), string(log.To), log.Note, at)
	return err
}

// List returns the history of request id, oldest first.
func (s *Store) List(ctx context.Context, module string, id int64) ([]Log, error) {
	rows, err := s.q.Query(ctx, `SELECT id, module, ref_id, actor_id, action, from_state, to_state, note, at
FROM approval_logs WHERE module = $1 AND ref_id = $2 ORDER BY at ASC, id ASC`, module, RefID(module, id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []Log
	for rows.Next() {
		var l Log
		var action, from, to string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &action, &from, &to, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action, l.From, l.To = Action(action), State(from), State(to)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
