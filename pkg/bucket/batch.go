package bucket

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// OpKind names a batch operation
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// CommitOp is one operation inside a commitBatch message. Records arrive
// fully prepared and validated by the transaction engine; the batch only
// re-checks presence, versions, and unique constraints.
type CommitOp struct {
	Kind            OpKind
	Key             string
	Record          types.Record // insert: new record; update: new record
	ExpectedVersion int64        // update/delete: version captured at buffer time
}

// UndoKind names an undo operation
type UndoKind string

const (
	UndoInsert UndoKind = "undo_insert"
	UndoUpdate UndoKind = "undo_update"
	UndoDelete UndoKind = "undo_delete"
)

// UndoOp reverses one applied CommitOp
type UndoOp struct {
	Kind   UndoKind
	Key    string
	Record types.Record // undo_update: old record; undo_delete: deleted record
}

// BatchResult carries the events to publish and the undo log for a
// committed batch. Events are NOT published by the actor; the transaction
// engine publishes them once every touched bucket has committed.
type BatchResult struct {
	Events []*types.ChangeEvent
	Undo   []UndoOp
}

type msgCommitBatch struct {
	ops     []CommitOp
	autoinc int64
}

type msgRollbackBatch struct {
	undo []UndoOp
}

// CommitBatch validates every op against current state, then applies them
// all. Atomic within this bucket: a validation failure changes nothing.
func (a *Actor) CommitBatch(ops []CommitOp, autoincrementUpdate int64) (BatchResult, error) {
	v, err := a.do(msgCommitBatch{ops: ops, autoinc: autoincrementUpdate})
	if err != nil {
		return BatchResult{}, err
	}
	return v.(BatchResult), nil
}

// RollbackBatch applies undo ops verbatim in reverse order. No events, no
// validation.
func (a *Actor) RollbackBatch(undo []UndoOp) error {
	_, err := a.do(msgRollbackBatch{undo: undo})
	return err
}

func (a *Actor) handleCommitBatch(m msgCommitBatch) response {
	// Phase 1: validate everything before touching anything
	for _, op := range m.ops {
		if err := a.validateBatchOp(op); err != nil {
			return response{err: err}
		}
	}

	// Phase 2: apply in order, accumulating events and the undo log
	result := BatchResult{}
	for _, op := range m.ops {
		ev, undo, err := a.applyBatchOp(op)
		if err != nil {
			// only reachable through a programming bug; unwind what was
			// applied so the bucket is consistent before failing
			a.applyUndo(result.Undo)
			return response{err: fmt.Errorf("bucket %q batch apply: %w", a.name, err)}
		}
		if ev != nil {
			result.Events = append(result.Events, ev)
		}
		if undo != nil {
			result.Undo = append(result.Undo, *undo)
		}
	}

	if m.autoinc > a.counter {
		a.counter = m.autoinc
	}

	metrics.OperationsTotal.WithLabelValues(a.name, "commit_batch").Inc()
	metrics.RecordsTotal.WithLabelValues(a.name).Set(float64(len(a.table)))
	return response{value: result}
}

func (a *Actor) validateBatchOp(op CommitOp) error {
	switch op.Kind {
	case OpInsert:
		if _, exists := a.table[op.Key]; exists {
			return &types.TransactionConflictError{Bucket: a.name, Key: op.Key}
		}
		if err := a.idx.CheckUnique(op.Key, op.Record, ""); err != nil {
			var dup *types.UniqueConstraintError
			if errors.As(err, &dup) {
				return &types.TransactionConflictError{Bucket: a.name, Key: op.Key, Field: dup.Field}
			}
			return err
		}
	case OpUpdate:
		current, exists := a.table[op.Key]
		if !exists || current.Version() != op.ExpectedVersion {
			return &types.TransactionConflictError{Bucket: a.name, Key: op.Key}
		}
		if err := a.idx.CheckUnique(op.Key, op.Record, op.Key); err != nil {
			var dup *types.UniqueConstraintError
			if errors.As(err, &dup) {
				return &types.TransactionConflictError{Bucket: a.name, Key: op.Key, Field: dup.Field}
			}
			return err
		}
	case OpDelete:
		// a vanished record is an idempotent no-op, not a conflict
		current, exists := a.table[op.Key]
		if exists && current.Version() != op.ExpectedVersion {
			return &types.TransactionConflictError{Bucket: a.name, Key: op.Key}
		}
	default:
		return fmt.Errorf("unknown batch op kind %q", op.Kind)
	}
	return nil
}

func (a *Actor) applyBatchOp(op CommitOp) (*types.ChangeEvent, *UndoOp, error) {
	switch op.Kind {
	case OpInsert:
		if err := a.idx.AddRecord(op.Key, op.Record); err != nil {
			return nil, nil, err
		}
		a.table[op.Key] = op.Record
		a.order = append(a.order, op.Key)
		return &types.ChangeEvent{
				Type:   types.EventInserted,
				Bucket: a.name,
				Key:    op.Key,
				Record: op.Record,
			}, &UndoOp{Kind: UndoInsert, Key: op.Key}, nil

	case OpUpdate:
		old := a.table[op.Key]
		if err := a.idx.UpdateRecord(op.Key, old, op.Record); err != nil {
			return nil, nil, err
		}
		a.table[op.Key] = op.Record
		return &types.ChangeEvent{
				Type:      types.EventUpdated,
				Bucket:    a.name,
				Key:       op.Key,
				OldRecord: old,
				NewRecord: op.Record,
			}, &UndoOp{Kind: UndoUpdate, Key: op.Key, Record: old}, nil

	case OpDelete:
		record, exists := a.table[op.Key]
		if !exists {
			return nil, nil, nil
		}
		a.remove(op.Key, record)
		return &types.ChangeEvent{
				Type:   types.EventDeleted,
				Bucket: a.name,
				Key:    op.Key,
				Record: record,
			}, &UndoOp{Kind: UndoDelete, Key: op.Key, Record: record}, nil
	}
	return nil, nil, fmt.Errorf("unknown batch op kind %q", op.Kind)
}

func (a *Actor) handleRollbackBatch(m msgRollbackBatch) response {
	a.applyUndo(m.undo)
	metrics.OperationsTotal.WithLabelValues(a.name, "rollback_batch").Inc()
	metrics.RecordsTotal.WithLabelValues(a.name).Set(float64(len(a.table)))
	return response{}
}

// applyUndo replays an undo log in reverse. Each step is applied verbatim.
// Index entries are restored through AddRecord; if a unique value was
// claimed in the meantime the conflict is logged and that record's index
// entries are not written.
func (a *Actor) applyUndo(undo []UndoOp) {
	for i := len(undo) - 1; i >= 0; i-- {
		op := undo[i]
		switch op.Kind {
		case UndoInsert:
			if record, exists := a.table[op.Key]; exists {
				a.remove(op.Key, record)
			}
		case UndoUpdate:
			if current, exists := a.table[op.Key]; exists {
				a.idx.RemoveRecord(op.Key, current)
			}
			if err := a.idx.AddRecord(op.Key, op.Record); err != nil {
				a.logger.Error().Err(err).Str("key", op.Key).Msg("Undo restore hit index conflict")
			}
			if _, exists := a.table[op.Key]; !exists {
				a.order = append(a.order, op.Key)
			}
			a.table[op.Key] = op.Record
		case UndoDelete:
			if err := a.idx.AddRecord(op.Key, op.Record); err != nil {
				a.logger.Error().Err(err).Str("key", op.Key).Msg("Undo reinsert hit index conflict")
			}
			if _, exists := a.table[op.Key]; !exists {
				a.order = append(a.order, op.Key)
			}
			a.table[op.Key] = op.Record
		}
	}
}
