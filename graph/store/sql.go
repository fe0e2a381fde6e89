package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dshills/interruptgraph-go/graph/model"
)

// sqlStore holds the query logic shared by SQLiteStore and MySQLStore.
//
// Both drivers accept "?" placeholders, so only the schema differs between
// dialects. Timestamps are stored as RFC3339Nano text and ordering uses an
// auto-increment seq column.
type sqlStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

const nodeColumns = "id, parent_id, plan_execution_id, status, version, leaf, created_at, updated_at"

const interruptColumns = "id, type, execution_id, node_id, state, config, created_at, updated_at"

const planColumns = "id, status, version, created_at, updated_at"

func newSQLStore(db *sql.DB) *sqlStore {
	return &sqlStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (s *sqlStore) migrate(ctx context.Context, ddl []string) error {
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (model.ExecutionNode, error) {
	var (
		n                model.ExecutionNode
		status           string
		created, updated string
	)
	if err := row.Scan(&n.ID, &n.ParentID, &n.PlanExecutionID, &status, &n.Version, &n.Leaf, &created, &updated); err != nil {
		return model.ExecutionNode{}, err
	}
	var err error
	if n.Status, err = model.ParseStatus(status); err != nil {
		return model.ExecutionNode{}, err
	}
	if n.CreatedAt, err = parseTime(created); err != nil {
		return model.ExecutionNode{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return model.ExecutionNode{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return n, nil
}

func scanInterrupt(row rowScanner) (model.Interrupt, error) {
	var (
		in               model.Interrupt
		typ, state, cfg  string
		created, updated string
	)
	if err := row.Scan(&in.ID, &typ, &in.ExecutionID, &in.NodeID, &state, &cfg, &created, &updated); err != nil {
		return model.Interrupt{}, err
	}
	var err error
	if in.Type, err = model.ParseInterruptType(typ); err != nil {
		return model.Interrupt{}, err
	}
	if in.State, err = model.ParseInterruptState(state); err != nil {
		return model.Interrupt{}, err
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &in.Config); err != nil {
			return model.Interrupt{}, fmt.Errorf("failed to unmarshal interrupt config: %w", err)
		}
	}
	if in.CreatedAt, err = parseTime(created); err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if in.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return in, nil
}

func scanPlan(row rowScanner) (model.PlanExecution, error) {
	var (
		p                model.PlanExecution
		status           string
		created, updated string
	)
	if err := row.Scan(&p.ID, &status, &p.Version, &created, &updated); err != nil {
		return model.PlanExecution{}, err
	}
	var err error
	if p.Status, err = model.ParsePlanStatus(status); err != nil {
		return model.PlanExecution{}, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return model.PlanExecution{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return model.PlanExecution{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return p, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getNode(ctx context.Context, q queryer, nodeID string) (model.ExecutionNode, error) {
	row := q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM execution_nodes WHERE id = ?", nodeID)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExecutionNode{}, ErrNotFound
	}
	if err != nil {
		return model.ExecutionNode{}, fmt.Errorf("failed to load node: %w", err)
	}
	return n, nil
}

func getInterrupt(ctx context.Context, q queryer, id string) (model.Interrupt, error) {
	row := q.QueryRowContext(ctx, "SELECT "+interruptColumns+" FROM interrupts WHERE id = ?", id)
	in, err := scanInterrupt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Interrupt{}, ErrNotFound
	}
	if err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to load interrupt: %w", err)
	}
	return in, nil
}

func getPlan(ctx context.Context, q queryer, executionID string) (model.PlanExecution, error) {
	row := q.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plan_executions WHERE id = ?", executionID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanExecution{}, ErrNotFound
	}
	if err != nil {
		return model.PlanExecution{}, fmt.Errorf("failed to load plan execution: %w", err)
	}
	return p, nil
}

// SaveNode inserts a node and clears its parent's leaf flag in one transaction.
func (s *sqlStore) SaveNode(ctx context.Context, node model.ExecutionNode) (err error) {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if node.ID == "" {
		return fmt.Errorf("node id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error when already returning error
		}
	}()

	if _, err = getNode(ctx, tx, node.ID); err == nil {
		return fmt.Errorf("node %s: %w", node.ID, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	err = nil

	var children int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM execution_nodes WHERE parent_id = ?", node.ID).Scan(&children); err != nil {
		return fmt.Errorf("failed to count children: %w", err)
	}

	now := s.now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO execution_nodes ("+nodeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		node.ID, node.ParentID, node.PlanExecutionID, string(node.Status), node.Version,
		children == 0, formatTime(node.CreatedAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}

	if node.ParentID != "" {
		if _, err = tx.ExecContext(ctx, "UPDATE execution_nodes SET leaf = ? WHERE id = ?", false, node.ParentID); err != nil {
			return fmt.Errorf("failed to update parent leaf flag: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetNode returns a node by ID.
func (s *sqlStore) GetNode(ctx context.Context, nodeID string) (model.ExecutionNode, error) {
	if err := s.checkOpen(); err != nil {
		return model.ExecutionNode{}, err
	}
	return getNode(ctx, s.db, nodeID)
}

// ListNodes returns the nodes of an execution in insertion order.
func (s *sqlStore) ListNodes(ctx context.Context, executionID string) ([]model.ExecutionNode, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM execution_nodes WHERE plan_execution_id = ? ORDER BY seq ASC", executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ExecutionNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node rows: %w", err)
	}
	return out, nil
}

// BulkMarkDiscontinuing runs a single predicate-scoped UPDATE.
func (s *sqlStore) BulkMarkDiscontinuing(ctx context.Context, executionID string, eligible []model.Status, scope []string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if len(eligible) == 0 || (scope != nil && len(scope) == 0) {
		return 0, nil
	}

	args := []any{string(model.StatusDiscontinuing), formatTime(s.now()), executionID}
	for _, st := range eligible {
		args = append(args, string(st))
	}
	args = append(args, true, string(model.StatusQueued))

	// #nosec G202 -- only "?" placeholders are concatenated
	query := `UPDATE execution_nodes
		SET status = ?, version = version + 1, updated_at = ?
		WHERE plan_execution_id = ?
		AND status IN (` + placeholders(len(eligible)) + `)
		AND (leaf = ? OR status = ?)`
	if scope != nil {
		query += " AND id IN (" + placeholders(len(scope)) + ")"
		for _, id := range scope {
			args = append(args, id)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return -1, fmt.Errorf("failed to mark nodes discontinuing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return -1, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// CompareAndSetStatus runs a conditional UPDATE and reads the node back in
// the same transaction.
func (s *sqlStore) CompareAndSetStatus(ctx context.Context, nodeID string, expected []model.Status, newStatus model.Status) (node model.ExecutionNode, applied bool, err error) {
	if err := s.checkOpen(); err != nil {
		return model.ExecutionNode{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ExecutionNode{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error when already returning error
		}
	}()

	if len(expected) > 0 {
		args := []any{string(newStatus), formatTime(s.now()), nodeID}
		for _, st := range expected {
			args = append(args, string(st))
		}
		// #nosec G202 -- only "?" placeholders are concatenated
		query := `UPDATE execution_nodes
			SET status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND status IN (` + placeholders(len(expected)) + `)`
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			err = fmt.Errorf("failed to update node status: %w", execErr)
			return model.ExecutionNode{}, false, err
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("failed to read affected rows: %w", raErr)
			return model.ExecutionNode{}, false, err
		}
		applied = n == 1
	}

	node, err = getNode(ctx, tx, nodeID)
	if err != nil {
		return model.ExecutionNode{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return model.ExecutionNode{}, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return node, applied, nil
}

// SaveInterrupt inserts an interrupt record.
func (s *sqlStore) SaveInterrupt(ctx context.Context, interrupt model.Interrupt) (model.Interrupt, error) {
	if err := s.checkOpen(); err != nil {
		return model.Interrupt{}, err
	}
	if interrupt.ID == "" {
		return model.Interrupt{}, fmt.Errorf("interrupt id is required")
	}
	if _, err := getInterrupt(ctx, s.db, interrupt.ID); err == nil {
		return model.Interrupt{}, fmt.Errorf("interrupt %s: %w", interrupt.ID, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return model.Interrupt{}, err
	}

	cfg, err := json.Marshal(interrupt.Config)
	if err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to marshal interrupt config: %w", err)
	}
	now := s.now()
	if interrupt.CreatedAt.IsZero() {
		interrupt.CreatedAt = now
	}
	if interrupt.UpdatedAt.IsZero() {
		interrupt.UpdatedAt = interrupt.CreatedAt
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO interrupts ("+interruptColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		interrupt.ID, string(interrupt.Type), interrupt.ExecutionID, interrupt.NodeID,
		string(interrupt.State), string(cfg), formatTime(interrupt.CreatedAt), formatTime(interrupt.UpdatedAt),
	)
	if err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to save interrupt: %w", err)
	}
	return getInterrupt(ctx, s.db, interrupt.ID)
}

// GetInterrupt returns an interrupt by ID.
func (s *sqlStore) GetInterrupt(ctx context.Context, id string) (model.Interrupt, error) {
	if err := s.checkOpen(); err != nil {
		return model.Interrupt{}, err
	}
	return getInterrupt(ctx, s.db, id)
}

func (s *sqlStore) fetchInterrupts(ctx context.Context, executionID string, activeOnly bool) ([]model.Interrupt, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	query := "SELECT " + interruptColumns + " FROM interrupts WHERE execution_id = ?"
	args := []any{executionID}
	if activeOnly {
		query += " AND state IN (?, ?)"
		args = append(args, string(model.StateRegistered), string(model.StateProcessing))
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interrupts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Interrupt
	for rows.Next() {
		in, err := scanInterrupt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interrupt row: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interrupt rows: %w", err)
	}
	return out, nil
}

// FetchActive returns REGISTERED and PROCESSING interrupts of an execution.
func (s *sqlStore) FetchActive(ctx context.Context, executionID string) ([]model.Interrupt, error) {
	return s.fetchInterrupts(ctx, executionID, true)
}

// FetchAll returns the audit trail of an execution.
func (s *sqlStore) FetchAll(ctx context.Context, executionID string) ([]model.Interrupt, error) {
	return s.fetchInterrupts(ctx, executionID, false)
}

// UpdateInterruptState runs a conditional UPDATE on the state column.
func (s *sqlStore) UpdateInterruptState(ctx context.Context, id string, from []model.InterruptState, to model.InterruptState) (interrupt model.Interrupt, applied bool, err error) {
	if err := s.checkOpen(); err != nil {
		return model.Interrupt{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Interrupt{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error when already returning error
		}
	}()

	if len(from) > 0 {
		args := []any{string(to), formatTime(s.now()), id}
		for _, st := range from {
			args = append(args, string(st))
		}
		// #nosec G202 -- only "?" placeholders are concatenated
		query := "UPDATE interrupts SET state = ?, updated_at = ? WHERE id = ? AND state IN (" + placeholders(len(from)) + ")"
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			err = fmt.Errorf("failed to update interrupt state: %w", execErr)
			return model.Interrupt{}, false, err
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("failed to read affected rows: %w", raErr)
			return model.Interrupt{}, false, err
		}
		applied = n == 1
	}

	interrupt, err = getInterrupt(ctx, tx, id)
	if err != nil {
		return model.Interrupt{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return model.Interrupt{}, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return interrupt, applied, nil
}

// MarkProcessed moves an active interrupt to a PROCESSED_* state.
func (s *sqlStore) MarkProcessed(ctx context.Context, id string, terminal model.InterruptState) (model.Interrupt, error) {
	return markProcessed(ctx, s, id, terminal)
}

// SavePlan inserts or replaces a plan execution.
func (s *sqlStore) SavePlan(ctx context.Context, plan model.PlanExecution) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if plan.ID == "" {
		return fmt.Errorf("plan execution id is required")
	}
	now := s.now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM plan_executions WHERE id = ?", plan.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to replace plan execution: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO plan_executions ("+planColumns+") VALUES (?, ?, ?, ?, ?)",
		plan.ID, string(plan.Status), plan.Version, formatTime(plan.CreatedAt), formatTime(now),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to save plan execution: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPlan returns a plan execution by ID.
func (s *sqlStore) GetPlan(ctx context.Context, executionID string) (model.PlanExecution, error) {
	if err := s.checkOpen(); err != nil {
		return model.PlanExecution{}, err
	}
	return getPlan(ctx, s.db, executionID)
}

// UpdatePlanStatus changes a non-terminal plan's status with one conditional UPDATE.
func (s *sqlStore) UpdatePlanStatus(ctx context.Context, executionID string, status model.PlanStatus) (model.PlanExecution, error) {
	if err := s.checkOpen(); err != nil {
		return model.PlanExecution{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE plan_executions SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?, ?)`,
		string(status), formatTime(s.now()), executionID,
		string(model.PlanAborted), string(model.PlanExpired), string(model.PlanSucceeded), string(model.PlanFailed),
	)
	if err != nil {
		return model.PlanExecution{}, fmt.Errorf("failed to update plan status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.PlanExecution{}, fmt.Errorf("failed to read affected rows: %w", err)
	}

	plan, err := getPlan(ctx, s.db, executionID)
	if err != nil {
		return model.PlanExecution{}, err
	}
	if n == 0 && plan.Status.IsTerminal() {
		return plan, ErrPlanFinished
	}
	return plan, nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}
