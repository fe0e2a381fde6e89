package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dshills/interruptgraph-go/graph/model"
)

// MemStore is an in-memory implementation of Backend.
//
// Designed for:
//   - Testing and development
//   - Single-process executions
//   - Embedding the interrupt engine without a database
//
// MemStore is thread-safe. Every mutation happens under a single write lock,
// which makes BulkMarkDiscontinuing and CompareAndSetStatus atomic with
// respect to each other and to concurrent readers.
//
// Limitations:
//   - Data is lost when the process terminates (see MarshalJSON for snapshots)
//   - Not shared across processes
type MemStore struct {
	mu sync.RWMutex

	nodes     map[string]model.ExecutionNode
	nodeOrder map[string][]string // executionID -> node IDs in insertion order

	interrupts     map[string]model.Interrupt
	interruptOrder map[string][]string // executionID -> interrupt IDs in insertion order

	plans map[string]model.PlanExecution

	now    func() time.Time
	closed bool
}

// NewMemStore creates an empty in-memory store.
//
// Example:
//
//	st := store.NewMemStore()
//	engine, err := graph.New(graph.StoresFrom(st))
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:          make(map[string]model.ExecutionNode),
		nodeOrder:      make(map[string][]string),
		interrupts:     make(map[string]model.Interrupt),
		interruptOrder: make(map[string][]string),
		plans:          make(map[string]model.PlanExecution),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SaveNode inserts a node and flips its parent's Leaf flag.
func (m *MemStore) SaveNode(_ context.Context, node model.ExecutionNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}
	if node.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if _, exists := m.nodes[node.ID]; exists {
		return fmt.Errorf("node %s: %w", node.ID, ErrDuplicate)
	}

	now := m.now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	node.Leaf = true
	for _, id := range m.nodeOrder[node.PlanExecutionID] {
		if m.nodes[id].ParentID == node.ID {
			node.Leaf = false
			break
		}
	}

	if node.ParentID != "" {
		if parent, ok := m.nodes[node.ParentID]; ok && parent.Leaf {
			parent.Leaf = false
			m.nodes[parent.ID] = parent
		}
	}

	m.nodes[node.ID] = node
	m.nodeOrder[node.PlanExecutionID] = append(m.nodeOrder[node.PlanExecutionID], node.ID)
	return nil
}

// GetNode returns a node by ID.
func (m *MemStore) GetNode(_ context.Context, nodeID string) (model.ExecutionNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return model.ExecutionNode{}, fmt.Errorf("store is closed")
	}
	node, ok := m.nodes[nodeID]
	if !ok {
		return model.ExecutionNode{}, ErrNotFound
	}
	return node, nil
}

// ListNodes returns the nodes of an execution in insertion order.
func (m *MemStore) ListNodes(_ context.Context, executionID string) ([]model.ExecutionNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}
	ids := m.nodeOrder[executionID]
	out := make([]model.ExecutionNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.nodes[id])
	}
	return out, nil
}

// BulkMarkDiscontinuing marks qualifying nodes DISCONTINUING under one write lock.
func (m *MemStore) BulkMarkDiscontinuing(_ context.Context, executionID string, eligible []model.Status, scope []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var inScope map[string]bool
	if scope != nil {
		inScope = make(map[string]bool, len(scope))
		for _, id := range scope {
			inScope[id] = true
		}
	}

	now := m.now()
	var affected int64
	for _, id := range m.nodeOrder[executionID] {
		node := m.nodes[id]
		if inScope != nil && !inScope[id] {
			continue
		}
		if !node.Status.In(eligible) {
			continue
		}
		if !node.Leaf && node.Status != model.StatusQueued {
			continue
		}
		node.Status = model.StatusDiscontinuing
		node.Version++
		node.UpdatedAt = now
		m.nodes[id] = node
		affected++
	}
	return affected, nil
}

// CompareAndSetStatus performs a guarded status transition.
func (m *MemStore) CompareAndSetStatus(_ context.Context, nodeID string, expected []model.Status, newStatus model.Status) (model.ExecutionNode, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.ExecutionNode{}, false, fmt.Errorf("store is closed")
	}
	node, ok := m.nodes[nodeID]
	if !ok {
		return model.ExecutionNode{}, false, ErrNotFound
	}
	if !node.Status.In(expected) {
		return node, false, nil
	}

	node.Status = newStatus
	node.Version++
	node.UpdatedAt = m.now()
	m.nodes[nodeID] = node
	return node, true, nil
}

// SaveInterrupt inserts an interrupt record.
func (m *MemStore) SaveInterrupt(_ context.Context, interrupt model.Interrupt) (model.Interrupt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.Interrupt{}, fmt.Errorf("store is closed")
	}
	if interrupt.ID == "" {
		return model.Interrupt{}, fmt.Errorf("interrupt id is required")
	}
	if _, exists := m.interrupts[interrupt.ID]; exists {
		return model.Interrupt{}, fmt.Errorf("interrupt %s: %w", interrupt.ID, ErrDuplicate)
	}

	now := m.now()
	if interrupt.CreatedAt.IsZero() {
		interrupt.CreatedAt = now
	}
	if interrupt.UpdatedAt.IsZero() {
		interrupt.UpdatedAt = interrupt.CreatedAt
	}
	interrupt.Config.Metadata = cloneMetadata(interrupt.Config.Metadata)

	m.interrupts[interrupt.ID] = interrupt
	m.interruptOrder[interrupt.ExecutionID] = append(m.interruptOrder[interrupt.ExecutionID], interrupt.ID)
	return interrupt, nil
}

// GetInterrupt returns an interrupt by ID.
func (m *MemStore) GetInterrupt(_ context.Context, id string) (model.Interrupt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return model.Interrupt{}, fmt.Errorf("store is closed")
	}
	in, ok := m.interrupts[id]
	if !ok {
		return model.Interrupt{}, ErrNotFound
	}
	return in, nil
}

// FetchActive returns REGISTERED and PROCESSING interrupts of an execution.
func (m *MemStore) FetchActive(_ context.Context, executionID string) ([]model.Interrupt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}
	var out []model.Interrupt
	for _, id := range m.interruptOrder[executionID] {
		if in := m.interrupts[id]; in.State.Active() {
			out = append(out, in)
		}
	}
	return out, nil
}

// FetchAll returns the audit trail of an execution.
func (m *MemStore) FetchAll(_ context.Context, executionID string) ([]model.Interrupt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}
	ids := m.interruptOrder[executionID]
	out := make([]model.Interrupt, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.interrupts[id])
	}
	return out, nil
}

// UpdateInterruptState performs a guarded state transition.
func (m *MemStore) UpdateInterruptState(_ context.Context, id string, from []model.InterruptState, to model.InterruptState) (model.Interrupt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.Interrupt{}, false, fmt.Errorf("store is closed")
	}
	in, ok := m.interrupts[id]
	if !ok {
		return model.Interrupt{}, false, ErrNotFound
	}
	if !slices.Contains(from, in.State) {
		return in, false, nil
	}
	in.State = to
	in.UpdatedAt = m.now()
	m.interrupts[id] = in
	return in, true, nil
}

// MarkProcessed moves an active interrupt to a PROCESSED_* state.
func (m *MemStore) MarkProcessed(ctx context.Context, id string, terminal model.InterruptState) (model.Interrupt, error) {
	return markProcessed(ctx, m, id, terminal)
}

// SavePlan inserts or replaces a plan execution.
func (m *MemStore) SavePlan(_ context.Context, plan model.PlanExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}
	if plan.ID == "" {
		return fmt.Errorf("plan execution id is required")
	}
	now := m.now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	m.plans[plan.ID] = plan
	return nil
}

// GetPlan returns a plan execution by ID.
func (m *MemStore) GetPlan(_ context.Context, executionID string) (model.PlanExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return model.PlanExecution{}, fmt.Errorf("store is closed")
	}
	plan, ok := m.plans[executionID]
	if !ok {
		return model.PlanExecution{}, ErrNotFound
	}
	return plan, nil
}

// UpdatePlanStatus changes a non-terminal plan's status.
func (m *MemStore) UpdatePlanStatus(_ context.Context, executionID string, status model.PlanStatus) (model.PlanExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.PlanExecution{}, fmt.Errorf("store is closed")
	}
	plan, ok := m.plans[executionID]
	if !ok {
		return model.PlanExecution{}, ErrNotFound
	}
	if plan.Status.IsTerminal() {
		return plan, ErrPlanFinished
	}
	plan.Status = status
	plan.Version++
	plan.UpdatedAt = m.now()
	m.plans[executionID] = plan
	return plan, nil
}

// Close marks the store closed. Subsequent calls return an error.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// serializableMemStore is the JSON representation of MemStore.
type serializableMemStore struct {
	Nodes          map[string]model.ExecutionNode `json:"nodes"`
	NodeOrder      map[string][]string            `json:"node_order"`
	Interrupts     map[string]model.Interrupt     `json:"interrupts"`
	InterruptOrder map[string][]string            `json:"interrupt_order"`
	Plans          map[string]model.PlanExecution `json:"plans"`
}

// MarshalJSON snapshots the store contents.
//
// Thread-safe: acquires the read lock during serialization.
func (m *MemStore) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return json.Marshal(serializableMemStore{
		Nodes:          m.nodes,
		NodeOrder:      m.nodeOrder,
		Interrupts:     m.interrupts,
		InterruptOrder: m.interruptOrder,
		Plans:          m.plans,
	})
}

// UnmarshalJSON replaces the store contents with a snapshot.
func (m *MemStore) UnmarshalJSON(data []byte) error {
	var s serializableMemStore
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes = s.Nodes
	m.nodeOrder = s.NodeOrder
	m.interrupts = s.Interrupts
	m.interruptOrder = s.InterruptOrder
	m.plans = s.Plans

	// Initialize empty maps if nil (for empty JSON objects)
	if m.nodes == nil {
		m.nodes = make(map[string]model.ExecutionNode)
	}
	if m.nodeOrder == nil {
		m.nodeOrder = make(map[string][]string)
	}
	if m.interrupts == nil {
		m.interrupts = make(map[string]model.Interrupt)
	}
	if m.interruptOrder == nil {
		m.interruptOrder = make(map[string][]string)
	}
	if m.plans == nil {
		m.plans = make(map[string]model.PlanExecution)
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
