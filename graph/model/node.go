package model

import "time"

// ExecutionNode is one unit of the execution tree (a stage, a step).
//
// ParentID owns the node for cascade purposes; PlanExecutionID is a
// back-reference only. Version is bumped on every status write and is the
// optimistic concurrency token.
type ExecutionNode struct {
	ID              string    `json:"id"`
	ParentID        string    `json:"parent_id,omitempty"`
	PlanExecutionID string    `json:"plan_execution_id"`
	Status          Status    `json:"status"`
	Version         int64     `json:"version"`
	Leaf            bool      `json:"leaf"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Root reports whether the node has no parent.
func (n ExecutionNode) Root() bool {
	return n.ParentID == ""
}

// PlanExecution is the whole running tree.
type PlanExecution struct {
	ID        string     `json:"id"`
	Status    PlanStatus `json:"status"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Subtree returns the IDs of rootID and every descendant found in nodes.
// Unknown rootIDs yield nil.
func Subtree(nodes []ExecutionNode, rootID string) []string {
	children := Children(nodes)
	found := false
	for _, n := range nodes {
		if n.ID == rootID {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	// Parent links are not trusted to be acyclic.
	ids := []string{rootID}
	seen := map[string]bool{rootID: true}
	for i := 0; i < len(ids); i++ {
		for _, c := range children[ids[i]] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Children indexes nodes by parent ID.
func Children(nodes []ExecutionNode) map[string][]ExecutionNode {
	out := make(map[string][]ExecutionNode)
	for _, n := range nodes {
		if n.ParentID != "" {
			out[n.ParentID] = append(out[n.ParentID], n)
		}
	}
	return out
}

// Ancestors returns the parent chain of nodeID, nearest first.
func Ancestors(nodes []ExecutionNode, nodeID string) []string {
	byID := make(map[string]ExecutionNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	var out []string
	seen := map[string]bool{nodeID: true}
	cur, ok := byID[nodeID]
	for ok && cur.ParentID != "" && !seen[cur.ParentID] {
		out = append(out, cur.ParentID)
		seen[cur.ParentID] = true
		cur, ok = byID[cur.ParentID]
	}
	return out
}
