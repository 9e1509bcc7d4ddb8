package core

import (
	"github.com/memnet/memnet-go/pkg/llm"
	"github.com/memnet/memnet-go/pkg/storage"
)

// Memory is a stored memory item.
type Memory = storage.Memory

// SearchResult is a memory paired with its similarity to the query.
type SearchResult = storage.SearchResult

// Message is one conversation turn passed to Add.
type Message = llm.Message

// Events reported in MemoryActionResult.Event.
const (
	EventAdd    = "add"
	EventUpdate = "update"
)

// AddResult lists what an Add call did, one entry per stored fact, in the
// order the facts were processed.
type AddResult struct {
	Results []MemoryActionResult `json:"results"`
}

// MemoryActionResult describes one memory touched by Add.
type MemoryActionResult struct {
	// ID is the memory ID. For updates this is the ID of the merged memory.
	ID int64 `json:"id"`

	// Memory is the resulting memory text.
	Memory string `json:"memory"`

	// Event is EventAdd or EventUpdate.
	Event string `json:"event"`

	// PreviousMemory is the text the memory had before an update.
	PreviousMemory string `json:"previous_memory,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Counts returns how many results were adds and how many were updates.
func (r *AddResult) Counts() (added, updated int) {
	for _, res := range r.Results {
		switch res.Event {
		case EventAdd:
			added++
		case EventUpdate:
			updated++
		}
	}
	return added, updated
}
