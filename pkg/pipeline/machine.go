// Package pipeline wires the index and sync subsystems into the
// Runtime's Machine layer: pure event-to-command deciders that chain
// "extract found a collection" into "sync that collection against
// stored state", matching spec.md §2's control flow (Runtime →
// Machines decide commands → Dispatcher runs effects → events →
// further commands).
package pipeline

import (
	"github.com/civicsync/civicsync/pkg/pipeline/index"
	"github.com/civicsync/civicsync/pkg/pipeline/sync"
	"github.com/civicsync/civicsync/pkg/runtime"
)

// ExtractRequestMachine turns an edge-originated ExtractRequested
// input into an inline index.Command.
var ExtractRequestMachine = runtime.MachineFunc(func(event runtime.Event) (runtime.Command, bool) {
	req, ok := event.(index.ExtractRequested)
	if !ok {
		return nil, false
	}
	return index.Command{WebsiteID: req.WebsiteID, Query: req.Query, Mode: runtime.Inline()}, true
})

// SyncRequestMachine turns an edge-originated SyncRequested input into
// an inline sync.Command.
var SyncRequestMachine = runtime.MachineFunc(func(event runtime.Event) (runtime.Command, bool) {
	req, ok := event.(sync.SyncRequested)
	if !ok {
		return nil, false
	}
	return sync.Command{
		WebsiteID:    req.WebsiteID,
		ResourceKind: req.ResourceKind,
		EntityType:   req.EntityType,
		Fresh:        req.Fresh,
		Existing:     req.Existing,
		Mode:         runtime.Inline(),
	}, true
})

// ExtractedToSyncMachine reacts to a successful Extracted fact whose
// strategy is Collection (the shape that maps onto discrete entities
// worth diffing) by emitting one sync.Command whose fresh set holds one
// entity per bucket, typed by the machine's EntityType and
// ResourceKind. Singular/Narrative extractions answer a one-off
// question and have no entity collection to sync.
type ExtractedToSyncMachine struct {
	ResourceKind string
	EntityType   string
	LoadExisting func(websiteID string) ([]sync.ExistingEntity, error)
}

func (m ExtractedToSyncMachine) Decide(event runtime.Event) (runtime.Command, bool) {
	ex, ok := event.(index.Extracted)
	if !ok || ex.Result.Strategy != index.StrategyCollection || len(ex.Result.Buckets) == 0 {
		return nil, false
	}

	fresh := make([]sync.FreshEntity, 0, len(ex.Result.Buckets))
	for _, b := range ex.Result.Buckets {
		fresh = append(fresh, sync.FreshEntity{
			TempID:      b.Label,
			Title:       b.Label,
			Description: b.Summary,
		})
	}

	var existing []sync.ExistingEntity
	if m.LoadExisting != nil {
		loaded, err := m.LoadExisting(ex.WebsiteID)
		if err == nil {
			existing = loaded
		}
	}

	return sync.Command{
		WebsiteID:    ex.WebsiteID,
		ResourceKind: m.ResourceKind,
		EntityType:   m.EntityType,
		Fresh:        fresh,
		Existing:     existing,
		Mode:         runtime.Inline(),
	}, true
}
