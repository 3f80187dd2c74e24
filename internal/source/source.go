package source

import "context"

// Player is one candidate work item from the source database.
type Player struct {
	ID          int64
	ImageURL    string
	Name        string
	DisplayName string
}

// DisplayLabel returns the name to use in logs and progress output.
func (p Player) DisplayLabel() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	return "Unknown"
}

// Provider returns candidate players. Implementations must preserve a
// stable order and never return the same ID twice within one call.
type Provider interface {
	// List returns players matching filter, up to limit (<= 0 = all).
	List(ctx context.Context, filter map[string]string, limit int) ([]Player, error)
	// ByIDs returns the players with the given ids, in id order.
	ByIDs(ctx context.Context, ids []int64) ([]Player, error)
}
