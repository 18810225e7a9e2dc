package claim

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSQLStore_List(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var step time.Duration
	// Sub-second steps check that created_at ordering is numeric, not textual.
	store.now = func() time.Time {
		step += 250 * time.Millisecond
		return base.Add(step)
	}

	for i := range 5 {
		if _, err := store.Insert(ctx, fmt.Sprintf("dev-%d", i), HashToken(fmt.Sprintf("raw-%d", i)), ""); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	for _, i := range []int{1, 3} {
		if _, err := store.Claim(ctx, HashToken(fmt.Sprintf("raw-%d", i))); err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
	}

	uniqueIDs := func(p *DevicePage) []string {
		ids := make([]string, 0, len(p.Devices))
		for _, d := range p.Devices {
			ids = append(ids, d.UniqueID)
		}
		return ids
	}

	claimed, unclaimed := true, false
	tests := []struct {
		name      string
		filter    ListFilter
		wantIDs   []string
		wantTotal int
		wantLimit int
	}{
		{"all", ListFilter{}, []string{"dev-4", "dev-3", "dev-2", "dev-1", "dev-0"}, 5, DefaultPageSize},
		{"claimed", ListFilter{Claimed: &claimed}, []string{"dev-3", "dev-1"}, 2, DefaultPageSize},
		{"unclaimed", ListFilter{Claimed: &unclaimed}, []string{"dev-4", "dev-2", "dev-0"}, 3, DefaultPageSize},
		{"page", ListFilter{Limit: 2, Offset: 1}, []string{"dev-3", "dev-2"}, 5, 2},
		{"past end", ListFilter{Offset: 10}, []string{}, 5, DefaultPageSize},
		{"clamped", ListFilter{Limit: 10_000, Offset: -4}, []string{"dev-4", "dev-3", "dev-2", "dev-1", "dev-0"}, 5, MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantIDs, uniqueIDs(page)); diff != "" {
				t.Errorf("devices mismatch (-want +got):\n%s", diff)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
			if page.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", page.Limit, tt.wantLimit)
			}
			if page.Offset < 0 {
				t.Errorf("Offset = %d, want non-negative", page.Offset)
			}
		})
	}

	page, err := store.List(ctx, ListFilter{Claimed: &claimed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, d := range page.Devices {
		if !d.Claimed || d.ClaimedAt == nil {
			t.Errorf("device %s: Claimed = %v, ClaimedAt = %v", d.UniqueID, d.Claimed, d.ClaimedAt)
		}
	}
}

func TestListFilterNormalise(t *testing.T) {
	tests := []struct {
		in   ListFilter
		want ListFilter
	}{
		{ListFilter{}, ListFilter{Limit: DefaultPageSize}},
		{ListFilter{Limit: 10, Offset: 5}, ListFilter{Limit: 10, Offset: 5}},
		{ListFilter{Limit: MaxPageSize + 1}, ListFilter{Limit: MaxPageSize}},
		{ListFilter{Limit: -1, Offset: -3}, ListFilter{Limit: DefaultPageSize}},
	}
	for _, tt := range tests {
		if got := tt.in.normalise(); got != tt.want {
			t.Errorf("normalise(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
