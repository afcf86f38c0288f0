package postgres

import (
	"strings"
	"testing"

	"github.com/homeward/backoffice-go/internal/store"
)

func TestBuilder_RendersConditions(t *testing.T) {
	tests := []struct {
		name     string
		cond     store.Cond
		wantSQL  string
		wantArgs int
	}{
		{"eq", store.Eq("stage", "Approved"), "(doc #>> $1::text[]) = $2", 2},
		{"in", store.In("stage", "A", "B"), "(doc #>> $1::text[]) = ANY($2::text[])", 2},
		{"empty in", store.In("stage"), "false", 0},
		{"contains", store.Contains("offer_address.city", "aus"), "strpos(lower((doc #>> $1::text[])), lower($2::text)) > 0", 2},
		{"gte uses byte order", store.Gte("created_at", "2024-01-01"), `(doc #>> $1::text[]) COLLATE "C" >= $2`, 2},
		{"has element", store.HasElement("filter_status", "Archived"),
			"COALESCE(doc #> $1::text[] @> jsonb_build_array($2::text), false)", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &builder{}
			got := b.cond(tt.cond)
			if got != tt.wantSQL {
				t.Errorf("cond() = %q, want %q", got, tt.wantSQL)
			}
			if len(b.args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(b.args), tt.wantArgs)
			}
		})
	}
}

func TestBuilder_NotAndOrTreatNullAsFalse(t *testing.T) {
	b := &builder{}
	got := b.where([]store.Cond{
		store.Not(store.HasElement("filter_status", "Archived")),
		store.Or(store.Eq("buying_agent_id", "x"), store.Eq("listing_agent_id", "x")),
	})

	if !strings.HasPrefix(got, " WHERE NOT COALESCE(") {
		t.Errorf("unexpected where clause: %s", got)
	}
	if !strings.Contains(got, " AND (COALESCE((doc #>> $3::text[]) = $4, false) OR COALESCE(") {
		t.Errorf("or branch not wrapped: %s", got)
	}
	if len(b.args) != 6 {
		t.Errorf("args = %d, want 6", len(b.args))
	}
}

func TestBuilder_PathArgumentIsSplit(t *testing.T) {
	b := &builder{}
	b.cond(store.Eq("home_buying_location.city", "Austin"))

	path, ok := b.args[0].([]string)
	if !ok || len(path) != 2 || path[0] != "home_buying_location" || path[1] != "city" {
		t.Errorf("path arg = %#v", b.args[0])
	}
}
