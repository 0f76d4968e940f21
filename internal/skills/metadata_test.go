package skills

import "testing"

func TestExtractMetadata(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   Metadata
	}{
		{
			name: "full block",
			source: `-- Explore until something interesting happens.
-- Category: exploration
-- Stops when: hostiles appear or the level is fully explored
function explore(game, args)
  return game:autoexplore()
end`,
			want: Metadata{
				Description:   "Explore until something interesting happens.",
				Category:      "exploration",
				StopCondition: "hostiles appear or the level is fully explored",
			},
		},
		{
			name: "multi-line description",
			source: `-- Fight the nearest hostile.
-- Keeps attacking until it dies or we drop below half HP.
-- Category: combat
function fight(game, args) end`,
			want: Metadata{
				Description: "Fight the nearest hostile. Keeps attacking until it dies or we drop below half HP.",
				Category:    "combat",
			},
		},
		{
			name:   "no comment block",
			source: `function f(g) return 1 end`,
			want:   Metadata{Category: "general"},
		},
		{
			name: "block ends at first code line",
			source: `-- Description here.
function f(g) end
-- Category: ignored`,
			want: Metadata{Description: "Description here.", Category: "general"},
		},
		{
			name: "case-insensitive tags",
			source: `-- category: items
-- stops when: inventory is full
function grab(g) end`,
			want: Metadata{Category: "items", StopCondition: "inventory is full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMetadata(tt.source)
			if got != tt.want {
				t.Errorf("ExtractMetadata =\n  %+v\nwant\n  %+v", got, tt.want)
			}
		})
	}
}
