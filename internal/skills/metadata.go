package skills

import "strings"

// Metadata is what a skill declares about itself in its leading comment
// block:
//
//	-- Explore until something interesting happens.
//	-- Category: exploration
//	-- Stops when: hostiles appear or the level is fully explored
//	function explore(game, args) ... end
//
// Untagged lines become the description; the block ends at the first
// non-comment line.
type Metadata struct {
	Description   string
	Category      string
	StopCondition string
}

const defaultCategory = "general"

// ExtractMetadata parses the leading comment block of a fragment.
func ExtractMetadata(source string) Metadata {
	md := Metadata{Category: defaultCategory}
	var desc []string

	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "--") {
			break
		}
		text := strings.TrimSpace(strings.TrimLeft(trimmed, "-"))
		switch {
		case hasTag(text, "Category:"):
			md.Category = tagValue(text, "Category:")
		case hasTag(text, "Stops when:"):
			md.StopCondition = tagValue(text, "Stops when:")
		case text != "":
			desc = append(desc, text)
		}
	}

	md.Description = strings.Join(desc, " ")
	if md.Category == "" {
		md.Category = defaultCategory
	}
	return md
}

func hasTag(text, tag string) bool {
	return len(text) >= len(tag) && strings.EqualFold(text[:len(tag)], tag)
}

func tagValue(text, tag string) string {
	return strings.TrimSpace(text[len(tag):])
}
