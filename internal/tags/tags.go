// Package tags rewrites a post's raw tag set through rename rules and
// implication rules into the final tag set used by the renderer.
package tags

// Rules holds the two static rule sets consumed by Infer. Renames are
// applied first so that implication rules can be authored against
// normalized spellings.
type Rules struct {
	// Renames maps a raw tag to its replacement. Not recursive: a renamed
	// tag is not re-checked against the table.
	Renames map[string]string `yaml:"renames"`

	// Implications maps a tag (post-rename) to the tags it implies, in the
	// order they should appear.
	Implications map[string][]string `yaml:"implications"`
}

// Infer applies the rename pass then the implication pass.
//
// Implied tags are spliced immediately before the tag that implies them, so
// general tags precede specific ones. Duplicates produced by implication are
// preserved; downstream consumers dedupe if they care.
func (r Rules) Infer(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}

	renamed := make([]string, len(raw))
	for i, tag := range raw {
		if to, ok := r.Renames[tag]; ok {
			tag = to
		}
		renamed[i] = tag
	}

	out := make([]string, 0, len(renamed))
	for _, tag := range renamed {
		if implied, ok := r.Implications[tag]; ok {
			out = append(out, implied...)
		}
		out = append(out, tag)
	}
	return out
}
