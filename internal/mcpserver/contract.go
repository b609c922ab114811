package mcpserver

// PostFormatContract describes the canonical document format that LLM
// consumers should follow when drafting posts.
const PostFormatContract = `# Hearth Post Format Contract

Every document stored in the corpus MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title         # OPTIONAL - falls back to the referenced post's title
published: 2025-01-20T12:00:00Z     # OPTIONAL - RFC 3339; drives feed and listing order
tags:                               # OPTIONAL - YAML list; inference rules run at render time
  - tag-one
  - tag-two
author:                             # OPTIONAL - identity of the post author
  url: https://example.com/alice
  display_name: Alice
  handle: alice
references:                         # OPTIONAL - corpus paths this post replies to or shares
  - posts/123.html
transparent: false                  # OPTIONAL - true for a share with no commentary
---

Body in standard Markdown (for .md files) or a pre-sanitized HTML
fragment (for .html files).
` + "```" + `

## Rules

1. **Front matter fences** (` + "`" + `---` + "`" + `) must be the first thing in the file when
   front matter is present. A file without front matter is all body.
2. **Drafts use the ` + "`" + `.md` + "`" + ` extension**; imported archive documents use ` + "`" + `.html` + "`" + `.
3. **published** is RFC 3339 with timezone. Posts without it sort last.
4. **references** are corpus-relative paths, one level deep: the posts this
   post directly replies to or shares, never their ancestors.
5. **transparent: true** suppresses the body; the post exists only to carry
   its references.
6. **Tags** are stored exactly as authored. Renames and implications from the
   site's tag rules are applied at render time, not at write time.
7. **Encoding** is UTF-8 with a trailing newline.

## Example

` + "```" + `markdown
---
title: Birdwatching log
published: 2025-01-20T09:30:00Z
tags:
  - birds
---

Saw three herons by the river this morning.
` + "```" + `
`
