package extract

import (
	"encoding/json"
	"fmt"

	"github.com/starford/hearth/internal/apperr"
)

// Block type discriminators in the export format.
const (
	blockMarkdown      = "markdown"
	blockAttachment    = "attachment"
	blockAsk           = "ask"
	blockAttachmentRow = "attachment-row"
)

// RawAuthor is the author triple carried by every exported post.
type RawAuthor struct {
	URL         string `json:"url"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
}

// RawMarkdown is the payload of a markdown block.
type RawMarkdown struct {
	Content string `json:"content"`
}

// RawAttachment is the payload of an attachment block. Kind selects which of
// the optional fields are meaningful.
type RawAttachment struct {
	Kind         string `json:"kind"` // "image" or "audio"
	AttachmentID string `json:"attachmentId"`
	AltText      string `json:"altText,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Artist       string `json:"artist,omitempty"`
	Title        string `json:"title,omitempty"`
}

// RawAsk is the payload of an ask block. Asker is nil for anonymous asks.
type RawAsk struct {
	Content string     `json:"content"`
	Asker   *RawAuthor `json:"asker,omitempty"`
}

// RawBlock is one ordered content block. Exactly one payload field is set,
// matching Type; unknown types carry none and are skipped with a warning.
type RawBlock struct {
	Type        string         `json:"type"`
	Markdown    *RawMarkdown   `json:"markdown,omitempty"`
	Attachment  *RawAttachment `json:"attachment,omitempty"`
	Ask         *RawAsk        `json:"ask,omitempty"`
	Attachments []RawBlock     `json:"attachments,omitempty"`
}

// RawPost is one exported post. Ancestors is the flat reply chain this post
// was published under, ordered from the top of the thread down.
type RawPost struct {
	ID               int64      `json:"id"`
	Filename         string     `json:"filename"`
	Headline         string     `json:"headline"`
	PublishedAt      string     `json:"publishedAt"`
	Tags             []string   `json:"tags"`
	Author           RawAuthor  `json:"author"`
	TransparentShare bool       `json:"transparentShare"`
	Ancestors        []*RawPost `json:"ancestors,omitempty"`
	Blocks           []RawBlock `json:"blocks"`
}

// ParseRawPost decodes one exported post. A post without an id cannot be
// placed in the archive, so that is malformed, not skippable.
func ParseRawPost(data []byte) (*RawPost, error) {
	var post RawPost
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("extract: decode post: %v: %w", err, apperr.ErrMalformed)
	}
	if post.ID == 0 {
		return nil, fmt.Errorf("extract: post has no id: %w", apperr.ErrMalformed)
	}
	return &post, nil
}
