// Package event defines the ordered, tagged events emitted by the tokenstream
// parsers. Every stage of the pipeline (line machine, segmenter, tool-call
// assembler, image extraction) produces values of Event; a single Emitter per
// stream stamps them with a strictly increasing sequence number and fans them
// out to subscribers.
package event

// Type is the tag of an Event. Exactly one payload field of Event is populated
// for a given Type.
type Type string

const (
	// TypeFragment is a line fragment from the line state machine.
	TypeFragment Type = "fragment"

	// TypeBracket marks the opening or closing of a brace-delimited block.
	TypeBracket Type = "bracket"

	// TypeInBracket carries content found inside a brace-delimited block.
	TypeInBracket Type = "inBracket"

	TypeTextStart    Type = "text.start"
	TypeTextFragment Type = "text.fragment"
	TypeTextEnd      Type = "text.end"

	TypeCodeStart    Type = "code.start"
	TypeCodeFragment Type = "code.fragment"
	TypeCodeEnd      Type = "code.end"

	TypeToolStart     Type = "tool.start"
	TypeToolArguments Type = "tool.arguments"
	TypeToolComplete  Type = "tool.complete"

	// TypeImage carries one generated image, base64 or URL.
	TypeImage Type = "or.image"

	// TypeDone is emitted when the terminal sentinel frame is seen.
	TypeDone Type = "or.done"

	// TypeStreamEnd is always the last event of a stream.
	TypeStreamEnd Type = "or.stream-end"

	// TypeStats is a snapshot of segmenter counters.
	TypeStats Type = "stats"
)

// Position identifies where an in-bracket fragment sits within its block.
type Position string

const (
	PositionFirst  Position = "first"
	PositionMiddle Position = "middle"
	PositionLast   Position = "last"
)

// Event is the externally observed unit of the parser output.
type Event struct {
	// Seq strictly increases across all events of one parser instance.
	// Gaps carry no meaning.
	Seq uint64 `json:"seq"`

	Type Type `json:"type"`

	Fragment *Fragment `json:"fragment,omitempty"`
	Bracket  *Bracket  `json:"bracket,omitempty"`
	Section  *Section  `json:"section,omitempty"`
	Tool     *Tool     `json:"tool,omitempty"`
	Image    *Image    `json:"image,omitempty"`
	Done     *Done     `json:"done,omitempty"`
	End      *End      `json:"end,omitempty"`
	Stats    *Stats    `json:"stats,omitempty"`
}

// Fragment is emitted by the line state machine, either for free text lines
// (TypeFragment) or for content inside a bracket block (TypeInBracket).
type Fragment struct {
	// Seq resets to 0 at every new line or bracket block.
	Seq int `json:"seq"`

	LineNr  int `json:"line_nr"`
	BlockID int `json:"block_id"`

	// Content is the text delta carried by this fragment. In line mode,
	// concatenating the Content of all fragments reproduces the input text.
	Content string `json:"content"`

	// Complete reports whether this fragment terminates its line.
	Complete bool `json:"complete,omitempty"`

	// Line is the line accumulated so far in line mode. On complete
	// fragments it is the whole line, newline included.
	Line string `json:"line,omitempty"`

	// Position is set on in-bracket fragments only.
	Position Position `json:"position,omitempty"`
}

// Bracket marks a transition into or out of a brace-delimited block.
type Bracket struct {
	BlockID int  `json:"block_id"`
	Open    bool `json:"open"`

	// Forced is set when the block was closed by stream end rather than by a
	// closing brace.
	Forced bool `json:"forced,omitempty"`
}

// SectionKind distinguishes prose sections from fenced code sections.
type SectionKind string

const (
	KindProse SectionKind = "prose"
	KindCode  SectionKind = "code"
)

// Section is the payload of the text.* and code.* events.
type Section struct {
	ID    string      `json:"id"`
	Index int         `json:"index"`
	Kind  SectionKind `json:"kind"`

	// Language is the fence tag of a code section, empty when none was given.
	Language string `json:"language,omitempty"`

	// LineNr is the line number within the section for fragment events.
	LineNr int `json:"line_nr,omitempty"`

	Content      string `json:"content,omitempty"`
	LineComplete bool   `json:"line_complete,omitempty"`

	// Lines is the aggregate line count, set on end events.
	Lines int `json:"lines,omitempty"`

	// Forced is set on end events produced by stream end.
	Forced bool `json:"forced,omitempty"`
}

// Tool is the payload of the tool.* events.
type Tool struct {
	Index  int    `json:"index"`
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name,omitempty"`

	// Arguments is the fragment on tool.arguments and the full accumulated
	// string on tool.complete.
	Arguments string `json:"arguments"`

	// Repaired is only set by consumers that rewrite the arguments of a
	// tool.complete event after assembly.
	Repaired bool `json:"repaired,omitempty"`
}

// Image is the payload of or.image events.
type Image struct {
	Index int    `json:"index"`
	B64   string `json:"b64,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Done is the payload of or.done.
type Done struct {
	FinishReason string `json:"finish_reason,omitempty"`
}

// End is the payload of or.stream-end.
type End struct {
	// Graceful is true when the terminal sentinel was seen before the end.
	Graceful bool `json:"graceful"`
}

// Stats is a segmenter snapshot.
type Stats struct {
	OpenSection   int  `json:"open_section"`
	TotalLines    int  `json:"total_lines"`
	ProseSections int  `json:"prose_sections"`
	CodeBlocks    int  `json:"code_blocks"`
	FenceToggles  int  `json:"fence_toggles"`
	OpenIsCode    bool `json:"open_is_code,omitempty"`
}
