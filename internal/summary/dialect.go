package summary

// Dialect selects which format-instruction variant is rendered into the
// prompt. There are exactly two: one for Slack's chat markdown, one for
// document markdown (issue bodies).
type Dialect int

const (
	DialectMarkdown Dialect = iota
	DialectSlack
)

func (d Dialect) String() string {
	if d == DialectSlack {
		return "slack"
	}
	return "markdown"
}

// Instructions returns the literal instruction block for the dialect.
func (d Dialect) Instructions() string {
	if d == DialectSlack {
		return slackInstructions
	}
	return markdownInstructions
}

const slackInstructions = "Format the summary for Slack: use *bold* for emphasis, " +
	"bullet lines starting with \"•\", and <url|text> for links. " +
	"Do not use Markdown headings or tables."

const markdownInstructions = "Format the summary as standard Markdown: " +
	"use \"##\" headings for sections, \"-\" bullet lists, and [text](url) for links."
