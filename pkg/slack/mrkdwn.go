package slack

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// ToMrkdwn converts CommonMark, as written by most agents, to Slack's mrkdwn
// dialect.
func ToMrkdwn(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	r := mrkdwnRenderer{source: source}
	return r.blocks(doc, "\n\n")
}

type mrkdwnRenderer struct {
	source []byte
}

func (r *mrkdwnRenderer) blocks(parent ast.Node, sep string) string {
	var parts []string
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if s := r.block(n); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func (r *mrkdwnRenderer) block(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Heading:
		return "*" + r.inline(n) + "*"
	case *ast.ThematicBreak:
		return "───"
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return "```\n" + mrkdwnEscaper.Replace(r.lines(n)) + "```"
	case *ast.HTMLBlock:
		return mrkdwnEscaper.Replace(strings.TrimRight(r.lines(n), "\n"))
	case *ast.Blockquote:
		return prefixLines(r.blocks(n, "\n\n"), "> ", "> ")
	case *ast.List:
		return r.list(n)
	default:
		return r.inline(n)
	}
}

func (r *mrkdwnRenderer) list(l *ast.List) string {
	sep := "\n"
	if !l.IsTight {
		sep = "\n\n"
	}

	var items []string
	number := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if l.IsOrdered() {
			marker = strconv.Itoa(number) + "."
			number++
		}
		content := r.blocks(item, sep)
		items = append(items, prefixLines(content, marker+" ", strings.Repeat(" ", len([]rune(marker))+1)))
	}
	return strings.Join(items, sep)
}

func (r *mrkdwnRenderer) inline(parent ast.Node) string {
	var b strings.Builder

	_ = ast.Walk(parent, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if n == parent {
			return ast.WalkContinue, nil
		}

		switch n := n.(type) {
		case *ast.Text:
			if entering {
				b.WriteString(mrkdwnEscaper.Replace(string(n.Segment.Value(r.source))))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.WriteString(mrkdwnEscaper.Replace(string(n.Value)))
			}
		case *ast.Emphasis:
			if n.Level >= 2 {
				b.WriteString("*")
			} else {
				b.WriteString("_")
			}
		case *extast.Strikethrough:
			b.WriteString("~")
		case *ast.CodeSpan:
			if entering {
				b.WriteString("`" + mrkdwnEscaper.Replace(r.plain(n)) + "`")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			if entering {
				b.WriteString("<" + string(n.Destination) + "|")
			} else {
				b.WriteString(">")
			}
		case *ast.Image:
			if entering {
				b.WriteString("<" + string(n.Destination) + "|")
			} else {
				b.WriteString(">")
			}
		case *ast.AutoLink:
			if entering {
				url := string(n.URL(r.source))
				if n.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(url, "mailto:") {
					url = "mailto:" + url
				}
				b.WriteString("<" + url + ">")
			}
		case *ast.RawHTML:
			if entering {
				for i := 0; i < n.Segments.Len(); i++ {
					segment := n.Segments.At(i)
					b.WriteString(mrkdwnEscaper.Replace(string(segment.Value(r.source))))
				}
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// plain returns the text of n's descendants without any formatting.
func (r *mrkdwnRenderer) plain(n ast.Node) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(r.source))
		case *ast.String:
			b.Write(c.Value)
		default:
			b.WriteString(r.plain(c))
		}
	}
	return b.String()
}

func (r *mrkdwnRenderer) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(r.source))
	}
	return b.String()
}

// prefixLines prefixes the first line of s with first and every other
// line with rest.
func prefixLines(s, first, rest string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			lines[i] = first + line
		case line == "" && strings.TrimSpace(rest) == "":
			// keep blank lines blank
		default:
			lines[i] = rest + line
		}
	}
	return strings.Join(lines, "\n")
}
