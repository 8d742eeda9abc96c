// Package export reads a Pocket HTML export file and serves it as a paged
// source, for accounts where the live API is no longer reachable.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/readlater-migrate/internal/migrate"
)

type parseState int

const (
	stateOutside parseState = iota
	stateHeading
	stateLink
)

type section int

const (
	sectionNone section = iota
	sectionUnread
	sectionArchive
)

// parser walks the token stream of an export file. Headings switch the
// current section; every anchor inside a section becomes one record.
type parser struct {
	state   parseState
	section section
	text    strings.Builder
	current migrate.RawRecord
	records []migrate.RawRecord
}

// Parse reads an export document. contentType may be empty, in which case
// the encoding is sniffed from the document.
func Parse(r io.Reader, contentType string) ([]migrate.RawRecord, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detect export encoding: %w", err)
	}

	p := &parser{}
	z := html.NewTokenizer(utf8)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize export: %w", err)
			}
			p.flushLink()
			return p.records, nil
		case html.StartTagToken:
			p.start(z)
		case html.EndTagToken:
			name, _ := z.TagName()
			p.end(string(name))
		case html.TextToken:
			if p.state == stateHeading || p.state == stateLink {
				p.text.Write(z.Text())
			}
		}
	}
}

func (p *parser) start(z *html.Tokenizer) {
	name, hasAttr := z.TagName()
	switch string(name) {
	case "h1", "h2":
		p.flushLink()
		p.state = stateHeading
		p.text.Reset()
	case "a":
		if p.section == sectionNone {
			return
		}
		p.flushLink()
		p.current = migrate.RawRecord{IsArchived: p.section == sectionArchive}
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			p.attr(string(key), string(val))
		}
		if p.current.URL == "" {
			return
		}
		p.state = stateLink
		p.text.Reset()
	}
}

func (p *parser) attr(key, val string) {
	switch key {
	case "href":
		p.current.URL = strings.TrimSpace(val)
	case "time_added":
		if ts, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			p.current.CreatedAt = ts
		}
	case "tags":
		for _, tag := range strings.Split(val, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				p.current.Tags = append(p.current.Tags, tag)
			}
		}
	}
}

func (p *parser) end(name string) {
	switch {
	case p.state == stateHeading && (name == "h1" || name == "h2"):
		p.section = sectionFor(p.text.String())
		p.state = stateOutside
	case p.state == stateLink && name == "a":
		p.flushLink()
	}
}

func (p *parser) flushLink() {
	if p.state != stateLink {
		return
	}
	p.current.Title = strings.Join(strings.Fields(p.text.String()), " ")
	if p.current.Title == "" {
		p.current.Title = p.current.URL
	}
	p.current.ID = strconv.Itoa(len(p.records) + 1)
	p.records = append(p.records, p.current)
	p.current = migrate.RawRecord{}
	p.text.Reset()
	p.state = stateOutside
}

func sectionFor(heading string) section {
	h := strings.ToLower(strings.TrimSpace(heading))
	switch {
	case strings.Contains(h, "unread"):
		return sectionUnread
	case strings.Contains(h, "archive"), strings.HasPrefix(h, "read"):
		return sectionArchive
	default:
		return sectionNone
	}
}
