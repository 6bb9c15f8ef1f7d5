package drift

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/openfroyo/deckhand/pkg/engine"
)

// element is a generic XML element. Attributes are kept sorted by name.
// Text is kept as written, e.g. a script body keeps its indentation, and
// compared trimmed so two documents that differ only in layout are equal.
type element struct {
	Name     string
	Attrs    []xml.Attr
	Text     string
	Children []*element
}

func (e *element) child(name string) *element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *element) removeChildren(name string) {
	kept := e.Children[:0]
	for _, c := range e.Children {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	e.Children = kept
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) removeAttr(name string) {
	kept := e.Attrs[:0]
	for _, a := range e.Attrs {
		if a.Name.Local != name {
			kept = append(kept, a)
		}
	}
	e.Attrs = kept
}

func newElement(name string, attrs ...string) *element {
	e := &element{Name: name}
	for i := 0; i+1 < len(attrs); i += 2 {
		e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
	}
	sortAttrs(e.Attrs)
	return e
}

func sortAttrs(attrs []xml.Attr) {
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name.Local < attrs[j].Name.Local })
}

func parseXML(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		root  *element
		stack []*element
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			e := &element{Name: t.Name.Local}
			for _, a := range t.Attr {
				e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: a.Name.Local}, Value: a.Value})
			}
			sortAttrs(e.Attrs)
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("more than one root element")
				}
				root = e
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, e)
			}
			stack = append(stack, e)
		case xml.EndElement:
			top := stack[len(stack)-1]
			if strings.TrimSpace(top.Text) == "" {
				top.Text = ""
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	return root, nil
}

func (e *element) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}, Attr: e.Attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func normalizeXML(name string, data []byte) (*Document, error) {
	if isBlank(data) {
		return &Document{Absent: true}, nil
	}

	root, err := parseXML(data)
	if err != nil {
		return nil, engine.NewValidationError("failed to parse job XML", err).
			WithOperation("normalize")
	}
	if root == nil {
		return &Document{Absent: true}, nil
	}

	var jobs []*element
	switch root.Name {
	case "joblist":
		for _, c := range root.Children {
			if c.Name == "job" {
				jobs = append(jobs, c)
			}
		}
	case "job":
		jobs = []*element{root}
	default:
		return nil, engine.NewValidationError("job XML root must be <joblist> or <job>, got <"+root.Name+">", nil).
			WithOperation("normalize")
	}

	switch {
	case len(jobs) == 0:
		return &Document{Absent: true}, nil
	case len(jobs) > 1:
		return nil, multipleJobs(len(jobs))
	}

	job := jobs[0]
	for _, f := range systemFields {
		job.removeChildren(f)
	}
	if ctx := job.child("context"); ctx != nil {
		ctx.removeChildren("project")
	}

	if n := job.child("name"); n != nil {
		n.Text = name
	} else {
		job.Children = append([]*element{{Name: "name", Text: name}}, job.Children...)
	}

	if sched := job.child("schedule"); sched != nil {
		if expr, ok := sched.attr("crontab"); ok {
			s, err := ParseCrontab(expr)
			if err != nil {
				return nil, err
			}
			sched.removeAttr("crontab")
			sched.Children = append(sched.Children,
				newElement("time", "seconds", s.Seconds, "minute", s.Minute, "hour", s.Hour),
				newElement("month", "month", s.Month),
			)
			if s.DayOfMonth != "" {
				sched.Children = append(sched.Children, newElement("dayofmonth", "day", s.DayOfMonth))
			} else {
				sched.Children = append(sched.Children, newElement("weekday", "day", s.Weekday))
			}
			if s.Year != "" {
				sched.Children = append(sched.Children, newElement("year", "year", s.Year))
			}
		}
	}

	tree := &element{Name: "joblist", Children: []*element{job}}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := tree.encode(enc); err != nil {
		return nil, engine.NewInternalError("failed to encode job XML", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, engine.NewInternalError("failed to encode job XML", err)
	}
	buf.WriteByte('\n')

	return &Document{Canonical: buf.Bytes(), tree: tree}, nil
}

func (e *element) equal(o *element) bool {
	if e.Name != o.Name || strings.TrimSpace(e.Text) != strings.TrimSpace(o.Text) || len(e.Attrs) != len(o.Attrs) || len(e.Children) != len(o.Children) {
		return false
	}
	for i := range e.Attrs {
		if e.Attrs[i].Name.Local != o.Attrs[i].Name.Local || e.Attrs[i].Value != o.Attrs[i].Value {
			return false
		}
	}
	for i := range e.Children {
		if !e.Children[i].equal(o.Children[i]) {
			return false
		}
	}
	return true
}
