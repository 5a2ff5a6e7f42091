package docxfill

import (
	"strings"

	"github.com/beevik/etree"
)

// part is a parsed WordprocessingML part. w is the prefix bound to the main
// namespace in that part, almost always "w".
type part struct {
	name string
	doc  *etree.Document
	w    string
}

func (d *Docx) part(name string) (*part, error) {
	doc, err := d.parsed(name)
	if err != nil {
		return nil, err
	}
	return &part{name: name, doc: doc, w: wordPrefix(doc.Root())}, nil
}

// wordPrefix finds the prefix declared for the WordprocessingML namespace on
// the root element. An empty string means it is the default namespace.
func wordPrefix(root *etree.Element) string {
	if root == nil {
		return "w"
	}
	for _, a := range root.Attr {
		if a.Value != NamespaceW {
			continue
		}
		if a.Space == "xmlns" {
			return a.Key
		}
		if a.Space == "" && a.Key == "xmlns" {
			return ""
		}
	}
	return "w"
}

// is reports whether el is the WordprocessingML element with the given local name.
func (p *part) is(el *etree.Element, local string) bool {
	return el.Space == p.w && el.Tag == local
}

func (p *part) tag(local string) string {
	if p.w == "" {
		return local
	}
	return p.w + ":" + local
}

func (p *part) newElement(local string) *etree.Element {
	return etree.NewElement(p.tag(local))
}

func (p *part) child(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if p.is(c, local) {
			return c
		}
	}
	return nil
}

func (p *part) attr(el *etree.Element, local string) string {
	return el.SelectAttrValue(p.tag(local), "")
}

// containers returns the elements whose children are block-level content.
func (p *part) containers() []*etree.Element {
	root := p.doc.Root()
	if root == nil {
		return nil
	}
	switch {
	case p.is(root, "document"):
		if body := p.child(root, "body"); body != nil {
			return []*etree.Element{body}
		}
		return nil
	case p.is(root, "footnotes"), p.is(root, "endnotes"):
		var out []*etree.Element
		for _, c := range root.ChildElements() {
			if p.is(c, "footnote") || p.is(c, "endnote") {
				out = append(out, c)
			}
		}
		return out
	default:
		return []*etree.Element{root}
	}
}

// blocks collects direct paragraphs and tables of a container, looking
// through block-level content controls and custom XML wrappers.
func (p *part) blocks(container *etree.Element) (paras, tables []*etree.Element) {
	for _, c := range container.ChildElements() {
		switch {
		case p.is(c, "p"):
			paras = append(paras, c)
		case p.is(c, "tbl"):
			tables = append(tables, c)
		case p.is(c, "sdt"):
			if content := p.child(c, "sdtContent"); content != nil {
				ps, ts := p.blocks(content)
				paras = append(paras, ps...)
				tables = append(tables, ts...)
			}
		case p.is(c, "customXml"):
			ps, ts := p.blocks(c)
			paras = append(paras, ps...)
			tables = append(tables, ts...)
		}
	}
	return paras, tables
}

// bodyParagraphs returns the block-level paragraphs of the part, outside tables.
func (p *part) bodyParagraphs() []*etree.Element {
	var out []*etree.Element
	for _, c := range p.containers() {
		paras, _ := p.blocks(c)
		out = append(out, paras...)
	}
	return out
}

// tableParagraphs returns every paragraph of every cell of every table,
// nested tables included, in document order per table.
func (p *part) tableParagraphs() []*etree.Element {
	var out []*etree.Element
	for _, c := range p.containers() {
		_, tables := p.blocks(c)
		for _, tbl := range tables {
			out = append(out, p.cellParagraphs(tbl)...)
		}
	}
	return out
}

func (p *part) cellParagraphs(tbl *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, row := range p.rows(tbl) {
		for _, cell := range row.ChildElements() {
			if !p.is(cell, "tc") {
				continue
			}
			paras, nested := p.blocks(cell)
			out = append(out, paras...)
			for _, t := range nested {
				out = append(out, p.cellParagraphs(t)...)
			}
		}
	}
	return out
}

func (p *part) rows(tbl *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, c := range tbl.ChildElements() {
		switch {
		case p.is(c, "tr"):
			out = append(out, c)
		case p.is(c, "sdt"), p.is(c, "customXml"):
			inner := c
			if content := p.child(c, "sdtContent"); content != nil {
				inner = content
			}
			for _, r := range inner.ChildElements() {
				if p.is(r, "tr") {
					out = append(out, r)
				}
			}
		}
	}
	return out
}

// allParagraphs returns every paragraph of the part in document order,
// table cells and content controls included.
func (p *part) allParagraphs() []*etree.Element {
	var out []*etree.Element
	for _, c := range p.containers() {
		out = append(out, p.orderedParagraphs(c)...)
	}
	return out
}

func (p *part) orderedParagraphs(container *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, c := range container.ChildElements() {
		switch {
		case p.is(c, "p"):
			out = append(out, c)
		case p.is(c, "tbl"):
			for _, row := range p.rows(c) {
				for _, cell := range row.ChildElements() {
					if p.is(cell, "tc") {
						out = append(out, p.orderedParagraphs(cell)...)
					}
				}
			}
		case p.is(c, "sdt"):
			if content := p.child(c, "sdtContent"); content != nil {
				out = append(out, p.orderedParagraphs(content)...)
			}
		case p.is(c, "customXml"):
			out = append(out, p.orderedParagraphs(c)...)
		}
	}
	return out
}

// Inline wrappers whose runs belong to the enclosing paragraph.
var runContainers = map[string]bool{
	"hyperlink": true,
	"ins":       true,
	"smartTag":  true,
	"customXml": true,
	"fldSimple": true,
	"dir":       true,
	"bdo":       true,
}

// runs returns the runs of a paragraph in document order. It never looks
// inside a run, so text boxes anchored in a run are not part of the result.
func (p *part) runs(para *etree.Element) []*etree.Element {
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			if c.Space != p.w {
				continue
			}
			switch {
			case c.Tag == "r":
				out = append(out, c)
			case runContainers[c.Tag]:
				walk(c)
			case c.Tag == "sdt":
				if content := p.child(c, "sdtContent"); content != nil {
					walk(content)
				}
			}
		}
	}
	walk(para)
	return out
}

// runText is the visible text of one run.
func (p *part) runText(run *etree.Element) string {
	var b strings.Builder
	for _, c := range run.ChildElements() {
		if c.Space != p.w {
			continue
		}
		switch c.Tag {
		case "t":
			b.WriteString(c.Text())
		case "tab", "ptab":
			b.WriteByte('\t')
		case "cr":
			b.WriteByte('\n')
		case "br":
			if isLineBreak(p.attr(c, "type")) {
				b.WriteByte('\n')
			}
		case "noBreakHyphen":
			b.WriteByte('-')
		}
	}
	return b.String()
}

func isLineBreak(typ string) bool {
	return typ == "" || typ == "textWrapping"
}

// textBearing reports whether el contributes characters to runText.
func (p *part) textBearing(el *etree.Element) bool {
	if el.Space != p.w {
		return false
	}
	switch el.Tag {
	case "t", "tab", "ptab", "cr", "noBreakHyphen":
		return true
	case "br":
		return isLineBreak(p.attr(el, "type"))
	}
	return false
}

func (p *part) joinRuns(runs []*etree.Element) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(p.runText(r))
	}
	return b.String()
}

func (p *part) paragraphText(para *etree.Element) string {
	return p.joinRuns(p.runs(para))
}

// setRunText replaces the text-bearing children of run with text. Run
// properties and non-text content (drawings, field characters, page breaks)
// are kept in place.
func (p *part) setRunText(run *etree.Element, text string) {
	at := -1
	for i := len(run.Child) - 1; i >= 0; i-- {
		if el, ok := run.Child[i].(*etree.Element); ok && p.textBearing(el) {
			run.RemoveChildAt(i)
			at = i
		}
	}
	if at < 0 {
		at = len(run.Child)
	}
	for _, el := range p.textElements(text) {
		run.InsertChildAt(at, el)
		at++
	}
}

// textElements renders text as w:t, w:tab and w:br elements.
func (p *part) textElements(text string) []*etree.Element {
	var out []*etree.Element
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, p.newText(buf.String()))
		buf.Reset()
	}

	for _, r := range text {
		switch r {
		case '\t':
			flush()
			out = append(out, p.newElement("tab"))
		case '\n', '\r':
			flush()
			out = append(out, p.newElement("br"))
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return out
}

func (p *part) newText(s string) *etree.Element {
	t := p.newElement("t")
	setPreserve(t, s)
	t.SetText(s)
	return t
}

// setPreserve keeps leading and trailing spaces from being dropped by Word.
func setPreserve(t *etree.Element, s string) {
	if strings.TrimSpace(s) != s {
		t.CreateAttr("xml:space", "preserve")
	}
}

// hasGraphic reports whether a run carries a picture or an embedded object.
func (p *part) hasGraphic(run *etree.Element) bool {
	for _, c := range run.ChildElements() {
		if p.is(c, "drawing") || p.is(c, "pict") || p.is(c, "object") || c.Tag == "AlternateContent" {
			return true
		}
	}
	return false
}

// isFieldRun reports whether a run holds field characters or a field code.
func (p *part) isFieldRun(run *etree.Element) bool {
	for _, c := range run.ChildElements() {
		if p.is(c, "fldChar") || p.is(c, "instrText") {
			return true
		}
	}
	return false
}

// segments splits the runs of a paragraph at the runs carrying graphics.
// Graphic runs belong to no segment, so rewriting a segment never moves a
// picture relative to the text around it.
func (p *part) segments(para *etree.Element) [][]*etree.Element {
	var out [][]*etree.Element
	var cur []*etree.Element
	for _, r := range p.runs(para) {
		if p.hasGraphic(r) {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// rewrite applies f to the text of every segment of para and collapses each
// segment whose text changed. It reports whether any segment changed.
func (p *part) rewrite(para *etree.Element, f func(string) string) bool {
	changed := false
	for _, seg := range p.segments(para) {
		text := p.joinRuns(seg)
		if out := f(text); out != text {
			p.collapseToSingleRun(seg, out)
			changed = true
		}
	}
	return changed
}

// collapseToSingleRun clears the text of runs and writes text into the first
// of them that holds no field characters. Character formatting of the other
// runs is lost.
func (p *part) collapseToSingleRun(runs []*etree.Element, text string) {
	if len(runs) == 0 {
		return
	}

	var target *etree.Element
	for _, r := range runs {
		p.setRunText(r, "")
		if target == nil && !p.isFieldRun(r) {
			target = r
		}
	}

	if target == nil {
		target = p.newElement("r")
		first := runs[0]
		first.Parent().InsertChildAt(first.Index(), target)
	}
	p.setRunText(target, text)
}

// textBoxNodes returns every w:t below a w:txbxContent, each once.
func (p *part) textBoxNodes() []*etree.Element {
	var out []*etree.Element
	seen := make(map[*etree.Element]bool)

	var collect func(el *etree.Element)
	collect = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			if p.is(c, "t") && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
			collect(c)
		}
	}

	var find func(el *etree.Element)
	find = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			if p.is(c, "txbxContent") {
				collect(c)
				continue
			}
			find(c)
		}
	}

	if root := p.doc.Root(); root != nil {
		find(root)
	}
	return out
}

// insertAfter places el right after ref under ref's parent.
func insertAfter(ref, el *etree.Element) {
	ref.Parent().InsertChildAt(ref.Index()+1, el)
}

// descendants collects every element below el with the given local name,
// whatever its namespace.
func descendants(el *etree.Element, local string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == local {
			out = append(out, c)
		}
		out = append(out, descendants(c, local)...)
	}
	return out
}
