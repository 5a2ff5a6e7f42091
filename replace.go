package docxfill

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"docxfill/rules"
)

// placeholderPattern matches any token left after substitution.
var placeholderPattern = regexp.MustCompile(`<[^>]+>`)

// Report counts what a Replace call changed.
type Report struct {
	Paragraphs   int // paragraphs rewritten by the text map
	TextBoxNodes int // text-box w:t nodes rewritten by the text map
	Images       int // pictures inserted
	Removed      int // leftover placeholders deleted by cleanup
}

type replacer struct {
	d      *Docx
	maps   *rules.Maps
	opts   Options
	images *imageCache
	report Report
}

// Replace fills the document from list: image placeholders become inline
// pictures, text placeholders their values, and any other <...> token is
// removed. Body, headers, footers, footnotes and endnotes are processed.
//
// An image that cannot be loaded aborts the call with an *ImageError; the
// document may then be partially modified and should not be saved.
func (d *Docx) Replace(list []rules.Rule, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	maps := rules.Build(list)
	for _, s := range maps.Skipped {
		opts.logf("skip %v", s)
	}
	if opts.Strict {
		if err := maps.Err(); err != nil {
			return nil, err
		}
	}

	r := &replacer{
		d:      d,
		maps:   maps,
		opts:   opts,
		images: newImageCache(opts),
	}

	parts := make([]*part, 0, len(d.contentParts()))
	for _, name := range d.contentParts() {
		p, err := d.part(name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	for _, p := range parts {
		if err := r.substitute(p); err != nil {
			return nil, err
		}
	}
	for _, p := range parts {
		r.cleanup(p)
	}

	opts.logf("replaced %d paragraphs, %d text-box nodes, %d images; removed %d placeholders",
		r.report.Paragraphs, r.report.TextBoxNodes, r.report.Images, r.report.Removed)
	return &r.report, nil
}

// Process opens in, fills it from list and writes the result to out.
func Process(in, out string, list []rules.Rule, opts Options) (*Report, error) {
	d, err := Open(in)
	if err != nil {
		return nil, err
	}
	defer func(d *Docx) {
		_ = d.Close()
	}(d)

	report, err := d.Replace(list, opts)
	if err != nil {
		return nil, err
	}
	if err := d.Save(out); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *replacer) substitute(p *part) error {
	for _, para := range p.bodyParagraphs() {
		if err := r.paragraph(p, para, r.opts.ParagraphImageWidth); err != nil {
			return err
		}
	}
	for _, para := range p.tableParagraphs() {
		if err := r.paragraph(p, para, r.opts.TableImageWidth); err != nil {
			return err
		}
	}
	for _, t := range p.textBoxNodes() {
		text := t.Text()
		if out := r.maps.Text.Apply(text); out != text {
			setNodeText(t, out)
			r.report.TextBoxNodes++
		}
	}
	return nil
}

// paragraph places images for every image key, then applies the text map.
func (r *replacer) paragraph(p *part, para *etree.Element, width int64) error {
	for _, key := range r.maps.Images.Keys() {
		for {
			runs := p.runs(para)
			start := strings.Index(p.joinRuns(runs), key)
			if start < 0 {
				break
			}

			src, _ := r.maps.Images.Get(key)
			img, err := r.images.get(key, src)
			if err != nil {
				return err
			}
			rID, err := r.d.addImage(p.name, img)
			if err != nil {
				return &ImageError{Key: key, Locator: src.Value, Err: err}
			}
			pic, err := r.d.imageRun(p, img, rID, width)
			if err != nil {
				return &ImageError{Key: key, Locator: src.Value, Err: err}
			}

			r.report.Images++
			r.opts.logf("image %s -> %s in %s", key, img.Name(), p.name)
			if !p.replaceSpan(para, runs, start, start+len(key), pic) {
				break
			}
		}
	}

	if p.rewrite(para, r.maps.Text.Apply) {
		r.report.Paragraphs++
	}
	return nil
}

// replaceSpan deletes the characters [start, end) of the paragraph's flat
// text from the runs that hold them and inserts el right after the last of
// those runs. Text after the span in that run moves to a new run with the
// same properties. It reports false, appending el to the paragraph, when no
// run held the span.
func (p *part) replaceSpan(para *etree.Element, runs []*etree.Element, start, end int, el *etree.Element) bool {
	var (
		last   *etree.Element
		suffix string
		off    int
	)
	for _, run := range runs {
		text := p.runText(run)
		runStart, runEnd := off, off+len(text)
		off = runEnd
		if runEnd <= start || runStart >= end {
			continue
		}

		lo := max(start, runStart) - runStart
		hi := min(end, runEnd) - runStart
		p.setRunText(run, text[:lo])
		last, suffix = run, text[hi:]
	}

	if last == nil {
		para.AddChild(el)
		return false
	}

	if suffix != "" {
		tail := p.newElement("r")
		if rPr := p.child(last, "rPr"); rPr != nil {
			tail.AddChild(rPr.Copy())
		}
		p.setRunText(tail, suffix)
		insertAfter(last, tail)
	}
	insertAfter(last, el)
	return true
}

func (r *replacer) cleanup(p *part) {
	removed := r.report.Removed
	for _, para := range p.allParagraphs() {
		p.rewrite(para, func(text string) string {
			r.report.Removed += len(placeholderPattern.FindAllStringIndex(text, -1))
			return placeholderPattern.ReplaceAllString(text, "")
		})
	}
	for _, t := range p.textBoxNodes() {
		text := t.Text()
		n := len(placeholderPattern.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		setNodeText(t, placeholderPattern.ReplaceAllString(text, ""))
		r.report.Removed += n
	}
	if n := r.report.Removed - removed; n > 0 {
		r.opts.logf("%s: removed %d unmatched placeholders", p.name, n)
	}
}

func setNodeText(t *etree.Element, s string) {
	t.RemoveAttr("xml:space")
	setPreserve(t, s)
	t.SetText(s)
}
