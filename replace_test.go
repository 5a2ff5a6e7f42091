package docxfill

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"docxfill/media"
	"docxfill/rules"
)

func str(key, value string) rules.Rule {
	return rules.Rule{Key: key, Value: value, Kind: rules.KindString}
}

// runLayout – текст прогонов через "|", картинка как [img]
func runLayout(p *part, runs []*etree.Element) string {
	var layout []string
	for _, r := range runs {
		if p.hasGraphic(r) {
			layout = append(layout, "[img]")
			continue
		}
		layout = append(layout, p.runText(r))
	}
	return strings.Join(layout, "|")
}

func TestReplace_SplitAcrossRuns(t *testing.T) {
	d := openFake(t, para(
		`<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">Dear &lt;na</w:t></w:r>`,
		`<w:r><w:t>me&gt;, hi</w:t></w:r>`,
	), nil)

	report, err := d.Replace([]rules.Rule{str("<name>", "Bob")}, DefaultOptions())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := bodyText(t, d); got != "Dear Bob, hi" {
		t.Fatalf("text = %q", got)
	}
	if report.Paragraphs != 1 {
		t.Fatalf("Paragraphs = %d, want 1", report.Paragraphs)
	}

	// текст собран в первом прогоне, его форматирование сохранено
	xml, _ := d.ContentPart("document")
	if !strings.Contains(xml, `<w:rPr><w:b/></w:rPr><w:t>Dear Bob, hi</w:t>`) {
		t.Fatalf("collapsed run lost formatting:\n%s", xml)
	}
}

func TestReplace_Rules(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		rules []rules.Rule
		want  string
	}{
		{
			name: "full name",
			text: "&lt;first_name&gt;|&lt;surname&gt;",
			rules: []rules.Rule{
				{Value: "  John  Ronald  Tolkien ", Kind: rules.KindFullName},
			},
			want: "John|Ronald  Tolkien",
		},
		{
			name:  "id digits",
			text:  "&lt;id_1&gt;-&lt;id_5&gt;-&lt;id_9&gt;",
			rules: []rules.Rule{{Value: "123456789", Kind: rules.KindID}},
			want:  "1-5-9",
		},
		{
			name:  "short id leaves nothing",
			text:  "[&lt;id_1&gt;]",
			rules: []rules.Rule{{Value: "12345", Kind: rules.KindID}},
			want:  "[]",
		},
		{
			name:  "sequential keys",
			text:  "&lt;a&gt;",
			rules: []rules.Rule{str("<a>", "<b>"), str("<b>", "done")},
			want:  "done",
		},
		{
			name:  "later rule wins",
			text:  "&lt;a&gt;",
			rules: []rules.Rule{str("<a>", "one"), str("<a>", "two")},
			want:  "two",
		},
		{
			name:  "unknown type skipped",
			text:  "x&lt;a&gt;",
			rules: []rules.Rule{{Key: "<a>", Value: "v", Kind: "colour"}},
			want:  "x",
		},
		{
			name:  "placeholders removed",
			text:  "&lt;unknown&gt;keep&lt;also unknown&gt; 1 &gt; 0",
			rules: nil,
			want:  "keep 1 > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := openFake(t, para(run(tt.text)), nil)
			if _, err := d.Replace(tt.rules, DefaultOptions()); err != nil {
				t.Fatalf("replace: %v", err)
			}
			if got := bodyText(t, d); got != tt.want {
				t.Fatalf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplace_CleanupCount(t *testing.T) {
	d := openFake(t, para(run("&lt;a&gt;x&lt;b&gt;")), nil)

	report, err := d.Replace(nil, DefaultOptions())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if report.Removed != 2 {
		t.Fatalf("Removed = %d, want 2", report.Removed)
	}
	if got := bodyText(t, d); got != "x" {
		t.Fatalf("text = %q", got)
	}
}

func TestReplace_Table(t *testing.T) {
	body := `<w:tbl><w:tr><w:tc>` + para(run("&lt;name&gt;")) + `</w:tc><w:tc>` + para(run("&lt;x&gt;")) + `</w:tc></w:tr></w:tbl>`
	d := openFake(t, body, nil)

	if _, err := d.Replace([]rules.Rule{str("<name>", "Bob")}, DefaultOptions()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := bodyText(t, d); got != "Bob\n" {
		t.Fatalf("text = %q", got)
	}
}

func TestReplace_HeadersAndFooters(t *testing.T) {
	d := openFake(t, para(run("&lt;name&gt;")), map[string]string{
		"word/header1.xml": `<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` + para(run("head &lt;name&gt;")) + `</w:hdr>`,
		"word/footer1.xml": `<w:ftr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` + para(run("&lt;page&gt;foot")) + `</w:ftr>`,
	})

	if _, err := d.Replace([]rules.Rule{str("<name>", "Bob")}, DefaultOptions()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	d = reopen(t, d)

	header, _ := d.ContentPart("header1")
	if !strings.Contains(header, "head Bob") {
		t.Fatalf("header not replaced:\n%s", header)
	}
	footer, _ := d.ContentPart("footer1")
	if strings.Contains(footer, "page") || !strings.Contains(footer, "foot") {
		t.Fatalf("footer not cleaned:\n%s", footer)
	}
}

func TestReplace_TextBox(t *testing.T) {
	box := `<w:r><w:pict><v:shape><v:textbox><w:txbxContent>` +
		para(`<w:r><w:t>&lt;name&gt; &lt;junk&gt;</w:t></w:r>`) +
		`</w:txbxContent></v:textbox></v:shape></w:pict></w:r>`
	d := openFake(t, para(run("outside "), box), nil)

	report, err := d.Replace([]rules.Rule{str("<name>", "Bob")}, DefaultOptions())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if report.TextBoxNodes != 1 || report.Removed != 1 {
		t.Fatalf("report = %+v", report)
	}

	p, _ := d.part(DocumentPart)
	nodes := p.textBoxNodes()
	if len(nodes) != 1 {
		t.Fatalf("text-box nodes = %d, want 1", len(nodes))
	}
	if got := nodes[0].Text(); got != "Bob " {
		t.Fatalf("text box = %q", got)
	}
	if nodes[0].SelectAttrValue("xml:space", "") != "preserve" {
		t.Fatal("trailing space not preserved")
	}

	// надпись не входит в текст абзаца, в котором закреплена
	if got := bodyText(t, d); got != "outside " {
		t.Fatalf("body text = %q", got)
	}
}

func TestReplace_Idempotent(t *testing.T) {
	d := openFake(t, para(run("a &lt;name&gt; &lt;gone&gt;"), run("&lt;first_name&gt;")), nil)
	list := []rules.Rule{
		str("<name>", "Bob"),
		{Value: "Ann Lee", Kind: rules.KindFullName},
	}

	if _, err := d.Replace(list, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	first := bodyText(t, d)

	report, err := d.Replace(list, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if second := bodyText(t, d); second != first {
		t.Fatalf("second pass changed text: %q -> %q", first, second)
	}
	if report.Paragraphs != 0 || report.Removed != 0 {
		t.Fatalf("second pass report = %+v", report)
	}
}

func TestReplace_Strict(t *testing.T) {
	d := openFake(t, para(run("&lt;id_1&gt;")), nil)
	list := []rules.Rule{{Value: "12345", Kind: rules.KindID}}

	opts := DefaultOptions()
	opts.Strict = true
	_, err := d.Replace(list, opts)
	if !errors.Is(err, rules.ErrIDLength) {
		t.Fatalf("err = %v, want ErrIDLength", err)
	}
	var re *rules.RuleError
	if !errors.As(err, &re) || re.Index != 0 {
		t.Fatalf("err = %#v, want *rules.RuleError for rule 0", err)
	}

	// без strict правило пропускается, метка уходит при очистке
	var logged strings.Builder
	opts = DefaultOptions()
	opts.Logger = log.New(&logged, "", 0)
	if _, err := d.Replace(list, opts); err != nil {
		t.Fatalf("non-strict replace: %v", err)
	}
	if got := bodyText(t, d); got != "" {
		t.Fatalf("text = %q", got)
	}
	if !strings.Contains(logged.String(), "skip") {
		t.Fatalf("skipped rule not logged: %q", logged.String())
	}
}

func TestReplace_Signature(t *testing.T) {
	dir := t.TempDir()
	raw := writePNG(t, dir, "sig.png", 20, 10)
	img, err := media.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}

	body := para(run("Signed: &lt;sig&gt; ok")) +
		`<w:tbl><w:tr><w:tc>` + para(run("&lt;sig&gt;")) + `</w:tc></w:tr></w:tbl>`
	d := openFake(t, body, nil)

	opts := DefaultOptions()
	opts.ImageRoot = dir
	report, err := d.Replace([]rules.Rule{{Key: "<sig>", Value: "sig.png", Kind: rules.KindSignature}}, opts)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if report.Images != 2 {
		t.Fatalf("Images = %d, want 2", report.Images)
	}

	d = reopen(t, d)
	if got := bodyText(t, d); got != "Signed:  ok\n" {
		t.Fatalf("text = %q", got)
	}

	xml, _ := d.ContentPart("document")
	// абзац: 1 дюйм, ячейка: 2 дюйма, высота по пропорции 2:1
	for _, want := range []string{
		`<wp:extent cx="914400" cy="457200"/>`,
		`<wp:extent cx="1828800" cy="914400"/>`,
		`r:embed="rId2"`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("document.xml has no %s:\n%s", want, xml)
		}
	}

	// порядок в абзаце: текст до, картинка, текст после
	p, _ := d.part(DocumentPart)
	runs := p.runs(p.bodyParagraphs()[0])
	if len(runs) != 3 || !p.hasGraphic(runs[1]) || p.runText(runs[0]) != "Signed: " || p.runText(runs[2]) != " ok" {
		t.Fatalf("unexpected run layout: %d runs", len(runs))
	}

	// уникальные wp:docPr
	ids := map[string]bool{}
	for _, el := range descendants(p.doc.Root(), "docPr") {
		ids[el.SelectAttrValue("id", "")] = true
	}
	if len(ids) != 2 {
		t.Fatalf("docPr ids = %v, want 2 distinct", ids)
	}

	if _, ok := d.GetFile("word/media/" + img.Name()); !ok {
		t.Fatalf("media part %s missing", img.Name())
	}
	rels, _ := d.GetFile("word/_rels/document.xml.rels")
	if strings.Count(string(rels), `Target="media/`+img.Name()+`"`) != 1 {
		t.Fatalf("image relationship not added once:\n%s", rels)
	}
	types, _ := d.GetFile(ContentTypesPart)
	if !strings.Contains(string(types), `Extension="png"`) {
		t.Fatalf("png content type missing:\n%s", types)
	}
}

func TestReplace_SignatureInsideRun(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "s.png", 10, 10)

	// метка разбита на три прогона, после неё текст в том же прогоне
	d := openFake(t, para(run("x&lt;s"), run("i"), `<w:r><w:rPr><w:i/></w:rPr><w:t>g&gt;y</w:t></w:r>`), nil)

	opts := DefaultOptions()
	opts.ImageRoot = dir
	if _, err := d.Replace([]rules.Rule{{Key: "<sig>", Value: "s.png", Kind: rules.KindSignature}}, opts); err != nil {
		t.Fatalf("replace: %v", err)
	}

	p, _ := d.part(DocumentPart)
	runs := p.runs(p.bodyParagraphs()[0])
	if got := runLayout(p, runs); got != "x|||[img]|y" {
		t.Fatalf("layout = %q", got)
	}
	if p.child(runs[4], "rPr") == nil {
		t.Fatal("split tail lost its run properties")
	}
}

func TestReplace_MissingImage(t *testing.T) {
	d := openFake(t, para(run("&lt;sig&gt;")), nil)

	opts := DefaultOptions()
	opts.ImageRoot = t.TempDir()
	_, err := d.Replace([]rules.Rule{{Key: "<sig>", Value: "nope.png", Kind: rules.KindSignature}}, opts)

	var ie *ImageError
	if !errors.As(err, &ie) || ie.Key != "<sig>" {
		t.Fatalf("err = %v, want *ImageError", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestReplace_UnusedImageNotLoaded(t *testing.T) {
	d := openFake(t, para(run("no pictures here")), nil)
	_, err := d.Replace([]rules.Rule{{Key: "<sig>", Value: "nope.png", Kind: rules.KindSignature}}, DefaultOptions())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
}

func TestReplace_GeneratedCodes(t *testing.T) {
	d := openFake(t, para(run("&lt;qr&gt;")), nil)
	list := []rules.Rule{
		{Key: "<qr>", Value: "https://example.org", Kind: rules.KindQRCode},
		{Key: "<ean>", Value: "4006381333931", Kind: rules.KindBarcode},
	}
	report, err := d.Replace(list, DefaultOptions())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if report.Images != 1 {
		t.Fatalf("Images = %d, want 1", report.Images)
	}
	xml, _ := d.ContentPart("document")
	// QR квадратный
	if !strings.Contains(xml, `cx="914400" cy="914400"`) {
		t.Fatalf("QR drawing not square:\n%s", xml)
	}
}

func TestReplace_KeepsExistingGraphic(t *testing.T) {
	drawing := `<w:r><w:drawing><wp:inline><wp:docPr id="7" name="old"/></wp:inline></w:drawing></w:r>`
	d := openFake(t, para(drawing, run("&lt;name&gt;")), nil)

	if _, err := d.Replace([]rules.Rule{str("<name>", "Bob")}, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	p, _ := d.part(DocumentPart)
	runs := p.runs(p.bodyParagraphs()[0])
	if len(runs) != 2 || !p.hasGraphic(runs[0]) || p.runText(runs[1]) != "Bob" {
		t.Fatalf("graphic run disturbed")
	}
	if id, _ := d.nextDocPrID(); id != 8 {
		t.Fatalf("next docPr id = %d, want 8", id)
	}
}

// текст после подписи остаётся после неё
func TestReplace_TextAroundSignature(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "s.png", 10, 10)

	d := openFake(t, para(run("Sig: &lt;sig&gt; &lt;name&gt; end&lt;left&gt;")), nil)

	opts := DefaultOptions()
	opts.ImageRoot = dir
	list := []rules.Rule{
		{Key: "<sig>", Value: "s.png", Kind: rules.KindSignature},
		str("<name>", "Bob"),
	}
	report, err := d.Replace(list, opts)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if report.Paragraphs != 1 || report.Removed != 1 {
		t.Fatalf("report = %+v", report)
	}

	p, _ := d.part(DocumentPart)
	if got := runLayout(p, p.runs(p.bodyParagraphs()[0])); got != "Sig: |[img]| Bob end" {
		t.Fatalf("layout = %q", got)
	}
}

func TestReplace_FieldRunsKeepNoText(t *testing.T) {
	body := para(
		`<w:r><w:fldChar w:fldCharType="begin"/></w:r>`,
		`<w:r><w:instrText xml:space="preserve"> MERGEFIELD name </w:instrText></w:r>`,
		`<w:r><w:fldChar w:fldCharType="separate"/></w:r>`,
		run("&lt;na"), run("me&gt;"),
		`<w:r><w:fldChar w:fldCharType="end"/></w:r>`,
	)
	d := openFake(t, body, nil)

	if _, err := d.Replace([]rules.Rule{str("<name>", "Bob")}, DefaultOptions()); err != nil {
		t.Fatalf("replace: %v", err)
	}

	p, _ := d.part(DocumentPart)
	runs := p.runs(p.bodyParagraphs()[0])
	if len(runs) != 6 {
		t.Fatalf("runs = %d, want 6", len(runs))
	}
	for _, i := range []int{0, 1, 2, 5} {
		if !p.isFieldRun(runs[i]) || p.child(runs[i], "t") != nil {
			t.Fatalf("field run %d got text", i)
		}
	}
	if got := p.runText(runs[3]); got != "Bob" {
		t.Fatalf("field result = %q", got)
	}
	if got := bodyText(t, d); got != "Bob" {
		t.Fatalf("text = %q", got)
	}
}
