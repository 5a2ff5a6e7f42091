package docxfill

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"docxfill/media"
	"docxfill/rules"
)

// relsPath returns the relationships part of a content part:
// word/document.xml -> word/_rels/document.xml.rels.
func relsPath(partName string) string {
	dir, file := path.Split(partName)
	return dir + "_rels/" + file + ".rels"
}

// addImage – кладёт картинку в word/media и добавляет связь в .rels части partName.
// Возвращает rId, по которому на неё ссылается часть.
func (d *Docx) addImage(partName string, img *media.Image) (string, error) {
	name := img.Name()
	if _, ok := d.files[mediaDir+name]; !ok {
		d.SetFile(mediaDir+name, img.Data)
	}

	if err := d.ensureContentType(img.Ext(), img.ContentType()); err != nil {
		return "", err
	}

	rID, err := d.ensureImageRel(partName, "media/"+name)
	if err != nil {
		return "", err
	}
	return rID, nil
}

func (d *Docx) ensureImageRel(partName, target string) (string, error) {
	rp := relsPath(partName)

	var root *etree.Element
	if _, ok := d.files[rp]; ok {
		doc, err := d.parsed(rp)
		if err != nil {
			return "", err
		}
		root = doc.Root()
	}
	if root == nil {
		root = etree.NewElement("Relationships")
		root.CreateAttr("xmlns", namespaceRels)
		d.create(rp, root)
	}

	maxID := 0
	for _, rel := range root.ChildElements() {
		if rel.Tag != "Relationship" {
			continue
		}
		id := rel.SelectAttrValue("Id", "")
		if rel.SelectAttrValue("Target", "") == target && rel.SelectAttrValue("Type", "") == relTypeImage {
			return id, nil
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(id, "rId")); err == nil && n > maxID {
			maxID = n
		}
	}

	id := fmt.Sprintf("rId%d", maxID+1)
	rel := root.CreateElement("Relationship")
	rel.CreateAttr("Id", id)
	rel.CreateAttr("Type", relTypeImage)
	rel.CreateAttr("Target", target)
	return id, nil
}

// ensureContentType – добавляет Default для расширения в [Content_Types].xml, если его ещё нет
func (d *Docx) ensureContentType(ext, contentType string) error {
	var root *etree.Element
	if _, ok := d.files[ContentTypesPart]; ok {
		doc, err := d.parsed(ContentTypesPart)
		if err != nil {
			return err
		}
		root = doc.Root()
	}
	if root == nil {
		root = etree.NewElement("Types")
		root.CreateAttr("xmlns", namespaceContentTypes)
		d.create(ContentTypesPart, root)
	}

	for _, el := range root.ChildElements() {
		if el.Tag == "Default" && strings.EqualFold(el.SelectAttrValue("Extension", ""), ext) {
			return nil
		}
	}

	def := etree.NewElement("Default")
	def.CreateAttr("Extension", ext)
	def.CreateAttr("ContentType", contentType)
	root.InsertChildAt(0, def)
	return nil
}

// nextDocPrID – id для wp:docPr, не занятый ни в одной части
func (d *Docx) nextDocPrID() (int, error) {
	if d.lastDocPr < 0 {
		d.lastDocPr = 0
		for _, name := range d.contentParts() {
			doc, err := d.parsed(name)
			if err != nil {
				return 0, err
			}
			for _, el := range descendants(doc.Root(), "docPr") {
				if n, err := strconv.Atoi(el.SelectAttrValue("id", "")); err == nil && n > d.lastDocPr {
					d.lastDocPr = n
				}
			}
		}
	}
	d.lastDocPr++
	return d.lastDocPr, nil
}

// imageRun – прогон с картинкой в тексте шириной cx EMU
func (d *Docx) imageRun(p *part, img *media.Image, rID string, cx int64) (*etree.Element, error) {
	id, err := d.nextDocPrID()
	if err != nil {
		return nil, err
	}
	cx, cy := img.Extent(cx)

	frag := etree.NewDocument()
	xml := fmt.Sprintf(inlinePicture, cx, cy, id, id, img.Name(), rID, cx, cy)
	if err := frag.ReadFromString(xml); err != nil {
		return nil, fmt.Errorf("build drawing: %w", err)
	}

	run := p.newElement("r")
	drawing := run.CreateElement(p.tag("drawing"))
	drawing.AddChild(frag.Root())
	return run, nil
}

// imageCache – каждая картинка грузится один раз за вызов Replace
type imageCache struct {
	opts   Options
	images map[string]*media.Image
}

func newImageCache(opts Options) *imageCache {
	return &imageCache{opts: opts, images: make(map[string]*media.Image)}
}

func (c *imageCache) get(key string, src rules.ImageSource) (*media.Image, error) {
	if img, ok := c.images[key]; ok {
		return img, nil
	}

	var (
		img *media.Image
		err error
	)
	switch src.Kind {
	case rules.KindSignature:
		img, err = media.Load(src.Value, c.opts.ImageRoot)
	case rules.KindQRCode:
		img, err = media.QRCode(src.Value, 0)
	case rules.KindBarcode:
		img, err = media.Barcode(src.Value)
	default:
		err = rules.ErrUnknownKind
	}
	if err != nil {
		return nil, &ImageError{Key: key, Locator: src.Value, Err: err}
	}

	c.images[key] = img
	return img, nil
}
