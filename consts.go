package docxfill

import "docxfill/media"

// XML namespaces used by WordprocessingML packages.
const (
	NamespaceW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	NamespaceR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	NamespaceWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	NamespaceA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NamespacePic = "http://schemas.openxmlformats.org/drawingml/2006/picture"

	namespaceRels         = "http://schemas.openxmlformats.org/package/2006/relationships"
	namespaceContentTypes = "http://schemas.openxmlformats.org/package/2006/content-types"
	relTypeImage          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// Package part names.
const (
	DocumentPart     = "word/document.xml"
	ContentTypesPart = "[Content_Types].xml"
	mediaDir         = "word/media/"
)

// Default picture widths: inline paragraphs get one inch, table cells two.
const (
	DefaultParagraphImageWidth int64 = 1 * media.EMUPerInch
	DefaultTableImageWidth     int64 = 2 * media.EMUPerInch
)

// Patterns of the secondary parts that carry text, processed after the body.
var secondaryParts = []string{
	"word/header*.xml",
	"word/footer*.xml",
	"word/footnotes.xml",
	"word/endnotes.xml",
}

// inlinePicture is the wp:inline template for an embedded picture:
// cx, cy, docPr id, docPr id, name, relationship id, cx, cy.
const inlinePicture = `<wp:inline distT="0" distB="0" distL="0" distR="0" xmlns:wp="` + NamespaceWP + `" xmlns:a="` + NamespaceA + `" xmlns:pic="` + NamespacePic + `" xmlns:r="` + NamespaceR + `">` +
	`<wp:extent cx="%d" cy="%d"/>` +
	`<wp:effectExtent l="0" t="0" r="0" b="0"/>` +
	`<wp:docPr id="%d" name="Picture %d"/>` +
	`<wp:cNvGraphicFramePr><a:graphicFrameLocks noChangeAspect="1"/></wp:cNvGraphicFramePr>` +
	`<a:graphic><a:graphicData uri="` + NamespacePic + `">` +
	`<pic:pic><pic:nvPicPr><pic:cNvPr id="0" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>` +
	`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>` +
	`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>` +
	`</pic:pic></a:graphicData></a:graphic></wp:inline>`
