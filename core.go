package docxfill

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// Docx – открытый пакет: все записи архива в памяти, XML-части разбираются по требованию
type Docx struct {
	files    map[string][]byte          // имя файла в архиве -> содержимое
	names    []string                   // порядок записей в архиве, новые в конце
	xml      map[string]*etree.Document // разобранные части, при сохранении пишутся обратно
	modified map[string]time.Time

	sourcePath string // путь к исходному файлу
	lastDocPr  int    // последний выданный id wp:docPr, -1 пока не посчитан
}

// Open – открыть docx как zip и считать все файлы
func Open(path string) (*Docx, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer func(r *zip.ReadCloser) {
		_ = r.Close()
	}(r)

	d, err := load(&r.Reader)
	if err != nil {
		return nil, err
	}
	d.sourcePath = path
	return d, nil
}

// OpenReader – то же, что Open, но из памяти (например, шаблон, пришедший по HTTP)
func OpenReader(r io.ReaderAt, size int64) (*Docx, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	return load(zr)
}

func load(r *zip.Reader) (*Docx, error) {
	d := &Docx{
		files:     make(map[string][]byte),
		xml:       make(map[string]*etree.Document),
		modified:  make(map[string]time.Time),
		lastDocPr: -1,
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		buf, err := io.ReadAll(rc)
		_ = rc.Close() // только для чтения, можно не реагировать на ошибку закрытия
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		if _, dup := d.files[f.Name]; !dup {
			d.names = append(d.names, f.Name)
		}
		d.files[f.Name] = buf
		d.modified[f.Name] = f.Modified
	}

	if _, ok := d.files[DocumentPart]; !ok {
		return nil, ErrNoDocument
	}
	return d, nil
}

// Save – сохранить все файлы обратно в новый docx
func (d *Docx) Save(path string) error {
	var buf bytes.Buffer
	if err := d.SaveToWriter(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// SaveToWriter – записать docx в поток
func (d *Docx) SaveToWriter(w io.Writer) error {
	if err := d.flush(); err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	now := time.Now().UTC()

	for _, name := range d.names {
		h := &zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		}
		// для Windows Word важно, чтобы дата не была "нулевой"
		h.Modified = d.modified[name]
		if h.Modified.IsZero() || h.Modified.Year() < 1980 {
			h.Modified = now
		}

		f, err := zw.CreateHeader(h)
		if err != nil {
			return fmt.Errorf("create entry %s: %w", name, err)
		}
		if _, err := f.Write(d.files[name]); err != nil {
			return fmt.Errorf("write entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// Close – на будущее, если будут ресурсы для освобождения
func (d *Docx) Close() error {
	return nil
}

// SourcePath – путь, из которого открыт документ (пусто для OpenReader)
func (d *Docx) SourcePath() string {
	return d.sourcePath
}

// GetFile – получить содержимое файла по имени (например word/document.xml)
func (d *Docx) GetFile(name string) ([]byte, bool) {
	if doc, ok := d.xml[name]; ok {
		data, err := doc.WriteToBytes()
		if err != nil {
			return nil, false
		}
		return data, true
	}
	data, ok := d.files[name]
	return data, ok
}

// SetFile – заменить или добавить файл; разобранная копия сбрасывается
func (d *Docx) SetFile(name string, data []byte) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	if _, ok := d.files[name]; !ok {
		d.names = append(d.names, name)
	}
	d.files[name] = data
	delete(d.xml, name)
}

// ContentPart – XML части по короткому имени: "document", "header1", "footnotes"
func (d *Docx) ContentPart(name string) (string, error) {
	data, ok := d.GetFile("word/" + name + ".xml")
	if !ok {
		return "", fmt.Errorf("no %s.xml in docx", name)
	}
	return string(data), nil
}

// Text – видимый текст тела документа, по строке на абзац в порядке документа:
// ячейки таблиц (и вложенных) и элементы управления содержимым там, где они стоят
func (d *Docx) Text() (string, error) {
	p, err := d.part(DocumentPart)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, para := range p.allParagraphs() {
		lines = append(lines, p.paragraphText(para))
	}
	return strings.Join(lines, "\n"), nil
}

// parsed – etree-документ записи, разбирается при первом обращении
func (d *Docx) parsed(name string) (*etree.Document, error) {
	if doc, ok := d.xml[name]; ok {
		return doc, nil
	}
	data, ok := d.files[name]
	if !ok {
		return nil, fmt.Errorf("no %s in docx", name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	d.xml[name] = doc
	return doc, nil
}

// create – новая XML-запись с заданным корнем
func (d *Docx) create(name string, root *etree.Element) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	doc.SetRoot(root)
	d.SetFile(name, nil)
	d.xml[name] = doc
	return doc
}

func (d *Docx) flush() error {
	for name, doc := range d.xml {
		data, err := doc.WriteToBytes()
		if err != nil {
			return fmt.Errorf("serialize %s: %w", name, err)
		}
		d.files[name] = data
	}
	return nil
}

// contentParts – части с текстом документа: сначала тело, затем колонтитулы
// и сноски в порядке имён
func (d *Docx) contentParts() []string {
	out := []string{DocumentPart}
	var extra []string
	for _, name := range d.names {
		for _, pattern := range secondaryParts {
			if ok, _ := path.Match(pattern, name); ok {
				extra = append(extra, name)
				break
			}
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
