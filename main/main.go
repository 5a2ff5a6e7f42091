package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/fsnotify/fsnotify"

	"docxfill"
	"docxfill/rules"
)

func main() {
	in := flag.String("in", "", "входной DOCX-шаблон")
	out := flag.String("out", "", "результат (по умолчанию имя шаблона + _out.docx)")
	rulesFile := flag.String("rules", "", "JSON со списком правил замены")
	images := flag.String("images", "", "каталог, за пределы которого не выходят пути подписей")
	strict := flag.Bool("strict", false, "пропущенные правила считать ошибкой")
	verbose := flag.Bool("verbose", false, "подробный лог замен")
	watch := flag.Bool("watch", false, "следить за изменениями и пересобирать автоматически")
	debounce := flag.Duration("debounce", 300*time.Millisecond, "дебаунс перед пересборкой")
	serve := flag.Bool("serve", false, "режим демона (HTTP API)")
	port := flag.Int("port", 8080, "порт HTTP демона")
	download := flag.Bool("download", false, "не сохранять, а вывести готовый DOCX в stdout")
	flag.Parse()

	baseDir, _ := os.Getwd()
	projectRoot := findProjectRoot(baseDir)

	// окружение, поверх него флаги
	opts := docxfill.OptionsFromEnv()
	if *images != "" {
		opts.ImageRoot = *images
	}
	if *strict {
		opts.Strict = true
	}
	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		opts.Logger = log.Default()
	}

	if *serve {
		runServer(*port, projectRoot, opts)
		return
	}

	// дефолты
	if *in == "" {
		*in = filepath.Join(projectRoot, "main/examples/template.docx")
	}
	if *rulesFile == "" {
		*rulesFile = filepath.Join(projectRoot, "main/examples/rules.json")
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, filepath.Ext(*in)) + "_out.docx"
	}

	// первая сборка
	if err := render(*in, *rulesFile, *out, opts, *download); err != nil {
		log.Fatalf("💥  ошибка сборки: %v\n", err)
	}
	if *download {
		return
	}
	fmt.Println("💚  готово: " + strings.TrimPrefix(*out, baseDir))

	if !*watch {
		return
	}
	if err := watchAndRender(*in, *rulesFile, *out, baseDir, *debounce, opts); err != nil {
		log.Fatalf("watcher: %v", err)
	}
}

// findProjectRoot поднимается от dir до каталога с go.mod.
func findProjectRoot(dir string) string {
	root := dir
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root
		}
		parent := filepath.Dir(root)
		if parent == root {
			return dir
		}
		root = parent
	}
}

// ---------- watch ----------
func watchAndRender(in, rulesFile, out, baseDir string, debounce time.Duration, opts docxfill.Options) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	toWatch := dedupe([]string{
		in, filepath.Dir(in),
		rulesFile, filepath.Dir(rulesFile),
	})
	for _, p := range toWatch {
		if err := watcher.Add(p); err != nil {
			log.Printf("warn: не удалось добавить в watch %s: %v\n", p, err)
		}
	}

	outAbs, _ := filepath.Abs(out)
	ignore := func(name string) bool {
		n, _ := filepath.Abs(name)
		if n == outAbs {
			return true
		}
		low := strings.ToLower(n)
		return hasAnySuffix(low, "~", ".tmp", ".swp", ".lock", "_out.docx")
	}

	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	var t *time.Timer
	schedule := func() {
		if t != nil {
			t.Stop()
		}
		t = time.AfterFunc(debounce, func() {
			fmt.Println("🔄  пересборка…")
			if err := render(in, rulesFile, out, opts, false); err != nil {
				fmt.Printf("💥  %v\n", err)
			} else {
				fmt.Println("💚  готово: " + strings.TrimPrefix(out, baseDir))
			}
		})
	}

	fmt.Println("👀  watch-режим (Ctrl+C для выхода)")
	for {
		select {
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if ignore(ev.Name) {
				continue
			}
			if hasAnySuffix(strings.ToLower(ev.Name), ".docx", ".docm", ".dotx", ".json") {
				fmt.Println("📝  изменено: " + filepath.Base(ev.Name) + " → жду дебаунс…")
				schedule()
			}
		case err := <-watcher.Errors:
			log.Printf("watch error: %v\n", err)
		case <-sig:
			fmt.Print("\r\033[K👋  пока\n")
			return nil
		}
	}
}

// ---------- CLI рендер ----------
func render(in, rulesFile, out string, opts docxfill.Options, download bool) error {
	list, err := rules.LoadFile(rulesFile)
	if err != nil {
		return fmt.Errorf("правила: %w", err)
	}

	doc, err := docxfill.Open(in)
	if err != nil {
		return fmt.Errorf("открытие DOCX: %w", err)
	}

	report, err := doc.Replace(list, opts)
	if err != nil {
		return fmt.Errorf("замена: %w", err)
	}
	if opts.Logger != nil {
		opts.Logger.Printf("абзацев: %d, надписей: %d, картинок: %d, удалено меток: %d",
			report.Paragraphs, report.TextBoxNodes, report.Images, report.Removed)
	}

	if download {
		var buf bytes.Buffer
		if err = doc.SaveToWriter(&buf); err != nil {
			return fmt.Errorf("сохранение в поток: %w", err)
		}
		if _, err = io.Copy(os.Stdout, &buf); err != nil {
			return fmt.Errorf("вывод stdout: %w", err)
		}
		return nil
	}

	if err := doc.Save(out); err != nil {
		return fmt.Errorf("сохранение: %w", err)
	}
	return nil
}

// ---------- демон ----------
type generateRequest struct {
	Template string       `json:"template"`
	Rules    []rules.Rule `json:"rules"`
	Format   string       `json:"format,omitempty"`
}

func runServer(port int, projectRoot string, opts docxfill.Options) {
	http.Handle("/generate", newGenerateHandler(projectRoot, opts))

	log.Printf("🦌  Демон слушает порт %d\n", port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", port), nil))
}

// newGenerateHandler принимает шаблон (путь внутри projectRoot или base64 DOCX)
// и правила, отдаёт DOCX, XML документа или его текст. Пути подписей без
// -images тоже не выходят за projectRoot.
func newGenerateHandler(projectRoot string, opts docxfill.Options) http.Handler {
	if opts.ImageRoot == "" {
		opts.ImageRoot = projectRoot
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "use POST")
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, 400, "invalid json: %v", err)
			return
		}
		if strings.TrimSpace(req.Template) == "" {
			jsonErr(w, 400, "template is required: pass a file path or base64 DOCX")
			return
		}

		doc, code, err := openTemplate(projectRoot, req.Template)
		if err != nil {
			jsonErr(w, code, "%v", err)
			return
		}

		if _, err := doc.Replace(req.Rules, opts); err != nil {
			// битая подпись или правило – ошибка запроса
			var ie *docxfill.ImageError
			var re *rules.RuleError
			if errors.As(err, &ie) || errors.As(err, &re) {
				jsonErr(w, 400, "%v", err)
				return
			}
			jsonErr(w, 500, "%v", err)
			return
		}

		switch strings.ToLower(req.Format) {
		case "xml":
			xml, _ := doc.ContentPart("document")
			w.Header().Set("Content-Type", "application/xml; charset=utf-8")
			_, _ = w.Write([]byte(xml))
		case "text":
			text, err := doc.Text()
			if err != nil {
				jsonErr(w, 500, "%v", err)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(text))
		case "", "docx":
			// отдаём файл целиком; буфер, чтобы ошибка не испортила заголовки
			var buf bytes.Buffer
			if err := doc.SaveToWriter(&buf); err != nil {
				jsonErr(w, 500, "stream error: %v", err)
				return
			}
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
			w.Header().Set("Content-Disposition", `attachment; filename="result.docx"`)
			_, _ = w.Write(buf.Bytes())
		default:
			jsonErr(w, 400, "unknown format %q: want docx, xml or text", req.Format)
		}
	})
}

// openTemplate открывает шаблон по пути внутри projectRoot, иначе разбирает
// его как base64. Второе значение: HTTP-код для ошибки.
func openTemplate(projectRoot, template string) (*docxfill.Docx, int, error) {
	if hasAnySuffix(strings.ToLower(template), ".docx", ".docm", ".dotx") {
		// путь не должен выйти за корень проекта
		candidate, err := securejoin.SecureJoin(projectRoot, template)
		if err != nil {
			return nil, 400, fmt.Errorf("bad template path: %w", err)
		}
		if !fileExists(candidate) {
			return nil, 400, fmt.Errorf("file not found: %s", template)
		}
		doc, err := docxfill.Open(candidate)
		if err != nil {
			return nil, 500, fmt.Errorf("template open error: %w", err)
		}
		return doc, 200, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(template))
	if err != nil {
		return nil, 400, fmt.Errorf("template: not a path and bad base64: %w", err)
	}
	doc, err := docxfill.OpenReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, 400, fmt.Errorf("template open error: %w", err)
	}
	return doc, 200, nil
}

// ---------- вспомогательные ----------
func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func jsonErr(w http.ResponseWriter, code int, fmtStr string, a ...any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf(fmtStr, a...)})
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range in {
		if p == "" {
			continue
		}
		abs, _ := filepath.Abs(p)
		if _, ok := seen[abs]; !ok {
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
	}
	return out
}

func hasAnySuffix(s string, exts ...string) bool {
	for _, e := range exts {
		if strings.HasSuffix(s, e) {
			return true
		}
	}
	return false
}
