package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/depwatch/depwatch/types"
)

// ErrUnrecognized is returned when a payload matches none of the supported
// feed shapes. The feed contributes zero entries; callers log and move on to
// the remaining feeds.
var ErrUnrecognized = xerrors.New("unrecognized feed format")

// Shape is the structural form detected for a feed payload.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeObject        // top-level object with an array field of records
	ShapeArray         // bare array of records
	ShapeHTMLTable     // HTML document with a package table
	ShapeTable         // line-oriented delimited text
)

// Fields probed, in order, for the record array of an object-shaped feed.
var arrayFields = []string{"packages", "advisories", "data", "items", "results"}

type record struct {
	Name      string `json:"name"`
	Package   string `json:"package"`
	Version   string `json:"version"`
	Severity  string `json:"severity"`
	Source    string `json:"source"`
	Date      string `json:"date"`
	Published string `json:"published"`
}

func (rec record) pkgName() string {
	if rec.Name != "" {
		return rec.Name
	}
	return rec.Package
}

func (rec record) publishedAt() time.Time {
	for _, s := range []string{rec.Date, rec.Published} {
		if s == "" {
			continue
		}
		if t, err := dateparse.ParseAny(s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Normalizer turns one feed's raw payload into a partial registry.
type Normalizer struct {
	source string
}

func NewNormalizer(source string) *Normalizer {
	return &Normalizer{source: source}
}

// Normalize probes the payload for a supported shape and extracts every
// name/version record it can. Records without a name or version are dropped.
// Compressed payloads (gzip, zstd) are decompressed before probing.
func (n *Normalizer) Normalize(payload []byte) (types.Registry, error) {
	body := bytes.TrimSpace(decompress(payload))
	reg := types.Registry{}
	if len(body) == 0 {
		return reg, xerrors.Errorf("empty payload from %s: %w", n.source, ErrUnrecognized)
	}

	switch DetectShape(body) {
	case ShapeObject:
		if err := n.parseObject(reg, body); err != nil {
			return types.Registry{}, xerrors.Errorf("feed %s: %w", n.source, err)
		}
	case ShapeArray:
		if err := n.parseArray(reg, body); err != nil {
			return types.Registry{}, xerrors.Errorf("feed %s: %w", n.source, err)
		}
	case ShapeHTMLTable:
		if err := n.parseHTMLTable(reg, body); err != nil {
			return types.Registry{}, xerrors.Errorf("feed %s: %w", n.source, err)
		}
	case ShapeTable:
		if err := n.parseTable(reg, body); err != nil {
			return types.Registry{}, xerrors.Errorf("feed %s: %w", n.source, err)
		}
	default:
		return reg, xerrors.Errorf("feed %s: %w", n.source, ErrUnrecognized)
	}
	return reg, nil
}

// DetectShape classifies a payload by structure, never by filename or URL.
func DetectShape(body []byte) Shape {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ShapeUnknown
	}
	switch trimmed[0] {
	case '{':
		return ShapeObject
	case '[':
		return ShapeArray
	case '<':
		if bytes.Contains(bytes.ToLower(trimmed), []byte("<table")) {
			return ShapeHTMLTable
		}
		return ShapeUnknown
	}
	return ShapeTable
}

func (n *Normalizer) parseObject(reg types.Registry, body []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return xerrors.Errorf("invalid JSON object: %v: %w", err, ErrUnrecognized)
	}

	keys := make([]string, 0, len(top))
	keys = append(keys, arrayFields...)
	var rest []string
	for k := range top {
		if !slices.Contains(arrayFields, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	for _, k := range keys {
		raw, ok := top[k]
		if !ok {
			continue
		}
		var els []json.RawMessage
		if err := json.Unmarshal(raw, &els); err != nil {
			continue
		}
		// first field whose elements yield at least one valid record wins
		if n.addAll(reg, els, types.SeverityHigh, "unknown") > 0 {
			return nil
		}
	}
	return xerrors.Errorf("no record array found: %w", ErrUnrecognized)
}

func (n *Normalizer) parseArray(reg types.Registry, body []byte) error {
	var els []json.RawMessage
	if err := json.Unmarshal(body, &els); err != nil {
		return xerrors.Errorf("invalid JSON array: %v: %w", err, ErrUnrecognized)
	}
	if n.addAll(reg, els, types.SeverityCritical, n.source) == 0 {
		return xerrors.Errorf("no usable records in array: %w", ErrUnrecognized)
	}
	return nil
}

func (n *Normalizer) addAll(reg types.Registry, els []json.RawMessage, defSeverity types.Severity, defSource string) int {
	var count int
	for _, el := range els {
		var rec record
		if err := json.Unmarshal(el, &rec); err == nil {
			if n.add(reg, rec, defSeverity, defSource) {
				count++
			}
			continue
		}
		// some feeds list plain "name@version" strings
		var spec string
		if err := json.Unmarshal(el, &spec); err != nil {
			continue
		}
		id, version, err := types.ParsePackageSpec(strings.TrimSpace(spec))
		if err != nil {
			continue
		}
		reg.Add(id, version, n.source, defSeverity, time.Time{})
		count++
	}
	return count
}

func (n *Normalizer) parseHTMLTable(reg types.Registry, body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("invalid HTML: %v: %w", err, ErrUnrecognized)
	}

	var count int
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if text := strings.TrimSpace(cell.Text()); text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) < 2 || cells[0] == "Package" {
			return
		}
		rec := record{Name: cells[0], Version: cells[1]}
		if len(cells) > 2 {
			rec.Severity = cells[2]
		}
		if n.add(reg, rec, types.SeverityCritical, "") {
			count++
		}
	})
	if count == 0 {
		return xerrors.Errorf("no package rows in HTML table: %w", ErrUnrecognized)
	}
	return nil
}

func (n *Normalizer) parseTable(reg types.Registry, body []byte) error {
	var count int
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "|") {
			var cells []string
			for _, cell := range strings.Split(line, "|") {
				if cell = strings.TrimSpace(cell); cell != "" {
					cells = append(cells, cell)
				}
			}
			if len(cells) < 2 || cells[0] == "Package" {
				continue
			}
			rec := record{Name: cells[0], Version: cells[1]}
			if len(cells) > 2 {
				rec.Severity = cells[2]
			}
			if n.add(reg, rec, types.SeverityCritical, "") {
				count++
			}
			continue
		}

		token := line
		if len(strings.Fields(line)) != 1 {
			continue
		}
		if idx := strings.LastIndex(token, ":"); idx > 0 && idx < len(token)-1 {
			rec := record{Name: token[:idx], Version: token[idx+1:]}
			if n.add(reg, rec, types.SeverityCritical, "") {
				count++
			}
			continue
		}
		id, version, err := types.ParsePackageSpec(token)
		if err != nil {
			continue
		}
		reg.Add(id, version, n.source, types.SeverityCritical, time.Time{})
		count++
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Errorf("read error: %w", err)
	}
	if count == 0 {
		return xerrors.Errorf("no package lines found: %w", ErrUnrecognized)
	}
	return nil
}

// add inserts one record, applying the shape's severity and provenance
// defaults. The normalizing feed's own name is always part of the source set;
// a record-level provenance label is added alongside it when it differs.
func (n *Normalizer) add(reg types.Registry, rec record, defSeverity types.Severity, defSource string) bool {
	name := strings.TrimSpace(rec.pkgName())
	version := strings.TrimSpace(rec.Version)
	if name == "" || version == "" {
		return false
	}

	severity := types.ParseSeverity(rec.Severity)
	if severity == types.SeverityUnknown {
		severity = defSeverity
	}
	publishedAt := rec.publishedAt()

	id := types.ParseIdentifier(name)
	reg.Add(id, version, n.source, severity, publishedAt)

	provenance := strings.TrimSpace(rec.Source)
	if provenance == "" {
		provenance = defSource
	}
	if provenance != "" && provenance != n.source {
		reg.Add(id, version, provenance, severity, publishedAt)
	}
	return true
}

var gzipMagic = []byte{0x1f, 0x8b}
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func decompress(b []byte) []byte {
	switch {
	case bytes.HasPrefix(b, gzipMagic):
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return b
		}
		defer r.Close()
		if out, err := io.ReadAll(r); err == nil {
			return out
		}
	case bytes.HasPrefix(b, zstdMagic):
		r, err := zstd.NewReader(nil)
		if err != nil {
			return b
		}
		defer r.Close()
		if out, err := r.DecodeAll(b, nil); err == nil {
			return out
		}
	}
	return b
}
