// Package epub extracts publication metadata from EPUB files. Only the OPF
// package document is read; content documents are never rendered here.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// maxEntrySize caps how much of any single archive entry we read. Metadata
// documents are tiny; cover images are bounded so a hostile archive cannot
// exhaust memory.
const maxEntrySize = 16 << 20 // 16 MiB

// Metadata is the publication metadata extracted from an EPUB.
type Metadata struct {
	Title       string
	Author      string
	ISBN        string
	Year        string
	Description string // Markdown, converted from the OPF description
	Cover       []byte // Raw cover image bytes as found in the archive
	SpineCount  int    // Number of spine documents, used as a rough page count
}

// container.xml locates the OPF package document inside the archive.
type containerXML struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type opfPackage struct {
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfMetadata struct {
	Titles      []string        `xml:"title"`
	Creators    []string        `xml:"creator"`
	Identifiers []opfIdentifier `xml:"identifier"`
	Dates       []string        `xml:"date"`
	Description string          `xml:"description"`
	Metas       []opfMeta       `xml:"meta"`
}

type opfIdentifier struct {
	Scheme string `xml:"scheme,attr"`
	Value  string `xml:",chardata"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

var isbnPattern = regexp.MustCompile(`(?:97[89][-\s]?)?(?:\d[-\s]?){9}[\dXx]`)

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// Parse extracts metadata from EPUB file contents. Malformed archives return
// VALIDATION errors; a missing or sparse OPF yields whatever fields were
// present rather than failing outright, as long as a title exists.
func Parse(data []byte) (*Metadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domainerrors.Validation("file is not a valid EPUB archive").WithCause(err)
	}

	opfPath, err := findRootfile(zr)
	if err != nil {
		return nil, err
	}

	raw, err := readEntry(zr, opfPath)
	if err != nil {
		return nil, domainerrors.Validation("EPUB package document unreadable").WithCause(err)
	}

	var pkg opfPackage
	if err := xml.Unmarshal(raw, &pkg); err != nil {
		return nil, domainerrors.Validation("EPUB package document malformed").WithCause(err)
	}

	meta := &Metadata{
		SpineCount: len(pkg.Spine.Itemrefs),
	}

	if len(pkg.Metadata.Titles) > 0 {
		meta.Title = strings.TrimSpace(pkg.Metadata.Titles[0])
	}
	if meta.Title == "" {
		return nil, domainerrors.Validation("EPUB has no title")
	}

	if len(pkg.Metadata.Creators) > 0 {
		meta.Author = strings.TrimSpace(pkg.Metadata.Creators[0])
	}
	meta.ISBN = findISBN(pkg.Metadata.Identifiers)
	meta.Year = findYear(pkg.Metadata.Dates)
	meta.Description = cleanDescription(pkg.Metadata.Description)
	meta.Cover = extractCover(zr, &pkg, opfPath)

	return meta, nil
}

func findRootfile(zr *zip.Reader) (string, error) {
	raw, err := readEntry(zr, "META-INF/container.xml")
	if err != nil {
		return "", domainerrors.Validation("EPUB missing container.xml").WithCause(err)
	}

	var c containerXML
	if err := xml.Unmarshal(raw, &c); err != nil {
		return "", domainerrors.Validation("EPUB container.xml malformed").WithCause(err)
	}
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" {
			return rf.FullPath, nil
		}
	}
	return "", domainerrors.Validation("EPUB container.xml names no package document")
}

func findISBN(ids []opfIdentifier) string {
	// Prefer an identifier explicitly tagged as ISBN.
	for _, id := range ids {
		if strings.EqualFold(id.Scheme, "isbn") {
			return normalizeISBN(id.Value)
		}
	}
	// Fall back to urn:isbn: values or anything that looks like one.
	for _, id := range ids {
		v := strings.TrimSpace(id.Value)
		if rest, ok := strings.CutPrefix(strings.ToLower(v), "urn:isbn:"); ok {
			return normalizeISBN(rest)
		}
		if m := isbnPattern.FindString(v); m != "" {
			return normalizeISBN(m)
		}
	}
	return ""
}

func normalizeISBN(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == 'X' || r == 'x' {
			b.WriteRune(r)
		}
	}
	isbn := strings.ToUpper(b.String())
	if len(isbn) != 10 && len(isbn) != 13 {
		return ""
	}
	return isbn
}

func findYear(dates []string) string {
	for _, d := range dates {
		if m := yearPattern.FindString(d); m != "" {
			return m
		}
	}
	return ""
}

// extractCover locates the cover image via the EPUB 3 cover-image manifest
// property, falling back to the EPUB 2 <meta name="cover"> convention.
// A missing or unreadable cover is not an error.
func extractCover(zr *zip.Reader, pkg *opfPackage, opfPath string) []byte {
	var coverItem *opfItem

	for i := range pkg.Manifest.Items {
		if strings.Contains(pkg.Manifest.Items[i].Properties, "cover-image") {
			coverItem = &pkg.Manifest.Items[i]
			break
		}
	}

	if coverItem == nil {
		coverID := ""
		for _, m := range pkg.Metadata.Metas {
			if m.Name == "cover" {
				coverID = m.Content
				break
			}
		}
		if coverID != "" {
			for i := range pkg.Manifest.Items {
				if pkg.Manifest.Items[i].ID == coverID {
					coverItem = &pkg.Manifest.Items[i]
					break
				}
			}
		}
	}

	if coverItem == nil || coverItem.Href == "" {
		return nil
	}
	if !strings.HasPrefix(coverItem.MediaType, "image/") {
		return nil
	}

	// Hrefs are relative to the package document's directory.
	coverPath := path.Join(path.Dir(opfPath), coverItem.Href)
	raw, err := readEntry(zr, coverPath)
	if err != nil {
		return nil
	}
	return raw
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(raw) > maxEntrySize {
		return nil, fmt.Errorf("entry %s exceeds size limit", name)
	}
	return raw, nil
}
