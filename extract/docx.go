package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NativeDOCX extracts paragraph text directly from word/document.xml inside
// the DOCX zip container, without any external conversion tool.
type NativeDOCX struct{}

type docxBody struct {
	XMLName xml.Name   `xml:"body"`
	Paras   []docxPara `xml:"p"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

func (NativeDOCX) ExtractParagraphs(ctx context.Context, path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("extract: opening docx: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("extract: word/document.xml not found in docx")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("extract: opening document.xml: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("extract: reading document.xml: %w", err)
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("extract: parsing document.xml: %w", err)
	}

	paragraphs := make([]string, 0, len(doc.Body.Paras))
	for _, p := range doc.Body.Paras {
		select {
		case <-ctx.Done():
			return paragraphs, ctx.Err()
		default:
		}
		text := extractParaText(p)
		if strings.TrimSpace(text) == "" {
			continue
		}
		paragraphs = append(paragraphs, text)
	}
	return paragraphs, nil
}

func extractParaText(p docxPara) string {
	var b strings.Builder
	for _, run := range p.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
