package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ternarybob/rogo/internal/models"
)

func isPDFContent(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

// parsePDF builds a page from a PDF response body.
func (s *Service) parsePDF(target *url.URL, body []byte, statusCode int, contentType string) (*models.Page, error) {
	text, err := s.extractPDFText(body)
	if err != nil {
		return nil, fmt.Errorf("PDF extraction failed for %s: %w", target.String(), err)
	}

	title := path.Base(target.Path)
	if title == "" || title == "." || title == "/" {
		title = "No title found"
	}

	return &models.Page{
		URL:           target.String(),
		Title:         title,
		Text:          text,
		ContentLength: utf8.RuneCountInString(text),
		StatusCode:    statusCode,
		ContentType:   contentType,
		FetchedAt:     time.Now(),
	}, nil
}

// extractPDFText extracts plain text from a PDF body using pdfcpu. pdfcpu
// operates on files, so the body goes through a temp file and the per-page
// extraction output is reassembled in page order.
func (s *Service) extractPDFText(body []byte) (string, error) {
	tempFile, err := os.CreateTemp("", "rogo-fetch-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp PDF file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(body); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp PDF file: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp("", "rogo-fetch-pages-")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempPath, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	files, _ := os.ReadDir(outDir)
	pageTexts := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = string(content)
	}

	var text strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pageText := pageTexts[pageNum]
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			fmt.Fprintf(&text, "\n\n--- Page %d ---\n\n", pageNum)
		}
		text.WriteString(pageText)
	}

	return text.String(), nil
}
