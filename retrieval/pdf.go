package retrieval

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ExtractPDFText extracts the plain text of an uploaded PDF so it can run
// through the normal chunk/embed pipeline. Pages that fail to decode are
// skipped rather than failing the upload.
func ExtractPDFText(r io.ReaderAt, size int64, logger *zap.Logger) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var fullText strings.Builder
	totalPages := reader.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			logger.Warn("Skipping null PDF page", zap.Int("page", pageNum))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("Failed to extract text from PDF page",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}

		fullText.WriteString(text)
		fullText.WriteString("\n\n")
	}

	extracted := strings.TrimSpace(fullText.String())
	if extracted == "" {
		return "", fmt.Errorf("no extractable text in PDF")
	}
	logger.Debug("PDF text extraction completed",
		zap.Int("pages", totalPages),
		zap.Int("characters", len(extracted)))
	return extracted, nil
}
