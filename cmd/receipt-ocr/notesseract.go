//go:build !tesseract

package main

import (
	"log/slog"

	"github.com/zombor/receipt-ocr/internal/scanning"
)

func newTesseract() scanning.Engine {
	slog.Warn("Tesseract support not compiled in; rebuild with -tags tesseract")
	return nil
}
