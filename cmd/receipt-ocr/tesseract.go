//go:build tesseract

package main

import (
	"github.com/zombor/receipt-ocr/internal/scanning"
	"github.com/zombor/receipt-ocr/internal/scanning/tesseract"
)

func newTesseract() scanning.Engine {
	return tesseract.New()
}
