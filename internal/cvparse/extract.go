package cvparse

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText 表示 PDF 中没有可提取的文本层（例如扫描件）。
var ErrNoText = errors.New("pdf contains no extractable text")

// 相邻两行纵向间距超过该值时视为段落分隔。
const paragraphGap = 18

// ExtractText 按行读取 PDF 文本，段落之间以空行分隔。
func ExtractText(r io.ReaderAt, size int64) (text string, err error) {
	// 库在遇到损坏的 PDF 时会 panic。
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("read pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}

		var prev int64
		for j, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			if j > 0 {
				b.WriteByte('\n')
				if gap := prev - row.Position; gap > paragraphGap || gap < -paragraphGap {
					b.WriteByte('\n')
				}
			}
			b.WriteString(strings.TrimRight(line.String(), " "))
			prev = row.Position
		}
	}

	text = strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
