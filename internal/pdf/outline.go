package pdf

import (
	"math"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
)

func convertBookmarks(bookmarks []pdfcpu.Bookmark) []models.OutlineItem {
	if len(bookmarks) == 0 {
		return nil
	}
	items := make([]models.OutlineItem, 0, len(bookmarks))
	for _, b := range bookmarks {
		items = append(items, models.OutlineItem{
			Title:  b.Title,
			Bold:   b.Bold,
			Italic: b.Italic,
			Color:  convertColor(b.Color),
			Page:   b.PageFrom,
			Items:  convertBookmarks(b.Kids),
		})
	}
	return items
}

// convertColor maps pdfcpu's 0-1 float channels to 8 bits. Black is the default and is omitted.
func convertColor(c *color.SimpleColor) *models.OutlineColor {
	if c == nil || (c.R == 0 && c.G == 0 && c.B == 0) {
		return nil
	}
	return &models.OutlineColor{R: channel(c.R), G: channel(c.G), B: channel(c.B)}
}

func channel(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(math.Round(float64(v) * 255))
	}
}

// outlineFromToC rebuilds the outline tree from MuPDF's flattened, level-annotated entries.
func outlineFromToC(toc []fitz.Outline) []models.OutlineItem {
	var root []models.OutlineItem
	// path holds the index of the open item at each depth.
	var path []int

	for _, entry := range toc {
		level := entry.Level
		if level < 1 {
			level = 1
		}
		if level > len(path)+1 {
			level = len(path) + 1
		}
		path = path[:level-1]

		item := models.OutlineItem{Title: entry.Title, Page: entry.Page + 1}
		siblings := &root
		for _, idx := range path {
			siblings = &(*siblings)[idx].Items
		}
		*siblings = append(*siblings, item)
		path = append(path, len(*siblings)-1)
	}
	return root
}
