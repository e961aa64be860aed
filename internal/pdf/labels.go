package pdf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxTreeDepth bounds recursion through malformed or cyclic number trees.
const maxTreeDepth = 32

// labelRange is one entry of the catalog's /PageLabels number tree.
type labelRange struct {
	start  int    // 0-based index of the first page in the range
	style  string // D, R, r, A, a or empty for prefix-only labels
	prefix string
	first  int // numeric value of the first page's label
}

func readLabelRanges(xref *model.XRefTable) ([]labelRange, error) {
	root, err := xref.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	obj, found := root.Find("PageLabels")
	if !found {
		return nil, nil
	}
	tree, err := xref.DereferenceDict(obj)
	if err != nil || tree == nil {
		return nil, fmt.Errorf("invalid page label tree: %v", err)
	}

	var ranges []labelRange
	if err := collectLabelRanges(xref, tree, &ranges, 0); err != nil {
		return nil, err
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	return ranges, nil
}

func collectLabelRanges(xref *model.XRefTable, node types.Dict, out *[]labelRange, depth int) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("page label tree exceeds depth %d", maxTreeDepth)
	}

	if obj, found := node.Find("Nums"); found {
		nums, err := xref.DereferenceArray(obj)
		if err != nil {
			return fmt.Errorf("invalid page label entries: %w", err)
		}
		for i := 0; i+1 < len(nums); i += 2 {
			startObj, err := xref.Dereference(nums[i])
			if err != nil {
				return err
			}
			start, ok := startObj.(types.Integer)
			if !ok {
				continue
			}
			d, err := xref.DereferenceDict(nums[i+1])
			if err != nil || d == nil {
				continue
			}
			*out = append(*out, parseLabelDict(xref, int(start), d))
		}
	}

	if obj, found := node.Find("Kids"); found {
		kids, err := xref.DereferenceArray(obj)
		if err != nil {
			return fmt.Errorf("invalid page label kids: %w", err)
		}
		for _, kid := range kids {
			d, err := xref.DereferenceDict(kid)
			if err != nil || d == nil {
				continue
			}
			if err := collectLabelRanges(xref, d, out, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseLabelDict(xref *model.XRefTable, start int, d types.Dict) labelRange {
	r := labelRange{start: start, first: 1}
	if obj, found := d.Find("S"); found {
		if o, err := xref.Dereference(obj); err == nil {
			if name, ok := o.(types.Name); ok {
				r.style = string(name)
			}
		}
	}
	if obj, found := d.Find("P"); found {
		if o, err := xref.Dereference(obj); err == nil {
			if s, err := types.StringOrHexLiteral(o); err == nil && s != nil {
				r.prefix = *s
			}
		}
	}
	if obj, found := d.Find("St"); found {
		if o, err := xref.Dereference(obj); err == nil {
			if st, ok := o.(types.Integer); ok && int(st) > 0 {
				r.first = int(st)
			}
		}
	}
	return r
}

// expandLabels produces the label of each of pageCount pages. ranges must be sorted by start.
// Pages before the first range get their 1-based number.
func expandLabels(ranges []labelRange, pageCount int) []string {
	labels := make([]string, pageCount)
	current := -1
	for page := 0; page < pageCount; page++ {
		for current+1 < len(ranges) && ranges[current+1].start <= page {
			current++
		}
		if current < 0 {
			labels[page] = strconv.Itoa(page + 1)
			continue
		}
		r := ranges[current]
		labels[page] = r.prefix + formatLabelNumber(r.style, r.first+page-r.start)
	}
	return labels
}

func formatLabelNumber(style string, n int) string {
	switch style {
	case "D":
		return strconv.Itoa(n)
	case "R":
		return romanNumeral(n)
	case "r":
		return strings.ToLower(romanNumeral(n))
	case "A":
		return letterLabel(n)
	case "a":
		return strings.ToLower(letterLabel(n))
	default:
		return ""
	}
}

var romanTable = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

func romanNumeral(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	var b strings.Builder
	for _, r := range romanTable {
		for n >= r.value {
			b.WriteString(r.symbol)
			n -= r.value
		}
	}
	return b.String()
}

// letterLabel numbers A..Z, then AA..ZZ, then AAA and so on.
func letterLabel(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	letter := string(rune('A' + (n-1)%26))
	return strings.Repeat(letter, (n-1)/26+1)
}
