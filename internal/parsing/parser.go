package parsing

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// UnknownStoreName is returned as the store name when a receipt has fragments but no text lines
const UnknownStoreName = "未知商店"

// storeLineWindow is how many leading lines may hold the merchant name
const storeLineWindow = 3

// digit matches ASCII and full-width decimal digits
const digit = `[0-9０-９]`

// Parser extracts structured receipt fields from OCR fragments.
// The keyword tables and patterns are fixed at construction, so a Parser
// can be shared between goroutines.
type Parser struct {
	storeKeywords  []string
	entityMarkers  []string
	totalKeywords  []string
	nonItemMarkers []string

	amountPattern *regexp.Regexp
	datePattern   *regexp.Regexp
	timePattern   *regexp.Regexp
	itemPattern   *regexp.Regexp
}

// NewParser creates a Parser with the default multilingual keyword tables
func NewParser() *Parser {
	return &Parser{
		storeKeywords:  []string{"超市", "商场", "便利店", "百货", "市场", "store", "market", "mart"},
		entityMarkers:  []string{"有限公司", "公司", "专卖店", "分店"},
		totalKeywords:  []string{"合计", "总计", "总额", "金额", "应收", "total", "amount", "sum"},
		nonItemMarkers: []string{"合计", "总计", "收款", "找零", "欢迎"},

		amountPattern: digitPattern(`\d+[.,]\d{2}`),
		datePattern:   digitPattern(`\d{4}[-/年]\d{1,2}[-/月]\d{1,2}|\d{1,2}[-/]\d{1,2}[-/]\d{4}`),
		timePattern:   digitPattern(`\d{1,2}:\d{2}:\d{2}|\d{1,2}:\d{2}`),
		itemPattern:   digitPattern(`^(.+?)[\s\p{Zs}]+(\d+\.\d{2})[\s\p{Zs}]*$`),
	}
}

// digitPattern compiles expr with every \d widened to full-width digits
func digitPattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(strings.ReplaceAll(expr, `\d`, digit))
}

// Parse turns recognized fragments into a ParsedReceipt. It never fails:
// fields that cannot be found are left nil.
func (p *Parser) Parse(fragments []Fragment) ParsedReceipt {
	lines := textLines(fragments)

	receipt := ParsedReceipt{
		Items:      p.extractItems(lines),
		RawLines:   lines,
		Confidence: meanConfidence(fragments),
	}
	if len(fragments) == 0 {
		return receipt
	}

	store := p.extractStoreName(lines)
	receipt.StoreName = &store
	receipt.TransactionDate = firstMatch(p.datePattern, lines)
	receipt.TransactionTime = firstMatch(p.timePattern, lines)
	receipt.TotalAmount = p.extractTotalAmount(lines)

	return receipt
}

// textLines trims every fragment and drops the empty ones, keeping input order
func textLines(fragments []Fragment) []string {
	lines := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if text := strings.TrimSpace(f.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return lines
}

// meanConfidence averages over every fragment, including those with empty text
func meanConfidence(fragments []Fragment) float64 {
	if len(fragments) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fragments {
		sum += f.Confidence
	}
	return sum / float64(len(fragments))
}

func (p *Parser) extractStoreName(lines []string) string {
	if len(lines) == 0 {
		return UnknownStoreName
	}
	head := lines[:min(storeLineWindow, len(lines))]

	for _, line := range head {
		if containsAny(line, p.storeKeywords) {
			return line
		}
	}
	for _, line := range head {
		if containsAny(line, p.entityMarkers) {
			return line
		}
	}
	return lines[0]
}

func firstMatch(pattern *regexp.Regexp, lines []string) *string {
	for _, line := range lines {
		if m := pattern.FindString(line); m != "" {
			return &m
		}
	}
	return nil
}

// extractTotalAmount prefers the last keyword line carrying an amount and
// falls back to the largest amount anywhere on the receipt.
func (p *Parser) extractTotalAmount(lines []string) *float64 {
	for _, line := range slices.Backward(lines) {
		if !containsAny(strings.ToLower(line), p.totalKeywords) {
			continue
		}
		m := p.amountPattern.FindString(line)
		if m == "" {
			continue
		}
		amount, ok := parseAmount(m)
		if !ok {
			continue
		}
		return &amount
	}

	var (
		best  float64
		found bool
	)
	for _, line := range lines {
		for _, m := range p.amountPattern.FindAllString(line, -1) {
			amount, ok := parseAmount(m)
			if !ok {
				continue
			}
			if !found || amount > best {
				best = amount
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return &best
}

// extractItems keeps lines shaped like "name price". Quantity is never read
// from the text; multi-line items and "qty x price" lines are not recognised.
func (p *Parser) extractItems(lines []string) []LineItem {
	items := make([]LineItem, 0)
	for _, line := range lines {
		if containsAny(line, p.nonItemMarkers) {
			continue
		}
		m := p.itemPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		price, ok := parseAmount(m[2])
		if !ok || price < 0 {
			continue
		}
		items = append(items, LineItem{
			Name:     strings.TrimSpace(m[1]),
			Price:    price,
			Quantity: 1,
		})
	}
	return items
}

// parseAmount reads a decimal amount, accepting full-width digits and a comma
// as the decimal separator
func parseAmount(s string) (float64, bool) {
	amount, err := strconv.ParseFloat(strings.Replace(foldDigits(s), ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

// foldDigits maps full-width digits to ASCII
func foldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return r - '０' + '0'
		}
		return r
	}, s)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
