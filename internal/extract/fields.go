package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseAmount materializes a monetary literal as an exact fixed-point
// decimal. Binary floating point is never used: rounding drift across
// thousands of transactions is unacceptable.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	// Strip currency symbols and codes
	s = currencyMarkerRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	negative := strings.HasPrefix(s, "-") || (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	s = strings.Trim(s, "()-")
	s = strings.TrimSpace(s)

	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", raw)
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the rightmost is the decimal separator
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Comma only: two trailing digits mean a decimal separator,
		// otherwise it groups thousands
		if len(s)-lastComma-1 == 2 {
			s = strings.ReplaceAll(s[:lastComma], ",", "") + "." + s[lastComma+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var (
	currencyMarkerRe = regexp.MustCompile(`(?i)\b(?:USD|CRC|EUR|GBP|MXN|COP|ARS|PEN|BRL)\b|[$₡€£¥]`)

	// amountRe finds monetary literals with an explicit decimal part in
	// free text. The decimal part requirement keeps reference numbers and
	// card suffixes from matching; the leading boundary keeps ungrouped
	// amounts like 1500.00 from matching mid-number.
	amountRe = regexp.MustCompile(`(?:^|[^\d.,])((?:(?:USD|CRC|EUR|GBP|MXN|COP)\s*|[$₡€£]\s*)?(?:\d{1,3}(?:[.,]\d{3})+|\d+)[.,]\d{2})\b`)

	currencyCodeRe  = regexp.MustCompile(`\b(USD|CRC|EUR|GBP|MXN|COP|ARS|PEN|BRL)\b`)
	currencySymbols = map[string]string{"$": "USD", "₡": "CRC", "€": "EUR", "£": "GBP"}

	isoDateRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	slashDateRe = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`)

	merchantRe = regexp.MustCompile(`(?i)(?:\bat\b|\ben\b|\bcomercio:?\s*)\s*([A-Z0-9][A-Z0-9ÁÉÍÓÚÑ&' .-]{2,60}?)(?:\s+(?:on|el|por|ref)\b|[.,\n]|$)`)

	referenceRe = regexp.MustCompile(`(?i)(?:referencia|reference|ref|confirmaci[oó]n|confirmation)[:#\s]+([A-Z0-9-]{4,40})`)
)

// dateFormats to try when parsing extracted dates.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006",
	"02/01/06",
	"2/1/06",
	"Jan 02 2006",
	"Jan 2 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
}

// ParseDate parses a date literal against the known format table.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// FindAmount locates the most plausible monetary literal in free text.
func FindAmount(text string) string {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// FindDate locates a date literal in free text.
func FindDate(text string) string {
	if m := isoDateRe.FindString(text); m != "" {
		return m
	}
	return slashDateRe.FindString(text)
}

// FindMerchant locates a merchant/counterparty phrase in free text.
func FindMerchant(text string) string {
	m := merchantRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// FindReference locates a reference/confirmation identifier in free text.
func FindReference(text string) string {
	m := referenceRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// DetectCurrency returns the ISO code of the first currency marker found.
func DetectCurrency(text string) string {
	if m := currencyCodeRe.FindString(text); m != "" {
		return m
	}
	for symbol, code := range currencySymbols {
		if strings.Contains(text, symbol) {
			return code
		}
	}
	return ""
}
