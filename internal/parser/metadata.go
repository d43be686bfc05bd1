package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nfce/internal"
	"nfce/internal/util"
)

var (
	reFooterCount      = regexp.MustCompile(`(?i)qtde?\.?\s*total\s*de\s*[ií]tens\s*[:\-]?\s*(\d+)([.,]\d+)?`)
	reGrandTotal       = regexp.MustCompile(`(?i)valor\s*(?:total|a\s*pagar)\s*(?:R\$)?\s*:?\s*(?:R\$)?\s*(\d[\d.]*,\d{2})`)
	reToPay            = regexp.MustCompile(`(?i)valor\s*a\s*pagar\s*(?:R\$)?\s*:?\s*(?:R\$)?\s*(\d[\d.]*,\d{2})`)
	reIssueDate        = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})(?:\s+(\d{2}):(\d{2})(?::(\d{2}))?)?`)
	reAccessKey        = regexp.MustCompile(`\b(\d{44})\b`)
	reAccessKeyGrouped = regexp.MustCompile(`\b\d{4}(?:\s\d{4}){10}\b`)
	reUFHost           = regexp.MustCompile(`(?i)\.([a-z]{2})\.gov\.br$`)
	reUFLabel          = regexp.MustCompile(`\bUF[:\s-]*([A-Z]{2})\b`)
	reCNPJLabel        = regexp.MustCompile(`(?i)CNPJ\s*[:\-]?\s*(\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2})`)
	reCNPJ             = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)
	reStoreLabel       = regexp.MustCompile(`(?i)(?:emitente|raz[aã]o\s+social|nome\s+do\s+estabelecimento)\s*[:\-]?\s*(.+)`)
	reCityLabel        = regexp.MustCompile(`(?i)(?:munic[ií]pio|cidade)\s*[:\-]?\s*(.+)`)
)

// Receipts are issued in Brasília time; portals print local wall-clock time.
var brasilia = time.FixedZone("BRT", -3*60*60)

// IBGE state codes, the first two digits of an access key.
var ufByIBGE = map[string]string{
	"11": "RO", "12": "AC", "13": "AM", "14": "RR", "15": "PA", "16": "AP", "17": "TO",
	"21": "MA", "22": "PI", "23": "CE", "24": "RN", "25": "PB", "26": "PE", "27": "AL",
	"28": "SE", "29": "BA", "31": "MG", "32": "ES", "33": "RJ", "35": "SP", "41": "PR",
	"42": "SC", "43": "RS", "50": "MS", "51": "MT", "52": "GO", "53": "DF",
}

var knownUF = func() map[string]bool {
	out := make(map[string]bool, len(ufByIBGE))
	for _, uf := range ufByIBGE {
		out[uf] = true
	}
	return out
}()

// footerIndex is the offset of the "total items" footer: the first marker
// that carries a plain integer count and does not share a line with a
// product code.
func footerIndex(text string) int {
	for _, m := range reFooterCount.FindAllStringSubmatchIndex(text, -1) {
		if m[4] >= 0 {
			continue
		}
		start := lineStart(text, m[0])
		end := strings.IndexByte(text[m[1]:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += m[1]
		}
		if reCodeMarker.MatchString(text[start:end]) {
			continue
		}
		return m[0]
	}
	return -1
}

// applyHeader fills the document-level fields, independent of which strategy
// produced the items.
func applyHeader(doc *Document, res *internal.ReceiptParseResult) {
	text := doc.Text
	res.MerchantName = merchantName(doc)
	res.IssuedAt = issuedAt(text)

	footer := footerIndex(text)
	if footer >= 0 {
		if m := reFooterCount.FindStringSubmatch(text[footer:]); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				res.DeclaredItemCount = util.IntPtr(n)
			}
		}
		if m := reGrandTotal.FindStringSubmatch(text[footer:]); m != nil {
			res.DeclaredGrandTotal = util.FloatPtr(util.ParseLocaleNumber(m[1]))
		}
	}
	if res.DeclaredGrandTotal == nil {
		if m := reToPay.FindStringSubmatch(text); m != nil {
			res.DeclaredGrandTotal = util.FloatPtr(util.ParseLocaleNumber(m[1]))
		}
	}
}

func merchantName(doc *Document) *string {
	if doc.HTML != nil {
		name := collapse(doc.HTML.Find("#spnNomeEmitente, .txtTopo").First().Text())
		if name != "" {
			return &name
		}
	}
	if m := reStoreLabel.FindStringSubmatch(doc.Text); m != nil {
		return util.StringOrNil(firstLine(m[1]))
	}
	return nil
}

func issuedAt(text string) *time.Time {
	m := reIssueDate.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, minute, sec := 0, 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		if m[6] != "" {
			sec, _ = strconv.Atoi(m[6])
		}
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, brasilia)
	if t.Day() != day || int(t.Month()) != month || t.Hour() != hour || t.Minute() != minute {
		return nil
	}
	return &t
}

// ExtractMeta collects the identity of the receipt: access key, state,
// issuer CNPJ, city and store name.
func ExtractMeta(doc *Document, sourceURL string, res *internal.ReceiptParseResult) *internal.ReceiptMeta {
	meta := &internal.ReceiptMeta{SourceURL: sourceURL}
	meta.AccessKey = accessKey(doc.Text, sourceURL)
	meta.UF = stateOf(doc.Text, sourceURL, meta.AccessKey)

	if m := reCNPJLabel.FindStringSubmatch(doc.Text); m != nil {
		meta.CNPJ = util.StringPtr(m[1])
	} else if m := reCNPJ.FindString(doc.Text); m != "" {
		meta.CNPJ = util.StringPtr(m)
	} else if meta.AccessKey != "" {
		meta.CNPJ = util.StringPtr(formatCNPJ(meta.AccessKey[6:20]))
	}

	if doc.HTML != nil {
		meta.CityName = util.StringOrNil(collapse(doc.HTML.Find("#spnMunicipio").First().Text()))
	}
	if meta.CityName == nil {
		if m := reCityLabel.FindStringSubmatch(doc.Text); m != nil {
			meta.CityName = util.StringOrNil(firstLine(m[1]))
		}
	}

	if res != nil && res.MerchantName != nil {
		meta.StoreName = *res.MerchantName
	} else if name := merchantName(doc); name != nil {
		meta.StoreName = *name
	}
	return meta
}

func accessKey(text, sourceURL string) string {
	if u, err := url.Parse(sourceURL); err == nil {
		if p := u.Query().Get("p"); p != "" {
			if m := reAccessKey.FindString(p); m != "" {
				return m
			}
		}
	}
	if m := reAccessKey.FindString(sourceURL); m != "" {
		return m
	}
	if m := reAccessKey.FindString(text); m != "" {
		return m
	}
	if m := reAccessKeyGrouped.FindString(text); m != "" {
		return strings.ReplaceAll(m, " ", "")
	}
	return ""
}

func stateOf(text, sourceURL, key string) string {
	if u, err := url.Parse(sourceURL); err == nil {
		if m := reUFHost.FindStringSubmatch(u.Hostname()); m != nil {
			if uf := strings.ToUpper(m[1]); knownUF[uf] {
				return uf
			}
		}
	}
	for _, m := range reUFLabel.FindAllStringSubmatch(text, -1) {
		if knownUF[m[1]] {
			return m[1]
		}
	}
	if len(key) == 44 {
		return ufByIBGE[key[:2]]
	}
	return ""
}

func formatCNPJ(digits string) string {
	if len(digits) != 14 {
		return digits
	}
	return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
