package pipeline

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
)

var (
	reURL      = regexp.MustCompile(`(?i)https?://[^\s"'<>()\[\]]+`)
	reLinkHint = regexp.MustCompile(`(?i)nfce|qrcode|consulta.*nf|[?&]p=\d{44}|[?&]chnfe=\d{44}`)
	reURLTail  = regexp.MustCompile(`[.,;:!?]+$`)

	reItemMarker = regexp.MustCompile(`(?i)\(\s*c[oó]d(?:igo)?\.?\s*:?\s*\d+\s*\)`)
)

// AttachmentText is the text of an attachment that carried no receipt link.
type AttachmentText struct {
	FileName string
	Text     string
}

type MailExtraction struct {
	Subject         string
	Text            string
	HTML            string
	Links           []string
	Documents       []AttachmentText
	AttachmentNames []string
}

// ExtractFromEmail finds NFC-e consultation links in a raw RFC 822 message:
// plain body, HTML anchors and PDF attachments. PDFs without a link are
// returned as text so the parser chain can read them directly, but only when
// they carry item code markers.
func ExtractFromEmail(raw []byte) (*MailExtraction, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	out := &MailExtraction{
		Subject: env.GetHeader("Subject"),
		Text:    env.Text,
		HTML:    env.HTML,
	}
	seen := map[string]struct{}{}
	add := func(links []string) int {
		n := 0
		for _, l := range links {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out.Links = append(out.Links, l)
			n++
		}
		return n
	}

	add(receiptLinks(env.Text))
	if env.HTML != "" {
		add(htmlLinks(env.HTML))
	}

	for _, att := range append(env.Attachments, env.Inlines...) {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.AttachmentNames = append(out.AttachmentNames, filename)

		if !strings.HasSuffix(strings.ToLower(filename), ".pdf") && att.ContentType != "application/pdf" {
			continue
		}
		text, err := pdfText(att.Content)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		if add(receiptLinks(text)) == 0 && hasItemMarkers(text) {
			out.Documents = append(out.Documents, AttachmentText{FileName: filename, Text: text})
		}
	}

	return out, nil
}

// hasItemMarkers reports whether text has at least one "(Código: N)" item
// marker, the only anchor the text strategy can read.
func hasItemMarkers(text string) bool {
	return reItemMarker.MatchString(text)
}

func receiptLinks(text string) []string {
	var out []string
	for _, m := range reURL.FindAllString(text, -1) {
		m = reURLTail.ReplaceAllString(m, "")
		if reLinkHint.MatchString(m) {
			out = append(out, m)
		}
	}
	return out
}

func htmlLinks(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return receiptLinks(html)
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		out = append(out, receiptLinks(strings.TrimSpace(href))...)
	})
	return append(out, receiptLinks(doc.Text())...)
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
