package pipeline

import "strings"

type DetectResult struct {
	IsReceipt bool
	Score     float64
	Reason    string
}

var detectKeywords = []string{"nfc-e", "nfce", "nota fiscal", "cupom fiscal", "danfe", "chave de acesso", "consumidor", "sua compra"}

// DetectReceiptMail scores a message on how likely it carries a consumer
// receipt.
func DetectReceiptMail(m *MailExtraction) DetectResult {
	subject := strings.ToLower(m.Subject)
	body := strings.ToLower(m.Text + " " + m.HTML)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(body, kw) {
			score += 0.1
		}
	}

	if len(m.Links) > 0 {
		score += 0.5
	}
	if len(m.Documents) > 0 {
		score += 0.3
	}
	for _, name := range m.AttachmentNames {
		if strings.HasSuffix(strings.ToLower(name), ".pdf") {
			score += 0.1
			break
		}
	}
	if score > 1 {
		score = 1
	}

	isReceipt := score >= 0.45
	reason := "rules_negative"
	if isReceipt {
		reason = "rules_positive"
	}
	return DetectResult{IsReceipt: isReceipt, Score: score, Reason: reason}
}
