package nodes

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentkit/agentkit/common/db"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ExtractContentHandler normalizes email content for the LLM:
// strips HTML tags from the body, decodes base64 attachment content,
// and combines everything into a single text block.
type ExtractContentHandler struct{}

func (h *ExtractContentHandler) Execute(_ context.Context, data, _ map[string]interface{}, _ *db.DB) (*Result, error) {
	subject := toString(data["subject"])
	body := toString(data["body"])

	cleanBody := htmlTagRe.ReplaceAllString(body, " ")
	cleanBody = strings.TrimSpace(whitespaceRe.ReplaceAllString(cleanBody, " "))

	attachments, _ := data["attachments"].([]interface{})

	attachmentTexts := make([]interface{}, 0, len(attachments))
	for _, a := range attachments {
		att, ok := a.(map[string]interface{})
		if !ok {
			continue
		}
		name := toString(att["filename"])
		if name == "" {
			name = toString(att["name"])
		}
		if name == "" {
			name = "attachment"
		}
		content := toString(att["content"])
		if content == "" {
			attachmentTexts = append(attachmentTexts, fmt.Sprintf("[Attachment: %s]", name))
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			attachmentTexts = append(attachmentTexts, fmt.Sprintf("[Attachment: %s] (binary, not decoded)", name))
			continue
		}
		text := strings.ToValidUTF8(string(decoded), "")
		attachmentTexts = append(attachmentTexts, fmt.Sprintf("[Attachment: %s]\n%s", name, text))
	}

	var combined strings.Builder
	fmt.Fprintf(&combined, "Subject: %s\n\nBody:\n%s", subject, cleanBody)
	if len(attachmentTexts) > 0 {
		combined.WriteString("\n\nAttachments:\n")
		for i, t := range attachmentTexts {
			if i > 0 {
				combined.WriteString("\n\n")
			}
			combined.WriteString(t.(string))
		}
	}

	return &Result{
		Output: map[string]interface{}{
			"subject":          subject,
			"clean_body":       cleanBody,
			"attachment_count": len(attachments),
			"attachment_texts": attachmentTexts,
			"combined_text":    combined.String(),
		},
	}, nil
}
