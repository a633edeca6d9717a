package parser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mixelka/replypost/internal/stripper"
	"github.com/mixelka/replypost/pkg/models"
)

// FileStore persists attachment bytes and returns a handle the forum can
// serve.
type FileStore interface {
	Save(ctx context.Context, filename string, data []byte) (models.StoredFile, error)
}

// Raster image attachments are embedded with markdown image syntax
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// PartProcessor turns the ordered MIME parts of one inbound message into a
// clean markdown body plus stored attachments.
type PartProcessor struct {
	stripper      *stripper.Stripper
	html          *HTMLParser
	store         FileStore
	serverAddress string
	separator     string
	logger        *slog.Logger
}

// NewPartProcessor creates a part processor. serverAddress is the forum's
// own intake address, stripped from trailing sender references; separator is
// the optional reply marker embedded in outbound mail.
func NewPartProcessor(s *stripper.Stripper, html *HTMLParser, store FileStore, serverAddress, separator string, logger *slog.Logger) *PartProcessor {
	return &PartProcessor{
		stripper:      s,
		html:          html,
		store:         store,
		serverAddress: serverAddress,
		separator:     separator,
		logger:        logger.With("component", "part_processor"),
	}
}

// Process assembles body parts in order, stores attachment and inline parts,
// and, when a reply code is supplied, extracts the author's signature and
// cuts the body down to only the new material.
func (p *PartProcessor) Process(ctx context.Context, parts []models.Part, replyCode, fromAddress string) (*models.ParsedContent, error) {
	var bodyChunks []string
	var attachmentLinks []string
	var stored []models.StoredFile

	for _, part := range parts {
		switch part.Kind {
		case models.PartBody:
			text := normalizeNewlines(string(part.Data))
			if strings.HasPrefix(part.ContentType, "text/html") {
				parsed, err := p.html.Parse(text)
				if err != nil {
					p.logger.Warn("failed to parse HTML part", "error", err)
					continue
				}
				text = parsed
			}
			if text = strings.TrimSpace(text); text != "" {
				bodyChunks = append(bodyChunks, text)
			}

		case models.PartAttachment:
			file, err := p.store.Save(ctx, part.Filename, part.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to store attachment %q: %w", part.Filename, err)
			}
			stored = append(stored, file)
			attachmentLinks = append(attachmentLinks, markdownLink(file))

		case models.PartInline:
			file, err := p.store.Save(ctx, part.Filename, part.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to store inline part %q: %w", part.Filename, err)
			}
			stored = append(stored, file)
			// Inline parts keep their position in the prose
			bodyChunks = append(bodyChunks, markdownLink(file))
		}
	}

	body := strings.Join(bodyChunks, "\n\n")
	content := &models.ParsedContent{Attachments: stored}

	if replyCode != "" {
		// The signature lives below the quoted token footer, so it has to
		// come out before the quote is cut away
		if signature, found := stripper.ExtractSignature(body, replyCode); found {
			content.Signature = &signature
		}
		body = p.stripper.ExtractReplyContent(body, p.separator)
	}

	if len(attachmentLinks) > 0 {
		body = strings.TrimRight(body, "\n")
		body += "\n\n" + strings.Join(attachmentLinks, "\n")
	}

	if fromAddress != "" {
		body = p.stripper.StripTrailingSenderReference(body, fromAddress, p.serverAddress)
	}

	content.Body = strings.TrimSpace(body)
	return content, nil
}

func markdownLink(f models.StoredFile) string {
	link := fmt.Sprintf("[%s](%s)", f.Name, f.URL)
	if imageExtensions[strings.ToLower(filepath.Ext(f.Name))] {
		return "!" + link
	}
	return link
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
