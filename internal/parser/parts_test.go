package parser_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mixelka/replypost/internal/parser"
	"github.com/mixelka/replypost/internal/stripper"
	"github.com/mixelka/replypost/pkg/models"
)

type fakeStore struct {
	saved []string
}

func (f *fakeStore) Save(ctx context.Context, filename string, data []byte) (models.StoredFile, error) {
	f.saved = append(f.saved, filename)
	return models.StoredFile{
		Name: filename,
		URL:  fmt.Sprintf("https://files.example.com/%d/%s", len(f.saved), filename),
	}, nil
}

func newProcessor(store parser.FileStore, separator string) *parser.PartProcessor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := stripper.New(stripper.DefaultRules(), logger)
	return parser.NewPartProcessor(s, parser.NewHTMLParser(), store, "ask@forum.example.com", separator, logger)
}

func TestProcessBodiesJoinedInOrder(t *testing.T) {
	p := newProcessor(&fakeStore{}, "")
	parts := []models.Part{
		{Kind: models.PartBody, ContentType: "text/plain", Data: []byte("  first chunk \r\n")},
		{Kind: models.PartBody, ContentType: "text/plain", Data: []byte("second chunk")},
	}

	content, err := p.Process(context.Background(), parts, "", "")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if content.Body != "first chunk\n\nsecond chunk" {
		t.Errorf("got %q", content.Body)
	}
	if content.Signature != nil {
		t.Errorf("expected absent signature without a reply code")
	}
}

func TestProcessAttachmentsDeferredAndInlineSpliced(t *testing.T) {
	store := &fakeStore{}
	p := newProcessor(store, "")
	parts := []models.Part{
		{Kind: models.PartBody, ContentType: "text/plain", Data: []byte("see the picture:")},
		{Kind: models.PartInline, Filename: "chart.png", Data: []byte{1}},
		{Kind: models.PartBody, ContentType: "text/plain", Data: []byte("and the log file.")},
		{Kind: models.PartAttachment, Filename: "server.log", Data: []byte{2}},
	}

	content, err := p.Process(context.Background(), parts, "", "")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	want := "see the picture:\n\n![chart.png](https://files.example.com/1/chart.png)\n\nand the log file.\n\n[server.log](https://files.example.com/2/server.log)"
	if content.Body != want {
		t.Errorf("got %q\nwant %q", content.Body, want)
	}
	if len(content.Attachments) != 2 {
		t.Errorf("got %d stored files, want 2", len(content.Attachments))
	}
}

func TestProcessImageLinkPrefix(t *testing.T) {
	store := &fakeStore{}
	p := newProcessor(store, "")
	parts := []models.Part{
		{Kind: models.PartAttachment, Filename: "photo.JPG", Data: []byte{1}},
		{Kind: models.PartAttachment, Filename: "notes.txt", Data: []byte{2}},
	}

	content, err := p.Process(context.Background(), parts, "", "")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !strings.Contains(content.Body, "![photo.JPG](") {
		t.Errorf("raster image should use image syntax, got %q", content.Body)
	}
	if strings.Contains(content.Body, "![notes.txt](") {
		t.Errorf("plain file should not use image syntax, got %q", content.Body)
	}
}

func TestProcessReplyCodeExtractsSignatureAndTrims(t *testing.T) {
	p := newProcessor(&fakeStore{}, "")
	code := "q7r8s9t0u1v2w3x4"
	body := "this is my reply!\n\nOn Wed, Oct 31, 2012 at 1:45 AM, <kp@x> wrote:\n\n> reply to " + code + "@reply.example.com\n> original text\n\nBest,\nKate"
	parts := []models.Part{
		{Kind: models.PartBody, ContentType: "text/plain", Data: []byte(body)},
	}

	content, err := p.Process(context.Background(), parts, code, "kate@example.com")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if content.Body != "this is my reply!" {
		t.Errorf("got body %q", content.Body)
	}
	if content.Signature == nil {
		t.Fatalf("expected a signature")
	}
	if *content.Signature != "Best,\nKate" {
		t.Errorf("got signature %q", *content.Signature)
	}
}

func TestProcessHTMLBody(t *testing.T) {
	p := newProcessor(&fakeStore{}, "")
	parts := []models.Part{
		{Kind: models.PartBody, ContentType: "text/html; charset=utf-8", Data: []byte("<div><p>hello</p><p>world</p></div>")},
	}

	content, err := p.Process(context.Background(), parts, "", "")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if content.Body != "hello\nworld" {
		t.Errorf("got %q", content.Body)
	}
}
