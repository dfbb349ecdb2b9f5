package eino

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestSummarize(t *testing.T) {
	m := &fakeModel{reply: "```\n\"Cafe A is a family-run coffee shop\n roasting in small batches.\"\n```"}
	s := NewServiceWithModel(Config{Model: "test"}, m)

	got, err := s.Summarize(context.Background(), "Cafe A", "We roast {daily} in small batches.")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Cafe A is a family-run coffee shop roasting in small batches." {
		t.Fatalf("summary %q", got)
	}
	if len(m.got) != 2 || !strings.Contains(m.got[1].Content, "BUSINESS: Cafe A") ||
		!strings.Contains(m.got[1].Content, "We roast {daily}") {
		t.Fatalf("prompt %+v", m.got)
	}
}

func TestSummarizeSkipsEmptyText(t *testing.T) {
	m := &fakeModel{reply: "should not be called"}
	got, err := NewServiceWithModel(Config{}, m).Summarize(context.Background(), "Cafe A", "   ")
	if err != nil || got != "" || m.got != nil {
		t.Fatalf("got %q err %v", got, err)
	}
}

func TestSummarizeModelError(t *testing.T) {
	m := &fakeModel{err: errors.New("quota")}
	if _, err := NewServiceWithModel(Config{}, m).Summarize(context.Background(), "Cafe A", "text"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestUnsupportedProvider(t *testing.T) {
	if _, err := NewService(Config{Provider: "ollama"}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}
