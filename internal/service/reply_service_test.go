package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mallbridge/mallbridge/internal/domain"
)

type fakeAI struct {
	reply     string
	err       error
	gotSystem string
	gotUser   string
}

func (f *fakeAI) ModelName() string { return "test-model" }

func (f *fakeAI) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.gotSystem, f.gotUser = systemPrompt, userPrompt
	return f.reply, f.err
}

func TestDraftReplyIncludesTitle(t *testing.T) {
	ai := &fakeAI{reply: "thanks for asking"}
	svc := NewReplyService(nil, ai)

	reply, err := svc.DraftReply(context.Background(), "demo", domain.BoardArticle{
		ArticleNo: 42,
		Title:     "Where is my order?",
		Content:   "I ordered last week.",
	})
	require.NoError(t, err)
	require.Equal(t, "thanks for asking", reply)
	require.Contains(t, ai.gotUser, "Title: Where is my order?")
	require.Contains(t, ai.gotUser, "I ordered last week.")
	require.NotEmpty(t, ai.gotSystem)
}

func TestDraftReplyWithoutTitle(t *testing.T) {
	ai := &fakeAI{reply: "ok"}
	svc := NewReplyService(nil, ai)

	_, err := svc.DraftReply(context.Background(), "demo", domain.BoardArticle{Content: "just the body"})
	require.NoError(t, err)
	require.Equal(t, "just the body", ai.gotUser)
}

func TestDraftReplyPropagatesError(t *testing.T) {
	ai := &fakeAI{err: errors.New("model offline")}
	svc := NewReplyService(nil, ai)

	_, err := svc.DraftReply(context.Background(), "demo", domain.BoardArticle{Content: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model offline")
}
