package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mallbridge/mallbridge/internal/adapter/cafe24"
	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// replySystemPrompt frames the completion as a mall customer-service agent.
const replySystemPrompt = "You are a customer service agent for a Cafe24 shopping mall. " +
	"Answer customer posts politely and accurately, in the customer's language."

// ReplyService drafts AI answers to customer board posts and optionally
// posts them back as comments.
type ReplyService struct {
	malls *cafe24.Registry
	ai    port.AIProvider
}

// NewReplyService creates the AI reply service.
func NewReplyService(malls *cafe24.Registry, ai port.AIProvider) *ReplyService {
	return &ReplyService{malls: malls, ai: ai}
}

// DraftReply generates a reply for one board article without posting it.
func (s *ReplyService) DraftReply(ctx context.Context, mallID string, article domain.BoardArticle) (string, error) {
	prompt := article.Content
	if article.Title != "" {
		prompt = fmt.Sprintf("Title: %s\n\n%s", article.Title, article.Content)
	}

	reply, err := s.ai.Complete(ctx, replySystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("draft reply: %w", err)
	}

	slog.Info("reply drafted", "mall_id", mallID, "article_no", article.ArticleNo, "model", s.ai.ModelName())
	return reply, nil
}

// ReplyToArticle fetches an article, drafts an answer, and posts it back as
// a comment under the article.
func (s *ReplyService) ReplyToArticle(ctx context.Context, mallID string, boardNo, articleNo int) (*domain.BoardComment, error) {
	client := s.malls.Client(mallID)

	articles, err := client.GetBoardArticles(ctx, boardNo, 100)
	if err != nil {
		return nil, fmt.Errorf("load article %d: %w", articleNo, err)
	}

	var target *domain.BoardArticle
	for i := range articles {
		if articles[i].ArticleNo == articleNo {
			target = &articles[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("article %d not found on board %d", articleNo, boardNo)
	}

	reply, err := s.DraftReply(ctx, mallID, *target)
	if err != nil {
		return nil, err
	}

	comment, err := client.CreateBoardComment(ctx, boardNo, articleNo, domain.BoardComment{Content: reply})
	if err != nil {
		return nil, fmt.Errorf("post reply comment: %w", err)
	}

	slog.Info("reply posted", "mall_id", mallID, "board_no", boardNo, "article_no", articleNo)
	return comment, nil
}
