package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/mallbridge/mallbridge/internal/adapter/cafe24"
	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/service"
)

// BoardHandler exposes the community board endpoints, including AI replies.
type BoardHandler struct {
	malls   *cafe24.Registry
	replies *service.ReplyService
}

// NewBoardHandler creates a new board handler.
func NewBoardHandler(malls *cafe24.Registry, replies *service.ReplyService) *BoardHandler {
	return &BoardHandler{malls: malls, replies: replies}
}

// Register sets up board routes.
func (h *BoardHandler) Register(app *fiber.App) {
	boards := app.Group("/api/cafe24")
	boards.Get("/articles", h.Articles)
	boards.Post("/articles/reply", h.Reply)
	boards.Get("/comments", h.Comments)
	boards.Post("/comments", h.CreateComment)
}

// Articles lists recent articles on a board.
func (h *BoardHandler) Articles(c fiber.Ctx) error {
	mallID := c.Query("mall_id")
	boardNo := fiber.Query[int](c, "board_no", 0)
	limit := fiber.Query[int](c, "limit", 10)

	if mallID == "" || boardNo == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id and board_no are required",
		})
	}

	articles, err := h.malls.Client(mallID).GetBoardArticles(c.Context(), boardNo, limit)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   userMessage(err),
		})
	}
	return c.JSON(fiber.Map{"success": true, "articles": articles})
}

// Reply drafts an AI answer for an article. With post=true the draft is also
// posted back as a comment.
func (h *BoardHandler) Reply(c fiber.Ctx) error {
	var req struct {
		MallID    string `json:"mall_id"`
		BoardNo   int    `json:"board_no"`
		ArticleNo int    `json:"article_no"`
		Post      bool   `json:"post"`
		Title     string `json:"title"`
		Content   string `json:"content"`
	}
	if err := c.Bind().Body(&req); err != nil || req.MallID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id is required",
		})
	}

	if req.Post {
		comment, err := h.replies.ReplyToArticle(c.Context(), req.MallID, req.BoardNo, req.ArticleNo)
		if err != nil {
			return c.Status(errorStatus(err)).JSON(fiber.Map{
				"success": false,
				"error":   userMessage(err),
			})
		}
		return c.JSON(fiber.Map{"success": true, "comment": comment})
	}

	draft, err := h.replies.DraftReply(c.Context(), req.MallID, domain.BoardArticle{
		ArticleNo: req.ArticleNo,
		Title:     req.Title,
		Content:   req.Content,
	})
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   userMessage(err),
		})
	}
	return c.JSON(fiber.Map{"success": true, "reply": draft})
}

// Comments lists the comments under an article.
func (h *BoardHandler) Comments(c fiber.Ctx) error {
	mallID := c.Query("mall_id")
	boardNo := fiber.Query[int](c, "board_no", 0)
	articleNo := fiber.Query[int](c, "article_no", 0)

	if mallID == "" || boardNo == 0 || articleNo == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id, board_no and article_no are required",
		})
	}

	comments, err := h.malls.Client(mallID).GetBoardComments(c.Context(), boardNo, articleNo)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   userMessage(err),
		})
	}
	return c.JSON(fiber.Map{"success": true, "comments": comments})
}

// CreateComment posts a comment under an article.
func (h *BoardHandler) CreateComment(c fiber.Ctx) error {
	var req struct {
		MallID    string `json:"mall_id"`
		BoardNo   int    `json:"board_no"`
		ArticleNo int    `json:"article_no"`
		Content   string `json:"content"`
	}
	if err := c.Bind().Body(&req); err != nil || req.MallID == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "mall_id and content are required",
		})
	}

	comment, err := h.malls.Client(req.MallID).CreateBoardComment(
		c.Context(), req.BoardNo, req.ArticleNo, domain.BoardComment{Content: req.Content},
	)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   userMessage(err),
		})
	}
	return c.JSON(fiber.Map{"success": true, "comment": comment})
}
