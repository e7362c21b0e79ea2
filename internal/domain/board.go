package domain

// BoardArticle is a customer post on a mall community board.
type BoardArticle struct {
	ShopNo    int    `json:"shop_no,omitempty"`
	BoardNo   int    `json:"board_no,omitempty"`
	ArticleNo int    `json:"article_no,omitempty"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	Writer    string `json:"writer,omitempty"`
	CreatedAt string `json:"created_date,omitempty"`
	ReplyNo   int    `json:"reply_article_no,omitempty"`
}

// BoardComment is a comment under a board article.
type BoardComment struct {
	ShopNo    int    `json:"shop_no,omitempty"`
	CommentNo int    `json:"comment_no,omitempty"`
	Content   string `json:"content"`
	Writer    string `json:"writer,omitempty"`
	CreatedAt string `json:"created_date,omitempty"`
}
