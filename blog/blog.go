package blog

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"

	"reclaim/analytics"
	"reclaim/cache"
	"reclaim/common"
	"reclaim/models"
)

type BlogModule struct {
	db        *gorm.DB
	cache     *cache.Store
	analytics *analytics.AnalyticsModule
}

// Posts are written by admins only, so raw HTML in markdown is allowed.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(),
	),
)

// NewBlogModule wires the blog endpoints. store and tracker may be nil.
func NewBlogModule(db *gorm.DB, store *cache.Store, tracker *analytics.AnalyticsModule) *BlogModule {
	return &BlogModule{db: db, cache: store, analytics: tracker}
}

func (b *BlogModule) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/blog", b.list)
	api.GET("/blog/:slug", b.post)
}

// RegisterWriteRoutes mounts the post mutations behind requireAdmin.
func (b *BlogModule) RegisterWriteRoutes(api *gin.RouterGroup, requireAdmin gin.HandlerFunc) {
	api.POST("/blog", requireAdmin, b.create)
	api.PUT("/blog/:id", requireAdmin, b.update)
	api.DELETE("/blog/:id", requireAdmin, b.delete)
}

func (b *BlogModule) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/blog", b.listAll)
	admin.POST("/blog/cache/clear", b.clearCache)
}

func (b *BlogModule) list(c *gin.Context) {
	query := b.db.Where("published = ?", true)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	posts := []models.BlogPost{}
	if err := query.Order("published_at DESC, id DESC").Find(&posts).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load posts", err))
		return
	}
	c.JSON(http.StatusOK, posts)
}

type PostDetail struct {
	models.BlogPost
	HTML string `json:"html"`
}

func (b *BlogModule) post(c *gin.Context) {
	var post models.BlogPost
	if err := b.db.Where("slug = ? AND published = ?", c.Param("slug"), true).First(&post).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Post"))
		return
	}

	b.analytics.TrackView(c, post.ID)

	c.JSON(http.StatusOK, PostDetail{BlogPost: post, HTML: b.render(&post)})
}

// render returns the post's HTML, from the disk cache when possible.
func (b *BlogModule) render(post *models.BlogPost) string {
	if b.cache != nil {
		if html, ok := b.cache.Read(post.Slug, post.UpdatedAt); ok {
			return html
		}
	}

	html := renderMarkdown(post.Content)

	if b.cache != nil {
		if err := b.cache.Write(post.Slug, post.UpdatedAt, html); err != nil {
			log.Warn().Err(err).Str("slug", post.Slug).Msg("failed to cache rendered post")
		}
	}
	return html
}

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return buf.String()
}

func (b *BlogModule) listAll(c *gin.Context) {
	posts := []models.BlogPost{}
	if err := b.db.Order("updated_at DESC, id DESC").Find(&posts).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load posts", err))
		return
	}
	c.JSON(http.StatusOK, posts)
}

type postRequest struct {
	Title     string `json:"title" binding:"required,max=200"`
	Slug      string `json:"slug" binding:"max=200"`
	Excerpt   string `json:"excerpt" binding:"max=1000"`
	Content   string `json:"content"`
	Author    string `json:"author" binding:"max=100"`
	Category  string `json:"category" binding:"max=100"`
	ImageURL  string `json:"imageUrl" binding:"omitempty,url"`
	Published bool   `json:"published"`
}

func (b *BlogModule) create(c *gin.Context) {
	var req postRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	post := models.BlogPost{}
	if err := b.apply(&post, &req); err != nil {
		common.Fail(c, err)
		return
	}

	if err := b.db.Create(&post).Error; err != nil {
		common.Fail(c, common.Internal("Failed to create post", err))
		return
	}

	log.Info().Uint("post_id", post.ID).Str("slug", post.Slug).Msg("blog post created")
	c.JSON(http.StatusCreated, post)
}

func (b *BlogModule) update(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req postRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	var post models.BlogPost
	if err := b.db.First(&post, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Post"))
		return
	}

	oldSlug := post.Slug
	if err := b.apply(&post, &req); err != nil {
		common.Fail(c, err)
		return
	}

	if err := b.db.Save(&post).Error; err != nil {
		common.Fail(c, common.Internal("Failed to update post", err))
		return
	}

	b.invalidate(oldSlug, post.Slug)
	c.JSON(http.StatusOK, post)
}

func (b *BlogModule) delete(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var post models.BlogPost
	if err := b.db.First(&post, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Post"))
		return
	}

	if err := b.db.Delete(&post).Error; err != nil {
		common.Fail(c, common.Internal("Failed to delete post", err))
		return
	}

	b.invalidate(post.Slug)
	c.Status(http.StatusNoContent)
}

func (b *BlogModule) clearCache(c *gin.Context) {
	if b.cache != nil {
		if err := b.cache.ClearAll(); err != nil {
			common.Fail(c, common.Internal("Failed to clear cache", err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}

// apply copies the request onto post, deriving and checking the slug.
func (b *BlogModule) apply(post *models.BlogPost, req *postRequest) error {
	slug := generateSlug(req.Slug)
	if slug == "" {
		slug = generateSlug(req.Title)
	}
	if slug == "" {
		return common.Validation("slug could not be derived from the title", nil)
	}

	var clash models.BlogPost
	err := b.db.Select("id").Where("slug = ? AND id <> ?", slug, post.ID).First(&clash).Error
	if err == nil {
		return common.Conflict("A post with this slug already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Internal("Failed to check slug", err)
	}

	post.Title = strings.TrimSpace(req.Title)
	post.Slug = slug
	post.Excerpt = req.Excerpt
	post.Content = req.Content
	post.Author = req.Author
	post.Category = req.Category
	post.ImageURL = req.ImageURL

	if req.Published && post.PublishedAt == nil {
		now := time.Now()
		post.PublishedAt = &now
	}
	post.Published = req.Published
	return nil
}

func (b *BlogModule) invalidate(slugs ...string) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Clear(slugs...); err != nil {
		log.Warn().Err(err).Strs("slugs", slugs).Msg("failed to clear rendered post cache")
	}
}

var accentMap = map[rune]rune{
	'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a', 'å': 'a', 'ā': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i',
	'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o', 'ø': 'o', 'ō': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u',
	'ç': 'c', 'ć': 'c', 'č': 'c',
	'ñ': 'n', 'ń': 'n',
	'ý': 'y', 'ÿ': 'y',
	'ß': 's',
}

func generateSlug(title string) string {
	slug := strings.Map(func(r rune) rune {
		if replacement, ok := accentMap[r]; ok {
			return replacement
		}
		return r
	}, strings.ToLower(title))

	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		if r == ' ' || r == '_' {
			return '-'
		}
		return -1
	}, slug)

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
