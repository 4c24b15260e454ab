package blog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reclaim/analytics"
	"reclaim/cache"
	"reclaim/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.BlogPost{}, &analytics.PostView{}))
	return db
}

// allowAll stands in for the admin guard; forbidAll for a non-admin session.
func allowAll(c *gin.Context) { c.Next() }

func forbidAll(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
}

func setupTestRouter(t *testing.T, db *gorm.DB, guard gin.HandlerFunc) (*gin.Engine, *cache.Store) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cache.NewStore(t.TempDir(), time.Hour)
	module := NewBlogModule(db, store, analytics.NewAnalyticsModule(db))

	api := router.Group("/api")
	module.RegisterRoutes(api)
	module.RegisterWriteRoutes(api, guard)
	module.RegisterAdminRoutes(api.Group("/admin"))
	return router, store
}

func createTestPost(t *testing.T, db *gorm.DB, slug string, published bool) *models.BlogPost {
	post := &models.BlogPost{
		Title:     "Test Post " + slug,
		Slug:      slug,
		Content:   "# Test Content\n\nThis is a **test** post.",
		Published: published,
	}
	if published {
		now := time.Now()
		post.PublishedAt = &now
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestList_OnlyPublishedPosts(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(t, db, allowAll)
	createTestPost(t, db, "published-post", true)
	createTestPost(t, db, "draft-post", false)

	w := doRequest(router, "GET", "/api/blog", "")
	require.Equal(t, http.StatusOK, w.Code)

	var posts []models.BlogPost
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "published-post", posts[0].Slug)

	w = doRequest(router, "GET", "/api/admin/blog", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	assert.Len(t, posts, 2)
}

func TestPost_Success(t *testing.T) {
	db := setupTestDB(t)
	router, store := setupTestRouter(t, db, allowAll)
	post := createTestPost(t, db, "test-post", true)

	w := doRequest(router, "GET", "/api/blog/test-post", "")
	require.Equal(t, http.StatusOK, w.Code)

	var detail PostDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, post.ID, detail.ID)
	assert.Contains(t, detail.HTML, "<h1>Test Content</h1>")
	assert.Contains(t, detail.HTML, "<strong>test</strong>")

	cached, ok := store.Read(post.Slug, post.UpdatedAt)
	assert.True(t, ok)
	assert.Equal(t, detail.HTML, cached)

	var views int64
	db.Model(&analytics.PostView{}).Where("post_id = ?", post.ID).Count(&views)
	assert.Equal(t, int64(1), views)
}

func TestPost_DraftNotVisible(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(t, db, allowAll)
	createTestPost(t, db, "draft-post", false)

	w := doRequest(router, "GET", "/api/blog/draft-post", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, "GET", "/api/blog/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePost(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(t, db, allowAll)

	w := doRequest(router, "POST", "/api/blog", `{"title":"Ação e Reação: Grounding 101","content":"Breathe.","published":true}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var post models.BlogPost
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &post))
	assert.Equal(t, "acao-e-reacao-grounding-101", post.Slug)
	assert.True(t, post.Published)
	assert.NotNil(t, post.PublishedAt)

	w = doRequest(router, "POST", "/api/blog", `{"title":"Another","slug":"acao-e-reacao-grounding-101"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, "POST", "/api/blog", `{"content":"no title"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, "POST", "/api/blog", `{"title":"!!!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWrites_RequireAdmin(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(t, db, forbidAll)
	post := createTestPost(t, db, "kept", true)

	assert.Equal(t, http.StatusForbidden, doRequest(router, "POST", "/api/blog", `{"title":"Nope"}`).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(router, "PUT", fmt.Sprintf("/api/blog/%d", post.ID), `{"title":"Nope"}`).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(router, "DELETE", fmt.Sprintf("/api/blog/%d", post.ID), "").Code)

	var count int64
	db.Model(&models.BlogPost{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpdatePost_InvalidatesCache(t *testing.T) {
	db := setupTestDB(t)
	router, store := setupTestRouter(t, db, allowAll)
	post := createTestPost(t, db, "old-slug", true)

	require.Equal(t, http.StatusOK, doRequest(router, "GET", "/api/blog/old-slug", "").Code)
	_, ok := store.Read(post.Slug, post.UpdatedAt)
	require.True(t, ok)

	w := doRequest(router, "PUT", fmt.Sprintf("/api/blog/%d", post.ID), `{"title":"New Title","slug":"new-slug","content":"*fresh*","published":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, ok = store.Read(post.Slug, post.UpdatedAt)
	assert.False(t, ok)

	w = doRequest(router, "GET", "/api/blog/new-slug", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<em>fresh</em>")

	assert.Equal(t, http.StatusNotFound, doRequest(router, "GET", "/api/blog/old-slug", "").Code)
}

func TestDeletePost(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(t, db, allowAll)
	post := createTestPost(t, db, "gone", true)

	assert.Equal(t, http.StatusNoContent, doRequest(router, "DELETE", fmt.Sprintf("/api/blog/%d", post.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, "GET", "/api/blog/gone", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, "DELETE", fmt.Sprintf("/api/blog/%d", post.ID), "").Code)
}

func TestGenerateSlug(t *testing.T) {
	tests := map[string]string{
		"Hello World":            "hello-world",
		"  Spaces  everywhere  ": "spaces-everywhere",
		"Café com Pão":           "cafe-com-pao",
		"snake_case and-dashes":  "snake-case-and-dashes",
		"What's next? (Part 2)":  "whats-next-part-2",
		"ÉTAPE Finale":           "etape-finale",
	}
	for input, want := range tests {
		assert.Equal(t, want, generateSlug(input), input)
	}
}

func TestRenderMarkdown_Headers(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"# Header 1", "<h1>Header 1</h1>"},
		{"## Header 2", "<h2>Header 2</h2>"},
		{"### Header 3", "<h3>Header 3</h3>"},
		{"#### Header 4", "<h4>Header 4</h4>"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := renderMarkdown(tt.input)
			assert.Contains(t, result, tt.expected)
		})
	}
}

func TestRenderMarkdown_Lists(t *testing.T) {
	input := "- Item 1\n- Item 2\n- Item 3"
	result := renderMarkdown(input)

	assert.Contains(t, result, "<ul>")
	assert.Contains(t, result, "<li>Item 1</li>")
	assert.Contains(t, result, "<li>Item 3</li>")
	assert.Contains(t, result, "</ul>")
}

func TestRenderMarkdown_ComplexDocument(t *testing.T) {
	input := `# Main Title

This is a paragraph with **bold** and *italic* text.

- List item 1
- List item 2

Check [this link](https://example.com) for more info.

` + "```" + `
code block here
` + "```"

	result := renderMarkdown(input)

	assert.Contains(t, result, "<h1>Main Title</h1>")
	assert.Contains(t, result, "<strong>bold</strong>")
	assert.Contains(t, result, "<em>italic</em>")
	assert.Contains(t, result, "<li>List item 1</li>")
	assert.Contains(t, result, "<a href=\"https://example.com\">this link</a>")
	assert.Contains(t, result, "<pre><code>")
	assert.Contains(t, result, "code block here")
}
