package analytics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"reclaim/common"
)

const (
	visitorCookie = "reclaim_visitor_id"
	visitorMaxAge = 60 * 60 * 24 * 365
	defaultWindow = 30 * time.Minute
	defaultDays   = 30
	maxDays       = 365
	topPostsLimit = 10
	dateLayout    = "2006-01-02"
)

// PostView is one counted visit of a blog post.
type PostView struct {
	ID        uint   `gorm:"primaryKey"`
	PostID    uint   `gorm:"not null;index"`
	VisitorID string `gorm:"not null;index;size:36"`
	Browser   *string
	Language  *string
	CreatedAt time.Time `gorm:"index"`
}

type AnalyticsModule struct {
	db       *gorm.DB
	throttle time.Duration
	now      func() time.Time
}

func NewAnalyticsModule(db *gorm.DB) *AnalyticsModule {
	return &AnalyticsModule{db: db, throttle: defaultWindow, now: time.Now}
}

func (a *AnalyticsModule) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/blog/stats", a.stats)
}

// TrackView records a view of the post unless the same visitor viewed it
// within the throttle window. Failures are logged, never surfaced.
func (a *AnalyticsModule) TrackView(c *gin.Context, postID uint) bool {
	if a == nil || a.db == nil {
		return false
	}

	visitorID := a.visitorID(c)
	now := a.now()

	var recent int64
	err := a.db.Model(&PostView{}).
		Where("visitor_id = ? AND post_id = ? AND created_at > ?", visitorID, postID, now.Add(-a.throttle)).
		Count(&recent).Error
	if err != nil {
		log.Warn().Err(err).Uint("post_id", postID).Msg("view throttle lookup failed")
		return false
	}
	if recent > 0 {
		return false
	}

	view := PostView{
		PostID:    postID,
		VisitorID: visitorID,
		Browser:   extractBrowser(c.Request.UserAgent()),
		Language:  extractLanguage(c.GetHeader("Accept-Language")),
		CreatedAt: now,
	}
	if err := a.db.Create(&view).Error; err != nil {
		log.Warn().Err(err).Uint("post_id", postID).Msg("saving post view failed")
		return false
	}
	return true
}

func (a *AnalyticsModule) visitorID(c *gin.Context) string {
	if cookie, err := c.Cookie(visitorCookie); err == nil {
		if _, err := uuid.Parse(cookie); err == nil {
			return cookie
		}
	}

	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitorCookie, id, visitorMaxAge, "/", "", false, true)
	return id
}

func extractBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	// more specific engines first
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	default:
		browser = "Other"
	}
	return &browser
}

// extractLanguage keeps the most preferred tag of an Accept-Language header.
func extractLanguage(header string) *string {
	if header == "" {
		return nil
	}
	lang := strings.TrimSpace(strings.Split(strings.Split(header, ",")[0], ";")[0])
	if lang == "" {
		return nil
	}
	return &lang
}

type DayViews struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type PostViews struct {
	PostID    uint   `json:"postId"`
	PostTitle string `json:"postTitle"`
	Count     int64  `json:"count"`
}

// ViewCount returns the number of recorded views for a post.
func (a *AnalyticsModule) ViewCount(postID uint) (int64, error) {
	var count int64
	if err := a.db.Model(&PostView{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ViewsByDay returns one bucket per day for the last n days, oldest first,
// including days without views.
func (a *AnalyticsModule) ViewsByDay(days int) ([]DayViews, error) {
	now := a.now()
	start := truncateDay(now).AddDate(0, 0, -(days - 1))

	var stamps []time.Time
	err := a.db.Model(&PostView{}).
		Where("created_at >= ?", start).
		Pluck("created_at", &stamps).Error
	if err != nil {
		return nil, err
	}

	buckets := make([]DayViews, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(dateLayout)
		buckets[i] = DayViews{Date: date}
		index[date] = i
	}
	for _, ts := range stamps {
		if i, ok := index[ts.In(now.Location()).Format(dateLayout)]; ok {
			buckets[i].Count++
		}
	}
	return buckets, nil
}

func (a *AnalyticsModule) TopPosts(days, limit int) ([]PostViews, error) {
	start := truncateDay(a.now()).AddDate(0, 0, -(days - 1))

	results := []PostViews{}
	err := a.db.Model(&PostView{}).
		Select("post_views.post_id AS post_id, blog_posts.title AS post_title, COUNT(*) AS count").
		Joins("JOIN blog_posts ON blog_posts.id = post_views.post_id").
		Where("post_views.created_at >= ?", start).
		Group("post_views.post_id, blog_posts.title").
		Order("count DESC").
		Limit(limit).
		Scan(&results).Error
	return results, err
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type statsResponse struct {
	Days     int         `json:"days"`
	Total    int64       `json:"total"`
	ByDay    []DayViews  `json:"byDay"`
	TopPosts []PostViews `json:"topPosts"`
}

func (a *AnalyticsModule) stats(c *gin.Context) {
	days := defaultDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDays {
			common.Fail(c, common.BadRequest("days must be between 1 and 365"))
			return
		}
		days = n
	}

	byDay, err := a.ViewsByDay(days)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load view stats", err))
		return
	}
	top, err := a.TopPosts(days, topPostsLimit)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load view stats", err))
		return
	}

	var total int64
	for _, d := range byDay {
		total += d.Count
	}

	c.JSON(http.StatusOK, statsResponse{Days: days, Total: total, ByDay: byDay, TopPosts: top})
}
