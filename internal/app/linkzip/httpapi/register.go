package httpapi

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"

	"linkzip.local/internal/app/linkzip"
	"linkzip.local/internal/app/linkzip/phishtank"
	"linkzip.local/internal/platform/auth"
	"linkzip.local/internal/platform/httpmiddleware"
	"linkzip.local/internal/platform/ratelimit"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Deps 路由需要的依赖。Limiter、Updater、JWT 都可以为 nil。
type Deps struct {
	Service *linkzip.Service
	Updater *phishtank.Updater
	Limiter *ratelimit.Limiter
	Tokens  *httpmiddleware.TokenMatcher
	// JWT 为 nil 时不挂载 /api/v1/admin
	JWT auth.TokenService

	CreateRule   ratelimit.Rule
	RedirectRule ratelimit.Rule

	APIName     string
	SiteDomain  string
	CleanupDays int
}

// NewEngine 创建带全套中间件的 gin 引擎并挂载所有公开路由。
func NewEngine(d Deps) (*gin.Engine, error) {
	engine := gin.New()
	if err := httpmiddleware.ConfigureClientIP(engine); err != nil {
		return nil, err
	}
	engine.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.ReqID(),
		httpmiddleware.AccessLog(),
		httpmiddleware.Metrics(),
		httpmiddleware.TraceName(),
		httpmiddleware.CORS(d.SiteDomain),
	)
	if err := Register(engine, d); err != nil {
		return nil, err
	}
	return engine, nil
}

// Register 挂载路由。跳转入口 /:link 和 /404、/health 等静态路由同级，gin 优先匹配静态路由。
//
// 设计原因：
// - cmd/api 只负责组装依赖，路由表集中在这里，测试直接用 NewEngine 起一个完整引擎
// - /api/v1/admin 只在配置了 JWT_SECRET 时挂载，没配时这些路径返回 404 而不是 401
func Register(engine *gin.Engine, d Deps) error {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return err
	}
	engine.SetHTMLTemplate(tmpl)

	if d.Tokens == nil {
		d.Tokens = httpmiddleware.NewTokenMatcher("", "")
	}
	h := &handlers{d: d}

	engine.GET("/", h.root)
	engine.GET("/404", h.notFoundPage)
	engine.GET("/health", h.health)

	engine.POST("/url", httpmiddleware.RateLimit(d.Limiter, d.CreateRule), h.createURL)
	engine.GET("/:link", httpmiddleware.RateLimit(d.Limiter, d.RedirectRule), h.redirect)
	engine.GET("/info/:link", h.info)

	tokenAuth := httpmiddleware.AdminToken(d.Tokens, "token")
	engine.GET("/list/:token", tokenAuth, h.list)
	engine.GET("/phishtank/update/:token", tokenAuth, h.updatePhishTank)

	if d.JWT != nil {
		admin := engine.Group("/api/v1/admin")
		admin.Use(httpmiddleware.AuthRequired(d.JWT), httpmiddleware.RequireRole(auth.RoleAdmin))
		admin.GET("/links", h.list)
		admin.POST("/phishtank/update", h.updatePhishTank)
	}
	return nil
}
