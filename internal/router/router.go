package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/studyhub-io/studyhub-api/api/swagger"
	"github.com/studyhub-io/studyhub-api/internal/handler"
	"github.com/studyhub-io/studyhub-api/internal/middleware"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/internal/service"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	"github.com/studyhub-io/studyhub-api/pkg/logger"
	corsmiddleware "github.com/studyhub-io/studyhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studyhub-io/studyhub-api/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Users    *handler.UserHandler
	Catalog  *handler.CatalogHandler
	Material *handler.MaterialHandler
	Uploads  *handler.UploadHandler
	Chat     *handler.ChatHandler
	Quiz     *handler.QuizHandler
	Admin    *handler.AdminHandler
	Reports  *handler.ReportHandler
	WS       *handler.WSHandler
	Metrics  *handler.MetricsHandler
}

// Setup builds the gin engine with middleware and all route groups mounted
// under the configured API prefix.
func Setup(cfg *config.Config, logr *zap.Logger, handlers Handlers, auth *service.AuthService, metrics *service.MetricsService, users *repository.UserRepository) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", handlers.Metrics.Health)
	r.GET("/ready", handlers.Metrics.Health)
	r.GET("/metrics", handlers.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", handlers.Auth.Register)
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/refresh", handlers.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), handlers.Auth.Logout)
		authGroup.POST("/change-password", middleware.JWT(auth), handlers.Auth.ChangePassword)
	}

	userGroup := api.Group("/users", middleware.JWT(auth))
	{
		userGroup.GET("/me", handlers.Users.Me)
		userGroup.GET("/leaderboard", handlers.Users.Leaderboard)
		userGroup.GET("", middleware.Staff(), handlers.Users.List)
		userGroup.GET("/:id", handlers.Users.Get)
		userGroup.PUT("/:id", middleware.RBAC("SELF", string(models.RoleAdmin)), handlers.Users.Update)
		userGroup.DELETE("/:id", middleware.RBAC("SELF", string(models.RoleAdmin)), handlers.Users.Deactivate)
	}

	universityGroup := api.Group("/universities")
	{
		universityGroup.GET("", handlers.Catalog.ListUniversities)
		universityGroup.GET("/:id", handlers.Catalog.GetUniversity)
		universityGroup.POST("", middleware.JWT(auth), middleware.Staff(), handlers.Catalog.CreateUniversity)
		universityGroup.PUT("/:id", middleware.JWT(auth), middleware.Staff(), handlers.Catalog.UpdateUniversity)
		universityGroup.DELETE("/:id", middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin), handlers.Catalog.DeleteUniversity)
	}

	courseGroup := api.Group("/courses")
	{
		courseGroup.GET("", handlers.Catalog.ListCourses)
		courseGroup.GET("/:id", handlers.Catalog.GetCourse)
		courseGroup.POST("", middleware.JWT(auth), middleware.Staff(), handlers.Catalog.CreateCourse)
		courseGroup.PUT("/:id", middleware.JWT(auth), middleware.Staff(), handlers.Catalog.UpdateCourse)
		courseGroup.DELETE("/:id", middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin), handlers.Catalog.DeleteCourse)
	}

	materialGroup := api.Group("/materials")
	{
		// Signed-token routes carry their own authorization in the token.
		materialGroup.PUT("/upload/:token", handlers.Material.Upload)
		materialGroup.GET("/download/:token", handlers.Material.Download)

		materialGroup.GET("", middleware.JWT(auth), handlers.Material.List)
		materialGroup.POST("", middleware.JWT(auth), handlers.Material.Create)
		materialGroup.POST("/check-duplicate", middleware.JWT(auth), handlers.Material.CheckDuplicate)
		materialGroup.POST("/presign", middleware.JWT(auth), handlers.Material.Presign)
		materialGroup.GET("/:id", middleware.JWT(auth), handlers.Material.Get)
		materialGroup.GET("/:id/download-url", middleware.JWT(auth), handlers.Material.DownloadURL)
		materialGroup.DELETE("/:id", middleware.JWT(auth), middleware.Audit(users, "material.delete", "materials"), handlers.Material.Delete)
		materialGroup.POST("/:id/flag", middleware.JWT(auth), handlers.Material.Flag)
		materialGroup.GET("/:id/quizzes", middleware.JWT(auth), handlers.Quiz.ListByMaterial)
	}

	uploadGroup := api.Group("/uploads/sessions", middleware.JWT(auth))
	{
		uploadGroup.POST("", handlers.Uploads.CreateSession)
		uploadGroup.PUT("/:id/chunks/:index", handlers.Uploads.PutChunk)
		uploadGroup.GET("/:id", handlers.Uploads.Progress)
		uploadGroup.POST("/:id/complete", handlers.Uploads.Complete)
		uploadGroup.DELETE("/:id", handlers.Uploads.Abort)
	}

	chatGroup := api.Group("/chat", middleware.JWT(auth))
	{
		chatGroup.POST("/message", handlers.Chat.SendMessage)
		chatGroup.GET("/conversations", handlers.Chat.ListConversations)
		chatGroup.GET("/conversations/:id", handlers.Chat.GetConversation)
		chatGroup.DELETE("/conversations/:id", handlers.Chat.DeleteConversation)
	}

	quizGroup := api.Group("/quizzes", middleware.JWT(auth))
	{
		quizGroup.POST("", handlers.Quiz.Generate)
		quizGroup.GET("/:id", handlers.Quiz.Get)
		quizGroup.POST("/:id/attempts", handlers.Quiz.SubmitAttempt)
		quizGroup.GET("/:id/attempts", handlers.Quiz.ListAttempts)
	}

	adminGroup := api.Group("/admin", middleware.JWT(auth), middleware.Staff())
	{
		adminGroup.GET("/stats", handlers.Admin.Stats)
		adminGroup.GET("/queue-status", handlers.Admin.QueueStatus)
		adminGroup.POST("/materials/bulk-delete", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(users, "material.bulk_delete", "materials"), handlers.Admin.BulkDelete)
		adminGroup.GET("/flags", handlers.Admin.ListFlags)
		adminGroup.POST("/flags/:id/resolve", middleware.Audit(users, "flag.resolve", "flags"), handlers.Admin.ResolveFlag)
		adminGroup.POST("/reports", middleware.RequireRoles(models.RoleAdmin), handlers.Reports.Request)
		adminGroup.GET("/reports/:id", handlers.Reports.Status)
	}
	// Report downloads authorize via the signed token.
	api.GET("/admin/reports/download/:token", handlers.Reports.Download)

	wsGroup := api.Group("/ws")
	{
		wsGroup.GET("/materials", handlers.WS.MaterialFeed)
		wsGroup.GET("/materials/:id", handlers.WS.MaterialStatus)
	}

	return r
}
