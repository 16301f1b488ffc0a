package app

import (
	"lesson_engine_backend/docs"
	"lesson_engine_backend/internal/middleware"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(a.services.session))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.POST("/logout", c.auth.Logout)
	group.GET("/profile", c.auth.GetProfile)

	lessons := group.Group("/lessons/:id")
	{
		lessons.GET("", c.lesson.GetLesson)
		lessons.GET("/permission", c.lesson.Permission)
		lessons.GET("/attempts", c.lesson.History)
		lessons.POST("/attempts/start", c.lesson.StartAttempt)
		lessons.POST("/attempts/submit", c.lesson.SubmitAttempt)
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		teacher.POST("/lessons", c.lesson.CreateLesson)
		teacher.GET("/lessons", c.lesson.ListLessons)
	}
}
