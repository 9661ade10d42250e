package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-market-api/internal/middleware"
	"github.com/noah-isme/course-market-api/internal/service"
)

// Handlers aggregates the HTTP handlers mounted by the router.
type Handlers struct {
	Auth       *AuthHandler
	Course     *CourseHandler
	Lesson     *LessonHandler
	Enrollment *EnrollmentHandler
	Payment    *PaymentHandler
}

// RegisterRoutes mounts all endpoints under the API prefix plus the
// operational endpoints at the root.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, authSvc *service.AuthService, metrics *service.MetricsService) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	api.GET("/users/me", middleware.JWT(authSvc), h.Auth.Me)

	courses := api.Group("/courses")
	{
		courses.GET("", middleware.OptionalJWT(authSvc), h.Course.List)
		courses.GET("/:id", h.Course.Get)
		courses.GET("/:id/lessons", h.Course.ListLessons)

		courses.POST("", middleware.JWT(authSvc), h.Course.Create)
		courses.PUT("/:id", middleware.JWT(authSvc), h.Course.Update)
		courses.DELETE("/:id", middleware.JWT(authSvc), h.Course.Delete)
		courses.POST("/:id/lessons", middleware.JWT(authSvc), h.Course.CreateLesson)
		courses.POST("/:id/enroll", middleware.JWT(authSvc), h.Enrollment.Enroll)
	}

	lessons := api.Group("/lessons", middleware.JWT(authSvc))
	{
		lessons.PUT("/:id", h.Lesson.Update)
		lessons.DELETE("/:id", h.Lesson.Delete)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(authSvc))
	{
		enrollments.GET("", h.Enrollment.List)
		enrollments.GET("/:id", h.Enrollment.Get)
		enrollments.POST("/:id/complete", h.Enrollment.Complete)
	}

	payments := api.Group("/payments")
	{
		// The webhook authenticates with the provider signature, not a JWT.
		payments.POST("/webhook", h.Payment.Webhook)
		payments.GET("/receipts/download", h.Payment.DownloadReceipt)

		payments.POST("/checkout-session", middleware.JWT(authSvc), h.Payment.CreateCheckoutSession)
		payments.GET("", middleware.JWT(authSvc), h.Payment.List)
		payments.GET("/export", middleware.JWT(authSvc), h.Payment.Export)
		payments.GET("/:id/receipt", middleware.JWT(authSvc), h.Payment.ReceiptURL)
	}
}
