package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(handler *Handler, isDebug bool) *gin.Engine {
	var r *gin.Engine
	if isDebug {
		gin.SetMode(gin.DebugMode)
		r = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		r = gin.New()
		r.Use(gin.Recovery())
	}

	// TraceID 中间件 - 必须在其他中间件之前
	r.Use(TraceIDMiddleware())

	// CORS配置 - 允许所有来源（测试工具可能部署在任意宿主上）
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Trace-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Trace-ID"},
		AllowCredentials: false, // AllowAllOrigins 为 true 时必须设置为 false
	}))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		// 浏览器相关
		browserAPI := api.Group("/browser")
		{
			browserAPI.POST("/start", handler.StartBrowser)
			browserAPI.POST("/stop", handler.StopBrowser)
			browserAPI.GET("/status", handler.BrowserStatus)
			browserAPI.POST("/open", handler.OpenBrowserPage)
			browserAPI.POST("/close-page", handler.ClosePage)
		}

		// 元素解析
		api.POST("/resolve", handler.ResolveElement)
		api.POST("/resolve/describe", handler.ResolveByDescription)

		// 自愈
		api.POST("/heal", handler.HealLocator)
		api.GET("/healing/history", handler.ListHealingHistory)
		api.GET("/healing/history/:locator", handler.GetHealingHistory)

		// 描述符管理
		descriptors := api.Group("/descriptors")
		{
			descriptors.GET("", handler.ListDescriptors)
			descriptors.GET("/:id", handler.GetDescriptor)
			descriptors.POST("", handler.CreateDescriptor)
			descriptors.PUT("/:id", handler.UpdateDescriptor)
			descriptors.DELETE("/:id", handler.DeleteDescriptor)
			descriptors.POST("/:id/resolve", handler.ResolveStoredDescriptor)
		}
	}

	return r
}
