// api/router.go
package api

import (
	"github.com/gin-gonic/gin"
)

func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gin.Logger())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/meta", MetaListHandler(s))
		apiGroup.GET("/meta/:model", MetaModelHandler(s))
		// служебные маршруты: СНАЧАЛА
		apiGroup.GET("/_lint", LintHandler(s))
		apiGroup.POST("/_admin/reload", AdminReloadHandler(s))
		apiGroup.POST("/_load", LoadHandler(s))
		apiGroup.POST("/_replace/:key", ReplaceHandler(s))
		apiGroup.GET("/:model/_count", CountHandler(s))
		apiGroup.POST("/:model/_bulk", BulkCreateHandler(s))

		// обычные CRUD
		apiGroup.POST("/:model", CreateHandler(s))
		apiGroup.GET("/:model", ListHandler(s))
		apiGroup.GET("/:model/:id", GetOneHandler(s))
		apiGroup.GET("/:model/:id/:field", RelatedHandler(s))
		apiGroup.PATCH("/:model/:id", UpdatePartialHandler(s))
		apiGroup.DELETE("/:model/:id", DeleteHandler(s))
	}
	return r
}

func RunServer(addr string, s *Server) error {
	return NewRouter(s).Run(addr)
}
