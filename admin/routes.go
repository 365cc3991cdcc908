package admin

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the admin endpoints on g.
func (s *Server) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/health", s.getHealth)
	g.GET("/status", s.getStatus)
	g.GET("/leads/:email", s.getLead)

	g.POST("/run", s.postRun)
	g.POST("/reload", s.postReload)
	g.POST("/pause", s.postPause)
	g.POST("/resume", s.postResume)
}
