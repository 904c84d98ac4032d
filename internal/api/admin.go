package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
)

type reloadReq struct {
	SchemaDir string `json:"schema_dir"` // директория с *.dsl / *.yaml
	SeedDir   string `json:"seed_dir"`   // начальные данные
	Force     bool   `json:"force"`      // применить несмотря на замечания линтера
}

// AdminReloadHandler пересобирает хранилище из схемы и начальных данных.
// Текущие записи при этом теряются.
func AdminReloadHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
				return
			}
		}

		boot := s.boot
		if d := strings.TrimSpace(req.SchemaDir); d != "" {
			boot.SchemaDir = d
		}
		if d := strings.TrimSpace(req.SeedDir); d != "" {
			boot.SeedDir = d
		}

		// 1) собираем новое хранилище без блокировки текущего
		ms, issues, err := boot.Build()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reload failed", "errors": []FieldError{fromError(err)}})
			return
		}

		// 2) замечания линтера блокируют, если не force
		if len(issues) > 0 && !req.Force {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "schema has blocking issues",
				"issues":    issues,
				"hint":      "fix schema or retry with force=true",
				"schemaDir": boot.SchemaDir,
				"seedDir":   boot.SeedDir,
			})
			return
		}

		// 3) атомарная замена под write-lock
		s.mu.Lock()
		s.ms = ms
		s.boot = boot
		s.mu.Unlock()
		glog.Infof("api: reloaded schema from %s (%d models)", boot.SchemaDir, len(ms.Names()))

		c.JSON(http.StatusOK, gin.H{
			"ok":        true,
			"schemaDir": boot.SchemaDir,
			"seedDir":   boot.SeedDir,
			"models":    len(ms.Names()),
			"issues":    len(issues),
		})
	}
}
