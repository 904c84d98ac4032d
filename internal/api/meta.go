package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relmodels/internal/models"
	"relmodels/internal/schema"
)

// ===== META HANDLERS =====

type metaModelListItem struct {
	Model   string `json:"model"`
	Fields  int    `json:"fields"`
	Records int    `json:"records"`
}

func MetaListHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var out []metaModelListItem
		s.read(func(ms *models.Models) {
			out = make([]metaModelListItem, 0, len(ms.Names()))
			for _, name := range ms.Names() {
				m := ms.Model(name)
				out = append(out, metaModelListItem{
					Model:   name,
					Fields:  len(m.Schema().Fields()),
					Records: m.Len(),
				})
			}
		})
		c.JSON(http.StatusOK, out)
	}
}

type metaIndex struct {
	Field  string `json:"field"`
	Unique bool   `json:"unique,omitempty"`
	Many   bool   `json:"many,omitempty"`
}

type metaModel struct {
	Model   string             `json:"model"`
	Fields  []schema.FieldSpec `json:"fields"`
	Indexes []metaIndex        `json:"indexes"`
}

func MetaModelHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.read(func(ms *models.Models) {
			name, ok := NormalizeModelName(ms, c.Param("model"))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
				return
			}
			def := ms.Model(name).Schema()
			out := metaModel{Model: name}
			for _, f := range def.Fields() {
				out.Fields = append(out.Fields, schema.Describe(f))
			}
			for _, ix := range def.Indexes() {
				out.Indexes = append(out.Indexes, metaIndex{Field: ix.Field, Unique: ix.Unique, Many: ix.Many})
			}
			c.JSON(http.StatusOK, out)
		})
	}
}

// LintHandler: замечания линтера по текущей схеме
func LintHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var issues []schema.Issue
		s.read(func(ms *models.Models) { issues = ms.Schema().Lint() })
		if issues == nil {
			issues = []schema.Issue{}
		}
		c.JSON(http.StatusOK, gin.H{"issues": issues})
	}
}
