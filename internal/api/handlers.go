package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"relmodels/internal/models"
	"relmodels/internal/schema"
)

// modelOr404 разрешает :model; при неудаче сам пишет ответ
func modelOr404(c *gin.Context, ms *models.Models) (*models.Model, bool) {
	name, ok := NormalizeModelName(ms, c.Param("model"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
		return nil, false
	}
	return ms.Model(name), true
}

func recordOr404(c *gin.Context, m *models.Model) (*models.Record, bool) {
	rec := m.Read(parseIDParam(c.Param("id")))
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return nil, false
	}
	return rec, true
}

func writeError(c *gin.Context, err error) {
	fe := fromError(err)
	errs := []FieldError{fe}
	c.JSON(statusForErrors(errs), gin.H{"errors": errs})
}

// GET /api/:model
// ?by=<index>&value=<v>: выборка по индексу; остальные параметры, как в parseListParams
func ListHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.read(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			q := c.Request.URL.Query()
			lp := parseListParams(q)

			all := m.ReadAll()
			if by := strings.TrimSpace(q.Get("by")); by != "" {
				var err error
				if all, err = m.ReadBy(by, indexValue(m, by, q.Get("value"))); err != nil {
					writeError(c, err)
					return
				}
			}

			filtered := filterRecords(all, m.Schema(), lp)
			sortRecordsMultiNulls(filtered, lp.Sort, lp.Nulls)
			page := paginate(filtered, lp)

			c.Header("X-Total-Count", strconv.Itoa(len(filtered)))
			c.JSON(http.StatusOK, flattenAll(m, page, lp.ORM))
		})
	}
}

// indexValue: для id и реляционных полей: идентификатор, для скаляров строка
// приводится к типу поля самим индексом
func indexValue(m *models.Model, key, raw string) any {
	f, ok := m.Schema().Field(key)
	if ok && (key == "id" || f.Kind() != schema.KindScalar) {
		return parseIDParam(raw)
	}
	return raw
}

// GET /api/:model/_count
func CountHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.read(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			lp := parseListParams(c.Request.URL.Query())
			c.JSON(http.StatusOK, gin.H{"total": len(filterRecords(m.ReadAll(), m.Schema(), lp))})
		})
	}
}

// GET /api/:model/:id
func GetOneHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.read(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			rec, ok := recordOr404(c, m)
			if !ok {
				return
			}
			orm, _ := strconv.ParseBool(c.Query("orm"))
			c.JSON(http.StatusOK, flatten(m, rec, orm))
		})
	}
}

// GET /api/:model/:id/:field: живые записи по реляционному полю
func RelatedHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.read(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			rec, ok := recordOr404(c, m)
			if !ok {
				return
			}
			field := c.Param("field")
			related, err := ms.GetRelated(rec, field)
			if err != nil {
				writeError(c, err)
				return
			}
			f, _ := m.Schema().Field(field)
			target := ms.Model(f.(schema.Relational).Relation())
			c.JSON(http.StatusOK, flattenAll(target, related, false))
		})
	}
}

// POST /api/:model: создание (или слияние по id)
func CreateHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		s.write(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			rec, err := m.Create(obj)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, flatten(m, rec, false))
		})
	}
}

// POST /api/:model/_bulk: все или ничего
func BulkCreateHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var items []map[string]any
		if err := c.ShouldBindJSON(&items); err != nil || len(items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON array"})
			return
		}
		s.write(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			recs, err := m.CreateMany(items)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, flattenAll(m, recs, false))
		})
	}
}

// PATCH /api/:model/:id
func UpdatePartialHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch map[string]any
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		s.write(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			rec, ok := recordOr404(c, m)
			if !ok {
				return
			}
			if err := m.Update(rec, patch); err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, flatten(m, rec, false))
		})
	}
}

// DELETE /api/:model/:id
func DeleteHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.write(func(ms *models.Models) {
			m, ok := modelOr404(c, ms)
			if !ok {
				return
			}
			rec, ok := recordOr404(c, m)
			if !ok {
				return
			}
			id := m.Delete(rec)
			glog.V(1).Infof("api: deleted %s(%s)", m.Name(), id)
			c.JSON(http.StatusOK, gin.H{"id": id})
		})
	}
}

// POST /api/_load?serialized=1&only=A,B, тело {"Model": [payload, ...]}
func LoadHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw map[string][]map[string]any
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {model: [records]}"})
			return
		}
		opts := models.LoadOptions{}
		opts.FromSerialized, _ = strconv.ParseBool(c.Query("serialized"))
		if only := strings.TrimSpace(c.Query("only")); only != "" {
			for _, name := range strings.Split(only, ",") {
				if name = strings.TrimSpace(name); name != "" {
					opts.Only = append(opts.Only, name)
				}
			}
		}
		s.write(func(ms *models.Models) {
			res, err := ms.LoadData(raw, opts)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, loadSummary(res))
		})
	}
}

// POST /api/_replace/:key, тело как у _load
func ReplaceHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw map[string][]map[string]any
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {model: [records]}"})
			return
		}
		s.write(func(ms *models.Models) {
			res, err := ms.ReplaceDataByKey(c.Param("key"), raw)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, loadSummary(res))
		})
	}
}

// loadSummary: модель -> id затронутых записей
func loadSummary(res map[string][]*models.Record) map[string][]models.ID {
	out := make(map[string][]models.ID, len(res))
	for name, recs := range res {
		ids := make([]models.ID, len(recs))
		for i, r := range recs {
			ids[i] = r.ID()
		}
		out[name] = ids
	}
	return out
}
