package api

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"relmodels/internal/dsl"
	"relmodels/internal/models"
	"relmodels/internal/schema"
	"relmodels/internal/seed"
)

// Bootstrap: всё, что нужно, чтобы собрать хранилище с нуля
type Bootstrap struct {
	SchemaDir string
	SeedDir   string
	Indexes   map[string][]string
	Options   []models.Option
}

// Build читает схему, прогоняет линтер и загружает начальные данные.
// Замечания линтера возвращаются вместе с хранилищем; решать, блокируют ли они,: вызывающему.
func (b Bootstrap) Build() (*models.Models, []schema.Issue, error) {
	entities, err := dsl.LoadAllEntities(b.SchemaDir)
	if err != nil {
		return nil, nil, fmt.Errorf("schema load: %w", err)
	}
	s, err := schema.Resolve(entities, b.Indexes)
	if err != nil {
		return nil, nil, err
	}
	ms := models.New(s, b.Options...)
	issues := s.Lint()

	if b.SeedDir == "" {
		return ms, issues, nil
	}
	raw, err := seed.LoadDir(b.SeedDir)
	if err != nil {
		return nil, issues, fmt.Errorf("seed load: %w", err)
	}
	loaded, err := ms.LoadData(raw, models.LoadOptions{})
	if err != nil {
		return nil, issues, fmt.Errorf("seed apply: %w", err)
	}
	for name, recs := range loaded {
		glog.Infof("seed: %s: %d records", name, len(recs))
	}
	return ms, issues, nil
}

// Server: HTTP-обёртка над одним хранилищем. Хранилище однопоточное,
// поэтому изменения идут под write-lock, чтения: под read-lock.
type Server struct {
	mu   sync.RWMutex
	ms   *models.Models
	boot Bootstrap
}

func NewServer(ms *models.Models, boot Bootstrap) *Server {
	return &Server{ms: ms, boot: boot}
}

// Models: текущее хранилище (меняется после reload)
func (s *Server) Models() *models.Models {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ms
}

func (s *Server) read(fn func(ms *models.Models)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.ms)
}

func (s *Server) write(fn func(ms *models.Models)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ms)
}
