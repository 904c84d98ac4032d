package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port      string `json:"port" validate:"required,numeric"`
	SchemaDir string `json:"schemaDir" validate:"required"` // *.dsl / *.yaml с описанием моделей
	SeedDir   string `json:"seedDir"`                       // начальные данные (пусто: без данных)

	// Клиентские id: "counter" (Model_1, Model_2, ...) | "ulid"
	IDStrategy    string `json:"idStrategy" validate:"oneof=counter ulid"`
	AllowDangling bool   `json:"allowDangling"`

	// Дополнительные индексы: модель -> поля
	Indexes map[string][]string `json:"indexes" validate:"dive,keys,required,endkeys,dive,required"`
}

func def() Config {
	return Config{
		Port:          "8080",
		SchemaDir:     "schema",
		SeedDir:       "",
		IDStrategy:    "counter",
		AllowDangling: false,
	}
}

var validate = validator.New()

// Validate проверяет теги validate; ошибки собираются в одну строку
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func loadJSON(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, c)
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// parseIndexes: "Order=name,partner_id;Line=product"
func parseIndexes(v string) map[string][]string {
	out := map[string][]string{}
	for _, part := range strings.Split(v, ";") {
		model, fields, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(model) == "" {
			continue
		}
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out[strings.TrimSpace(model)] = append(out[strings.TrimSpace(model)], f)
			}
		}
	}
	return out
}

// Load собирает конфиг: значения по умолчанию, JSON (-config или RELMODELS_CONFIG),
// затем ENV RELMODELS_*, затем флаги. Флаги регистрируются в fs, так что вызывающий
// может добавить свои (например, glog) до разбора.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := def()

	configPath := fs.String("config", getenv("RELMODELS_CONFIG", "relmodels.json"), "Path to config JSON")
	port := fs.String("port", "", "HTTP port")
	schemaDir := fs.String("schema", "", "Path to schema directory (*.dsl, *.yaml)")
	seedDir := fs.String("seed", "", "Path to seed data directory (*.yaml, *.json)")
	ids := fs.String("ids", "", "Client id strategy (counter/ulid)")
	dangling := fs.String("allow-dangling", "", "Allow links to records that are not loaded yet (true/false)")
	indexes := fs.String("indexes", "", "Extra indexes: Model=field,field;Model2=field")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	// JSON (если файл существует)
	if st, err := os.Stat(*configPath); err == nil && !st.IsDir() {
		if err := loadJSON(*configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", *configPath, err)
		}
	}

	// ENV overrides
	cfg.Port = getenv("RELMODELS_PORT", cfg.Port)
	cfg.SchemaDir = getenv("RELMODELS_SCHEMA_DIR", cfg.SchemaDir)
	cfg.SeedDir = getenv("RELMODELS_SEED_DIR", cfg.SeedDir)
	cfg.IDStrategy = getenv("RELMODELS_ID_STRATEGY", cfg.IDStrategy)
	cfg.AllowDangling = getenvBool("RELMODELS_ALLOW_DANGLING", cfg.AllowDangling)
	if v := getenv("RELMODELS_INDEXES", ""); v != "" {
		cfg.Indexes = parseIndexes(v)
	}

	// Flags overrides (только явно заданные)
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["port"] {
		cfg.Port = strings.TrimSpace(*port)
	}
	if set["schema"] {
		cfg.SchemaDir = strings.TrimSpace(*schemaDir)
	}
	if set["seed"] {
		cfg.SeedDir = strings.TrimSpace(*seedDir)
	}
	if set["ids"] {
		cfg.IDStrategy = strings.TrimSpace(*ids)
	}
	if set["allow-dangling"] {
		b, ok := parseBool(*dangling)
		if !ok {
			return cfg, fmt.Errorf("invalid -allow-dangling value %q", *dangling)
		}
		cfg.AllowDangling = b
	}
	if set["indexes"] {
		cfg.Indexes = parseIndexes(*indexes)
	}

	cfg.IDStrategy = strings.ToLower(cfg.IDStrategy)
	return cfg, cfg.Validate()
}

// Addr: адрес для gin.Run
func (c Config) Addr() string { return ":" + c.Port }
