package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field identifiers understood by the renderer. Any other key in a
// configuration is carried along untouched and ignored at render time.
const (
	FieldInstitution      = "institucion"
	FieldTitle            = "titulo"
	FieldAwardedTo        = "otorgadoA"
	FieldFullName         = "nombreCompleto"
	FieldRole             = "rol"
	FieldEventName        = "nombreEvento"
	FieldEventDescription = "descripcionEvento"
	FieldPeriod           = "periodo"
	FieldHours            = "horas"
	FieldDate             = "fecha"
	FieldCode             = "codigo"
	FieldDNI              = "dni"
	FieldQR               = "qr"
	FieldLogoLeft         = "logoIzquierdo"
	FieldLogoRight        = "logoDerecho"
)

// FieldLayout positions one field on the page. Coordinates are top-left
// page-space points.
type FieldLayout struct {
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	FontSize   float64    `json:"fontSize,omitempty"`
	Color      string     `json:"color,omitempty"`
	FontWeight FontWeight `json:"fontWeight,omitempty"`
	FontFamily string     `json:"fontFamily,omitempty"`
	Width      float64    `json:"width,omitempty"`
	Height     float64    `json:"height,omitempty"`
	Align      string     `json:"align,omitempty"`
	Visible    *bool      `json:"visible,omitempty"`
	Text       string     `json:"text,omitempty"`
	Src        string     `json:"src,omitempty"`
}

// FontWeight is a CSS font weight. Editors send either a keyword
// ("bold") or a number (700); both decode to the same string form.
type FontWeight string

func (w *FontWeight) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*w = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*w = FontWeight(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("fontWeight: %w", err)
	}
	*w = FontWeight(n.String())
	return nil
}

// IsVisible reports whether the field should be drawn. An absent flag
// means visible.
func (f FieldLayout) IsVisible() bool { return f.Visible == nil || *f.Visible }

// TemplateConfig maps field identifiers to their layout.
type TemplateConfig map[string]FieldLayout

// ParseTemplateConfig decodes a stored configuration. Empty, "null" and
// malformed documents yield an empty, non-nil configuration; the error is
// returned so callers can log it, but the configuration is always usable.
func ParseTemplateConfig(raw string) (TemplateConfig, error) {
	cfg := TemplateConfig{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return TemplateConfig{}, fmt.Errorf("parse template config: %w", err)
	}
	if cfg == nil {
		cfg = TemplateConfig{}
	}
	return cfg, nil
}

// JSON serializes the configuration; a nil configuration becomes "{}" so
// storage never receives NULL.
func (c TemplateConfig) JSON() string {
	if len(c) == 0 {
		return "{}"
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Lookup returns the layout for a field only when it exists and is visible.
func (c TemplateConfig) Lookup(field string) (FieldLayout, bool) {
	f, ok := c[field]
	if !ok || !f.IsVisible() {
		return FieldLayout{}, false
	}
	return f, true
}

// VisibleFields lists visible field identifiers in a stable order.
func (c TemplateConfig) VisibleFields() []string {
	out := make([]string, 0, len(c))
	for k, f := range c {
		if f.IsVisible() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Template ("diseño") is a reusable layout plus background.
type Template struct {
	ID         int64          `json:"id"`
	Name       string         `json:"nombre"`
	Active     bool           `json:"activo"`
	Config     TemplateConfig `json:"configuracion"`
	Background string         `json:"fondoUrl"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

var legacyTemplateFile = regexp.MustCompile(`^diseno_(\d+)\.[A-Za-z0-9]+$`)

// DesignIDFromFilename infers a template id from a legacy
// plantilla_certificado value of the form diseno_<id>.<ext>.
func DesignIDFromFilename(name string) (int64, bool) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	m := legacyTemplateFile.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// TemplateFilename builds the legacy filename recorded alongside each
// certificate so stores without a diseno_id column can still find it.
func TemplateFilename(id int64, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("diseno_%d.%s", id, ext)
}
