// Package render draws certificates onto PDF pages: background, logos,
// the configured fields with their derived Spanish text, the verification
// QR and the footer.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/assets"
	"github.com/iliyamo/certificate-issuance/internal/model"
)

// ErrMissingField is returned when a mandatory identity field is blank.
var ErrMissingField = errors.New("missing mandatory certificate field")

// Options toggles the optional render steps.
type Options struct {
	// Footer prints the verification code line at the bottom.
	Footer bool
	// Watermark draws a diagonal "PREVIEW" mark. Never set for issuance.
	Watermark bool
	// Now overrides the clock for the issuance-date fallback.
	Now time.Time
}

// Config holds the page and institution settings.
type Config struct {
	PageSize           string // gofpdf size name, default A4
	Orientation        string // "L" or "P", default "L"
	Institution        string
	City               string
	DefaultBackgrounds []string
	MaxImagePx         int
}

// Renderer produces certificate PDFs. It is safe for concurrent use.
type Renderer struct {
	cfg    Config
	assets *assets.Resolver
	qr     *QRGenerator
	images *imageCache
	log    *zap.Logger
}

// New builds a Renderer.
func New(cfg Config, resolver *assets.Resolver, qr *QRGenerator, log *zap.Logger) *Renderer {
	if cfg.PageSize == "" {
		cfg.PageSize = "A4"
	}
	if cfg.Orientation == "" {
		cfg.Orientation = "L"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{cfg: cfg, assets: resolver, qr: qr, images: newImageCache(cfg.MaxImagePx), log: log}
}

// page is the state of one render.
type page struct {
	r    *Renderer
	pdf  *gofpdf.Fpdf
	tr   func(string) string
	w, h float64
	cert *model.Certificate
	log  *zap.Logger
}

// Render draws cert with tpl and returns the PDF bytes. tpl may be nil,
// in which case the built-in layout and default background are used.
// Only a blank code, name or event name is an error; every asset or
// configuration problem degrades instead.
func (r *Renderer) Render(ctx context.Context, cert *model.Certificate, tpl *model.Template, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkMandatory(cert); err != nil {
		return nil, err
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	var (
		cfg        model.TemplateConfig
		background string
	)
	if tpl != nil {
		cfg = tpl.Config
		background = tpl.Background
	}

	pdf := gofpdf.New(r.cfg.Orientation, "pt", r.cfg.PageSize, "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Certificado "+cert.VerificationCode, true)
	pdf.SetCreator(r.cfg.Institution, true)
	pdf.AddPage()
	w, h := pdf.GetPageSize()

	p := &page{
		r:    r,
		pdf:  pdf,
		tr:   pdf.UnicodeTranslatorFromDescriptor(""),
		w:    w,
		h:    h,
		cert: cert,
		log:  r.log.With(zap.String("code", cert.VerificationCode)),
	}

	p.background(background)
	p.logos(cfg)
	if drawn := p.fields(cfg, opts.Now); drawn == 0 {
		p.fallbackLayout(opts.Now)
	}
	if opts.Watermark {
		p.watermark()
	}
	if opts.Footer {
		p.footer()
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate %s: %w", cert.VerificationCode, err)
	}
	return buf.Bytes(), nil
}

func checkMandatory(c *model.Certificate) error {
	if c == nil {
		return fmt.Errorf("%w: certificate", ErrMissingField)
	}
	switch {
	case strings.TrimSpace(c.VerificationCode) == "":
		return fmt.Errorf("%w: codigoVerificacion", ErrMissingField)
	case strings.TrimSpace(c.FullName) == "":
		return fmt.Errorf("%w: nombreCompleto", ErrMissingField)
	case strings.TrimSpace(c.EventName) == "":
		return fmt.Errorf("%w: nombreEvento", ErrMissingField)
	}
	return nil
}

// background stretches the template background over the page, trying
// the configured defaults when it cannot be found.
func (p *page) background(ref string) {
	if p.r.assets == nil {
		return
	}
	refs := append([]string{ref}, p.r.cfg.DefaultBackgrounds...)
	path, err := p.r.assets.ResolveFirst(refs...)
	if err != nil {
		p.log.Debug("no background found, page left blank", zap.String("ref", ref))
		return
	}
	p.image(path, 0, 0, p.w, p.h)
}

func (p *page) logos(cfg model.TemplateConfig) {
	for _, field := range []string{model.FieldLogoLeft, model.FieldLogoRight} {
		l, ok := cfg.Lookup(field)
		if !ok || strings.TrimSpace(l.Src) == "" || p.r.assets == nil {
			continue
		}
		path, err := p.r.assets.Resolve(l.Src)
		if err != nil {
			p.log.Debug("logo not found", zap.String("field", field), zap.String("src", l.Src))
			continue
		}
		w := l.Width
		if w <= 0 {
			w = 90
		}
		p.image(path, l.X, l.Y, w, l.Height)
	}
}

func (p *page) image(path string, x, y, w, h float64) {
	png, err := p.r.images.load(path)
	if err != nil {
		p.log.Warn("image skipped", zap.String("path", path), zap.Error(err))
		return
	}
	if err := placeImage(p.pdf, path, png, x, y, w, h); err != nil {
		p.log.Warn("image skipped", zap.String("path", path), zap.Error(err))
	}
}

// fields draws every visible known field and returns how many were
// configured.
func (p *page) fields(cfg model.TemplateConfig, now time.Time) int {
	drawn := 0
	for _, field := range cfg.VisibleFields() {
		l := cfg[field]
		switch field {
		case model.FieldLogoLeft, model.FieldLogoRight:
			continue
		case model.FieldQR:
			size := l.Width
			if size <= 0 {
				size = 90
			}
			p.qrCode(l.X, l.Y, size)
			drawn++
			continue
		}
		text, known := p.fieldText(field, l, now)
		if !known {
			continue
		}
		drawn++
		if text != "" {
			p.text(l, text)
		}
	}
	return drawn
}

// fieldText computes the display text for a known field.
func (p *page) fieldText(field string, l model.FieldLayout, now time.Time) (string, bool) {
	c := p.cert
	literal := func(def string) string {
		if l.Text != "" {
			return l.Text
		}
		return def
	}
	switch field {
	case model.FieldInstitution:
		return literal(p.r.cfg.Institution), true
	case model.FieldTitle:
		return literal("CERTIFICADO"), true
	case model.FieldAwardedTo:
		return literal("Otorgado a:"), true
	case model.FieldFullName:
		return c.FullName, true
	case model.FieldRole:
		return RoleLabel(c.Role, c.CertificateType), true
	case model.FieldEventName:
		return c.EventName, true
	case model.FieldEventDescription:
		return c.EventDescription, true
	case model.FieldPeriod:
		return EventPeriodLine(c.StartDate, c.EndDate, c.AcademicHours), true
	case model.FieldHours:
		return HoursText(c.AcademicHours), true
	case model.FieldDate:
		return IssuanceLine(p.r.cfg.City, IssuanceDate(c.IssuedAt, c.EndDate, now)), true
	case model.FieldCode:
		return "Código: " + c.VerificationCode, true
	case model.FieldDNI:
		return "DNI: " + c.DNI, true
	}
	return "", false
}

// text draws one line. Without a width, center and right alignment
// anchor on X.
func (p *page) text(l model.FieldLayout, s string) {
	size := l.FontSize
	if size <= 0 {
		size = 14
	}
	p.pdf.SetFont(fontFamily(l.FontFamily), fontStyle(string(l.FontWeight)), size)
	r, g, b := hexToRGB(l.Color)
	p.pdf.SetTextColor(r, g, b)

	s = p.tr(s)
	lineH := size * 1.2
	align := "L"
	switch strings.ToLower(l.Align) {
	case "center":
		align = "C"
	case "right":
		align = "R"
	}
	x, w := l.X, l.Width
	if w <= 0 {
		w = p.pdf.GetStringWidth(s) + 2
		switch align {
		case "C":
			x -= w / 2
		case "R":
			x -= w
		}
	}
	p.pdf.SetXY(x, l.Y)
	p.pdf.CellFormat(w, lineH, s, "", 0, align+"M", false, 0, "")
}

func (p *page) qrCode(x, y, size float64) {
	if p.r.qr == nil {
		return
	}
	raw, degraded, err := p.r.qr.PNG(p.cert.DNI, p.cert.VerificationCode, 300)
	if err != nil {
		p.log.Warn("qr skipped", zap.Error(err))
		return
	}
	png, err := normalizePNG(raw)
	if err != nil {
		p.log.Warn("qr skipped", zap.Error(err))
		return
	}
	if err := placeImage(p.pdf, "qr-"+p.cert.VerificationCode, png, x, y, size, size); err != nil {
		p.log.Warn("qr skipped", zap.Error(err))
		return
	}
	if degraded {
		p.pdf.SetFont("Helvetica", "", 7)
		p.pdf.SetTextColor(120, 120, 120)
		p.pdf.SetXY(x, y+size+2)
		p.pdf.CellFormat(size, 9, p.tr("QR no disponible"), "", 0, "CM", false, 0, "")
	}
}

// fallbackLayout is used when a template has no known field at all.
func (p *page) fallbackLayout(now time.Time) {
	c := p.cert
	center := func(y, size float64, style, s string) {
		p.text(model.FieldLayout{X: 0, Y: y, Width: p.w, FontSize: size, FontWeight: model.FontWeight(style), Align: "center", Color: "#1f2937"}, s)
	}
	if p.r.cfg.Institution != "" {
		center(p.h*0.12, 16, "bold", p.r.cfg.Institution)
	}
	center(p.h*0.22, 40, "bold", "CERTIFICADO")
	center(p.h*0.34, 16, "", "Otorgado a:")
	center(p.h*0.41, 30, "bold", c.FullName)
	center(p.h*0.52, 15, "", fmt.Sprintf("En calidad de %s en el evento \"%s\"", RoleLabel(c.Role, c.CertificateType), c.EventName))
	if line := EventPeriodLine(c.StartDate, c.EndDate, c.AcademicHours); line != "" {
		center(p.h*0.58, 13, "", line)
	}
	center(p.h*0.70, 12, "", IssuanceLine(p.r.cfg.City, IssuanceDate(c.IssuedAt, c.EndDate, now)))
	p.qrCode(p.w-150, p.h-170, 100)
}

func (p *page) watermark() {
	p.pdf.SetAlpha(0.18, "Normal")
	p.pdf.TransformBegin()
	p.pdf.TransformRotate(30, p.w/2, p.h/2)
	p.pdf.SetFont("Helvetica", "B", 110)
	p.pdf.SetTextColor(200, 30, 30)
	p.pdf.SetXY(0, p.h/2-60)
	p.pdf.CellFormat(p.w, 120, "PREVIEW", "", 0, "CM", false, 0, "")
	p.pdf.TransformEnd()
	p.pdf.SetAlpha(1, "Normal")
}

func (p *page) footer() {
	line := "Código de verificación: " + p.cert.VerificationCode
	if p.r.qr != nil && p.r.qr.BaseURL != "" {
		line += "  -  Verifique en " + p.r.qr.URL(p.cert.DNI, p.cert.VerificationCode)
	}
	p.pdf.SetFont("Helvetica", "", 8)
	p.pdf.SetTextColor(90, 90, 90)
	p.pdf.SetXY(0, p.h-22)
	p.pdf.CellFormat(p.w, 12, p.tr(line), "", 0, "CM", false, 0, "")
}

func fontFamily(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "times"), strings.Contains(n, "serif") && !strings.Contains(n, "sans"), strings.Contains(n, "georgia"):
		return "Times"
	case strings.Contains(n, "courier"), strings.Contains(n, "mono"):
		return "Courier"
	}
	return "Helvetica"
}

func fontStyle(weight string) string {
	w := strings.ToLower(strings.TrimSpace(weight))
	if w == "bold" || w == "bolder" {
		return "B"
	}
	if n, err := strconv.Atoi(w); err == nil && n >= 600 {
		return "B"
	}
	return ""
}

// hexToRGB parses #rgb or #rrggbb; anything else is black.
func hexToRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
