package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/ocr-fusion/constants"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
	"github.com/joseph-ayodele/ocr-fusion/internal/manifest"
)

// CommandConfig describes an OCR engine driven through its command-line entry point.
// Args are templates: {image}, {lang}, {langs} and {gpu} are substituted per run.
type CommandConfig struct {
	Engine  string // paddle | easyocr
	Command string
	Args    []string
	Lang    string
	Langs   []string
	GPU     bool
}

// CommandProvider runs a Python OCR engine and collects one recognized line per stdout line.
type CommandProvider struct {
	cfg      CommandConfig
	key      string
	runner   Runner
	cache    *HandleCache
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// NewCommandProvider creates a provider for the paddle or easyocr engine.
func NewCommandProvider(cfg CommandConfig, cache *HandleCache, opts ...ProviderOption) (*CommandProvider, error) {
	var key string
	switch cfg.Engine {
	case constants.EnginePaddle:
		key = constants.KeyPaddle
	case constants.EngineEasyOCR:
		key = constants.KeyEasy
	default:
		return nil, fmt.Errorf("unsupported command engine %q", cfg.Engine)
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("%s: command is required", cfg.Engine)
	}
	if cache == nil {
		cache = NewHandleCache()
	}
	o := buildOptions(opts)
	return &CommandProvider{
		cfg:      cfg,
		key:      key,
		runner:   o.runner,
		cache:    cache,
		lookPath: o.lookPath,
		logger:   o.logger.With("engine", cfg.Engine),
	}, nil
}

func (p *CommandProvider) Key() string { return p.cfg.Engine }

// CandidateKey is the key under which the output is fused.
func (p *CommandProvider) CandidateKey() string { return p.key }

func (p *CommandProvider) Available(ctx context.Context) bool {
	_, err := p.handle()
	return err == nil
}

func (p *CommandProvider) handle() (*Handle, error) {
	key := HandleKey{
		Engine: p.cfg.Engine,
		Binary: p.cfg.Command,
		Langs:  strings.Join(p.langs(), ","),
		GPU:    p.cfg.GPU,
	}
	return p.cache.Get(key, func() (*Handle, error) {
		path, err := p.lookPath(p.cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("%s not installed", p.cfg.Engine)
		}
		p.logger.Debug("resolved engine", "binary", path)
		return &Handle{Engine: p.cfg.Engine, Binary: path}, nil
	})
}

func (p *CommandProvider) langs() []string {
	if len(p.cfg.Langs) > 0 {
		return p.cfg.Langs
	}
	if p.cfg.Lang != "" {
		return []string{p.cfg.Lang}
	}
	return nil
}

// Run recognizes image and writes <base>.<key>.txt plus a JSON sidecar.
func (p *CommandProvider) Run(ctx context.Context, image string) (Output, error) {
	out := Output{Engine: p.cfg.Engine}
	h, err := p.handle()
	if err != nil {
		out.Error = err.Error()
		p.logger.Warn("engine unavailable", "error", err)
		return out, nil
	}
	out.Available = true

	args := p.renderArgs(image)
	stdout, stderr, runErr := p.runner.Run(ctx, h.Binary, args...)
	inv := Invocation{Format: "txt", ExitCode: exitCode(runErr), Stderr: strings.TrimSpace(string(stderr))}
	if runErr != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if inv.Stderr == "" {
			inv.Stderr = runErr.Error()
		}
		out.Error = inv.Stderr
		out.Invocations = []Invocation{inv}
		return out, nil
	}

	out.Lines = ParseLines(string(stdout))
	texts := make([]string, len(out.Lines))
	for i, l := range out.Lines {
		texts[i] = l.Text
	}
	out.Text = strings.Join(texts, "\n")

	base := ingest.BaseForImage(image)
	out.OutTxt = base + "." + p.key + ".txt"
	out.OutJSON = base + "." + p.key + ".json"
	if err := os.WriteFile(out.OutTxt, []byte(out.Text), 0o644); err != nil {
		return out, fmt.Errorf("write %s: %w", out.OutTxt, err)
	}
	sidecar := struct {
		Engine string `json:"engine"`
		GPU    bool   `json:"gpu"`
		Lines  []Line `json:"lines"`
	}{Engine: p.cfg.Engine, GPU: p.cfg.GPU, Lines: out.Lines}
	if sidecar.Lines == nil {
		sidecar.Lines = []Line{}
	}
	if err := manifest.WriteJSON(out.OutJSON, sidecar); err != nil {
		return out, err
	}

	inv.OutPath = out.OutTxt
	out.Invocations = []Invocation{inv}
	return out, nil
}

func (p *CommandProvider) renderArgs(image string) []string {
	gpu := "False"
	if p.cfg.GPU {
		gpu = "True"
	}
	lang := p.cfg.Lang
	if lang == "" && len(p.cfg.Langs) > 0 {
		lang = p.cfg.Langs[0]
	}
	r := strings.NewReplacer(
		"{image}", image,
		"{langs}", strings.Join(p.langs(), ","),
		"{lang}", lang,
		"{gpu}", gpu,
	)
	out := make([]string, len(p.cfg.Args))
	for i, a := range p.cfg.Args {
		out[i] = r.Replace(a)
	}
	return out
}

var (
	reTupleSingle = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'\s*,\s*([0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)\s*[\)\]]`)
	reTupleDouble = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*,\s*([0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)\s*[\)\]]`)
	reLogPrefix   = regexp.MustCompile(`^\[\d{4}/\d{2}/\d{2} [0-9:]+\]`)
	reEscape      = regexp.MustCompile(`\\(.)`)
)

// ParseLines extracts recognized lines from engine stdout. Each line may be plain
// text, a JSON object with "text" and optional "conf"/"confidence", or a printed
// (text, confidence) tuple.
func ParseLines(stdout string) []Line {
	var out []Line
	for _, raw := range strings.Split(stdout, "\n") {
		ln := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if ln == "" {
			continue
		}
		if strings.HasPrefix(ln, "{") {
			if l, ok := parseJSONLine(ln); ok {
				out = append(out, l)
				continue
			}
		}
		if l, ok := parseTupleLine(ln); ok {
			out = append(out, l)
			continue
		}
		if reLogPrefix.MatchString(ln) {
			continue
		}
		out = append(out, Line{Text: ln})
	}
	return out
}

func parseJSONLine(ln string) (Line, bool) {
	var obj struct {
		Text       *string  `json:"text"`
		Conf       *float64 `json:"conf"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(ln), &obj); err != nil || obj.Text == nil {
		return Line{}, false
	}
	l := Line{Text: strings.TrimSpace(*obj.Text), Conf: obj.Conf}
	if l.Conf == nil {
		l.Conf = obj.Confidence
	}
	return l, l.Text != ""
}

func parseTupleLine(ln string) (Line, bool) {
	var m []string
	for _, re := range []*regexp.Regexp{reTupleSingle, reTupleDouble} {
		all := re.FindAllStringSubmatch(ln, -1)
		if len(all) > 0 {
			m = all[len(all)-1]
			break
		}
	}
	if m == nil {
		return Line{}, false
	}
	conf, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Line{}, false
	}
	text := strings.TrimSpace(reEscape.ReplaceAllString(m[1], "$1"))
	if text == "" {
		return Line{}, false
	}
	return Line{Text: text, Conf: &conf}, true
}
