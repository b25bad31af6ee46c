// Package policy describes what generated strategy code may do. A Policy is loaded once,
// validated, and then shared read-only by every validator and executor of a run.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidPolicy = errors.New("invalid policy")

type Limits struct {
	MaxLeverage       float64 `yaml:"max_leverage" validate:"gt=0"`
	MaxPositionPctADV float64 `yaml:"max_position_pct_adv" validate:"gt=0,lte=1"`
	// Notional converts a fractional position into an order size in units.
	Notional float64 `yaml:"notional" validate:"gt=0"`
	// MaxTurnover bounds the mean absolute position change per bar over a segment.
	MaxTurnover float64 `yaml:"max_turnover" validate:"gt=0"`
	// StabilitySharpe is the test-window Sharpe below which a strategy is flagged unstable.
	StabilitySharpe float64 `yaml:"stability_sharpe"`
}

type Policy struct {
	AllowedModules     []string `yaml:"allowed_modules" validate:"min=1,dive,required"`
	BannedCalls        []string `yaml:"banned_calls" validate:"dive,required"`
	BannedModules      []string `yaml:"banned_modules" validate:"dive,required"`
	WallClockCalls     []string `yaml:"wall_clock_calls" validate:"dive,required"`
	FilesystemCalls    []string `yaml:"filesystem_calls" validate:"dive,required"`
	ShiftFunctions     []string `yaml:"shift_functions" validate:"dive,required"`
	LeadFunctions      []string `yaml:"lead_functions" validate:"dive,required"`
	DataNames          []string `yaml:"data_names" validate:"dive,required"`
	LeakageIdentifiers []string `yaml:"leakage_identifiers" validate:"dive,required"`
	LeverageNames      string   `yaml:"leverage_names" validate:"required"`
	SizeNames          string   `yaml:"size_names" validate:"required"`

	Limits Limits `yaml:"limits"`

	TempRoot       string        `yaml:"temp_root" validate:"required"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxSteps       uint64        `yaml:"max_steps"`
	MaxSourceBytes int           `yaml:"max_source_bytes" validate:"gte=0"`

	once     sync.Once
	compiled *compiled
	err      error
}

type compiled struct {
	allowed    map[string]bool
	data       map[string]bool
	shift      map[string]bool
	lead       map[string]bool
	fs         map[string]bool
	leakage    []*regexp.Regexp
	leverage   *regexp.Regexp
	size       *regexp.Regexp
	bannedRoot map[string]bool
}

// Default mirrors the guard rail the research pipeline has always run with: pandas-style
// numerics only, no clocks, no network, no files outside the temp root, 2x leverage and
// 5% of ADV per order.
func Default() *Policy {
	return &Policy{
		AllowedModules: []string{"math", "ta", "scratch"},
		BannedCalls: []string{
			"eval", "exec", "compile", "input", "__import__", "getattr", "setattr",
			"globals", "locals", "vars",
			"*.get", "*.post", "*.put", "*.delete", "*.download", "*.fetch",
		},
		BannedModules: []string{
			"requests", "urllib", "urllib2", "urllib3", "http", "httpx", "aiohttp",
			"socket", "ftplib", "smtplib", "os", "sys", "subprocess", "shutil",
			"pathlib", "io", "time", "datetime", "pickle",
		},
		WallClockCalls:     []string{"now", "today", "utcnow", "time", "*.now", "*.today", "*.utcnow", "time.*"},
		FilesystemCalls:    []string{"open", "file"},
		ShiftFunctions:     []string{"shift", "lag"},
		LeadFunctions:      []string{"lead"},
		DataNames:          []string{"bars", "price", "open", "high", "low", "close", "volume", "adv", "dates"},
		LeakageIdentifiers: []string{`(?i)future`, `(?i)tomorrow`, `^next_`},
		LeverageNames:      `(?i)(leverage|^lev$|margin)`,
		SizeNames:          `(?i)(pct_adv|adv_pct|position_pct|size_pct|position_size)`,
		Limits: Limits{
			MaxLeverage:       2.0,
			MaxPositionPctADV: 0.05,
			Notional:          1_000_000,
			MaxTurnover:       0.5,
			StabilitySharpe:   0.3,
		},
		TempRoot:       filepath.Join(os.TempDir(), "atlas-sandbox"),
		Timeout:        5 * time.Second,
		MaxSteps:       50_000_000,
		MaxSourceBytes: 64 << 10,
	}
}

// Load reads a YAML policy. Fields missing from the file keep their Default values.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Policy, error) {
	p := Default()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

var validate = validator.New()

// Validate checks field constraints and compiles the matchers. It is idempotent and the
// result is cached, so a Policy must not be modified after the first call.
func (p *Policy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: no policy", ErrInvalidPolicy)
	}
	_, err := p.rules()
	return err
}

func (p *Policy) rules() (*compiled, error) {
	p.once.Do(func() {
		if err := validate.Struct(p); err != nil {
			p.err = fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
			return
		}
		p.compiled, p.err = p.compile()
	})
	return p.compiled, p.err
}

func (p *Policy) compile() (*compiled, error) {
	c := &compiled{
		allowed:    toSet(p.AllowedModules),
		data:       toSet(p.DataNames),
		shift:      toSet(p.ShiftFunctions),
		lead:       toSet(p.LeadFunctions),
		fs:         toSet(p.FilesystemCalls),
		bannedRoot: toSet(p.BannedModules),
	}
	for _, expr := range p.LeakageIdentifiers {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: leakage identifier %q: %v", ErrInvalidPolicy, expr, err)
		}
		c.leakage = append(c.leakage, re)
	}
	var err error
	if c.leverage, err = regexp.Compile(p.LeverageNames); err != nil {
		return nil, fmt.Errorf("%w: leverage names: %v", ErrInvalidPolicy, err)
	}
	if c.size, err = regexp.Compile(p.SizeNames); err != nil {
		return nil, fmt.Errorf("%w: size names: %v", ErrInvalidPolicy, err)
	}
	for _, m := range p.AllowedModules {
		if c.bannedRoot[m] {
			return nil, fmt.Errorf("%w: module %q is both allowed and banned", ErrInvalidPolicy, m)
		}
	}
	return c, nil
}

func toSet(xs []string) map[string]bool {
	out := make(map[string]bool, len(xs))
	for _, x := range xs {
		out[x] = true
	}
	return out
}

func (p *Policy) must() *compiled {
	c, err := p.rules()
	if err != nil {
		// Matchers on an invalid policy deny everything; callers check Validate first.
		return &compiled{}
	}
	return c
}

func (p *Policy) ModuleAllowed(name string) bool { return p.must().allowed[name] }

// ModuleBanned reports whether name is a known dangerous module root such as "requests".
func (p *Policy) ModuleBanned(name string) bool { return p.must().bannedRoot[name] }

func (p *Policy) IsDataName(name string) bool { return p.must().data[name] }

func (p *Policy) IsShift(name string) bool { return p.must().shift[name] }

func (p *Policy) IsLead(name string) bool { return p.must().lead[name] }

func (p *Policy) IsFilesystemCall(name string) bool { return p.must().fs[name] }

func (p *Policy) IsLeverageName(name string) bool {
	re := p.must().leverage
	return re != nil && re.MatchString(name)
}

func (p *Policy) IsSizeName(name string) bool {
	re := p.must().size
	return re != nil && re.MatchString(name)
}

// LeakageIdentifier returns the first look-ahead name pattern that matches name.
func (p *Policy) LeakageIdentifier(name string) (string, bool) {
	for _, re := range p.must().leakage {
		if re.MatchString(name) {
			return re.String(), true
		}
	}
	return "", false
}

// BannedCall returns the banned-call pattern matching a dotted callee name.
func (p *Policy) BannedCall(name string) (string, bool) {
	return matchAny(p.BannedCalls, name)
}

func (p *Policy) WallClockCall(name string) (string, bool) {
	return matchAny(p.WallClockCalls, name)
}

// InTempRoot reports whether a literal path resolves inside the temp root.
func (p *Policy) InTempRoot(path string) bool {
	root := filepath.Clean(p.TempRoot)
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		return false
	}
	rel, err := filepath.Rel(root, clean)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchAny(patterns []string, name string) (string, bool) {
	for _, pat := range patterns {
		if MatchDotted(pat, name) {
			return pat, true
		}
	}
	return "", false
}

// MatchDotted matches dotted names segment by segment. "*" matches exactly one segment,
// with two extensions: a trailing "*" matches any non-empty remainder ("requests.*"
// matches "requests.a.b"), and a leading "*" matches any non-empty prefix ("*.now"
// matches "datetime.datetime.now").
func MatchDotted(pattern, name string) bool {
	ps := strings.Split(pattern, ".")
	ns := strings.Split(name, ".")
	if len(ps) > 1 && ps[0] == "*" {
		for k := 1; k < len(ns); k++ {
			if matchSegments(ps[1:], ns[k:]) {
				return true
			}
		}
		return false
	}
	return matchSegments(ps, ns)
}

func matchSegments(ps, ns []string) bool {
	for i, seg := range ps {
		if i >= len(ns) {
			return false
		}
		if seg == "*" {
			if i == len(ps)-1 && len(ps) > 1 {
				return true
			}
			continue
		}
		if seg != ns[i] {
			return false
		}
	}
	return len(ps) == len(ns)
}
