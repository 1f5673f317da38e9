package airlock

import (
	"regexp"
	"strings"
	"sync"
)

// compiledPattern is a built-in dangerous-code pattern, compiled once and
// reused across every Check call.
type compiledPattern struct {
	re          *regexp.Regexp
	name        string
	riskScore   uint8
	description string
}

var (
	builtinPatternsOnce sync.Once
	builtinPatterns     []compiledPattern
)

// getBuiltinPatterns returns the built-in dangerous-code patterns, compiling
// them on first use. Declaration order is significant: check stops at the
// first match, so patterns earlier in this list take priority on shared
// input.
func getBuiltinPatterns() []compiledPattern {
	builtinPatternsOnce.Do(func() {
		builtinPatterns = []compiledPattern{
			// Python eval/exec patterns (critical, 90+ risk).
			{regexp.MustCompile(`(?i)\beval\s*\(`), "python_eval", 90,
				"Python eval() function detected - allows arbitrary code execution"},
			{regexp.MustCompile(`(?i)\bexec\s*\(`), "python_exec", 90,
				"Python exec() function detected - allows arbitrary code execution"},
			{regexp.MustCompile(`(?i)\bcompile\s*\([^)]*,\s*['"][^'"]*['"],\s*['"]exec['"]\s*\)`), "python_compile_exec", 90,
				"Python compile() with exec mode detected"},

			// Base64 obfuscation patterns (critical, 85-95 risk).
			{regexp.MustCompile(`(?i)base64\s*[.\[].*\b(decode|b64decode)\b.*\b(eval|exec)\b`), "base64_eval_combo", 95,
				"Base64 decode + eval/exec pattern (obfuscation attempt)"},
			{regexp.MustCompile(`(?i)\b(eval|exec)\b.*base64\s*[.\[].*\b(decode|b64decode)\b`), "eval_base64_combo", 95,
				"Eval/exec + base64 decode pattern (obfuscation attempt)"},
			{regexp.MustCompile(`(?i)atob\s*\([^)]+\)\s*\)`), "js_atob_eval", 85,
				"JavaScript atob (base64 decode) detected"},

			// Shell injection patterns (high, 65-80 risk).
			{regexp.MustCompile(`[;&|]{1,2}\s*\w+\s`), "shell_chaining", 75,
				"Shell command chaining detected (;, &&, ||)"},
			{regexp.MustCompile(`>{1,2}\s*/[a-zA-Z]`), "file_redirect", 70,
				"Shell file redirect to absolute path detected"},
			{regexp.MustCompile(`\$\([^)]+\)`), "command_substitution", 80,
				"Shell command substitution $() detected"},
			{regexp.MustCompile("`[^`]+`"), "backtick_substitution", 80,
				"Shell backtick command substitution detected"},
			{regexp.MustCompile(`\|\s*\w+`), "shell_pipe", 65,
				"Shell pipe detected"},

			// Python injection patterns (high, 75-85 risk).
			{regexp.MustCompile(`(?i)__import__\s*\(`), "python_import_injection", 85,
				"Python __import__ injection pattern detected"},
			{regexp.MustCompile(`(?i)subprocess\s*\.\s*(call|run|Popen|check_output)`), "subprocess_call", 80,
				"Python subprocess execution detected"},
			{regexp.MustCompile(`(?i)os\s*\.\s*(system|popen|exec[lv]?[pe]?)`), "os_exec", 85,
				"Python os module shell execution detected"},
			{regexp.MustCompile(`(?i)commands\s*\.\s*(getoutput|getstatusoutput)`), "commands_module", 75,
				"Python commands module (deprecated shell execution) detected"},

			// Path traversal patterns (high, 70-80 risk).
			{regexp.MustCompile(`\.\./|\.\.\\|\.\.\%2[fF]`), "path_traversal", 80,
				"Path traversal pattern detected (../)"},
			{regexp.MustCompile(`(?i)['"](/etc/|/var/|/root/|/home/|/proc/|/sys/)`), "sensitive_path_access", 70,
				"Access to sensitive system path detected"},

			// Environment variable exfiltration (medium, 50-70 risk).
			{regexp.MustCompile(`\$\{?(API_KEY|SECRET|PASSWORD|TOKEN|PRIVATE_KEY|AWS_)\w*\}?`), "sensitive_env_var", 70,
				"Access to sensitive environment variable detected"},
			{regexp.MustCompile(`(?i)os\s*\.\s*(environ|getenv)\s*\[`), "env_access", 50,
				"Environment variable access detected"},

			// Network/socket patterns (medium-high, 50-75 risk).
			{regexp.MustCompile(`(?i)socket\s*\.\s*(socket|connect|bind|listen)`), "raw_socket", 75,
				"Raw socket operation detected"},
			{regexp.MustCompile(`(?i)(urllib|requests|httplib|http\.client)\s*\.\s*\w+`), "network_library", 50,
				"Network library usage detected"},

			// Code injection vectors (high, 65-75 risk).
			{regexp.MustCompile(`(?i)<\s*script[^>]*>`), "script_tag", 75,
				"HTML script tag detected (potential XSS)"},
			{regexp.MustCompile(`(?i)javascript\s*:`), "javascript_url", 70,
				"JavaScript URL protocol detected"},
			{regexp.MustCompile(`(?i)data\s*:\s*text/html`), "data_url_html", 65,
				"Data URL with HTML content detected"},

			// Template injection (medium-high, 55-65 risk).
			{regexp.MustCompile(`\{\{[^}]*\}\}`), "template_injection", 65,
				"Template injection pattern {{ }} detected"},
			{regexp.MustCompile(`\$\{[^}]*\}`), "string_interpolation", 55,
				"String interpolation pattern ${ } detected"},
		}
	})
	return builtinPatterns
}

// customPattern is a user-supplied regex scored uniformly, since operators
// configure these without assigning per-pattern risk.
type customPattern struct {
	re     *regexp.Regexp
	source string
}

// customPatternScore is the risk score assigned to every match against a
// custom, operator-supplied pattern.
const customPatternScore uint8 = 80

// RcePatternMatcher scans tool input for dangerous code patterns: eval/exec
// calls, base64 obfuscation, shell and Python injection, and path traversal.
// Custom patterns are compiled at construction and built-ins once on first
// use; neither is recompiled per call.
type RcePatternMatcher struct {
	targetTools    []string
	customPatterns []customPattern
}

// NewRcePatternMatcher builds a matcher from config, compiling any custom
// patterns. A custom pattern that fails to compile is silently dropped, as
// in the upstream matcher.
func NewRcePatternMatcher(cfg RceConfig) *RcePatternMatcher {
	custom := make([]customPattern, 0, len(cfg.CustomPatterns))
	for _, p := range cfg.CustomPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		custom = append(custom, customPattern{re: re, source: p})
	}
	return &RcePatternMatcher{targetTools: cfg.TargetTools, customPatterns: custom}
}

func (m *RcePatternMatcher) shouldInspect(toolName string) bool {
	for _, t := range m.targetTools {
		if t == toolName {
			return true
		}
	}
	return false
}

// extractTextContent recursively flattens a JSON value into a single string
// for pattern matching: strings contribute themselves, arrays and objects
// contribute their children joined by newlines, everything else contributes
// nothing.
func extractTextContent(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = extractTextContent(item)
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, extractTextContent(item))
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// Check scans toolInput for dangerous patterns if toolName is a configured
// target. Built-in patterns are checked before custom ones, and the first
// match anywhere wins.
func (m *RcePatternMatcher) Check(toolName string, toolInput any) *Violation {
	if !m.shouldInspect(toolName) {
		return nil
	}

	text := extractTextContent(toolInput)
	if text == "" {
		return nil
	}

	for _, p := range getBuiltinPatterns() {
		if p.re.MatchString(text) {
			return &Violation{
				Type:        ViolationRcePattern,
				RiskScore:   p.riskScore,
				RiskLevel:   RiskLevelFromScore(p.riskScore),
				Details:     p.description,
				Trigger:     p.name,
			}
		}
	}

	for _, p := range m.customPatterns {
		if p.re.MatchString(text) {
			return &Violation{
				Type:      ViolationRcePattern,
				RiskScore: customPatternScore,
				RiskLevel: RiskLevelFromScore(customPatternScore),
				Details:   "Custom pattern match: " + p.source,
				Trigger:   "custom:" + p.source,
			}
		}
	}

	return nil
}
