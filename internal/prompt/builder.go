// Package prompt assembles the message sent to a freshly spawned agent
// (§4.8). Grounded on agents/spawner.go's text/template + golang.org/x/text/
// cases FuncMap for the per-role instruction templates, and extended with
// github.com/yuin/goldmark for the PM role's markdown-image extraction pass
// the teacher never needed (its agents don't process issue descriptions for
// attachments).
package prompt

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// Input bundles everything the builder needs for one task (§4.8 Inputs).
type Input struct {
	Role          model.Role
	Model         string
	Task          model.Task
	ProjectPath   string
	WorktreePath  string
	SignalQA      []QAPair // prior signal question/response pairs, PM branch
	Comments      []model.Comment
	PRNumber      int
	Branch        string
	ReviewComment string
}

// QAPair is one answered signal rendered back into a PM prompt.
type QAPair struct {
	Question string
	Answer   string
}

var templateFuncs = template.FuncMap{
	"title": cases.Title(language.English).String,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  strings.Join,
}

// roleTemplates holds the per-role instruction body, rendered with an
// Input-derived data struct then appended to the soul template.
var roleTemplates = map[model.Role]string{
	model.RolePM: `Task: {{.Task.Title}} ({{.Task.ID}})
{{.Task.Description}}
Repository: {{.ProjectPath}}
{{if .SignalQA}}
Prior questions and answers:
{{range .SignalQA}}Q: {{.Question}}
A: {{.Answer}}
{{end}}{{end}}`,
	model.RoleDev: `Task: {{.Task.Title}} ({{.Task.ID}})
{{.Task.Description}}
Worktree: {{.WorktreePath}}
Branch: {{.Branch}}`,
	model.RoleResearch: `Research task: {{.Task.Title}} ({{.Task.ID}})
{{.Task.Description}}
Repository: {{.ProjectPath}}`,
	model.RoleReviewer: `Review PR #{{.PRNumber}} on branch {{.Branch}} for task {{.Task.Title}} ({{.Task.ID}}).
Worktree: {{.WorktreePath}}
{{if .ReviewComment}}Reviewer notes: {{.ReviewComment}}{{end}}`,
	model.RoleConflictResolver: `Resolve the merge conflict blocking task {{.Task.Title}} ({{.Task.ID}}) on branch {{.Branch}}.
Worktree: {{.WorktreePath}}`,
}

// templateData is what each role template in roleTemplates renders against.
type templateData struct {
	Task          model.Task
	ProjectPath   string
	WorktreePath  string
	Branch        string
	PRNumber      int
	ReviewComment string
	SignalQA      []QAPair
}

// Build assembles the full prompt for in.Role: the active soul template for
// (role, model) plus the role's per-task instruction body, separated by
// "---" (§4.8 step 2). Build takes the soul already fetched by the caller
// and does not check it; a caller that finds no active version reports
// NoActiveVersionError instead of falling back to a compiled-in default.
func Build(soul model.PromptVersion, in Input) (string, error) {
	body, err := renderRoleTemplate(in)
	if err != nil {
		return "", err
	}

	parts := []string{soul.Content, "---", body}

	if in.Role == model.RolePM {
		if urls := ExtractImageURLs(in.Task.Description); len(urls) > 0 {
			parts = append(parts, "---", "Image attachments:\n"+strings.Join(urls, "\n"))
		}
	}

	return strings.Join(parts, "\n"), nil
}

func renderRoleTemplate(in Input) (string, error) {
	tmplSrc, ok := roleTemplates[in.Role]
	if !ok {
		return "", fmt.Errorf("prompt: no instruction template for role %q", in.Role)
	}

	tmpl, err := template.New("instructions").Funcs(templateFuncs).Parse(tmplSrc)
	if err != nil {
		return "", fmt.Errorf("prompt: parse template for role %q: %w", in.Role, err)
	}

	data := templateData{
		Task:          in.Task,
		ProjectPath:   in.ProjectPath,
		WorktreePath:  in.WorktreePath,
		Branch:        in.Branch,
		PRNumber:      in.PRNumber,
		ReviewComment: in.ReviewComment,
		SignalQA:      in.SignalQA,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt: render template for role %q: %w", in.Role, err)
	}
	return buf.String(), nil
}

// rasterExtensions are the bare-URL image suffixes the second extraction
// pass recognizes (§4.8 step 3).
var rasterExtensions = regexp.MustCompile(`(?i)^https?://\S+\.(?:png|jpe?g|gif|webp|bmp)(?:\?\S*)?$`)

var dataURIPattern = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)

// ExtractImageURLs finds every image reference in a PM task description via
// three passes (§4.8 step 3):
//  1. Markdown image syntax ![alt](url) walked via goldmark's AST, url
//     starting with http(s) or data:.
//  2. Bare raster-extension URLs not wrapped in markdown image syntax.
//  3. Inline data: URIs.
func ExtractImageURLs(description string) []string {
	seen := make(map[string]bool)
	var urls []string

	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	for _, u := range markdownImageURLs(description) {
		add(u)
	}
	for _, line := range strings.Fields(description) {
		if rasterExtensions.MatchString(line) {
			add(line)
		}
	}
	for _, u := range dataURIPattern.FindAllString(description, -1) {
		add(u)
	}

	return urls
}

var markdownParser = goldmark.New()

func markdownImageURLs(description string) []string {
	var urls []string
	src := []byte(description)
	doc := markdownParser.Parser().Parse(text.NewReader(src))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		dest := string(img.Destination)
		if strings.HasPrefix(dest, "http") || strings.HasPrefix(dest, "data:") {
			urls = append(urls, dest)
		}
		return ast.WalkContinue, nil
	})

	return urls
}

// NoActiveVersionError wraps apperr.ErrNoPromptVersion with the (role,
// model) scope that was missing, for the caller's log line (§4.8 step 1).
func NoActiveVersionError(role model.Role, promptModel string) error {
	return fmt.Errorf("prompt: no active version for role=%s model=%s: %w", role, promptModel, apperr.ErrNoPromptVersion)
}
