package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/logging"
)

// Environment variables feeding JiraFromEnv.
const (
	EnvURL      = "JIRA_URL"
	EnvAPIToken = "JIRA_API_TOKEN" //nolint:gosec // env var name, not a credential
	EnvAuthType = "JIRA_AUTH_TYPE"
	EnvEmail    = "JIRA_EMAIL"
)

// AuthType selects how the API token is presented.
type AuthType string

const (
	// AuthAuto tries bearer first, falling back to basic on 401.
	AuthAuto   AuthType = "auto"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

const maxErrorBodyBytes = 64 * 1024

// JiraConfig configures the REST client.
type JiraConfig struct {
	BaseURL  string
	Token    string
	Email    string // basic auth username; token alone otherwise
	AuthType AuthType
	Client   *http.Client
}

// Jira is an issue-tracker client for JIRA-style REST APIs. It resolves the
// auth scheme and API version lazily and caches both for the process
// lifetime.
type Jira struct {
	cfg    JiraConfig
	client *http.Client

	mu         sync.Mutex
	authMode   AuthType // resolved mode, empty until first 401-probe settles
	apiVersion string   // "2" until a 410 forces "3"
}

// NewJira creates a client. BaseURL and Token are required.
func NewJira(cfg JiraConfig) (*Jira, error) {
	if cfg.BaseURL == "" {
		return nil, &AuthError{Message: "tracker URL is not configured (set " + EnvURL + ")"}
	}
	if cfg.Token == "" {
		return nil, &AuthError{Message: "tracker API token is not configured (set " + EnvAPIToken + ")"}
	}
	if cfg.AuthType == "" {
		cfg.AuthType = AuthAuto
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	j := &Jira{cfg: cfg, client: client, apiVersion: "2"}
	if cfg.AuthType != AuthAuto {
		j.authMode = cfg.AuthType
	}
	return j, nil
}

// JiraFromEnv creates a client from JIRA_URL, JIRA_API_TOKEN, JIRA_AUTH_TYPE
// and JIRA_EMAIL.
func JiraFromEnv() (*Jira, error) {
	return NewJira(JiraConfig{
		BaseURL:  strings.TrimRight(os.Getenv(EnvURL), "/"),
		Token:    os.Getenv(EnvAPIToken),
		Email:    os.Getenv(EnvEmail),
		AuthType: AuthType(strings.ToLower(os.Getenv(EnvAuthType))),
	})
}

func (j *Jira) currentAuth() AuthType {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.authMode == "" {
		return AuthBearer
	}
	return j.authMode
}

func (j *Jira) setAuth(mode AuthType) {
	j.mu.Lock()
	j.authMode = mode
	j.mu.Unlock()
}

func (j *Jira) currentVersion() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.apiVersion
}

func (j *Jira) setVersion(v string) {
	j.mu.Lock()
	j.apiVersion = v
	j.mu.Unlock()
}

func (j *Jira) applyAuth(req *http.Request, mode AuthType) {
	switch mode {
	case AuthBasic:
		user := j.cfg.Email
		if user == "" {
			user = "api"
		}
		req.SetBasicAuth(user, j.cfg.Token)
	default:
		req.Header.Set("Authorization", "Bearer "+j.cfg.Token)
	}
}

// do issues one API request, retrying once to settle auth mode (401 under
// auto) and once to settle API version (410 on v2). Both decisions are
// cached, so steady-state requests make a single round trip.
func (j *Jira) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	authRetried := false
	for {
		version := j.currentVersion()
		mode := j.currentAuth()

		status, respBody, err := j.roundTrip(ctx, method, "/rest/api/"+version+path, query, body, mode, nil, "")
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusUnauthorized && j.cfg.AuthType == AuthAuto && mode == AuthBearer && !authRetried:
			logging.Debug(ctx, "bearer auth rejected, retrying with basic")
			j.setAuth(AuthBasic)
			authRetried = true
			continue
		case status == http.StatusGone && version == "2":
			logging.Debug(ctx, "API v2 gone, switching to v3")
			j.setVersion("3")
			continue
		}

		if j.cfg.AuthType == AuthAuto && status < 400 {
			j.setAuth(mode)
		}
		return j.finish(status, respBody, path, out)
	}
}

// roundTrip performs one HTTP exchange. A non-nil bodyReader (with its
// content type) takes precedence over the JSON body.
func (j *Jira) roundTrip(ctx context.Context, method, path string, query url.Values, body any, mode AuthType, bodyReader io.Reader, contentType string) (int, []byte, error) {
	u := j.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader = bodyReader
	if reader == nil && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	j.applyAuth(req, mode)

	logging.Debug(ctx, "tracker request", "method", method, "url", u, "auth", string(mode))
	resp, err := j.client.Do(req)
	if err != nil {
		return 0, nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return 0, nil, &ConnectionError{Err: err}
	}
	logging.Debug(ctx, "tracker response", "status", resp.StatusCode, "bytes", len(respBody))
	return resp.StatusCode, respBody, nil
}

// finish maps the terminal response to a typed error or decodes the payload.
func (j *Jira) finish(status int, body []byte, path string, out any) error {
	switch {
	case status >= 200 && status < 300:
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &APIError{StatusCode: status, Messages: []string{"unparseable response body"}, Body: excerpt(body)}
		}
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status, Message: firstMessage(body)}
	case status == http.StatusNotFound:
		return &NotFoundError{Kind: "resource", ID: path}
	case status == http.StatusBadRequest:
		if fieldErrs := fieldErrors(body); len(fieldErrs) > 0 {
			return &ValidationError{FieldErrors: fieldErrs}
		}
		return &APIError{StatusCode: status, Messages: errorMessages(body), Body: excerpt(body)}
	default:
		return &APIError{StatusCode: status, Messages: errorMessages(body), Body: excerpt(body)}
	}
}

type jiraErrorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

func parseErrorBody(body []byte) jiraErrorBody {
	var eb jiraErrorBody
	_ = json.Unmarshal(body, &eb)
	return eb
}

func fieldErrors(body []byte) map[string]string {
	return parseErrorBody(body).Errors
}

func errorMessages(body []byte) []string {
	return parseErrorBody(body).ErrorMessages
}

func firstMessage(body []byte) string {
	if msgs := errorMessages(body); len(msgs) > 0 {
		return msgs[0]
	}
	return "credentials rejected"
}

func excerpt(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// --- issue payload parsing ---

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		Status    named  `json:"status"`
		IssueType named  `json:"issuetype"`
		Priority  named  `json:"priority"`
		Assignee  struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Labels      []string        `json:"labels"`
		Updated     string          `json:"updated"`
		Description json.RawMessage `json:"description"`
		Comment     struct {
			Comments []jiraComment `json:"comments"`
		} `json:"comment"`
		IssueLinks []struct {
			Type struct {
				Name string `json:"name"`
			} `json:"type"`
			InwardIssue  *struct{ Key string } `json:"inwardIssue"`
			OutwardIssue *struct{ Key string } `json:"outwardIssue"`
		} `json:"issuelinks"`
		Attachment []struct {
			Filename string `json:"filename"`
			Size     int64  `json:"size"`
		} `json:"attachment"`
	} `json:"fields"`
}

type named struct {
	Name string `json:"name"`
}

type jiraComment struct {
	Author struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Body    json.RawMessage `json:"body"`
	Created string          `json:"created"`
}

const jiraTimeFormat = "2006-01-02T15:04:05.000-0700"

func parseJiraTime(s string) time.Time {
	t, err := time.Parse(jiraTimeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (ji *jiraIssue) ticket() Ticket {
	return Ticket{
		Key:      ji.Key,
		Summary:  ji.Fields.Summary,
		Status:   ji.Fields.Status.Name,
		Type:     ji.Fields.IssueType.Name,
		Assignee: ji.Fields.Assignee.DisplayName,
		Priority: ji.Fields.Priority.Name,
		Labels:   ji.Fields.Labels,
		Updated:  parseJiraTime(ji.Fields.Updated),
	}
}

func (ji *jiraIssue) detail() *TicketDetail {
	d := &TicketDetail{
		Ticket:      ji.ticket(),
		Description: textBody(ji.Fields.Description),
	}
	for _, c := range ji.Fields.Comment.Comments {
		d.Comments = append(d.Comments, Comment{
			Author:  c.Author.DisplayName,
			Body:    textBody(c.Body),
			Created: parseJiraTime(c.Created),
		})
	}
	for _, l := range ji.Fields.IssueLinks {
		link := IssueLink{Type: l.Type.Name}
		switch {
		case l.InwardIssue != nil:
			link.Inward = true
			link.OtherKey = l.InwardIssue.Key
		case l.OutwardIssue != nil:
			link.OtherKey = l.OutwardIssue.Key
		default:
			continue
		}
		d.Links = append(d.Links, link)
	}
	for _, a := range ji.Fields.Attachment {
		d.Attachments = append(d.Attachments, Attachment{Filename: a.Filename, Size: a.Size})
	}
	return d
}

// textBody flattens an issue/comment body that is either a plain v2 string
// or a v3 rich-text document into plain text.
func textBody(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	flattenRichText(doc, &b)
	return strings.TrimRight(b.String(), "\n")
}

func flattenRichText(node any, b *strings.Builder) {
	m, ok := node.(map[string]any)
	if !ok {
		return
	}
	if text, ok := m["text"].(string); ok {
		b.WriteString(text)
	}
	if t, _ := m["type"].(string); t == "paragraph" {
		defer b.WriteString("\n")
	}
	if content, ok := m["content"].([]any); ok {
		for _, child := range content {
			flattenRichText(child, b)
		}
	}
}

// richTextBody wraps plain text in the v3 document structure. v2 endpoints
// take the string as-is.
func (j *Jira) bodyValue(text string) any {
	if j.currentVersion() == "2" {
		return text
	}
	paragraphs := make([]any, 0, 1)
	for _, para := range strings.Split(text, "\n") {
		content := []any{}
		if para != "" {
			content = append(content, map[string]any{"type": "text", "text": para})
		}
		paragraphs = append(paragraphs, map[string]any{"type": "paragraph", "content": content})
	}
	return map[string]any{"type": "doc", "version": 1, "content": paragraphs}
}

// --- Tracker implementation ---

const ticketFields = "summary,status,issuetype,assignee,priority,labels,updated"

// GetTicket fetches the summary view of one issue.
func (j *Jira) GetTicket(ctx context.Context, key string) (*Ticket, error) {
	var issue jiraIssue
	query := url.Values{"fields": {ticketFields}}
	if err := j.do(ctx, http.MethodGet, "/issue/"+key, query, nil, &issue); err != nil {
		return nil, issueNotFound(err, key)
	}
	t := issue.ticket()
	return &t, nil
}

// GetTicketDetailed fetches an issue with description, comments, links and
// attachments.
func (j *Jira) GetTicketDetailed(ctx context.Context, key string) (*TicketDetail, error) {
	var issue jiraIssue
	query := url.Values{"fields": {ticketFields + ",description,comment,issuelinks,attachment"}}
	if err := j.do(ctx, http.MethodGet, "/issue/"+key, query, nil, &issue); err != nil {
		return nil, issueNotFound(err, key)
	}
	return issue.detail(), nil
}

// ListTickets searches issues matching the filter via JQL.
func (j *Jira) ListTickets(ctx context.Context, filter ListFilter) ([]Ticket, error) {
	jql := buildJQL(filter)
	maxResults := filter.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	var result struct {
		Issues []jiraIssue `json:"issues"`
	}
	body := map[string]any{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     strings.Split(ticketFields, ","),
	}
	if err := j.do(ctx, http.MethodPost, "/search", nil, body, &result); err != nil {
		return nil, err
	}

	tickets := make([]Ticket, 0, len(result.Issues))
	for i := range result.Issues {
		tickets = append(tickets, result.Issues[i].ticket())
	}
	return tickets, nil
}

func buildJQL(filter ListFilter) string {
	var clauses []string
	add := func(field, value string) {
		if value != "" {
			clauses = append(clauses, fmt.Sprintf("%s = %q", field, value))
		}
	}
	add("project", filter.Project)
	add("sprint", filter.Sprint)
	add("issuetype", filter.Type)
	add("parent", filter.Parent)
	add("assignee", filter.Assignee)
	customIDs := make([]string, 0, len(filter.Custom))
	for id := range filter.Custom {
		customIDs = append(customIDs, id)
	}
	// Deterministic clause order keeps the query cache-friendly and testable.
	for _, id := range sortedStrings(customIDs) {
		add(id, filter.Custom[id])
	}
	if len(clauses) == 0 {
		return "order by updated desc"
	}
	return strings.Join(clauses, " AND ") + " order by updated desc"
}

func sortedStrings(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// CreateIssue creates an issue of the given kind. fields must use tracker
// field ids (resolve aliases through the catalog first).
func (j *Jira) CreateIssue(ctx context.Context, kind string, fields map[string]any) (*Ticket, error) {
	payload := map[string]any{}
	for k, v := range fields {
		payload[k] = v
	}
	payload["issuetype"] = map[string]string{"name": kind}
	if desc, ok := payload["description"].(string); ok {
		payload["description"] = j.bodyValue(desc)
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := j.do(ctx, http.MethodPost, "/issue", nil, map[string]any{"fields": payload}, &created); err != nil {
		return nil, err
	}
	return j.GetTicket(ctx, created.Key)
}

// UpdateIssue sets fields on an existing issue.
func (j *Jira) UpdateIssue(ctx context.Context, key string, fields map[string]any) error {
	payload := map[string]any{}
	for k, v := range fields {
		payload[k] = v
	}
	if desc, ok := payload["description"].(string); ok {
		payload["description"] = j.bodyValue(desc)
	}
	if err := j.do(ctx, http.MethodPut, "/issue/"+key, nil, map[string]any{"fields": payload}, nil); err != nil {
		return issueNotFound(err, key)
	}
	return nil
}

// AvailableTransitions lists the workflow transitions currently possible.
func (j *Jira) AvailableTransitions(ctx context.Context, key string) ([]TransitionOption, error) {
	var result struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			To   named  `json:"to"`
		} `json:"transitions"`
	}
	if err := j.do(ctx, http.MethodGet, "/issue/"+key+"/transitions", nil, nil, &result); err != nil {
		return nil, issueNotFound(err, key)
	}
	options := make([]TransitionOption, 0, len(result.Transitions))
	for _, t := range result.Transitions {
		options = append(options, TransitionOption{ID: t.ID, Name: t.Name, ToStatus: t.To.Name})
	}
	return options, nil
}

// Transition moves an issue to targetState, matched case-insensitively
// against transition names and destination statuses.
func (j *Jira) Transition(ctx context.Context, key, targetState string) error {
	options, err := j.AvailableTransitions(ctx, key)
	if err != nil {
		return err
	}
	var id string
	for _, opt := range options {
		if strings.EqualFold(opt.Name, targetState) || strings.EqualFold(opt.ToStatus, targetState) {
			id = opt.ID
			break
		}
	}
	if id == "" {
		return &NotFoundError{Kind: "transition", ID: targetState}
	}
	body := map[string]any{"transition": map[string]string{"id": id}}
	if err := j.do(ctx, http.MethodPost, "/issue/"+key+"/transitions", nil, body, nil); err != nil {
		return issueNotFound(err, key)
	}
	return nil
}

// AddComment posts a comment, optionally restricted by visibility.
func (j *Jira) AddComment(ctx context.Context, key, text string, visibility *Visibility) error {
	body := map[string]any{"body": j.bodyValue(text)}
	if visibility != nil {
		body["visibility"] = map[string]string{"type": visibility.Type, "value": visibility.Value}
	}
	if err := j.do(ctx, http.MethodPost, "/issue/"+key+"/comment", nil, body, nil); err != nil {
		return issueNotFound(err, key)
	}
	return nil
}

// AttachFile uploads a local file as an attachment.
func (j *Jira) AttachFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path) //nolint:gosec // user-provided attachment path
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to build attachment form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize attachment form: %w", err)
	}

	version := j.currentVersion()
	mode := j.currentAuth()
	apiPath := "/rest/api/" + version + "/issue/" + key + "/attachments"

	u := j.cfg.BaseURL + apiPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "no-check")
	j.applyAuth(req, mode)

	resp, err := j.client.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return issueNotFound(j.finish(resp.StatusCode, respBody, apiPath, nil), key)
}

// LinkIssues creates a typed link from key to otherKey.
func (j *Jira) LinkIssues(ctx context.Context, key, linkType, otherKey string) error {
	body := map[string]any{
		"type":         map[string]string{"name": linkType},
		"inwardIssue":  map[string]string{"key": key},
		"outwardIssue": map[string]string{"key": otherKey},
	}
	if err := j.do(ctx, http.MethodPost, "/issueLink", nil, body, nil); err != nil {
		return issueNotFound(err, otherKey)
	}
	return nil
}

type jiraFieldMeta struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Schema   struct {
		Type string `json:"type"`
	} `json:"schema"`
	AllowedValues []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"allowedValues"`
}

func catalogFromMeta(meta map[string]jiraFieldMeta) *FieldCatalog {
	ids := make([]string, 0, len(meta))
	for id := range meta {
		ids = append(ids, id)
	}
	catalog := &FieldCatalog{}
	for _, id := range sortedStrings(ids) {
		fm := meta[id]
		f := Field{ID: id, DisplayName: fm.Name, Type: fm.Schema.Type, Required: fm.Required}
		for _, av := range fm.AllowedValues {
			if av.Name != "" {
				f.AllowedValues = append(f.AllowedValues, av.Name)
			} else if av.Value != "" {
				f.AllowedValues = append(f.AllowedValues, av.Value)
			}
		}
		catalog.Fields = append(catalog.Fields, f)
	}
	return catalog
}

// EditableFields returns the catalog of fields editable on an existing issue.
func (j *Jira) EditableFields(ctx context.Context, key string) (*FieldCatalog, error) {
	var result struct {
		Fields map[string]jiraFieldMeta `json:"fields"`
	}
	if err := j.do(ctx, http.MethodGet, "/issue/"+key+"/editmeta", nil, nil, &result); err != nil {
		return nil, issueNotFound(err, key)
	}
	return catalogFromMeta(result.Fields), nil
}

// CreatableFields returns the catalog of fields accepted when creating an
// issue of the given kind in the project.
func (j *Jira) CreatableFields(ctx context.Context, project, kind string) (*FieldCatalog, error) {
	query := url.Values{
		"projectKeys":    {project},
		"issuetypeNames": {kind},
		"expand":         {"projects.issuetypes.fields"},
	}
	var result struct {
		Projects []struct {
			IssueTypes []struct {
				Name   string                   `json:"name"`
				Fields map[string]jiraFieldMeta `json:"fields"`
			} `json:"issuetypes"`
		} `json:"projects"`
	}
	if err := j.do(ctx, http.MethodGet, "/issue/createmeta", query, nil, &result); err != nil {
		return nil, err
	}
	for _, p := range result.Projects {
		for _, it := range p.IssueTypes {
			if strings.EqualFold(it.Name, kind) {
				return catalogFromMeta(it.Fields), nil
			}
		}
	}
	return nil, &NotFoundError{Kind: "issue type", ID: kind}
}

// issueNotFound rewrites the generic path-based NotFoundError into one that
// names the issue key the caller asked about.
func issueNotFound(err error, key string) error {
	if err == nil {
		return nil
	}
	if nf, ok := err.(*NotFoundError); ok && nf.Kind == "resource" {
		return &NotFoundError{Kind: "issue", ID: key}
	}
	return err
}
