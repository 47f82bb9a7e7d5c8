package datawisectl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
}

type command struct {
	args  int
	hint  string
	route string
	build func(args []string) (request, error)
}

var commands = map[string]command{
	"health": {route: "GET /v1/health", build: func([]string) (request, error) {
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	}},
	"ready": {route: "GET /v1/ready", build: func([]string) (request, error) {
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	}},
	"datasets": {route: "GET /v1/datasets", build: func([]string) (request, error) {
		return request{method: http.MethodGet, path: "/v1/datasets"}, nil
	}},
	"upload": {args: 1, hint: "<file>", route: "POST /v1/datasets", build: buildUpload},
	"schema": {args: 1, hint: "<dataset>", route: "GET /v1/datasets/{id}/schema", build: func(args []string) (request, error) {
		return request{method: http.MethodGet, path: datasetPath(args[0], "/schema")}, nil
	}},
	"suggest": {args: 1, hint: "<dataset>", route: "GET /v1/datasets/{id}/suggestions", build: func(args []string) (request, error) {
		return request{method: http.MethodGet, path: datasetPath(args[0], "/suggestions")}, nil
	}},
	"session": {hint: "[dataset]", route: "POST /v1/sessions", build: func(args []string) (request, error) {
		payload := map[string]string{}
		if len(args) > 0 {
			payload["dataset_id"] = args[0]
		}
		return jsonRequest(http.MethodPost, "/v1/sessions", payload)
	}},
	"ask": {args: 2, hint: "<session> <question>", route: "POST /v1/sessions/{id}/query", build: func(args []string) (request, error) {
		return jsonRequest(http.MethodPost, sessionPath(args[0], "/query"), map[string]string{"question": strings.Join(args[1:], " ")})
	}},
	"chat": {args: 2, hint: "<session> <message>", route: "POST /v1/sessions/{id}/chat", build: func(args []string) (request, error) {
		return jsonRequest(http.MethodPost, sessionPath(args[0], "/chat"), map[string]string{"message": strings.Join(args[1:], " ")})
	}},
	"clear": {args: 1, hint: "<session>", route: "DELETE /v1/sessions/{id}/messages", build: func(args []string) (request, error) {
		return request{method: http.MethodDelete, path: sessionPath(args[0], "/messages")}, nil
	}},
	"summary": {args: 1, hint: "<session>", route: "GET /v1/sessions/{id}/summary", build: func(args []string) (request, error) {
		return request{method: http.MethodGet, path: sessionPath(args[0], "/summary")}, nil
	}},
	"history": {args: 1, hint: "<session>", route: "GET /v1/sessions/{id}/history", build: func(args []string) (request, error) {
		return request{method: http.MethodGet, path: sessionPath(args[0], "/history")}, nil
	}},
	"end": {args: 1, hint: "<session>", route: "DELETE /v1/sessions/{id}", build: func(args []string) (request, error) {
		return request{method: http.MethodDelete, path: sessionPath(args[0], "")}, nil
	}},
	"validate": {args: 1, hint: "<sql>", route: "POST /v1/sql/validate", build: func(args []string) (request, error) {
		return jsonRequest(http.MethodPost, "/v1/sql/validate", map[string]string{"sql": strings.Join(args, " ")})
	}},
}

var commandOrder = []string{"health", "ready", "datasets", "upload", "schema", "suggest", "session", "ask", "chat", "clear", "summary", "history", "end", "validate"}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("datawisectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "datawise API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}
	cmdArgs := fs.Args()[1:]
	if len(cmdArgs) < cmd.args {
		_, _ = fmt.Fprintf(stderr, "usage: datawisectl %s %s\n", name, cmd.hint)
		return 2
	}
	req, err := cmd.build(cmdArgs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	if closer, ok := req.body.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req, endpoint, strings.TrimSpace(*apiKey))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildUpload(args []string) (request, error) {
	file, err := os.Open(args[0])
	if err != nil {
		return request{}, err
	}
	path := "/v1/datasets?filename=" + url.QueryEscape(filepath.Base(args[0]))
	return request{method: http.MethodPost, path: path, body: file, contentType: "application/octet-stream"}, nil
}

func jsonRequest(method, path string, payload any) (request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return request{}, err
	}
	return request{method: method, path: path, body: bytes.NewReader(raw), contentType: "application/json"}, nil
}

func datasetPath(id, suffix string) string {
	return "/v1/datasets/" + url.PathEscape(id) + suffix
}

func sessionPath(id, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(id) + suffix
}

func doRequest(ctx context.Context, client *http.Client, in request, endpoint, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, in.method, endpoint, in.body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in.contentType != "" {
		req.Header.Set("Content-Type", in.contentType)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: datawisectl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		_, _ = fmt.Fprintf(w, "  %-9s %-21s %s\n", name, cmd.hint, cmd.route)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
