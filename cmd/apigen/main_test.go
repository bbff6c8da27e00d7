package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeProject(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	if err := os.Mkdir(models, 0755); err != nil {
		t.Fatal(err)
	}
	post := "name: Post\npublic: true\nproperties:\n  title: string\n"
	if err := os.WriteFile(filepath.Join(models, "post.yaml"), []byte(post), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := fmt.Sprintf("models:\n  dir: %q\n%s", models, extra)
	path := filepath.Join(dir, "apigen.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	level := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	cfgFile = ""
	routesOutput, routesColumns, routesNoHeader, routesSorted = "table", nil, false, false
	validateCheckDatabase, validateListEnv = false, false
	modelsOutput = "table"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out, "apigen dev") {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "validate", "--config", writeProject(t, ""))
	if err != nil {
		t.Fatalf("validate error: %v\n%s", err, out)
	}
	for _, want := range []string{"Adapter: memory", "Models: 3", "Configuration is valid."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	out, err := run(t, "validate", "--config", writeProject(t, "database:\n  adapter: redis\n"))
	if err == nil {
		t.Fatalf("validate should fail:\n%s", out)
	}
	if !strings.Contains(err.Error(), "database.adapter") {
		t.Errorf("error = %v", err)
	}
}

func TestValidateCommandListsEnv(t *testing.T) {
	out, err := run(t, "validate", "--env")
	if err != nil {
		t.Fatalf("validate --env error: %v", err)
	}
	if !strings.Contains(out, "APIGEN_SERVER_PORT") {
		t.Errorf("output = %q", out)
	}
}

func TestRoutesCommandTable(t *testing.T) {
	out, err := run(t, "routes", "--config", writeProject(t, ""), "--sort")
	if err != nil {
		t.Fatalf("routes error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if got := strings.Join(strings.Fields(lines[0]), " "); got != "VERB PATH MODEL NAME AUTH" {
		t.Errorf("header = %q", got)
	}
	if !strings.Contains(out, "/api/post/{id:[0-9]+}") {
		t.Errorf("missing post id route:\n%s", out)
	}
	if !strings.Contains(out, "/api/user/login") {
		t.Errorf("missing login route:\n%s", out)
	}
}

func TestRoutesCommandJSON(t *testing.T) {
	out, err := run(t, "routes", "--config", writeProject(t, ""), "-o", "json", "--columns", "verb,path,auth")
	if err != nil {
		t.Fatalf("routes error: %v", err)
	}

	var doc struct {
		Kind  string           `json:"kind"`
		Count int              `json:"count"`
		Data  []map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	// five standard routes each for User and Post, plus login
	if doc.Kind != "routes" || doc.Count != 11 {
		t.Errorf("kind = %s, count = %d", doc.Kind, doc.Count)
	}
	for _, row := range doc.Data {
		if row["path"] == "/api/user/login" && row["auth"] != false {
			t.Errorf("login should not require a token: %v", row)
		}
	}
}

func TestRoutesCommandUnknownFormat(t *testing.T) {
	_, err := run(t, "routes", "--config", writeProject(t, ""), "-o", "xml")
	if err == nil {
		t.Fatal("routes -o xml should fail")
	}
}

func TestModelsCommandList(t *testing.T) {
	out, err := run(t, "models", "--config", writeProject(t, ""))
	if err != nil {
		t.Fatalf("models error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want header plus 3 models:\n%s", len(lines), out)
	}
	if !strings.Contains(out, "/api/post") || !strings.Contains(out, "login") {
		t.Errorf("output = %s", out)
	}
}

func TestModelsCommandDescribe(t *testing.T) {
	out, err := run(t, "models", "User", "--config", writeProject(t, ""), "-o", "json")
	if err != nil {
		t.Fatalf("models User error: %v", err)
	}

	var doc struct {
		Kind string `json:"kind"`
		Data struct {
			Name      string   `json:"name"`
			IDType    string   `json:"id_type"`
			Fields    []string `json:"fields"`
			Hidden    []string `json:"hidden"`
			Endpoints []string `json:"endpoints"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if doc.Kind != "model" || doc.Data.Name != "User" || doc.Data.IDType != "number" {
		t.Errorf("doc = %+v", doc)
	}
	if !slices.Contains(doc.Data.Hidden, "password") {
		t.Errorf("hidden = %v", doc.Data.Hidden)
	}
	if !slices.Contains(doc.Data.Fields, "username:string(required,unique)") {
		t.Errorf("fields = %v", doc.Data.Fields)
	}
	if !slices.Contains(doc.Data.Endpoints, "POST /api/user/login") {
		t.Errorf("endpoints = %v", doc.Data.Endpoints)
	}
}

func TestModelsCommandUnknownModel(t *testing.T) {
	if _, err := run(t, "models", "Comment", "--config", writeProject(t, "")); err == nil {
		t.Fatal("models Comment should fail")
	}
}
