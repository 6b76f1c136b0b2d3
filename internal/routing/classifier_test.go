package routing

import "testing"

func testAllowlist(t *testing.T) Allowlist {
	t.Helper()
	a, err := ParseAllowlistYAML([]byte(`
version: 1
entrypoints:
  server:
    routes:
      - path: /health
        methods: [GET]
        route_class: ops
      - path: /api/audit/stats
        methods: [GET]
        route_class: public_api
      - path: /api/tasks/{task_type}/execute
        methods: [POST]
        route_class: public_api
      - path: /platform/tenants
        methods: [GET, POST]
        route_class: platform_api
`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	return a
}

func TestParseAllowlistYAML_Errors(t *testing.T) {
	if _, err := ParseAllowlistYAML([]byte(`version: 2`)); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := ParseAllowlistYAML([]byte(`version: 1`)); err == nil {
		t.Fatal("expected entrypoints error")
	}
	if _, err := ParseAllowlistYAML([]byte(`{{nope`)); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestNewClassifier_Errors(t *testing.T) {
	a := testAllowlist(t)
	if _, err := NewClassifier(a, "missing"); err == nil {
		t.Fatal("expected entrypoint error")
	}

	bad := Allowlist{Version: 1, Entrypoints: map[string]Entrypoint{
		"server": {Routes: []Route{{Path: "", RouteClass: "ops"}}},
	}}
	if _, err := NewClassifier(bad, "server"); err == nil {
		t.Fatal("expected invalid route error")
	}
}

func TestClassify(t *testing.T) {
	c, err := NewClassifier(testAllowlist(t), "server")
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	cases := []struct {
		path string
		want RouteClass
	}{
		{"/health", RouteClassOps},
		{"/ready", RouteClassOps},
		{"/api/audit/stats", RouteClassPublicAPI},
		{"/api/tasks/insurance_verification/execute", RouteClassPublicAPI},
		{"/platform/tenants", RouteClassPlatformAPI},
		{"/platform/tenants/acme_20250101/status", RouteClassPlatformAPI},
		{"/anything/else", RouteClassPublicAPI},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.path); got != tc.want {
			t.Fatalf("Classify(%q)=%q want %q", tc.path, got, tc.want)
		}
	}
}

func TestPathPattern(t *testing.T) {
	p, ok := parsePathPattern("/api/tasks/{task_type}/execute")
	if !ok {
		t.Fatal("expected pattern")
	}
	if !p.match("/api/tasks/insurance_verification/execute") {
		t.Fatal("expected match")
	}
	if p.match("/api/tasks/insurance_verification") || p.match("/api/tasks//execute") {
		t.Fatal("unexpected match")
	}

	if _, ok := parsePathPattern("/plain/path"); ok {
		t.Fatal("plain path is not a pattern")
	}
	if _, ok := parsePathPattern("/bad/{}"); ok {
		t.Fatal("empty param is invalid")
	}
}
