package rules

import "testing"

func TestConditionEvaluator(t *testing.T) {
	ce, err := NewConditionEvaluator(4)
	if err != nil {
		t.Fatalf("NewConditionEvaluator: %v", err)
	}
	vars := Vars{WorkspaceKey: "acme", ProjectKey: "github:acme/api", CurrentSubpath: "apps/api", Query: "deploy", Persona: "reviewer"}
	cases := []struct {
		expr    string
		want    bool
		wantErr bool
	}{
		{`workspace_key == "acme"`, true, false},
		{`persona in ["reviewer", "architect"]`, true, false},
		{`query.contains("rollback")`, false, false},
		{`current_subpath.startsWith("apps/") && project_key.endsWith("/api")`, true, false},
		{`size(query)`, false, true},
		{`unknown_var == "x"`, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := ce.Eval(tc.expr, vars)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Eval err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
	if n := ce.programs.Len(); n != 4 {
		t.Errorf("cached programs = %d, want 4", n)
	}
}
