package vars

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "vars.yml")
	if err := os.WriteFile(yamlFile, []byte("env: prod\nreplicas: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	jsonFile := filepath.Join(dir, "vars.json")
	if err := os.WriteFile(jsonFile, []byte(`{"region": "eu-west-1"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		values  []string
		want    map[string]any
		wantErr bool
	}{
		{
			name:   "key=value",
			values: []string{"env=prod"},
			want:   map[string]any{"env": "prod"},
		},
		{
			name:   "value containing equals",
			values: []string{"dsn=user=app dbname=x"},
			want:   map[string]any{"dsn": "user=app dbname=x"},
		},
		{
			name:   "inline json",
			values: []string{`{"env": "prod", "replicas": 3}`},
			want:   map[string]any{"env": "prod", "replicas": 3},
		},
		{
			name:   "yaml file",
			values: []string{"@" + yamlFile},
			want:   map[string]any{"env": "prod", "replicas": 3},
		},
		{
			name:   "json file",
			values: []string{"@" + jsonFile},
			want:   map[string]any{"region": "eu-west-1"},
		},
		{
			name:   "later values win",
			values: []string{"env=dev", `{"env": "prod"}`},
			want:   map[string]any{"env": "prod"},
		},
		{
			name:    "missing file",
			values:  []string{"@" + filepath.Join(dir, "absent.yml")},
			wantErr: true,
		},
		{
			name:    "bare word",
			values:  []string{"notakeyvalue"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.values)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%v) expected error", tt.values)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%v) error = %v", tt.values, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse(%v) = %v, want %v", tt.values, got, tt.want)
			}
			for k, want := range tt.want {
				gotV, ok := got[k]
				if !ok || fmt.Sprintf("%v", gotV) != fmt.Sprintf("%v", want) {
					t.Errorf("Parse(%v)[%q] = %v, want %v", tt.values, k, gotV, want)
				}
			}
		})
	}
}
