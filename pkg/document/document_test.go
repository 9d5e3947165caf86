package document

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Kind
	}{
		{
			name: "markdown with separator",
			text: "hosts: all\n---\n# Web Server\n\nEnsure nginx is installed.\n",
			want: KindDesiredState,
		},
		{
			name: "legacy script",
			text: "hosts: all  # noqa\nasync def run(inventory_path, extravars, runner):\n    pass\n",
			want: KindLegacyScript,
		},
		{
			name: "marker wins over separator",
			text: "hosts: all\n---\n# Doc\n\n```python\nasync def run(inventory_path, extravars, runner):\n```\n",
			want: KindLegacyScript,
		},
		{
			name: "marker after trailing markdown",
			text: "hosts: all\nasync def run(inventory_path, extravars, runner):\n    return 0\n# Notes\n",
			want: KindLegacyScript,
		},
		{
			name: "no marker no separator",
			text: "hosts: all\n# Just notes\n",
			want: KindDesiredState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(InputDocument{Path: "site.yml", Text: tt.text})
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractDesiredState(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{
			name: "content after separator",
			text: "hosts: all\n---\n# Title\nDo X.\n",
			want: "# Title\nDo X.\n",
		},
		{
			name: "multiline body preserved byte for byte",
			text: "hosts: all\n---\n# Database Setup\n\nEnsure PostgreSQL 16 is running.\n\n## Security\n\n- SSL enabled\n- Only 10.0.0.0/8\n",
			want: "# Database Setup\n\nEnsure PostgreSQL 16 is running.\n\n## Security\n\n- SSL enabled\n- Only 10.0.0.0/8\n",
		},
		{
			name: "unicode preserved",
			text: "hosts: all\n---\n# Ünïcodé ✓\n日本語のテキスト\n",
			want: "# Ünïcodé ✓\n日本語のテキスト\n",
		},
		{
			name: "only first separator counts",
			text: "hosts: all\n---\nbefore\n---\nafter\n",
			want: "before\n---\nafter\n",
		},
		{
			name: "separator must be the whole line",
			text: "hosts: all\n--- trailing\nbody\n",
			wantErr: true,
		},
		{
			name:    "no separator",
			text:    "hosts: all\n# Notes\n",
			wantErr: true,
		},
		{
			name:    "nothing after separator",
			text:    "hosts: all\n---\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := ExtractDesiredState(InputDocument{Path: "site.yml", Text: tt.text})
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedDocument) {
					t.Fatalf("ExtractDesiredState() error = %v, want ErrMalformedDocument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractDesiredState() error = %v", err)
			}
			if ds.Text != tt.want {
				t.Errorf("ExtractDesiredState() = %q, want %q", ds.Text, tt.want)
			}
		})
	}
}

func TestExtractScript(t *testing.T) {
	text := "hosts: all\nasync def run(inventory_path, extravars, runner):\n    return 0\n"
	got := ExtractScript(InputDocument{Path: "script.yml", Text: text})
	if got != text {
		t.Errorf("ExtractScript() changed the text: %q", got)
	}
}
